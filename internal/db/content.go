package rewards

import (
	"context"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Хранилище контента - кампании и объявления
type ContentDB struct {
	mgo           *mongo.Client
	campaigns     *mongo.Collection
	announcements *mongo.Collection
}

func NewContentDB() (*ContentDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mng := os.Getenv("REWARDS_MONGO")
	if mng == "" {
		return nil, fmt.Errorf("env REWARDS_MONGO is not set")
	}

	options := options.Client().ApplyURI("mongodb://" + mng)
	client, err := mongo.Connect(ctx, options)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	db := client.Database("rewardsDB")

	return &ContentDB{client, db.Collection("campaigns"), db.Collection("announcements")}, nil
}

// Создание или обновление кампании
func (c *ContentDB) CampaignSave(ctx context.Context, campaign model.Campaign) (model.Campaign, error) {
	campaign.UpdatedAt = time.Now()
	// если ID пустой, значит новая кампания
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
		campaign.CreatedAt = campaign.UpdatedAt
		_, err := c.campaigns.InsertOne(ctx, campaign)
		if err != nil {
			return model.Campaign{}, err
		}
		return campaign, nil
	}
	filter := bson.M{"id": campaign.ID}
	_, err := c.campaigns.ReplaceOne(ctx, filter, campaign)
	if err != nil {
		return model.Campaign{}, err
	}
	return campaign, nil
}

func (c *ContentDB) CampaignByID(ctx context.Context, id uuid.UUID) (model.Campaign, error) {
	var campaign model.Campaign
	filter := bson.M{"id": id}
	err := c.campaigns.FindOne(ctx, filter).Decode(&campaign)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return model.Campaign{}, fmt.Errorf("campaign %w", model.ErrNotFound)
		}
		return model.Campaign{}, err
	}
	return campaign, nil
}

// Список кампаний. activeOnly - только активные в текущем окне
func (c *ContentDB) CampaignList(ctx context.Context, activeOnly bool) ([]model.Campaign, error) {
	filter := bson.M{}
	if activeOnly {
		now := time.Now()
		zero := time.Time{}
		// окно: start_at наступил или пустой, end_at не прошел или пустой
		filter = bson.M{
			"active": true,
			"$and": bson.A{
				bson.M{"$or": bson.A{bson.M{"start_at": zero}, bson.M{"start_at": bson.M{"$lte": now}}}},
				bson.M{"$or": bson.A{bson.M{"end_at": zero}, bson.M{"end_at": bson.M{"$gte": now}}}},
			},
		}
	}

	result, err := c.campaigns.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var campaigns []model.Campaign
	for result.Next(ctx) {
		var campaign model.Campaign
		err := result.Decode(&campaign)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}

// Создание или обновление объявления
func (c *ContentDB) AnnouncementSave(ctx context.Context, announcement model.Announcement) (model.Announcement, error) {
	announcement.UpdatedAt = time.Now()
	if announcement.ID == uuid.Nil {
		announcement.ID = uuid.New()
		announcement.CreatedAt = announcement.UpdatedAt
		_, err := c.announcements.InsertOne(ctx, announcement)
		if err != nil {
			return model.Announcement{}, err
		}
		return announcement, nil
	}
	filter := bson.M{"id": announcement.ID}
	_, err := c.announcements.ReplaceOne(ctx, filter, announcement)
	if err != nil {
		return model.Announcement{}, err
	}
	return announcement, nil
}

func (c *ContentDB) AnnouncementByID(ctx context.Context, id uuid.UUID) (model.Announcement, error) {
	var announcement model.Announcement
	filter := bson.M{"id": id}
	err := c.announcements.FindOne(ctx, filter).Decode(&announcement)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return model.Announcement{}, fmt.Errorf("announcement %w", model.ErrNotFound)
		}
		return model.Announcement{}, err
	}
	return announcement, nil
}

func (c *ContentDB) AnnouncementList(ctx context.Context, activeOnly bool) ([]model.Announcement, error) {
	filter := bson.M{}
	if activeOnly {
		filter = bson.M{"active": true}
	}
	result, err := c.announcements.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var announcements []model.Announcement
	for result.Next(ctx) {
		var announcement model.Announcement
		err := result.Decode(&announcement)
		if err != nil {
			return nil, err
		}
		announcements = append(announcements, announcement)
	}
	return announcements, nil
}
