package rewards

import (
	"context"
	"encoding/json"
	"fmt"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Трекинг покупок в партнерских магазинах.
// События приходят из Kafka, баллы начисляет администратор отдельно
type ShoppingService struct {
	logger *zap.Logger
	db     interf.TxStorage
}

func NewShoppingService(logger *zap.Logger, db interf.TxStorage) *ShoppingService {
	return &ShoppingService{logger, db}
}

// переход пользователя в магазин
func (s *ShoppingService) Track(ctx context.Context, userID int64, merchant, orderID string) (model.ShoppingTrack, error) {
	if merchant == "" {
		return model.ShoppingTrack{}, fmt.Errorf("merchant is required")
	}
	return s.db.TrackCreate(ctx, model.ShoppingTrack{
		UserID:   userID,
		Merchant: merchant,
		OrderID:  orderID,
		Status:   model.TrackPending,
	})
}

// история переходов
func (s *ShoppingService) History(ctx context.Context, userID int64, limit uint64) ([]model.ShoppingTrack, error) {
	if limit == 0 {
		limit = 50
	}
	return s.db.TrackList(ctx, userID, limit)
}

// смена статуса администратором
func (s *ShoppingService) SetStatus(ctx context.Context, id int64, status model.TrackStatus) error {
	switch status {
	case model.TrackPending, model.TrackConfirmed, model.TrackPointsAwarded:
	default:
		return fmt.Errorf("status %s is not valid", status)
	}
	return s.db.TrackSetStatus(ctx, id, status)
}

// Событие покупки из внешнего источника
type PurchaseEvent struct {
	UserID   int64  `json:"userId"`
	Merchant string `json:"merchant"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
}

// Обработка события покупки из очереди
func (s *ShoppingService) ProcessEvent(ctx context.Context, event []byte) (model.ShoppingTrack, error) {
	var purchase PurchaseEvent
	err := json.Unmarshal(event, &purchase)
	if err != nil {
		return model.ShoppingTrack{}, err
	}
	if purchase.UserID == 0 {
		return model.ShoppingTrack{}, fmt.Errorf("Invalid purchase: userId field is required")
	}
	if purchase.Merchant == "" {
		return model.ShoppingTrack{}, fmt.Errorf("Invalid purchase: merchant field is required")
	}

	track, err := s.db.TrackCreate(ctx, model.ShoppingTrack{
		UserID:   purchase.UserID,
		Merchant: purchase.Merchant,
		OrderID:  purchase.OrderID,
		Amount:   purchase.Amount,
		Status:   model.TrackConfirmed,
	})
	if err != nil {
		return model.ShoppingTrack{}, err
	}
	s.logger.Info("purchase tracked",
		zap.Int64("user", track.UserID),
		zap.String("merchant", track.Merchant),
		zap.String("order", track.OrderID))
	return track, nil
}
