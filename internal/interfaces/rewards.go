package rewards

import (
	"context"
	"time"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/google/uuid"
)

//go:generate mockgen -destination=./../services/mock_cache_test.go -package=rewards . CacheStorage

// Основное хранилище. Все методы работают и внутри транзакции WithinTx.
type Storage interface {
	// леджер
	TnxCreate(ctx context.Context, tnx model.PointTransaction) (model.PointTransaction, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	GetTnx(ctx context.Context, userID int64, offset, limit uint64) ([]model.PointTransaction, error)
	LockUser(ctx context.Context, userID int64) error

	// пользователи
	UserCreate(ctx context.Context, user model.User) (model.User, error)
	UserByID(ctx context.Context, userID int64) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	UserByReferralCode(ctx context.Context, code string) (model.User, error)
	UserSetReferralCode(ctx context.Context, userID int64, code string) error
	UserSetActive(ctx context.Context, userID int64, active bool) error
	UserList(ctx context.Context, search string, offset, limit uint64) ([]model.User, error)
	UserCount(ctx context.Context) (int64, error)
	UserCountSince(ctx context.Context, since time.Time) (int64, error)

	// чеки
	ReceiptCreate(ctx context.Context, receipt model.Receipt) (model.Receipt, error)
	ReceiptByID(ctx context.Context, id int64) (model.Receipt, error)
	ReceiptList(ctx context.Context, userID int64, offset, limit uint64) ([]model.Receipt, error)
	ReceiptListAll(ctx context.Context, status model.ReceiptStatus, offset, limit uint64) ([]model.Receipt, error)
	ReceiptSetReview(ctx context.Context, id int64, status model.ReceiptStatus, points int64, reason string) error
	ReceiptCountPending(ctx context.Context) (int64, error)
	LockReceipt(ctx context.Context, id int64) error

	// обмены
	ExchangeCreate(ctx context.Context, exchange model.Exchange) (model.Exchange, error)
	ExchangeByID(ctx context.Context, id int64) (model.Exchange, error)
	ExchangeList(ctx context.Context, userID int64, offset, limit uint64) ([]model.Exchange, error)
	ExchangeListAll(ctx context.Context, status model.ExchangeStatus, offset, limit uint64) ([]model.Exchange, error)
	ExchangeSetStatus(ctx context.Context, id int64, status model.ExchangeStatus) error
	ExchangeCompletedTotal(ctx context.Context) (int64, error)
	LockExchange(ctx context.Context, id int64) error

	// шаги и бутылки
	StepsUpsert(ctx context.Context, userID int64, date time.Time, steps int64) (model.FitnessLog, error)
	StepsTotal(ctx context.Context, userID int64) (int64, error)
	StepsRecent(ctx context.Context, userID int64, since time.Time) ([]model.FitnessLog, error)
	BottlesConsumed(ctx context.Context, userID int64) (int64, error)
	ConsumptionCreate(ctx context.Context, consumption model.BottleConsumption) (model.BottleConsumption, error)

	// анкеты
	SurveyCreate(ctx context.Context, survey model.Survey) (model.Survey, error)
	SurveyUpdate(ctx context.Context, survey model.Survey) error
	SurveyByID(ctx context.Context, id int64) (model.Survey, error)
	SurveyListActive(ctx context.Context, offset, limit uint64) ([]model.Survey, error)
	SurveyListAll(ctx context.Context, offset, limit uint64) ([]model.Survey, error)
	AnswerCreate(ctx context.Context, answer model.SurveyAnswer) (model.SurveyAnswer, error)
	HasAnswered(ctx context.Context, userID, surveyID int64) (bool, error)

	// приглашения
	ReferralCreate(ctx context.Context, referral model.Referral) (model.Referral, error)
	ReferralByReferred(ctx context.Context, referredID int64) (model.Referral, error)
	ReferralList(ctx context.Context, referrerID int64) ([]model.Referral, error)

	// трекинг покупок
	TrackCreate(ctx context.Context, track model.ShoppingTrack) (model.ShoppingTrack, error)
	TrackList(ctx context.Context, userID int64, limit uint64) ([]model.ShoppingTrack, error)
	TrackSetStatus(ctx context.Context, id int64, status model.TrackStatus) error

	// аналитика
	PointsGrantedTotal(ctx context.Context) (int64, error)
}

// Хранилище с единицей работы: fn выполняется в одной транзакции,
// коммит только при nil, иначе полный откат.
type TxStorage interface {
	Storage
	WithinTx(ctx context.Context, fn func(s Storage) error) error
}

type CacheStorage interface {
	GetBalance(ctx context.Context, userID int64) (points int64, err error)
	SetBalance(ctx context.Context, userID int64, points int64) (err error)
	InvalidateBalance(ctx context.Context, userID int64) error
}

// Контент (кампании и объявления)
type ContentStorage interface {
	CampaignSave(ctx context.Context, campaign model.Campaign) (model.Campaign, error)
	CampaignByID(ctx context.Context, id uuid.UUID) (model.Campaign, error)
	CampaignList(ctx context.Context, activeOnly bool) ([]model.Campaign, error)
	AnnouncementSave(ctx context.Context, announcement model.Announcement) (model.Announcement, error)
	AnnouncementByID(ctx context.Context, id uuid.UUID) (model.Announcement, error)
	AnnouncementList(ctx context.Context, activeOnly bool) ([]model.Announcement, error)
}
