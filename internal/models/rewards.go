package rewards

import (
	"time"

	"github.com/google/uuid"
)

// Категория транзакции - источник начисления или списания
type Category string

const (
	CategoryReceipt        Category = "receipt"
	CategoryExchange       Category = "exchange"
	CategoryExchangeRefund Category = "exchange_refund"
	CategoryBottle         Category = "bottle"
	CategorySurvey         Category = "survey"
	CategoryReferral       Category = "referral"
	CategoryReferralBonus  Category = "referral_bonus"
	CategoryAdminGrant     Category = "admin_grant"
)

// Транзакция баллов - только добавление, без изменения и удаления.
// Баланс пользователя всегда считается как сумма транзакций.
type PointTransaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Amount      int64     `json:"amount"` // положительное - начисление, отрицательное - списание
	Category    Category  `json:"category"`
	Description string    `json:"description,omitempty"`
	RefID       int64     `json:"ref_id,omitempty"` // ID исходной сущности (чек, обмен, и т.д.)
	CreatedAt   time.Time `json:"created_at"`
}

// Пользователь
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Nickname     string    `json:"nickname,omitempty"`
	ReferralCode string    `json:"referral_code,omitempty"` // выдается один раз, не меняется
	IsActive     bool      `json:"is_active"`
	IsAdmin      bool      `json:"is_admin"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Статусы чека
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// Чек на проверке
type Receipt struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	ImageURL        string        `json:"image_url"`
	StoreName       string        `json:"store_name"`
	Amount          int64         `json:"amount"` // сумма в йенах
	Items           string        `json:"items,omitempty"` // JSON список позиций
	PurchasedAt     time.Time     `json:"purchased_at,omitempty"`
	Status          ReceiptStatus `json:"status"`
	PointsAwarded   int64         `json:"points_awarded,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Статусы обмена баллов
type ExchangeStatus string

const (
	ExchangePending    ExchangeStatus = "pending"
	ExchangeProcessing ExchangeStatus = "processing"
	ExchangeCompleted  ExchangeStatus = "completed"
	ExchangeRejected   ExchangeStatus = "rejected"
)

// Заявка на обмен баллов. Списание происходит при создании заявки,
// дальнейшие смены статуса транзакцию не создают (кроме возврата при отказе).
type Exchange struct {
	ID                int64          `json:"id"`
	UserID            int64          `json:"user_id"`
	Amount            int64          `json:"amount"`
	Destination       string         `json:"destination"`
	DestinationDetail string         `json:"destination_detail,omitempty"`
	Status            ExchangeStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Шаги за день. Пара (пользователь, дата) уникальна,
// повторная отправка перезаписывает значение.
type FitnessLog struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Steps     int64     `json:"steps"`
	LogDate   time.Time `json:"log_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Обмен бутылок на баллы (шаги -> бутылки -> баллы)
type BottleConsumption struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Bottles       int64     `json:"bottles"`
	PointsAwarded int64     `json:"points_awarded"`
	CreatedAt     time.Time `json:"created_at"`
}

// Анкета
type Survey struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Points      int64     `json:"points"`
	IsActive    bool      `json:"is_active"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ответ на анкету - не более одного на пару (анкета, пользователь)
type SurveyAnswer struct {
	ID        int64     `json:"id"`
	SurveyID  int64     `json:"survey_id"`
	UserID    int64     `json:"user_id"`
	Answers   string    `json:"answers,omitempty"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

// Приглашение - не более одного на приглашенного пользователя
type Referral struct {
	ID            int64     `json:"id"`
	ReferrerID    int64     `json:"referrer_id"`
	ReferredID    int64     `json:"referred_id"`
	Code          string    `json:"code"`
	PointsAwarded int64     `json:"points_awarded"`
	CreatedAt     time.Time `json:"created_at"`
}

// Статусы трекинга покупок
type TrackStatus string

const (
	TrackPending       TrackStatus = "pending"
	TrackConfirmed     TrackStatus = "confirmed"
	TrackPointsAwarded TrackStatus = "points_awarded"
)

// Трекинг покупки в партнерском магазине
type ShoppingTrack struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	Merchant  string      `json:"merchant"`
	OrderID   string      `json:"order_id,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
	Status    TrackStatus `json:"status"`
	TrackedAt time.Time   `json:"tracked_at"`
}

// Типы кампаний
type CampaignType string

const (
	CampaignLottery CampaignType = "lottery"
	CampaignQuest   CampaignType = "quest"
	CampaignBuyback CampaignType = "buyback"
	CampaignGeneral CampaignType = "general"
)

// Кампания
type Campaign struct {
	ID          uuid.UUID    `bson:"id" json:"id"`
	Title       string       `bson:"title" json:"title"`
	Type        CampaignType `bson:"type" json:"type"`
	Description string       `bson:"description" json:"description,omitempty"`
	Points      int64        `bson:"points" json:"points,omitempty"`
	StartAt     time.Time    `bson:"start_at" json:"start_at,omitempty"`
	EndAt       time.Time    `bson:"end_at" json:"end_at,omitempty"`
	IsActive    bool         `bson:"active" json:"is_active"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

// Объявление
type Announcement struct {
	ID        uuid.UUID `bson:"id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Body      string    `bson:"body" json:"body,omitempty"`
	IsActive  bool      `bson:"active" json:"is_active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Сводка для админской панели
type Analytics struct {
	TotalUsers           int64 `json:"total_users"`
	NewUsersWeek         int64 `json:"new_users_week"`
	TotalPointsGranted   int64 `json:"total_points_granted"`
	TotalPointsExchanged int64 `json:"total_points_exchanged"`
	PendingReceipts      int64 `json:"pending_receipts"`
}
