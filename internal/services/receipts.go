package rewards

import (
	"context"
	"fmt"
	"time"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Чеки: pending -> approved | rejected, статусы терминальные.
// Начисление происходит только на переходе из pending в approved.
type ReceiptService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
}

func NewReceiptService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage) *ReceiptService {
	return &ReceiptService{logger, db, cache}
}

// регистрация чека
func (s *ReceiptService) Submit(ctx context.Context, userID int64, imageURL, storeName string, amount int64, items string, purchasedAt time.Time) (model.Receipt, error) {
	if amount <= 0 {
		return model.Receipt{}, model.ErrInvalidAmount
	}
	return s.db.ReceiptCreate(ctx, model.Receipt{
		UserID:      userID,
		ImageURL:    imageURL,
		StoreName:   storeName,
		Amount:      amount,
		Items:       items,
		PurchasedAt: purchasedAt,
	})
}

// чеки пользователя
func (s *ReceiptService) ListForUser(ctx context.Context, userID int64, offset, limit uint64) ([]model.Receipt, error) {
	if limit == 0 {
		limit = 20
	}
	return s.db.ReceiptList(ctx, userID, offset, limit)
}

// чек пользователя - чужой чек не отдаем
func (s *ReceiptService) GetForUser(ctx context.Context, id, userID int64) (model.Receipt, error) {
	receipt, err := s.db.ReceiptByID(ctx, id)
	if err != nil {
		return model.Receipt{}, err
	}
	if receipt.UserID != userID {
		return model.Receipt{}, fmt.Errorf("receipt %w", model.ErrNotFound)
	}
	return receipt, nil
}

// все чеки (для проверки)
func (s *ReceiptService) ListAll(ctx context.Context, status model.ReceiptStatus, offset, limit uint64) ([]model.Receipt, error) {
	if limit == 0 {
		limit = 50
	}
	switch status {
	case "", model.ReceiptPending, model.ReceiptApproved, model.ReceiptRejected:
	default:
		return nil, fmt.Errorf("unknown receipt status: %s", status)
	}
	return s.db.ReceiptListAll(ctx, status, offset, limit)
}

func (s *ReceiptService) Get(ctx context.Context, id int64) (model.Receipt, error) {
	return s.db.ReceiptByID(ctx, id)
}

// Результат проверки чека. Статус и поля сохраняются всегда,
// но транзакция создается только если чек был pending и одобрен
// с положительными баллами - повторная проверка не начисляет повторно.
// Строка чека блокируется до чтения статуса, иначе два конкурентных
// одобрения оба увидят pending и начислят дважды.
func (s *ReceiptService) Review(ctx context.Context, id int64, status model.ReceiptStatus, points int64, reason string) (receipt model.Receipt, err error) {
	if status != model.ReceiptApproved && status != model.ReceiptRejected {
		return model.Receipt{}, fmt.Errorf("unknown receipt status: %s", status)
	}

	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		err := st.LockReceipt(ctx, id)
		if err != nil {
			return err
		}
		receipt, err = st.ReceiptByID(ctx, id)
		if err != nil {
			return err
		}
		wasPending := receipt.Status == model.ReceiptPending

		err = st.ReceiptSetReview(ctx, id, status, points, reason)
		if err != nil {
			return err
		}
		receipt.Status = status
		receipt.PointsAwarded = points
		receipt.RejectionReason = reason

		if wasPending && status == model.ReceiptApproved && points > 0 {
			_, err = st.TnxCreate(ctx, model.PointTransaction{
				UserID:      receipt.UserID,
				Amount:      points,
				Category:    model.CategoryReceipt,
				Description: fmt.Sprintf("Receipt approved: %s", receipt.StoreName),
				RefID:       receipt.ID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Receipt{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, receipt.UserID)
	return receipt, nil
}
