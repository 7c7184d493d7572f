package rewards

import (
	"context"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Леджер баллов. Баланс не хранится - всегда сумма транзакций
type LedgerService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
}

func NewLedgerService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage) *LedgerService {
	return &LedgerService{logger, db, cache}
}

// баланс
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (points int64, err error) {
	// cache
	if s.cache != nil {
		points, err = s.cache.GetBalance(ctx, userID)
		if err != nil {
			// database
			points, err = s.db.GetBalance(ctx, userID)
			if err != nil {
				return 0, err
			}
			_ = s.cache.SetBalance(ctx, userID, points)
		}
	} else {
		points, err = s.db.GetBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
	}
	return
}

// история транзакций
func (s *LedgerService) GetTnx(ctx context.Context, userID int64, offset, limit uint64) ([]model.PointTransaction, error) {
	if limit == 0 {
		limit = 50
	}
	return s.db.GetTnx(ctx, userID, offset, limit)
}

// создание транзакции - без проверок, условия проверяет вызывающий
func (s *LedgerService) Post(ctx context.Context, userID, amount int64, category model.Category, description string, refID int64) (tnx model.PointTransaction, err error) {
	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		tnx, err = st.TnxCreate(ctx, model.PointTransaction{
			UserID:      userID,
			Amount:      amount,
			Category:    category,
			Description: description,
			RefID:       refID,
		})
		return err
	})
	if err != nil {
		return model.PointTransaction{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, userID)
	return tnx, nil
}

// инвалидировать кэш баланса, ошибки кэша не фатальны
func invalidateBalance(ctx context.Context, logger *zap.Logger, cache interf.CacheStorage, userID int64) {
	if cache == nil {
		return
	}
	err := cache.InvalidateBalance(ctx, userID)
	if err != nil {
		logger.Error(err.Error())
	}
}
