package rewards

import (
	"context"
	"time"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Администрирование: ручные начисления, пользователи, аналитика
type AdminService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
}

func NewAdminService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage) *AdminService {
	return &AdminService{logger, db, cache}
}

// Ручное начисление. Без проверок баланса - решение за администратором,
// след остается в описании транзакции
func (s *AdminService) Grant(ctx context.Context, userID, amount int64, description string) (tnx model.PointTransaction, err error) {
	if amount == 0 {
		return model.PointTransaction{}, model.ErrInvalidAmount
	}
	if description == "" {
		description = "Manual grant by administrator"
	}

	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		_, err := st.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		tnx, err = st.TnxCreate(ctx, model.PointTransaction{
			UserID:      userID,
			Amount:      amount,
			Category:    model.CategoryAdminGrant,
			Description: description,
		})
		return err
	})
	if err != nil {
		return model.PointTransaction{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, userID)
	return tnx, nil
}

// список пользователей с поиском по email и имени
func (s *AdminService) ListUsers(ctx context.Context, search string, offset, limit uint64) ([]model.User, error) {
	if limit == 0 {
		limit = 50
	}
	return s.db.UserList(ctx, search, offset, limit)
}

// включение/отключение пользователя, себя отключить нельзя
func (s *AdminService) SetUserActive(ctx context.Context, adminID, userID int64, active bool) error {
	if adminID == userID {
		return model.ErrSelfUpdate
	}
	return s.db.UserSetActive(ctx, userID, active)
}

// Сводка для панели - агрегаты считаются параллельно
func (s *AdminService) Analytics(ctx context.Context) (model.Analytics, error) {
	var analytics model.Analytics
	week := time.Now().AddDate(0, 0, -7)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		analytics.TotalUsers, err = s.db.UserCount(gctx)
		return
	})
	g.Go(func() (err error) {
		analytics.NewUsersWeek, err = s.db.UserCountSince(gctx, week)
		return
	})
	g.Go(func() (err error) {
		analytics.TotalPointsGranted, err = s.db.PointsGrantedTotal(gctx)
		return
	})
	g.Go(func() (err error) {
		analytics.TotalPointsExchanged, err = s.db.ExchangeCompletedTotal(gctx)
		return
	})
	g.Go(func() (err error) {
		analytics.PendingReceipts, err = s.db.ReceiptCountPending(gctx)
		return
	})

	if err := g.Wait(); err != nil {
		return model.Analytics{}, err
	}
	return analytics, nil
}
