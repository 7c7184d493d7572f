package rewards

import (
	"context"
	"fmt"
	"time"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Шаги и бутылки. Доступные бутылки - производная величина:
// floor(все шаги / шагов на бутылку) - потраченные бутылки
type FitnessService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
	eco    model.Economics
}

func NewFitnessService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage, eco model.Economics) *FitnessService {
	return &FitnessService{logger, db, cache, eco}
}

// Запись шагов за день. Повторная отправка за ту же дату
// перезаписывает значение - двойного счета бутылок не будет
func (s *FitnessService) UpsertSteps(ctx context.Context, userID int64, date time.Time, steps int64) (model.FitnessLog, error) {
	if steps < 0 {
		return model.FitnessLog{}, model.ErrInvalidAmount
	}
	if date.IsZero() {
		date = time.Now()
	}
	y, m, d := date.Date()
	date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return s.db.StepsUpsert(ctx, userID, date, steps)
}

// всего шагов
func (s *FitnessService) TotalSteps(ctx context.Context, userID int64) (int64, error) {
	return s.db.StepsTotal(ctx, userID)
}

// доступные бутылки
func (s *FitnessService) AvailableBottles(ctx context.Context, userID int64) (int64, error) {
	return s.availableBottles(ctx, s.db, userID)
}

func (s *FitnessService) availableBottles(ctx context.Context, st interf.Storage, userID int64) (int64, error) {
	total, err := st.StepsTotal(ctx, userID)
	if err != nil {
		return 0, err
	}
	consumed, err := st.BottlesConsumed(ctx, userID)
	if err != nil {
		return 0, err
	}
	available := total/s.eco.StepsPerBottle - consumed
	if available < 0 {
		available = 0
	}
	return available, nil
}

// Обмен бутылок на баллы. Проверка доступных бутылок и начисление
// в одной транзакции, строка пользователя блокируется - из двух
// конкурентных запросов на последние бутылки пройдет только один
func (s *FitnessService) Consume(ctx context.Context, userID, bottles int64) (consumption model.BottleConsumption, err error) {
	if bottles <= 0 {
		return model.BottleConsumption{}, model.ErrInvalidAmount
	}

	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		err := st.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		available, err := s.availableBottles(ctx, st, userID)
		if err != nil {
			return err
		}
		if bottles > available {
			return &model.NotEnoughBottlesError{Available: available}
		}

		points := bottles * s.eco.PointsPerBottle
		consumption, err = st.ConsumptionCreate(ctx, model.BottleConsumption{
			UserID:        userID,
			Bottles:       bottles,
			PointsAwarded: points,
		})
		if err != nil {
			return err
		}

		_, err = st.TnxCreate(ctx, model.PointTransaction{
			UserID:      userID,
			Amount:      points,
			Category:    model.CategoryBottle,
			Description: fmt.Sprintf("Consumed %d bottles", bottles),
			RefID:       consumption.ID,
		})
		return err
	})
	if err != nil {
		return model.BottleConsumption{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, userID)
	return consumption, nil
}

// шаги за последние дни
func (s *FitnessService) Recent(ctx context.Context, userID int64, days int) ([]model.FitnessLog, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)
	return s.db.StepsRecent(ctx, userID, since)
}
