package rewards

import (
	"context"
	"encoding/json"
	"fmt"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Обмен баллов: pending -> processing -> completed, отказ из pending
// или processing. Списание происходит при создании заявки - две
// конкурентные заявки не могут потратить одни и те же баллы.
type ExchangeService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
	eco    model.Economics
}

func NewExchangeService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage, eco model.Economics) *ExchangeService {
	return &ExchangeService{logger, db, cache, eco}
}

// направления обмена
func (s *ExchangeService) Options() []model.ExchangeOption {
	return s.eco.ExchangeOptions
}

// Заявка на обмен. Проверка баланса и списание в одной транзакции,
// строка пользователя блокируется на время проверки
func (s *ExchangeService) Create(ctx context.Context, userID, amount int64, destination, detail string) (exchange model.Exchange, err error) {
	if amount <= 0 {
		return model.Exchange{}, model.ErrInvalidAmount
	}

	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		err := st.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		balance, err := st.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		if amount > balance {
			return model.ErrNotEnoughPoints
		}

		min := s.eco.MinForDestination(destination)
		if amount < min {
			return &model.MinAmountError{Min: min}
		}

		exchange, err = st.ExchangeCreate(ctx, model.Exchange{
			UserID:            userID,
			Amount:            amount,
			Destination:       destination,
			DestinationDetail: detail,
		})
		if err != nil {
			return err
		}

		// списание при создании заявки
		_, err = st.TnxCreate(ctx, model.PointTransaction{
			UserID:      userID,
			Amount:      -amount,
			Category:    model.CategoryExchange,
			Description: "Exchange request: " + destination,
			RefID:       exchange.ID,
		})
		return err
	})
	if err != nil {
		return model.Exchange{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, userID)
	return exchange, nil
}

// заявки пользователя
func (s *ExchangeService) ListForUser(ctx context.Context, userID int64, offset, limit uint64) ([]model.Exchange, error) {
	if limit == 0 {
		limit = 50
	}
	return s.db.ExchangeList(ctx, userID, offset, limit)
}

// все заявки (для обработки)
func (s *ExchangeService) ListAll(ctx context.Context, status model.ExchangeStatus, offset, limit uint64) ([]model.Exchange, error) {
	if limit == 0 {
		limit = 50
	}
	switch status {
	case "", model.ExchangePending, model.ExchangeProcessing, model.ExchangeCompleted, model.ExchangeRejected:
	default:
		return nil, fmt.Errorf("unknown exchange status: %s", status)
	}
	return s.db.ExchangeListAll(ctx, status, offset, limit)
}

// Событие от платежного провайдера
type SettlementEvent struct {
	ExchangeID int64  `json:"exchangeId"`
	Status     string `json:"status"`
}

// Обработка события расчета из очереди
func (s *ExchangeService) ProcessSettlement(ctx context.Context, event []byte) (exchangeID int64, status model.ExchangeStatus, err error) {
	var settlement SettlementEvent
	err = json.Unmarshal(event, &settlement)
	if err != nil {
		return 0, "", err
	}
	if settlement.ExchangeID == 0 {
		return 0, "", fmt.Errorf("Invalid settlement: exchangeId field is required")
	}
	status = model.ExchangeStatus(settlement.Status)

	_, err = s.SetStatus(ctx, settlement.ExchangeID, status)
	if err != nil {
		return settlement.ExchangeID, status, err
	}
	return settlement.ExchangeID, status, nil
}

// Смена статуса заявки. При отказе возвращаем списанные баллы
// компенсирующей транзакцией - ровно один раз, отказ терминален.
// Строка заявки блокируется до проверки статуса, иначе два
// конкурентных отказа оба увидят pending и вернут баллы дважды.
func (s *ExchangeService) SetStatus(ctx context.Context, id int64, status model.ExchangeStatus) (exchange model.Exchange, err error) {
	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		err := st.LockExchange(ctx, id)
		if err != nil {
			return err
		}
		exchange, err = st.ExchangeByID(ctx, id)
		if err != nil {
			return err
		}

		if exchange.Status == model.ExchangeCompleted || exchange.Status == model.ExchangeRejected {
			return model.ErrFinalStatus
		}
		switch status {
		case model.ExchangeProcessing:
			if exchange.Status != model.ExchangePending {
				return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, exchange.Status, status)
			}
		case model.ExchangeCompleted:
			if exchange.Status != model.ExchangeProcessing {
				return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, exchange.Status, status)
			}
		case model.ExchangeRejected:
			// отказ из pending или processing
		default:
			return fmt.Errorf("unknown exchange status: %s", status)
		}

		err = st.ExchangeSetStatus(ctx, id, status)
		if err != nil {
			return err
		}
		exchange.Status = status

		if status == model.ExchangeRejected {
			_, err = st.TnxCreate(ctx, model.PointTransaction{
				UserID:      exchange.UserID,
				Amount:      exchange.Amount,
				Category:    model.CategoryExchangeRefund,
				Description: "Exchange refund: " + exchange.Destination,
				RefID:       exchange.ID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Exchange{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, exchange.UserID)
	return exchange, nil
}
