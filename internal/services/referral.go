package rewards

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Приглашения. Код выдается один раз и навсегда,
// пользователь может быть приглашен не более одного раза
type ReferralService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
	eco    model.Economics
}

func NewReferralService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage, eco model.Economics) *ReferralService {
	return &ReferralService{logger, db, cache, eco}
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 8

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Код приглашения пользователя. Если кода нет - генерируем
// с проверкой коллизий, до 10 попыток. Выданный код не меняется
func (s *ReferralService) GetOrCreateCode(ctx context.Context, userID int64) (string, error) {
	user, err := s.db.UserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.ReferralCode != "" {
		return user.ReferralCode, nil
	}

	for i := 0; i < 10; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		err = s.db.UserSetReferralCode(ctx, userID, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, model.ErrAlreadyExists) {
			return "", err
		}
		// коллизия кода или код присвоен конкурентным запросом
		user, err = s.db.UserByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if user.ReferralCode != "" {
			return user.ReferralCode, nil
		}
	}
	return "", fmt.Errorf("could not generate referral code")
}

// Обработка кода при регистрации. Тихо пропускаем пустой и неизвестный
// код, свой собственный код и уже приглашенного пользователя
func (s *ReferralService) ApplyOnRegister(ctx context.Context, code string, newUserID int64) error {
	var referral model.Referral
	var applied bool
	err := s.db.WithinTx(ctx, func(st interf.Storage) (err error) {
		referral, applied, err = s.apply(ctx, st, code, newUserID)
		return err
	})
	if err != nil {
		return err
	}
	if applied {
		invalidateBalance(ctx, s.logger, s.cache, referral.ReferrerID)
		invalidateBalance(ctx, s.logger, s.cache, referral.ReferredID)
	}
	return nil
}

// Начисление за приглашение внутри переданной транзакции:
// одна запись Referral и две транзакции с одной ссылкой
func (s *ReferralService) apply(ctx context.Context, st interf.Storage, code string, newUserID int64) (model.Referral, bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.Referral{}, false, nil
	}

	referrer, err := st.UserByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Referral{}, false, nil
		}
		return model.Referral{}, false, err
	}
	if referrer.ID == newUserID {
		return model.Referral{}, false, nil
	}

	_, err = st.ReferralByReferred(ctx, newUserID)
	if err == nil {
		// уже приглашен - повторных начислений не будет
		return model.Referral{}, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.Referral{}, false, err
	}

	referral, err := st.ReferralCreate(ctx, model.Referral{
		ReferrerID:    referrer.ID,
		ReferredID:    newUserID,
		Code:          code,
		PointsAwarded: s.eco.ReferrerPoints,
	})
	if err != nil {
		if errors.Is(err, model.ErrAlreadyReferred) {
			return model.Referral{}, false, nil
		}
		return model.Referral{}, false, err
	}

	_, err = st.TnxCreate(ctx, model.PointTransaction{
		UserID:      referrer.ID,
		Amount:      s.eco.ReferrerPoints,
		Category:    model.CategoryReferral,
		Description: "Referral bonus",
		RefID:       referral.ID,
	})
	if err != nil {
		return model.Referral{}, false, err
	}

	_, err = st.TnxCreate(ctx, model.PointTransaction{
		UserID:      newUserID,
		Amount:      s.eco.ReferredPoints,
		Category:    model.CategoryReferralBonus,
		Description: "Welcome bonus",
		RefID:       referral.ID,
	})
	if err != nil {
		return model.Referral{}, false, err
	}
	return referral, true, nil
}

// кого пригласил пользователь
func (s *ReferralService) History(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	return s.db.ReferralList(ctx, referrerID)
}
