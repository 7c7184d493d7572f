package rewards

import (
	"context"
	"fmt"
	"time"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"go.uber.org/zap"
)

// Анкеты. Не более одного ответа на пару (анкета, пользователь)
type SurveyService struct {
	logger *zap.Logger
	db     interf.TxStorage
	cache  interf.CacheStorage
}

func NewSurveyService(logger *zap.Logger, db interf.TxStorage, cache interf.CacheStorage) *SurveyService {
	return &SurveyService{logger, db, cache}
}

// доступные анкеты
func (s *SurveyService) ListActive(ctx context.Context, offset, limit uint64) ([]model.Survey, error) {
	if limit == 0 {
		limit = 20
	}
	return s.db.SurveyListActive(ctx, offset, limit)
}

// анкета для пользователя - неактивную не отдаем
func (s *SurveyService) Get(ctx context.Context, id int64) (model.Survey, error) {
	survey, err := s.db.SurveyByID(ctx, id)
	if err != nil {
		return model.Survey{}, err
	}
	if !survey.IsActive {
		return model.Survey{}, fmt.Errorf("survey %w", model.ErrNotFound)
	}
	return survey, nil
}

// анкета для администратора - включая неактивные
func (s *SurveyService) GetAdmin(ctx context.Context, id int64) (model.Survey, error) {
	return s.db.SurveyByID(ctx, id)
}

// все анкеты
func (s *SurveyService) ListAll(ctx context.Context, offset, limit uint64) ([]model.Survey, error) {
	if limit == 0 {
		limit = 50
	}
	return s.db.SurveyListAll(ctx, offset, limit)
}

// создание анкеты
func (s *SurveyService) Create(ctx context.Context, survey model.Survey) (model.Survey, error) {
	if survey.Title == "" {
		return model.Survey{}, fmt.Errorf("title is required")
	}
	if survey.Points <= 0 {
		survey.Points = 10
	}
	return s.db.SurveyCreate(ctx, survey)
}

// обновление анкеты
func (s *SurveyService) Update(ctx context.Context, survey model.Survey) error {
	if survey.Title == "" {
		return fmt.Errorf("title is required")
	}
	return s.db.SurveyUpdate(ctx, survey)
}

// Ответ на анкету. Проверки и начисление в одной транзакции,
// уникальный индекс закрывает гонку двух одинаковых запросов
func (s *SurveyService) Submit(ctx context.Context, userID, surveyID int64, answers string) (answer model.SurveyAnswer, err error) {
	err = s.db.WithinTx(ctx, func(st interf.Storage) error {
		survey, err := st.SurveyByID(ctx, surveyID)
		if err != nil {
			return err
		}
		if !survey.IsActive {
			return fmt.Errorf("survey %w", model.ErrNotFound)
		}
		if !survey.ExpiresAt.IsZero() && survey.ExpiresAt.Before(time.Now()) {
			return model.ErrSurveyClosed
		}

		answered, err := st.HasAnswered(ctx, userID, surveyID)
		if err != nil {
			return err
		}
		if answered {
			return model.ErrAlreadyAnswered
		}

		answer, err = st.AnswerCreate(ctx, model.SurveyAnswer{
			SurveyID: surveyID,
			UserID:   userID,
			Answers:  answers,
		})
		if err != nil {
			return err
		}

		_, err = st.TnxCreate(ctx, model.PointTransaction{
			UserID:      userID,
			Amount:      survey.Points,
			Category:    model.CategorySurvey,
			Description: "Survey: " + survey.Title,
			RefID:       answer.ID,
		})
		return err
	})
	if err != nil {
		return model.SurveyAnswer{}, err
	}
	invalidateBalance(ctx, s.logger, s.cache, userID)
	return answer, nil
}
