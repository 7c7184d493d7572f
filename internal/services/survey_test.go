package rewards

import (
	"context"
	"testing"
	"time"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func surveyFixture(t *testing.T) (*fakeStorage, *SurveyService, model.User) {
	t.Helper()
	st := newFakeStorage()
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	serv := NewSurveyService(zap.NewNop(), st, nil)
	return st, serv, user
}

func TestSurveySubmit(t *testing.T) {
	st, serv, user := surveyFixture(t)
	ctx := context.Background()

	survey, err := serv.Create(ctx, model.Survey{Title: "Service quality", Points: 25, IsActive: true})
	require.NoError(t, err)

	answer, err := serv.Submit(ctx, user.ID, survey.ID, `{"q1":"yes"}`)
	require.NoError(t, err)
	require.Equal(t, survey.ID, answer.SurveyID)

	balance, err := st.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)
}

// второй ответ на ту же анкету не проходит и не начисляет
func TestSurveySubmitTwice(t *testing.T) {
	st, serv, user := surveyFixture(t)
	ctx := context.Background()

	survey, err := serv.Create(ctx, model.Survey{Title: "Service quality", Points: 25, IsActive: true})
	require.NoError(t, err)

	_, err = serv.Submit(ctx, user.ID, survey.ID, `{"q1":"yes"}`)
	require.NoError(t, err)
	_, err = serv.Submit(ctx, user.ID, survey.ID, `{"q1":"no"}`)
	require.ErrorIs(t, err, model.ErrAlreadyAnswered)

	require.Equal(t, 1, st.countTnx(user.ID, model.CategorySurvey))
}

func TestSurveyInactive(t *testing.T) {
	_, serv, user := surveyFixture(t)
	ctx := context.Background()

	survey, err := serv.Create(ctx, model.Survey{Title: "Hidden", Points: 10})
	require.NoError(t, err)

	_, err = serv.Get(ctx, survey.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = serv.Submit(ctx, user.ID, survey.ID, "{}")
	require.ErrorIs(t, err, model.ErrNotFound)

	// для администратора анкета видна
	got, err := serv.GetAdmin(ctx, survey.ID)
	require.NoError(t, err)
	require.Equal(t, survey.ID, got.ID)
}

func TestSurveyExpired(t *testing.T) {
	_, serv, user := surveyFixture(t)
	ctx := context.Background()

	survey, err := serv.Create(ctx, model.Survey{
		Title:     "Old survey",
		Points:    10,
		IsActive:  true,
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = serv.Submit(ctx, user.ID, survey.ID, "{}")
	require.ErrorIs(t, err, model.ErrSurveyClosed)
}

// баллы по умолчанию, если администратор не задал
func TestSurveyDefaultPoints(t *testing.T) {
	_, serv, _ := surveyFixture(t)
	survey, err := serv.Create(context.Background(), model.Survey{Title: "No points", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, int64(10), survey.Points)
}
