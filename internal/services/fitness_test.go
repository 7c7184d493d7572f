package rewards

import (
	"context"
	"testing"
	"time"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fitnessFixture(t *testing.T) (*fakeStorage, *FitnessService, model.User) {
	t.Helper()
	st := newFakeStorage()
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	serv := NewFitnessService(zap.NewNop(), st, nil, model.DefaultEconomics())
	return st, serv, user
}

// 25000 шагов при норме 10000 и одной потраченной бутылке - доступна одна
func TestAvailableBottles(t *testing.T) {
	st, serv, user := fitnessFixture(t)
	ctx := context.Background()

	_, err := serv.UpsertSteps(ctx, user.ID, time.Now(), 25000)
	require.NoError(t, err)

	available, err := serv.AvailableBottles(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), available)

	_, err = serv.Consume(ctx, user.ID, 1)
	require.NoError(t, err)

	available, err = serv.AvailableBottles(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), available)

	// начислено 10 баллов за бутылку
	balance, err := st.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

// повторная отправка за ту же дату перезаписывает, а не суммирует
func TestStepsUpsertSameDay(t *testing.T) {
	_, serv, user := fitnessFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC)

	_, err := serv.UpsertSteps(ctx, user.ID, day, 8000)
	require.NoError(t, err)
	_, err = serv.UpsertSteps(ctx, user.ID, day.Add(3*time.Hour), 12000)
	require.NoError(t, err)

	total, err := serv.TotalSteps(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12000), total)
}

func TestConsumeTooMany(t *testing.T) {
	_, serv, user := fitnessFixture(t)
	ctx := context.Background()

	_, err := serv.UpsertSteps(ctx, user.ID, time.Now(), 15000)
	require.NoError(t, err)

	_, err = serv.Consume(ctx, user.ID, 2)
	var bottlesErr *model.NotEnoughBottlesError
	require.ErrorAs(t, err, &bottlesErr)
	require.Equal(t, int64(1), bottlesErr.Available)

	_, err = serv.Consume(ctx, user.ID, 0)
	require.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestStepsNegative(t *testing.T) {
	_, serv, user := fitnessFixture(t)
	_, err := serv.UpsertSteps(context.Background(), user.ID, time.Now(), -1)
	require.ErrorIs(t, err, model.ErrInvalidAmount)
}

// доступное количество не уходит в минус
func TestAvailableBottlesClamped(t *testing.T) {
	_, serv, user := fitnessFixture(t)
	available, err := serv.AvailableBottles(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), available)
}
