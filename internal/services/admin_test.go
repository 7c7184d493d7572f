package rewards

import (
	"context"
	"testing"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAdminGrant(t *testing.T) {
	st := newFakeStorage()
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	serv := NewAdminService(zap.NewNop(), st, nil)
	ctx := context.Background()

	tnx, err := serv.Grant(ctx, user.ID, 500, "compensation")
	require.NoError(t, err)
	require.Equal(t, model.CategoryAdminGrant, tnx.Category)
	require.Equal(t, "compensation", tnx.Description)

	// описание по умолчанию и отрицательная корректировка
	tnx, err = serv.Grant(ctx, user.ID, -100, "")
	require.NoError(t, err)
	require.Equal(t, "Manual grant by administrator", tnx.Description)

	balance, err := st.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(400), balance)
}

func TestAdminGrantValidation(t *testing.T) {
	st := newFakeStorage()
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	serv := NewAdminService(zap.NewNop(), st, nil)
	ctx := context.Background()

	_, err := serv.Grant(ctx, user.ID, 0, "")
	require.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = serv.Grant(ctx, 999, 100, "")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAdminSetUserActive(t *testing.T) {
	st := newFakeStorage()
	admin := st.addUser(model.User{Email: "admin@test.io", IsActive: true, IsAdmin: true})
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	serv := NewAdminService(zap.NewNop(), st, nil)
	ctx := context.Background()

	err := serv.SetUserActive(ctx, admin.ID, user.ID, false)
	require.NoError(t, err)

	got, err := st.UserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	// себя отключить нельзя
	err = serv.SetUserActive(ctx, admin.ID, admin.ID, false)
	require.ErrorIs(t, err, model.ErrSelfUpdate)
}

func TestAdminAnalytics(t *testing.T) {
	st := newFakeStorage()
	userA := st.addUser(model.User{Email: "a@test.io", IsActive: true})
	userB := st.addUser(model.User{Email: "b@test.io", IsActive: true})
	ctx := context.Background()

	_, err := st.TnxCreate(ctx, model.PointTransaction{UserID: userA.ID, Amount: 300, Category: model.CategoryAdminGrant})
	require.NoError(t, err)
	_, err = st.TnxCreate(ctx, model.PointTransaction{UserID: userA.ID, Amount: -100, Category: model.CategoryExchange})
	require.NoError(t, err)
	_, err = st.ReceiptCreate(ctx, model.Receipt{UserID: userB.ID, Amount: 1000})
	require.NoError(t, err)

	exchange, err := st.ExchangeCreate(ctx, model.Exchange{UserID: userA.ID, Amount: 100, Destination: "paypay"})
	require.NoError(t, err)
	require.NoError(t, st.ExchangeSetStatus(ctx, exchange.ID, model.ExchangeCompleted))

	serv := NewAdminService(zap.NewNop(), st, nil)
	analytics, err := serv.Analytics(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), analytics.TotalUsers)
	require.Equal(t, int64(2), analytics.NewUsersWeek)
	require.Equal(t, int64(300), analytics.TotalPointsGranted)
	require.Equal(t, int64(100), analytics.TotalPointsExchanged)
	require.Equal(t, int64(1), analytics.PendingReceipts)
}
