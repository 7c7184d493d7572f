package rewards

import (
	"context"
	"testing"

	model "github.com/glkeru/rewards/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func referralFixture(t *testing.T) (*fakeStorage, *ReferralService) {
	t.Helper()
	st := newFakeStorage()
	serv := NewReferralService(zap.NewNop(), st, nil, model.DefaultEconomics())
	return st, serv
}

func TestReferralCode(t *testing.T) {
	st, serv := referralFixture(t)
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	ctx := context.Background()

	code, err := serv.GetOrCreateCode(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, code, 8)

	// повторный запрос возвращает тот же код
	again, err := serv.GetOrCreateCode(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, code, again)
}

func TestReferralApply(t *testing.T) {
	st, serv := referralFixture(t)
	referrer := st.addUser(model.User{Email: "referrer@test.io", IsActive: true})
	referred := st.addUser(model.User{Email: "referred@test.io", IsActive: true})
	ctx := context.Background()

	code, err := serv.GetOrCreateCode(ctx, referrer.ID)
	require.NoError(t, err)

	err = serv.ApplyOnRegister(ctx, code, referred.ID)
	require.NoError(t, err)

	balance, err := st.GetBalance(ctx, referrer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)

	balance, err = st.GetBalance(ctx, referred.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)
}

// повторное применение кода не создает новых транзакций
func TestReferralApplyTwice(t *testing.T) {
	st, serv := referralFixture(t)
	referrer := st.addUser(model.User{Email: "referrer@test.io", IsActive: true})
	referred := st.addUser(model.User{Email: "referred@test.io", IsActive: true})
	ctx := context.Background()

	code, err := serv.GetOrCreateCode(ctx, referrer.ID)
	require.NoError(t, err)

	err = serv.ApplyOnRegister(ctx, code, referred.ID)
	require.NoError(t, err)
	err = serv.ApplyOnRegister(ctx, code, referred.ID)
	require.NoError(t, err)

	require.Equal(t, 1, st.countTnx(referrer.ID, model.CategoryReferral))
	require.Equal(t, 1, st.countTnx(referred.ID, model.CategoryReferralBonus))
}

// пустой, неизвестный и собственный код молча пропускаются
func TestReferralApplySkipped(t *testing.T) {
	st, serv := referralFixture(t)
	user := st.addUser(model.User{Email: "user@test.io", IsActive: true})
	ctx := context.Background()

	code, err := serv.GetOrCreateCode(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, serv.ApplyOnRegister(ctx, "", user.ID))
	require.NoError(t, serv.ApplyOnRegister(ctx, "NOSUCH99", user.ID))
	require.NoError(t, serv.ApplyOnRegister(ctx, code, user.ID))

	balance, err := st.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestReferralHistory(t *testing.T) {
	st, serv := referralFixture(t)
	referrer := st.addUser(model.User{Email: "referrer@test.io", IsActive: true})
	first := st.addUser(model.User{Email: "first@test.io", IsActive: true})
	second := st.addUser(model.User{Email: "second@test.io", IsActive: true})
	ctx := context.Background()

	code, err := serv.GetOrCreateCode(ctx, referrer.ID)
	require.NoError(t, err)
	require.NoError(t, serv.ApplyOnRegister(ctx, code, first.ID))
	require.NoError(t, serv.ApplyOnRegister(ctx, code, second.ID))

	history, err := serv.History(ctx, referrer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
}
