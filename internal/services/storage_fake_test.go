package rewards

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
)

// Хранилище в памяти для тестов. Уникальные ограничения повторяют
// ограничения базы, WithinTx выполняет fn напрямую (без отката).
// Lock* удерживают блокировку строки до конца WithinTx, как FOR UPDATE.
type fakeStorage struct {
	mu           sync.Mutex
	nextID       int64
	rowLocks     map[string]*sync.Mutex
	tnxs         []model.PointTransaction
	users        map[int64]model.User
	receipts     map[int64]model.Receipt
	exchanges    map[int64]model.Exchange
	steps        map[int64]map[string]model.FitnessLog
	consumptions []model.BottleConsumption
	surveys      map[int64]model.Survey
	answers      []model.SurveyAnswer
	referrals    []model.Referral
	tracks       map[int64]model.ShoppingTrack
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		rowLocks:  make(map[string]*sync.Mutex),
		users:     make(map[int64]model.User),
		receipts:  make(map[int64]model.Receipt),
		exchanges: make(map[int64]model.Exchange),
		steps:     make(map[int64]map[string]model.FitnessLog),
		surveys:   make(map[int64]model.Survey),
		tracks:    make(map[int64]model.ShoppingTrack),
	}
}

func (f *fakeStorage) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStorage) WithinTx(ctx context.Context, fn func(s interf.Storage) error) error {
	tx := &fakeTx{fakeStorage: f}
	defer tx.release()
	return fn(tx)
}

// Транзакция: блокировки строк держатся до завершения fn
type fakeTx struct {
	*fakeStorage
	held []*sync.Mutex
}

func (t *fakeTx) lockRow(key string) {
	t.fakeStorage.mu.Lock()
	m, ok := t.fakeStorage.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		t.fakeStorage.rowLocks[key] = m
	}
	t.fakeStorage.mu.Unlock()
	m.Lock()
	t.held = append(t.held, m)
}

func (t *fakeTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}

func (t *fakeTx) LockUser(ctx context.Context, userID int64) error {
	t.lockRow("user:" + strconv.FormatInt(userID, 10))
	return t.fakeStorage.LockUser(ctx, userID)
}

func (t *fakeTx) LockReceipt(ctx context.Context, id int64) error {
	t.lockRow("receipt:" + strconv.FormatInt(id, 10))
	return t.fakeStorage.LockReceipt(ctx, id)
}

func (t *fakeTx) LockExchange(ctx context.Context, id int64) error {
	t.lockRow("exchange:" + strconv.FormatInt(id, 10))
	return t.fakeStorage.LockExchange(ctx, id)
}

func (f *fakeStorage) addUser(user model.User) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = f.id()
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user
}

// леджер

func (f *fakeStorage) TnxCreate(ctx context.Context, tnx model.PointTransaction) (model.PointTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tnx.ID = f.id()
	tnx.CreatedAt = time.Now()
	f.tnxs = append(f.tnxs, tnx)
	return tnx, nil
}

func (f *fakeStorage) GetBalance(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, t := range f.tnxs {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (f *fakeStorage) GetTnx(ctx context.Context, userID int64, offset, limit uint64) ([]model.PointTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PointTransaction
	for i := len(f.tnxs) - 1; i >= 0; i-- {
		if f.tnxs[i].UserID == userID {
			out = append(out, f.tnxs[i])
		}
	}
	if offset >= uint64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStorage) LockUser(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return model.ErrNotFound
	}
	return nil
}

func (f *fakeStorage) LockReceipt(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.receipts[id]; !ok {
		return model.ErrNotFound
	}
	return nil
}

func (f *fakeStorage) LockExchange(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exchanges[id]; !ok {
		return model.ErrNotFound
	}
	return nil
}

// пользователи

func (f *fakeStorage) UserCreate(ctx context.Context, user model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return model.User{}, model.ErrEmailTaken
		}
	}
	user.ID = f.id()
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStorage) UserByID(ctx context.Context, userID int64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user, nil
}

func (f *fakeStorage) UserByEmail(ctx context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (f *fakeStorage) UserByReferralCode(ctx context.Context, code string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ReferralCode != "" && u.ReferralCode == code {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (f *fakeStorage) UserSetReferralCode(ctx context.Context, userID int64, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ReferralCode == code {
			return model.ErrAlreadyExists
		}
	}
	user, ok := f.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	if user.ReferralCode != "" {
		return model.ErrAlreadyExists
	}
	user.ReferralCode = code
	f.users[userID] = user
	return nil
}

func (f *fakeStorage) UserSetActive(ctx context.Context, userID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	user.IsActive = active
	f.users[userID] = user
	return nil
}

func (f *fakeStorage) UserList(ctx context.Context, search string, offset, limit uint64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		if search == "" || strings.Contains(u.Email, search) || strings.Contains(u.Name, search) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStorage) UserCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

func (f *fakeStorage) UserCountSince(ctx context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, u := range f.users {
		if u.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// чеки

func (f *fakeStorage) ReceiptCreate(ctx context.Context, receipt model.Receipt) (model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt.ID = f.id()
	receipt.Status = model.ReceiptPending
	receipt.CreatedAt = time.Now()
	f.receipts[receipt.ID] = receipt
	return receipt, nil
}

func (f *fakeStorage) ReceiptByID(ctx context.Context, id int64) (model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[id]
	if !ok {
		return model.Receipt{}, model.ErrNotFound
	}
	return receipt, nil
}

func (f *fakeStorage) ReceiptList(ctx context.Context, userID int64, offset, limit uint64) ([]model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Receipt
	for _, r := range f.receipts {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStorage) ReceiptListAll(ctx context.Context, status model.ReceiptStatus, offset, limit uint64) ([]model.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Receipt
	for _, r := range f.receipts {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStorage) ReceiptSetReview(ctx context.Context, id int64, status model.ReceiptStatus, points int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[id]
	if !ok {
		return model.ErrNotFound
	}
	receipt.Status = status
	receipt.PointsAwarded = points
	receipt.RejectionReason = reason
	f.receipts[id] = receipt
	return nil
}

func (f *fakeStorage) ReceiptCountPending(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, r := range f.receipts {
		if r.Status == model.ReceiptPending {
			count++
		}
	}
	return count, nil
}

// обмены

func (f *fakeStorage) ExchangeCreate(ctx context.Context, exchange model.Exchange) (model.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exchange.ID = f.id()
	exchange.Status = model.ExchangePending
	exchange.CreatedAt = time.Now()
	f.exchanges[exchange.ID] = exchange
	return exchange, nil
}

func (f *fakeStorage) ExchangeByID(ctx context.Context, id int64) (model.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exchange, ok := f.exchanges[id]
	if !ok {
		return model.Exchange{}, model.ErrNotFound
	}
	return exchange, nil
}

func (f *fakeStorage) ExchangeList(ctx context.Context, userID int64, offset, limit uint64) ([]model.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exchange
	for _, e := range f.exchanges {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStorage) ExchangeListAll(ctx context.Context, status model.ExchangeStatus, offset, limit uint64) ([]model.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exchange
	for _, e := range f.exchanges {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStorage) ExchangeSetStatus(ctx context.Context, id int64, status model.ExchangeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exchange, ok := f.exchanges[id]
	if !ok {
		return model.ErrNotFound
	}
	exchange.Status = status
	f.exchanges[id] = exchange
	return nil
}

func (f *fakeStorage) ExchangeCompletedTotal(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.exchanges {
		if e.Status == model.ExchangeCompleted {
			sum += e.Amount
		}
	}
	return sum, nil
}

// шаги и бутылки

func (f *fakeStorage) StepsUpsert(ctx context.Context, userID int64, date time.Time, steps int64) (model.FitnessLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := date.Format("2006-01-02")
	if f.steps[userID] == nil {
		f.steps[userID] = make(map[string]model.FitnessLog)
	}
	log, ok := f.steps[userID][key]
	if !ok {
		log = model.FitnessLog{ID: f.id(), UserID: userID, LogDate: date, CreatedAt: time.Now()}
	}
	log.Steps = steps
	f.steps[userID][key] = log
	return log, nil
}

func (f *fakeStorage) StepsTotal(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, log := range f.steps[userID] {
		sum += log.Steps
	}
	return sum, nil
}

func (f *fakeStorage) StepsRecent(ctx context.Context, userID int64, since time.Time) ([]model.FitnessLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.FitnessLog
	for _, log := range f.steps[userID] {
		if log.LogDate.After(since) {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeStorage) BottlesConsumed(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, c := range f.consumptions {
		if c.UserID == userID {
			sum += c.Bottles
		}
	}
	return sum, nil
}

func (f *fakeStorage) ConsumptionCreate(ctx context.Context, consumption model.BottleConsumption) (model.BottleConsumption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	consumption.ID = f.id()
	consumption.CreatedAt = time.Now()
	f.consumptions = append(f.consumptions, consumption)
	return consumption, nil
}

// анкеты

func (f *fakeStorage) SurveyCreate(ctx context.Context, survey model.Survey) (model.Survey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	survey.ID = f.id()
	survey.CreatedAt = time.Now()
	f.surveys[survey.ID] = survey
	return survey, nil
}

func (f *fakeStorage) SurveyUpdate(ctx context.Context, survey model.Survey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.surveys[survey.ID]; !ok {
		return model.ErrNotFound
	}
	f.surveys[survey.ID] = survey
	return nil
}

func (f *fakeStorage) SurveyByID(ctx context.Context, id int64) (model.Survey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	survey, ok := f.surveys[id]
	if !ok {
		return model.Survey{}, model.ErrNotFound
	}
	return survey, nil
}

func (f *fakeStorage) SurveyListActive(ctx context.Context, offset, limit uint64) ([]model.Survey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Survey
	for _, s := range f.surveys {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStorage) SurveyListAll(ctx context.Context, offset, limit uint64) ([]model.Survey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Survey
	for _, s := range f.surveys {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStorage) AnswerCreate(ctx context.Context, answer model.SurveyAnswer) (model.SurveyAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.answers {
		if a.UserID == answer.UserID && a.SurveyID == answer.SurveyID {
			return model.SurveyAnswer{}, model.ErrAlreadyAnswered
		}
	}
	answer.ID = f.id()
	answer.CreatedAt = time.Now()
	f.answers = append(f.answers, answer)
	return answer, nil
}

func (f *fakeStorage) HasAnswered(ctx context.Context, userID, surveyID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.answers {
		if a.UserID == userID && a.SurveyID == surveyID {
			return true, nil
		}
	}
	return false, nil
}

// приглашения

func (f *fakeStorage) ReferralCreate(ctx context.Context, referral model.Referral) (model.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.referrals {
		if r.ReferredID == referral.ReferredID {
			return model.Referral{}, model.ErrAlreadyReferred
		}
	}
	referral.ID = f.id()
	referral.CreatedAt = time.Now()
	f.referrals = append(f.referrals, referral)
	return referral, nil
}

func (f *fakeStorage) ReferralByReferred(ctx context.Context, referredID int64) (model.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.referrals {
		if r.ReferredID == referredID {
			return r, nil
		}
	}
	return model.Referral{}, model.ErrNotFound
}

func (f *fakeStorage) ReferralList(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Referral
	for _, r := range f.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// трекинг покупок

func (f *fakeStorage) TrackCreate(ctx context.Context, track model.ShoppingTrack) (model.ShoppingTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	track.ID = f.id()
	track.TrackedAt = time.Now()
	f.tracks[track.ID] = track
	return track, nil
}

func (f *fakeStorage) TrackList(ctx context.Context, userID int64, limit uint64) ([]model.ShoppingTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ShoppingTrack
	for _, t := range f.tracks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStorage) TrackSetStatus(ctx context.Context, id int64, status model.TrackStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	track, ok := f.tracks[id]
	if !ok {
		return model.ErrNotFound
	}
	track.Status = status
	f.tracks[id] = track
	return nil
}

// аналитика

func (f *fakeStorage) PointsGrantedTotal(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, t := range f.tnxs {
		if t.Amount > 0 {
			sum += t.Amount
		}
	}
	return sum, nil
}

// количество транзакций пользователя по категории
func (f *fakeStorage) countTnx(userID int64, category model.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, t := range f.tnxs {
		if t.UserID == userID && t.Category == category {
			count++
		}
	}
	return count
}

var _ interf.TxStorage = (*fakeStorage)(nil)
