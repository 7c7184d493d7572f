package rewards

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Общий интерфейс для пула и транзакции
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RewardsDB struct {
	pool   *pgxpool.Pool
	q      querier
	logger *zap.Logger
}

func NewRewardsDB(logger *zap.Logger) (db *RewardsDB, err error) {
	// config
	purl := os.Getenv("REWARDS_DB")
	if purl == "" {
		return nil, fmt.Errorf("env REWARDS_DB is not set")
	}
	port := os.Getenv("REWARDS_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env REWARDS_DB_PORT is not set")
	}
	user := os.Getenv("REWARDS_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env REWARDS_DB_USER is not set")
	}
	password := os.Getenv("REWARDS_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env REWARDS_DB_PASSWORD is not set")
	}
	database := os.Getenv("REWARDS_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env REWARDS_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &RewardsDB{pool, pool, logger}, nil
}

func (d *RewardsDB) Close() {
	d.pool.Close()
}

// Единица работы: fn выполняется в одной транзакции,
// коммит только если fn вернула nil
func (d *RewardsDB) WithinTx(ctx context.Context, fn func(s interf.Storage) error) (err error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	txdb := &RewardsDB{d.pool, tx, d.logger}
	err = fn(txdb)
	if err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

func (d *RewardsDB) logSQL(err error, sql string, args []any) {
	d.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", sql),
		zap.Any("args", args),
	)
}

func isUniqueViolation(err error) bool {
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == "23505"
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Блокировка строки пользователя - сериализует проверки баланса и бутылок.
// Вызывать только внутри WithinTx.
func (d *RewardsDB) LockUser(ctx context.Context, userID int64) error {
	var id int64
	row := d.q.QueryRow(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", userID)
	err := row.Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("user %w", model.ErrNotFound)
		}
		return err
	}
	return nil
}

// Блокировка строки чека - сериализует проверку статуса при ревью.
// Вызывать только внутри WithinTx.
func (d *RewardsDB) LockReceipt(ctx context.Context, id int64) error {
	var locked int64
	row := d.q.QueryRow(ctx, "SELECT id FROM receipts WHERE id = $1 FOR UPDATE", id)
	err := row.Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("receipt %w", model.ErrNotFound)
		}
		return err
	}
	return nil
}

// Блокировка строки заявки на обмен - сериализует смену статуса.
// Вызывать только внутри WithinTx.
func (d *RewardsDB) LockExchange(ctx context.Context, id int64) error {
	var locked int64
	row := d.q.QueryRow(ctx, "SELECT id FROM exchanges WHERE id = $1 FOR UPDATE", id)
	err := row.Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("exchange %w", model.ErrNotFound)
		}
		return err
	}
	return nil
}

// Создание транзакции баллов. Без проверок - условия проверяет вызывающий
func (d *RewardsDB) TnxCreate(ctx context.Context, tnx model.PointTransaction) (model.PointTransaction, error) {
	tnx.CreatedAt = time.Now()

	sql, args, err := sq.Insert("point_transactions").
		Columns("user_id", "amount", "category", "description", "ref_id", "created_at").
		Values(tnx.UserID, tnx.Amount, string(tnx.Category), nullStr(tnx.Description), nullInt(tnx.RefID), tnx.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.PointTransaction{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&tnx.ID)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.PointTransaction{}, err
	}
	return tnx, nil
}

// Баланс - всегда сумма транзакций, без хранимой колонки
func (d *RewardsDB) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	row := d.q.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE user_id = $1", userID)
	err := row.Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// История транзакций, новые сверху, стабильный порядок по (created_at, id)
func (d *RewardsDB) GetTnx(ctx context.Context, userID int64, offset, limit uint64) ([]model.PointTransaction, error) {
	sql, args, err := sq.Select("id", "user_id", "amount", "category", "description", "ref_id", "created_at").
		From("point_transactions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Offset(offset).
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var tnxs []model.PointTransaction
	for rows.Next() {
		var tnx model.PointTransaction
		var description pgtype.Text
		var ref pgtype.Int8
		err = rows.Scan(&tnx.ID, &tnx.UserID, &tnx.Amount, &tnx.Category, &description, &ref, &tnx.CreatedAt)
		if err != nil {
			return nil, err
		}
		tnx.Description = description.String
		tnx.RefID = ref.Int
		tnxs = append(tnxs, tnx)
	}
	return tnxs, rows.Err()
}

// Создание пользователя
func (d *RewardsDB) UserCreate(ctx context.Context, user model.User) (model.User, error) {
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	sql, args, err := sq.Insert("users").
		Columns("email", "password_hash", "name", "nickname", "is_active", "is_admin", "is_verified", "created_at", "updated_at").
		Values(user.Email, user.PasswordHash, user.Name, nullStr(user.Nickname), user.IsActive, user.IsAdmin, user.IsVerified, user.CreatedAt, user.UpdatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.User{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, model.ErrEmailTaken
		}
		d.logSQL(err, sql, args)
		return model.User{}, err
	}
	return user, nil
}

func (d *RewardsDB) userBy(ctx context.Context, cond sq.Eq) (model.User, error) {
	sql, args, err := sq.Select("id", "email", "password_hash", "name", "nickname", "referral_code",
		"is_active", "is_admin", "is_verified", "created_at", "updated_at").
		From("users").
		Where(cond).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.User{}, err
	}

	var user model.User
	var nickname, code pgtype.Text
	row := d.q.QueryRow(ctx, sql, args...)
	err = row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &nickname, &code,
		&user.IsActive, &user.IsAdmin, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("user %w", model.ErrNotFound)
		}
		return model.User{}, err
	}
	user.Nickname = nickname.String
	user.ReferralCode = code.String
	return user, nil
}

func (d *RewardsDB) UserByID(ctx context.Context, userID int64) (model.User, error) {
	return d.userBy(ctx, sq.Eq{"id": userID})
}

func (d *RewardsDB) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return d.userBy(ctx, sq.Eq{"email": email})
}

func (d *RewardsDB) UserByReferralCode(ctx context.Context, code string) (model.User, error) {
	return d.userBy(ctx, sq.Eq{"referral_code": code})
}

// Код выдается один раз: обновляем только пустой
func (d *RewardsDB) UserSetReferralCode(ctx context.Context, userID int64, code string) error {
	sql, args, err := sq.Update("users").
		Set("referral_code", code).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": userID}).
		Where(sq.Eq{"referral_code": nil}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}

	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrAlreadyExists
		}
		d.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAlreadyExists
	}
	return nil
}

func (d *RewardsDB) UserSetActive(ctx context.Context, userID int64, active bool) error {
	sql, args, err := sq.Update("users").
		Set("is_active", active).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}

	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %w", model.ErrNotFound)
	}
	return nil
}

func (d *RewardsDB) UserList(ctx context.Context, search string, offset, limit uint64) ([]model.User, error) {
	builder := sq.Select("id", "email", "password_hash", "name", "nickname", "referral_code",
		"is_active", "is_admin", "is_verified", "created_at", "updated_at").
		From("users").
		OrderBy("created_at DESC").
		Offset(offset).
		Limit(limit).
		PlaceholderFormat(sq.Dollar)
	if search != "" {
		pattern := "%" + search + "%"
		builder = builder.Where(sq.Or{sq.ILike{"email": pattern}, sq.ILike{"name": pattern}})
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		var nickname, code pgtype.Text
		err = rows.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &nickname, &code,
			&user.IsActive, &user.IsAdmin, &user.IsVerified, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, err
		}
		user.Nickname = nickname.String
		user.ReferralCode = code.String
		users = append(users, user)
	}
	return users, rows.Err()
}

func (d *RewardsDB) UserCount(ctx context.Context) (int64, error) {
	var count int64
	err := d.q.QueryRow(ctx, "SELECT COUNT(id) FROM users").Scan(&count)
	return count, err
}

func (d *RewardsDB) UserCountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := d.q.QueryRow(ctx, "SELECT COUNT(id) FROM users WHERE created_at >= $1", since).Scan(&count)
	return count, err
}

// Регистрация чека
func (d *RewardsDB) ReceiptCreate(ctx context.Context, receipt model.Receipt) (model.Receipt, error) {
	receipt.CreatedAt = time.Now()
	receipt.UpdatedAt = receipt.CreatedAt
	receipt.Status = model.ReceiptPending

	sql, args, err := sq.Insert("receipts").
		Columns("user_id", "image_url", "store_name", "amount", "items", "purchased_at", "status", "created_at", "updated_at").
		Values(receipt.UserID, receipt.ImageURL, receipt.StoreName, receipt.Amount, nullStr(receipt.Items),
			nullTime(receipt.PurchasedAt), string(receipt.Status), receipt.CreatedAt, receipt.UpdatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Receipt{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&receipt.ID)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Receipt{}, err
	}
	return receipt, nil
}

func scanReceipt(row pgx.Row) (model.Receipt, error) {
	var receipt model.Receipt
	var items, reason pgtype.Text
	var purchased pgtype.Timestamp
	var points pgtype.Int8
	err := row.Scan(&receipt.ID, &receipt.UserID, &receipt.ImageURL, &receipt.StoreName, &receipt.Amount,
		&items, &purchased, &receipt.Status, &points, &reason, &receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		return model.Receipt{}, err
	}
	receipt.Items = items.String
	receipt.PurchasedAt = purchased.Time
	receipt.PointsAwarded = points.Int
	receipt.RejectionReason = reason.String
	return receipt, nil
}

const receiptColumns = "id, user_id, image_url, store_name, amount, items, purchased_at, status, points_awarded, rejection_reason, created_at, updated_at"

func (d *RewardsDB) ReceiptByID(ctx context.Context, id int64) (model.Receipt, error) {
	row := d.q.QueryRow(ctx, "SELECT "+receiptColumns+" FROM receipts WHERE id = $1", id)
	receipt, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Receipt{}, fmt.Errorf("receipt %w", model.ErrNotFound)
		}
		return model.Receipt{}, err
	}
	return receipt, nil
}

func (d *RewardsDB) receiptList(ctx context.Context, cond any, offset, limit uint64) ([]model.Receipt, error) {
	builder := sq.Select(receiptColumns).
		From("receipts").
		OrderBy("created_at DESC").
		Offset(offset).
		Limit(limit).
		PlaceholderFormat(sq.Dollar)
	if cond != nil {
		builder = builder.Where(cond)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var receipts []model.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

func (d *RewardsDB) ReceiptList(ctx context.Context, userID int64, offset, limit uint64) ([]model.Receipt, error) {
	return d.receiptList(ctx, sq.Eq{"user_id": userID}, offset, limit)
}

func (d *RewardsDB) ReceiptListAll(ctx context.Context, status model.ReceiptStatus, offset, limit uint64) ([]model.Receipt, error) {
	if status == "" {
		return d.receiptList(ctx, nil, offset, limit)
	}
	return d.receiptList(ctx, sq.Eq{"status": string(status)}, offset, limit)
}

// Результат проверки. Статус и поля обновляются всегда,
// решение о начислении принимает сервис до вызова
func (d *RewardsDB) ReceiptSetReview(ctx context.Context, id int64, status model.ReceiptStatus, points int64, reason string) error {
	sql, args, err := sq.Update("receipts").
		Set("status", string(status)).
		Set("points_awarded", nullInt(points)).
		Set("rejection_reason", nullStr(reason)).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}

	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt %w", model.ErrNotFound)
	}
	return nil
}

func (d *RewardsDB) ReceiptCountPending(ctx context.Context) (int64, error) {
	var count int64
	err := d.q.QueryRow(ctx, "SELECT COUNT(id) FROM receipts WHERE status = $1", string(model.ReceiptPending)).Scan(&count)
	return count, err
}

// Создание заявки на обмен
func (d *RewardsDB) ExchangeCreate(ctx context.Context, exchange model.Exchange) (model.Exchange, error) {
	exchange.CreatedAt = time.Now()
	exchange.UpdatedAt = exchange.CreatedAt
	exchange.Status = model.ExchangePending

	sql, args, err := sq.Insert("exchanges").
		Columns("user_id", "amount", "destination", "destination_detail", "status", "created_at", "updated_at").
		Values(exchange.UserID, exchange.Amount, exchange.Destination, nullStr(exchange.DestinationDetail),
			string(exchange.Status), exchange.CreatedAt, exchange.UpdatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Exchange{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&exchange.ID)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Exchange{}, err
	}
	return exchange, nil
}

const exchangeColumns = "id, user_id, amount, destination, destination_detail, status, created_at, updated_at"

func scanExchange(row pgx.Row) (model.Exchange, error) {
	var exchange model.Exchange
	var detail pgtype.Text
	err := row.Scan(&exchange.ID, &exchange.UserID, &exchange.Amount, &exchange.Destination,
		&detail, &exchange.Status, &exchange.CreatedAt, &exchange.UpdatedAt)
	if err != nil {
		return model.Exchange{}, err
	}
	exchange.DestinationDetail = detail.String
	return exchange, nil
}

func (d *RewardsDB) ExchangeByID(ctx context.Context, id int64) (model.Exchange, error) {
	row := d.q.QueryRow(ctx, "SELECT "+exchangeColumns+" FROM exchanges WHERE id = $1", id)
	exchange, err := scanExchange(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Exchange{}, fmt.Errorf("exchange %w", model.ErrNotFound)
		}
		return model.Exchange{}, err
	}
	return exchange, nil
}

func (d *RewardsDB) exchangeList(ctx context.Context, cond any, offset, limit uint64) ([]model.Exchange, error) {
	builder := sq.Select(exchangeColumns).
		From("exchanges").
		OrderBy("created_at DESC").
		Offset(offset).
		Limit(limit).
		PlaceholderFormat(sq.Dollar)
	if cond != nil {
		builder = builder.Where(cond)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var exchanges []model.Exchange
	for rows.Next() {
		exchange, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, exchange)
	}
	return exchanges, rows.Err()
}

func (d *RewardsDB) ExchangeList(ctx context.Context, userID int64, offset, limit uint64) ([]model.Exchange, error) {
	return d.exchangeList(ctx, sq.Eq{"user_id": userID}, offset, limit)
}

func (d *RewardsDB) ExchangeListAll(ctx context.Context, status model.ExchangeStatus, offset, limit uint64) ([]model.Exchange, error) {
	if status == "" {
		return d.exchangeList(ctx, nil, offset, limit)
	}
	return d.exchangeList(ctx, sq.Eq{"status": string(status)}, offset, limit)
}

func (d *RewardsDB) ExchangeSetStatus(ctx context.Context, id int64, status model.ExchangeStatus) error {
	sql, args, err := sq.Update("exchanges").
		Set("status", string(status)).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}

	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exchange %w", model.ErrNotFound)
	}
	return nil
}

func (d *RewardsDB) ExchangeCompletedTotal(ctx context.Context) (int64, error) {
	var total int64
	err := d.q.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM exchanges WHERE status = $1",
		string(model.ExchangeCompleted)).Scan(&total)
	return total, err
}

// Шаги за день: повторная отправка перезаписывает, не накапливает
func (d *RewardsDB) StepsUpsert(ctx context.Context, userID int64, date time.Time, steps int64) (model.FitnessLog, error) {
	now := time.Now()
	log := model.FitnessLog{UserID: userID, Steps: steps, LogDate: date, CreatedAt: now, UpdatedAt: now}

	sql, args, err := sq.Insert("fitness_logs").
		Columns("user_id", "steps", "log_date", "created_at", "updated_at").
		Values(userID, steps, date, now, now).
		Suffix("ON CONFLICT (user_id, log_date) DO UPDATE SET steps = EXCLUDED.steps, updated_at = EXCLUDED.updated_at RETURNING id, created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.FitnessLog{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.FitnessLog{}, err
	}
	return log, nil
}

func (d *RewardsDB) StepsTotal(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := d.q.QueryRow(ctx, "SELECT COALESCE(SUM(steps), 0) FROM fitness_logs WHERE user_id = $1", userID).Scan(&total)
	return total, err
}

func (d *RewardsDB) StepsRecent(ctx context.Context, userID int64, since time.Time) ([]model.FitnessLog, error) {
	sql, args, err := sq.Select("id", "user_id", "steps", "log_date", "created_at", "updated_at").
		From("fitness_logs").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"log_date": since}).
		OrderBy("log_date DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var logs []model.FitnessLog
	for rows.Next() {
		var log model.FitnessLog
		err = rows.Scan(&log.ID, &log.UserID, &log.Steps, &log.LogDate, &log.CreatedAt, &log.UpdatedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (d *RewardsDB) BottlesConsumed(ctx context.Context, userID int64) (int64, error) {
	var consumed int64
	err := d.q.QueryRow(ctx, "SELECT COALESCE(SUM(bottles), 0) FROM bottle_consumptions WHERE user_id = $1", userID).Scan(&consumed)
	return consumed, err
}

func (d *RewardsDB) ConsumptionCreate(ctx context.Context, consumption model.BottleConsumption) (model.BottleConsumption, error) {
	consumption.CreatedAt = time.Now()

	sql, args, err := sq.Insert("bottle_consumptions").
		Columns("user_id", "bottles", "points_awarded", "created_at").
		Values(consumption.UserID, consumption.Bottles, consumption.PointsAwarded, consumption.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.BottleConsumption{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&consumption.ID)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.BottleConsumption{}, err
	}
	return consumption, nil
}

// Создание анкеты
func (d *RewardsDB) SurveyCreate(ctx context.Context, survey model.Survey) (model.Survey, error) {
	survey.CreatedAt = time.Now()
	survey.UpdatedAt = survey.CreatedAt

	sql, args, err := sq.Insert("surveys").
		Columns("title", "description", "points", "is_active", "expires_at", "created_at", "updated_at").
		Values(survey.Title, nullStr(survey.Description), survey.Points, survey.IsActive,
			nullTime(survey.ExpiresAt), survey.CreatedAt, survey.UpdatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Survey{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&survey.ID)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Survey{}, err
	}
	return survey, nil
}

func (d *RewardsDB) SurveyUpdate(ctx context.Context, survey model.Survey) error {
	sql, args, err := sq.Update("surveys").
		Set("title", survey.Title).
		Set("description", nullStr(survey.Description)).
		Set("points", survey.Points).
		Set("is_active", survey.IsActive).
		Set("expires_at", nullTime(survey.ExpiresAt)).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": survey.ID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}

	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("survey %w", model.ErrNotFound)
	}
	return nil
}

const surveyColumns = "id, title, description, points, is_active, expires_at, created_at, updated_at"

func scanSurvey(row pgx.Row) (model.Survey, error) {
	var survey model.Survey
	var description pgtype.Text
	var expires pgtype.Timestamp
	err := row.Scan(&survey.ID, &survey.Title, &description, &survey.Points, &survey.IsActive,
		&expires, &survey.CreatedAt, &survey.UpdatedAt)
	if err != nil {
		return model.Survey{}, err
	}
	survey.Description = description.String
	survey.ExpiresAt = expires.Time
	return survey, nil
}

func (d *RewardsDB) SurveyByID(ctx context.Context, id int64) (model.Survey, error) {
	row := d.q.QueryRow(ctx, "SELECT "+surveyColumns+" FROM surveys WHERE id = $1", id)
	survey, err := scanSurvey(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Survey{}, fmt.Errorf("survey %w", model.ErrNotFound)
		}
		return model.Survey{}, err
	}
	return survey, nil
}

func (d *RewardsDB) surveyList(ctx context.Context, activeOnly bool, offset, limit uint64) ([]model.Survey, error) {
	builder := sq.Select(surveyColumns).
		From("surveys").
		OrderBy("created_at DESC").
		Offset(offset).
		Limit(limit).
		PlaceholderFormat(sq.Dollar)
	if activeOnly {
		builder = builder.Where(sq.Eq{"is_active": true}).
			Where(sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": time.Now()}})
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var surveys []model.Survey
	for rows.Next() {
		survey, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		surveys = append(surveys, survey)
	}
	return surveys, rows.Err()
}

func (d *RewardsDB) SurveyListActive(ctx context.Context, offset, limit uint64) ([]model.Survey, error) {
	return d.surveyList(ctx, true, offset, limit)
}

func (d *RewardsDB) SurveyListAll(ctx context.Context, offset, limit uint64) ([]model.Survey, error) {
	return d.surveyList(ctx, false, offset, limit)
}

// Ответ на анкету. Уникальный индекс (survey_id, user_id) закрывает
// гонку между конкурентными ответами
func (d *RewardsDB) AnswerCreate(ctx context.Context, answer model.SurveyAnswer) (model.SurveyAnswer, error) {
	answer.CreatedAt = time.Now()

	sql, args, err := sq.Insert("survey_answers").
		Columns("survey_id", "user_id", "answers", "created_at").
		Values(answer.SurveyID, answer.UserID, nullStr(answer.Answers), answer.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.SurveyAnswer{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&answer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.SurveyAnswer{}, model.ErrAlreadyAnswered
		}
		d.logSQL(err, sql, args)
		return model.SurveyAnswer{}, err
	}
	return answer, nil
}

func (d *RewardsDB) HasAnswered(ctx context.Context, userID, surveyID int64) (bool, error) {
	var id int64
	row := d.q.QueryRow(ctx, "SELECT id FROM survey_answers WHERE user_id = $1 AND survey_id = $2", userID, surveyID)
	err := row.Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Приглашение. Уникальный индекс по referred_id гарантирует
// не более одного приглашения на пользователя за все время
func (d *RewardsDB) ReferralCreate(ctx context.Context, referral model.Referral) (model.Referral, error) {
	referral.CreatedAt = time.Now()

	sql, args, err := sq.Insert("referrals").
		Columns("referrer_id", "referred_id", "code", "points_awarded", "created_at").
		Values(referral.ReferrerID, referral.ReferredID, referral.Code, referral.PointsAwarded, referral.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.Referral{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&referral.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Referral{}, model.ErrAlreadyReferred
		}
		d.logSQL(err, sql, args)
		return model.Referral{}, err
	}
	return referral, nil
}

func (d *RewardsDB) ReferralByReferred(ctx context.Context, referredID int64) (model.Referral, error) {
	var referral model.Referral
	row := d.q.QueryRow(ctx, "SELECT id, referrer_id, referred_id, code, points_awarded, created_at FROM referrals WHERE referred_id = $1", referredID)
	err := row.Scan(&referral.ID, &referral.ReferrerID, &referral.ReferredID, &referral.Code, &referral.PointsAwarded, &referral.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Referral{}, fmt.Errorf("referral %w", model.ErrNotFound)
		}
		return model.Referral{}, err
	}
	return referral, nil
}

func (d *RewardsDB) ReferralList(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	sql, args, err := sq.Select("id", "referrer_id", "referred_id", "code", "points_awarded", "created_at").
		From("referrals").
		Where(sq.Eq{"referrer_id": referrerID}).
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var referrals []model.Referral
	for rows.Next() {
		var referral model.Referral
		err = rows.Scan(&referral.ID, &referral.ReferrerID, &referral.ReferredID, &referral.Code,
			&referral.PointsAwarded, &referral.CreatedAt)
		if err != nil {
			return nil, err
		}
		referrals = append(referrals, referral)
	}
	return referrals, rows.Err()
}

// Трекинг покупки
func (d *RewardsDB) TrackCreate(ctx context.Context, track model.ShoppingTrack) (model.ShoppingTrack, error) {
	track.TrackedAt = time.Now()
	if track.Status == "" {
		track.Status = model.TrackPending
	}

	sql, args, err := sq.Insert("shopping_tracks").
		Columns("user_id", "merchant", "order_id", "amount", "status", "tracked_at").
		Values(track.UserID, track.Merchant, nullStr(track.OrderID), nullInt(track.Amount),
			string(track.Status), track.TrackedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return model.ShoppingTrack{}, err
	}

	err = d.q.QueryRow(ctx, sql, args...).Scan(&track.ID)
	if err != nil {
		d.logSQL(err, sql, args)
		return model.ShoppingTrack{}, err
	}
	return track, nil
}

func (d *RewardsDB) TrackList(ctx context.Context, userID int64, limit uint64) ([]model.ShoppingTrack, error) {
	sql, args, err := sq.Select("id", "user_id", "merchant", "order_id", "amount", "status", "tracked_at").
		From("shopping_tracks").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("tracked_at DESC").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := d.q.Query(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var tracks []model.ShoppingTrack
	for rows.Next() {
		var track model.ShoppingTrack
		var orderID pgtype.Text
		var amount pgtype.Int8
		err = rows.Scan(&track.ID, &track.UserID, &track.Merchant, &orderID, &amount, &track.Status, &track.TrackedAt)
		if err != nil {
			return nil, err
		}
		track.OrderID = orderID.String
		track.Amount = amount.Int
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

func (d *RewardsDB) TrackSetStatus(ctx context.Context, id int64, status model.TrackStatus) error {
	sql, args, err := sq.Update("shopping_tracks").
		Set("status", string(status)).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}

	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		d.logSQL(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("track %w", model.ErrNotFound)
	}
	return nil
}

// Всего начислено баллов (только положительные транзакции)
func (d *RewardsDB) PointsGrantedTotal(ctx context.Context) (int64, error) {
	var total int64
	err := d.q.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM point_transactions WHERE amount > 0").Scan(&total)
	return total, err
}
