package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo           = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordBusinessMetric сохраняет бизнесовое событие.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var userID sql.NullInt64
	if metric.UserID != nil {
		userID = sql.NullInt64{Int64: *metric.UserID, Valid: true}
	}
	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4)
`, metric.Event, userID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

// UpsertByTGID реализует domain.UserRepo.
func (p *Postgres) UpsertByTGID(profile domain.TelegramProfile) (domain.User, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	locale := strings.TrimSpace(profile.Locale)
	firstName := strings.TrimSpace(profile.FirstName)
	lastName := strings.TrimSpace(profile.LastName)
	username := strings.TrimSpace(profile.Username)

	var (
		user         domain.User
		usernameSQL  sql.NullString
		firstNameSQL sql.NullString
		lastNameSQL  sql.NullString
		created      bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, username, first_name, last_name, locale, status, is_bot)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), COALESCE(NULLIF($5,''),'ru-RU'), 'active', $6)
ON CONFLICT (tg_user_id) DO UPDATE SET username = EXCLUDED.username, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, locale = EXCLUDED.locale, is_bot = EXCLUDED.is_bot, updated_at = now()
RETURNING id, tg_user_id, username, first_name, last_name, locale, status, is_subscribed_to_channel, is_bot, created_at, updated_at, (xmax = 0) AS inserted
`, profile.TGUserID, username, firstName, lastName, locale, profile.IsBot).
		Scan(&user.ID, &user.TGUserID, &usernameSQL, &firstNameSQL, &lastNameSQL, &user.Locale, &user.Status, &user.IsSubscribedToChannel, &user.IsBot, &user.CreatedAt, &user.UpdatedAt, &created)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	user.Username = usernameSQL.String
	user.FirstName = firstNameSQL.String
	user.LastName = lastNameSQL.String
	return user, created, nil
}

const userColumns = `id, tg_user_id, username, first_name, last_name, locale, status, is_subscribed_to_channel, is_bot, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var (
		user         domain.User
		usernameSQL  sql.NullString
		firstNameSQL sql.NullString
		lastNameSQL  sql.NullString
	)
	err := row.Scan(&user.ID, &user.TGUserID, &usernameSQL, &firstNameSQL, &lastNameSQL, &user.Locale, &user.Status, &user.IsSubscribedToChannel, &user.IsBot, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	user.Username = usernameSQL.String
	user.FirstName = firstNameSQL.String
	user.LastName = lastNameSQL.String
	return user, nil
}

// GetByTGID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTGID(tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE tg_user_id = $1`, tgUserID)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_tgid", "users", start, err)
	return user, err
}

// GetByID возвращает пользователя по внутреннему ID.
func (p *Postgres) GetByID(id int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_id", "users", start, err)
	return user, err
}

// ListActive возвращает страницу активных пользователей.
func (p *Postgres) ListActive(limit, offset int) ([]domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+userColumns+`
FROM users
WHERE status = 'active' AND NOT is_bot
ORDER BY id
LIMIT $1 OFFSET $2
`, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "users_list_active", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountByStatus считает пользователей в статусе.
func (p *Postgres) CountByStatus(status domain.UserStatus) (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE status = $1`, status).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "users_count_by_status", "users", start, err)
	return count, err
}

// UpdateStatus меняет статус пользователя.
func (p *Postgres) UpdateStatus(userID int64, status domain.UserStatus) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`, userID, status)
	metrics.ObserveNetworkRequest("postgres", "users_update_status", "users", start, err)
	return err
}

// SetChannelSubscription сохраняет статус подписки на канал.
func (p *Postgres) SetChannelSubscription(userID int64, subscribed bool) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET is_subscribed_to_channel = $2, updated_at = now() WHERE id = $1`, userID, subscribed)
	metrics.ObserveNetworkRequest("postgres", "users_set_subscription", "users", start, err)
	return err
}
