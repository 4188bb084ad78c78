package repo

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
)

var (
	_ domain.ScenarioRepo       = (*Postgres)(nil)
	_ domain.WarmupProgressRepo = (*Postgres)(nil)
	_ domain.DeliveryLogRepo    = (*Postgres)(nil)
)

// GetActiveScenario возвращает активный сценарий с сообщениями.
func (p *Postgres) GetActiveScenario() (domain.WarmupScenario, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var scenario domain.WarmupScenario
	var descSQL sql.NullString
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, description, is_active, created_at
FROM warmup_scenarios
WHERE is_active
ORDER BY created_at DESC
LIMIT 1
`).Scan(&scenario.ID, &scenario.Name, &descSQL, &scenario.IsActive, &scenario.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "scenarios_get_active", "warmup_scenarios", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WarmupScenario{}, false, nil
	}
	if err != nil {
		return domain.WarmupScenario{}, false, err
	}
	scenario.Description = descSQL.String
	messages, err := p.listScenarioMessages(scenario.ID)
	if err != nil {
		return domain.WarmupScenario{}, false, err
	}
	scenario.Messages = messages
	return scenario, true, nil
}

// GetScenarioByID возвращает сценарий с сообщениями.
func (p *Postgres) GetScenarioByID(id int64) (domain.WarmupScenario, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var scenario domain.WarmupScenario
	var descSQL sql.NullString
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, name, description, is_active, created_at
FROM warmup_scenarios
WHERE id = $1
`, id).Scan(&scenario.ID, &scenario.Name, &descSQL, &scenario.IsActive, &scenario.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "scenarios_get_by_id", "warmup_scenarios", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WarmupScenario{}, false, nil
	}
	if err != nil {
		return domain.WarmupScenario{}, false, err
	}
	scenario.Description = descSQL.String
	messages, err := p.listScenarioMessages(scenario.ID)
	if err != nil {
		return domain.WarmupScenario{}, false, err
	}
	scenario.Messages = messages
	return scenario, true, nil
}

// ListScenarios возвращает все сценарии с сообщениями.
func (p *Postgres) ListScenarios() ([]domain.WarmupScenario, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, description, is_active, created_at
FROM warmup_scenarios
ORDER BY created_at DESC
`)
	metrics.ObserveNetworkRequest("postgres", "scenarios_list", "warmup_scenarios", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenarios []domain.WarmupScenario
	for rows.Next() {
		var scenario domain.WarmupScenario
		var descSQL sql.NullString
		if err := rows.Scan(&scenario.ID, &scenario.Name, &descSQL, &scenario.IsActive, &scenario.CreatedAt); err != nil {
			return nil, err
		}
		scenario.Description = descSQL.String
		scenarios = append(scenarios, scenario)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range scenarios {
		messages, err := p.listScenarioMessages(scenarios[i].ID)
		if err != nil {
			return nil, err
		}
		scenarios[i].Messages = messages
	}
	return scenarios, nil
}

// CreateScenario деактивирует существующие сценарии и создаёт новый
// активный в одной транзакции.
func (p *Postgres) CreateScenario(name, description string) (domain.WarmupScenario, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "warmup_scenarios", start, err)
	if err != nil {
		return domain.WarmupScenario{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE warmup_scenarios SET is_active = false WHERE is_active`)
	metrics.ObserveNetworkRequest("postgres", "scenarios_deactivate", "warmup_scenarios", start, err)
	if err != nil {
		return domain.WarmupScenario{}, err
	}

	var scenario domain.WarmupScenario
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO warmup_scenarios (name, description, is_active)
VALUES ($1, NULLIF($2,''), true)
RETURNING id, name, COALESCE(description,''), is_active, created_at
`, name, description).Scan(&scenario.ID, &scenario.Name, &scenario.Description, &scenario.IsActive, &scenario.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "scenarios_insert", "warmup_scenarios", start, err)
	if err != nil {
		return domain.WarmupScenario{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.WarmupScenario{}, err
	}
	return scenario, nil
}

// DeleteScenario удаляет сценарий с сообщениями и останавливает
// прогревы, которые на него ссылались.
func (p *Postgres) DeleteScenario(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "warmup_scenarios", start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE user_warmups SET is_stopped = true
WHERE scenario_id = $1 AND NOT is_completed AND NOT is_stopped
`, id)
	metrics.ObserveNetworkRequest("postgres", "warmups_stop_by_scenario", "user_warmups", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM warmup_messages WHERE scenario_id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "messages_delete_by_scenario", "warmup_messages", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM warmup_scenarios WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "scenarios_delete", "warmup_scenarios", start, err)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddMessage добавляет сообщение в сценарий.
func (p *Postgres) AddMessage(msg domain.WarmupMessage) (domain.WarmupMessage, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO warmup_messages (scenario_id, message_type, title, text, ord, delay_hours, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, msg.ScenarioID, msg.Type, msg.Title, msg.Text, msg.Order, msg.DelayHours, msg.IsActive).Scan(&msg.ID)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "warmup_messages", start, err)
	if err != nil {
		return domain.WarmupMessage{}, err
	}
	return msg, nil
}

func (p *Postgres) listScenarioMessages(scenarioID int64) ([]domain.WarmupMessage, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, scenario_id, message_type, title, text, ord, delay_hours, is_active
FROM warmup_messages
WHERE scenario_id = $1
ORDER BY ord
`, scenarioID)
	metrics.ObserveNetworkRequest("postgres", "messages_list", "warmup_messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.WarmupMessage
	for rows.Next() {
		var msg domain.WarmupMessage
		if err := rows.Scan(&msg.ID, &msg.ScenarioID, &msg.Type, &msg.Title, &msg.Text, &msg.Order, &msg.DelayHours, &msg.IsActive); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetActiveWarmup возвращает незавершённый прогрев пользователя.
func (p *Postgres) GetActiveWarmup(userID int64) (domain.UserWarmup, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var warmup domain.UserWarmup
	var lastMessageAt sql.NullTime
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, scenario_id, current_step, started_at, last_message_at, is_completed, is_stopped
FROM user_warmups
WHERE user_id = $1 AND NOT is_completed AND NOT is_stopped
`, userID).Scan(&warmup.ID, &warmup.UserID, &warmup.ScenarioID, &warmup.CurrentStep, &warmup.StartedAt, &lastMessageAt, &warmup.IsCompleted, &warmup.IsStopped)
	metrics.ObserveNetworkRequest("postgres", "warmups_get_active", "user_warmups", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserWarmup{}, false, nil
	}
	if err != nil {
		return domain.UserWarmup{}, false, err
	}
	if lastMessageAt.Valid {
		ts := lastMessageAt.Time
		warmup.LastMessageAt = &ts
	}
	return warmup, true, nil
}

// CreateWarmup создаёт запись прогрева.
func (p *Postgres) CreateWarmup(userID, scenarioID int64, startedAt time.Time) (domain.UserWarmup, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	warmup := domain.UserWarmup{UserID: userID, ScenarioID: scenarioID, StartedAt: startedAt}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO user_warmups (user_id, scenario_id, current_step, started_at)
VALUES ($1, $2, 0, $3)
RETURNING id
`, userID, scenarioID, startedAt).Scan(&warmup.ID)
	metrics.ObserveNetworkRequest("postgres", "warmups_insert", "user_warmups", start, err)
	if err != nil {
		return domain.UserWarmup{}, err
	}
	return warmup, nil
}

// ListActiveWarmups возвращает незавершённые прогревы вместе с
// пользователем и сценарием. Сообщения сценариев загружаются
// отсортированными по порядку.
func (p *Postgres) ListActiveWarmups() ([]domain.ActiveWarmup, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT
  w.id, w.user_id, w.scenario_id, w.current_step, w.started_at, w.last_message_at, w.is_completed, w.is_stopped,
  s.id, s.name, COALESCE(s.description,''), s.is_active, s.created_at,
  u.id, u.tg_user_id, COALESCE(u.username,''), COALESCE(u.first_name,''), COALESCE(u.last_name,''), u.locale, u.status, u.is_subscribed_to_channel, u.is_bot, u.created_at, u.updated_at
FROM user_warmups w
JOIN warmup_scenarios s ON s.id = w.scenario_id
JOIN users u ON u.id = w.user_id
WHERE NOT w.is_completed AND NOT w.is_stopped
ORDER BY w.id
`)
	metrics.ObserveNetworkRequest("postgres", "warmups_list_active", "user_warmups", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var active []domain.ActiveWarmup
	for rows.Next() {
		var item domain.ActiveWarmup
		var lastMessageAt sql.NullTime
		err := rows.Scan(
			&item.Warmup.ID, &item.Warmup.UserID, &item.Warmup.ScenarioID, &item.Warmup.CurrentStep, &item.Warmup.StartedAt, &lastMessageAt, &item.Warmup.IsCompleted, &item.Warmup.IsStopped,
			&item.Scenario.ID, &item.Scenario.Name, &item.Scenario.Description, &item.Scenario.IsActive, &item.Scenario.CreatedAt,
			&item.User.ID, &item.User.TGUserID, &item.User.Username, &item.User.FirstName, &item.User.LastName, &item.User.Locale, &item.User.Status, &item.User.IsSubscribedToChannel, &item.User.IsBot, &item.User.CreatedAt, &item.User.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if lastMessageAt.Valid {
			ts := lastMessageAt.Time
			item.Warmup.LastMessageAt = &ts
		}
		active = append(active, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Сообщения подгружаются по сценарию один раз.
	messagesByScenario := make(map[int64][]domain.WarmupMessage)
	for i := range active {
		scenarioID := active[i].Scenario.ID
		messages, ok := messagesByScenario[scenarioID]
		if !ok {
			loaded, err := p.listScenarioMessages(scenarioID)
			if err != nil {
				return nil, err
			}
			messagesByScenario[scenarioID] = loaded
			messages = loaded
		}
		active[i].Scenario.Messages = messages
	}
	return active, nil
}

// AdvanceWarmup сдвигает шаг прогрева и фиксирует время отправки.
func (p *Postgres) AdvanceWarmup(userID int64, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE user_warmups
SET current_step = current_step + 1, last_message_at = $2
WHERE user_id = $1 AND NOT is_completed AND NOT is_stopped
`, userID, at)
	metrics.ObserveNetworkRequest("postgres", "warmups_advance", "user_warmups", start, err)
	return err
}

// StopWarmup останавливает активный прогрев пользователя.
func (p *Postgres) StopWarmup(userID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE user_warmups SET is_stopped = true
WHERE user_id = $1 AND NOT is_completed AND NOT is_stopped
`, userID)
	metrics.ObserveNetworkRequest("postgres", "warmups_stop", "user_warmups", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteWarmup помечает прогрев завершённым.
func (p *Postgres) CompleteWarmup(warmupID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE user_warmups SET is_completed = true WHERE id = $1`, warmupID)
	metrics.ObserveNetworkRequest("postgres", "warmups_complete", "user_warmups", start, err)
	return err
}

// CountActiveWarmups считает незавершённые прогревы.
func (p *Postgres) CountActiveWarmups() (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var count int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM user_warmups WHERE NOT is_completed AND NOT is_stopped
`).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "warmups_count_active", "user_warmups", start, err)
	return count, err
}

// WasMessageSent проверяет наличие успешной доставки пары.
func (p *Postgres) WasMessageSent(userID, messageID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM user_warmup_messages
  WHERE user_id = $1 AND warmup_message_id = $2 AND is_sent
)
`, userID, messageID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "deliveries_was_sent", "user_warmup_messages", start, err)
	return exists, err
}

// RecordDelivery добавляет запись о попытке доставки.
func (p *Postgres) RecordDelivery(rec domain.UserWarmupMessage) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_warmup_messages (user_id, warmup_message_id, sent_at, is_sent, error_message)
VALUES ($1, $2, $3, $4, NULLIF($5,''))
`, rec.UserID, rec.MessageID, rec.SentAt, rec.IsSent, rec.ErrorMessage)
	metrics.ObserveNetworkRequest("postgres", "deliveries_insert", "user_warmup_messages", start, err)
	return err
}
