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
	_ domain.ProductRepo       = (*Postgres)(nil)
	_ domain.OfferTrackingRepo = (*Postgres)(nil)
	_ domain.LeadMagnetRepo    = (*Postgres)(nil)
	_ domain.MailingRepo       = (*Postgres)(nil)
	_ domain.DialogRepo        = (*Postgres)(nil)
)

const productColumns = `id, name, COALESCE(description,''), product_type, price, currency, COALESCE(payment_url,''), COALESCE(offer_text,''), is_active, sort_order, created_at`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var product domain.Product
	err := row.Scan(&product.ID, &product.Name, &product.Description, &product.Type, &product.Price, &product.Currency, &product.PaymentURL, &product.OfferText, &product.IsActive, &product.SortOrder, &product.CreatedAt)
	return product, err
}

// GetActiveProductByType возвращает активный продукт заданного типа.
func (p *Postgres) GetActiveProductByType(t domain.ProductType) (domain.Product, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+productColumns+`
FROM products
WHERE product_type = $1 AND is_active
ORDER BY sort_order, id
LIMIT 1
`, t)
	product, err := scanProduct(row)
	metrics.ObserveNetworkRequest("postgres", "products_get_active", "products", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, err
	}
	return product, true, nil
}

// GetActiveOffer возвращает активный оффер продукта.
func (p *Postgres) GetActiveOffer(productID int64) (domain.ProductOffer, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var offer domain.ProductOffer
	var price sql.NullInt64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, product_id, name, COALESCE(text,''), price, is_active
FROM product_offers
WHERE product_id = $1 AND is_active
ORDER BY id
LIMIT 1
`, productID).Scan(&offer.ID, &offer.ProductID, &offer.Name, &offer.Text, &price, &offer.IsActive)
	metrics.ObserveNetworkRequest("postgres", "offers_get_active", "product_offers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductOffer{}, false, nil
	}
	if err != nil {
		return domain.ProductOffer{}, false, err
	}
	if price.Valid {
		value := price.Int64
		offer.Price = &value
	}
	return offer, true, nil
}

// GetOfferByID возвращает оффер по идентификатору.
func (p *Postgres) GetOfferByID(offerID int64) (domain.ProductOffer, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var offer domain.ProductOffer
	var price sql.NullInt64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, product_id, name, COALESCE(text,''), price, is_active
FROM product_offers
WHERE id = $1
`, offerID).Scan(&offer.ID, &offer.ProductID, &offer.Name, &offer.Text, &price, &offer.IsActive)
	metrics.ObserveNetworkRequest("postgres", "offers_get_by_id", "product_offers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductOffer{}, false, nil
	}
	if err != nil {
		return domain.ProductOffer{}, false, err
	}
	if price.Valid {
		value := price.Int64
		offer.Price = &value
	}
	return offer, true, nil
}

// ListProducts возвращает продукты по порядку сортировки.
func (p *Postgres) ListProducts(limit int) ([]domain.Product, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+productColumns+`
FROM products
ORDER BY sort_order, id
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "products_list", "products", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

// CreateProduct сохраняет продукт.
func (p *Postgres) CreateProduct(product domain.Product) (domain.Product, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO products (name, description, product_type, price, currency, payment_url, offer_text, is_active, sort_order)
VALUES ($1, NULLIF($2,''), $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, $9)
RETURNING id, created_at
`, product.Name, product.Description, product.Type, product.Price, product.Currency, product.PaymentURL, product.OfferText, product.IsActive, product.SortOrder).
		Scan(&product.ID, &product.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "products_insert", "products", start, err)
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// HasSeenOffer проверяет, был ли показ оффера пользователю.
func (p *Postgres) HasSeenOffer(userID, offerID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM user_product_offers WHERE user_id = $1 AND offer_id = $2
)
`, userID, offerID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "tracking_has_seen", "user_product_offers", start, err)
	return exists, err
}

// RecordOfferShown фиксирует показ оффера. Повторная запись по паре
// игнорируется.
func (p *Postgres) RecordOfferShown(userID, offerID int64, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_product_offers (user_id, offer_id, shown_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, offer_id) DO NOTHING
`, userID, offerID, at)
	metrics.ObserveNetworkRequest("postgres", "tracking_record_shown", "user_product_offers", start, err)
	return err
}

// MarkOfferClicked фиксирует клик. Возвращает true только при первом клике.
func (p *Postgres) MarkOfferClicked(userID, offerID int64, at time.Time) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE user_product_offers
SET clicked = true, clicked_at = $3
WHERE user_id = $1 AND offer_id = $2 AND NOT clicked
`, userID, offerID, at)
	metrics.ObserveNetworkRequest("postgres", "tracking_mark_clicked", "user_product_offers", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListFollowUpCandidates возвращает активных пользователей с показанным
// не позже cutoff оффером трипвайера без клика.
func (p *Postgres) ListFollowUpCandidates(cutoff time.Time) ([]domain.FollowUpCandidate, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT
  u.id, u.tg_user_id, COALESCE(u.username,''), COALESCE(u.first_name,''), COALESCE(u.last_name,''), u.locale, u.status, u.is_subscribed_to_channel, u.is_bot, u.created_at, u.updated_at,
  o.id, o.product_id, o.name, COALESCE(o.text,''), o.price, o.is_active,
  t.id, t.user_id, t.offer_id, t.shown_at, t.clicked, t.clicked_at
FROM user_product_offers t
JOIN users u ON u.id = t.user_id
JOIN product_offers o ON o.id = t.offer_id
JOIN products pr ON pr.id = o.product_id
WHERE pr.product_type = 'tripwire'
  AND t.shown_at <= $1
  AND NOT t.clicked
  AND u.status = 'active'
ORDER BY t.shown_at
`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "tracking_followup_candidates", "user_product_offers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.FollowUpCandidate
	for rows.Next() {
		var c domain.FollowUpCandidate
		var price sql.NullInt64
		var clickedAt sql.NullTime
		err := rows.Scan(
			&c.User.ID, &c.User.TGUserID, &c.User.Username, &c.User.FirstName, &c.User.LastName, &c.User.Locale, &c.User.Status, &c.User.IsSubscribedToChannel, &c.User.IsBot, &c.User.CreatedAt, &c.User.UpdatedAt,
			&c.Offer.ID, &c.Offer.ProductID, &c.Offer.Name, &c.Offer.Text, &price, &c.Offer.IsActive,
			&c.UserOffer.ID, &c.UserOffer.UserID, &c.UserOffer.OfferID, &c.UserOffer.ShownAt, &c.UserOffer.Clicked, &clickedAt,
		)
		if err != nil {
			return nil, err
		}
		if price.Valid {
			value := price.Int64
			c.Offer.Price = &value
		}
		if clickedAt.Valid {
			ts := clickedAt.Time
			c.UserOffer.ClickedAt = &ts
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// WasFollowUpSent проверяет, отправлялся ли дожим по паре.
func (p *Postgres) WasFollowUpSent(userID, offerID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM user_follow_ups WHERE user_id = $1 AND offer_id = $2
)
`, userID, offerID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "tracking_was_followup_sent", "user_follow_ups", start, err)
	return exists, err
}

// RecordFollowUpSent фиксирует отправленный дожим.
func (p *Postgres) RecordFollowUpSent(userID, offerID int64, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_follow_ups (user_id, offer_id, sent_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, offer_id) DO NOTHING
`, userID, offerID, at)
	metrics.ObserveNetworkRequest("postgres", "tracking_record_followup", "user_follow_ups", start, err)
	return err
}

// GetOfferStats считает показы, клики и CTR оффера.
func (p *Postgres) GetOfferStats(offerID int64) (domain.OfferStats, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var stats domain.OfferStats
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*), count(*) FILTER (WHERE clicked)
FROM user_product_offers
WHERE offer_id = $1
`, offerID).Scan(&stats.Shows, &stats.Clicks)
	metrics.ObserveNetworkRequest("postgres", "tracking_offer_stats", "user_product_offers", start, err)
	if err != nil {
		return domain.OfferStats{}, err
	}
	if stats.Shows > 0 {
		stats.CTR = float64(stats.Clicks) / float64(stats.Shows)
	}
	return stats, nil
}

const leadMagnetColumns = `id, name, COALESCE(description,''), magnet_type, COALESCE(file_url,''), message_text, is_active, sort_order`

func scanLeadMagnet(row interface{ Scan(dest ...any) error }) (domain.LeadMagnet, error) {
	var magnet domain.LeadMagnet
	err := row.Scan(&magnet.ID, &magnet.Name, &magnet.Description, &magnet.Type, &magnet.FileURL, &magnet.MessageText, &magnet.IsActive, &magnet.SortOrder)
	return magnet, err
}

// GetActiveLeadMagnet возвращает активный лид-магнит.
func (p *Postgres) GetActiveLeadMagnet() (domain.LeadMagnet, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+leadMagnetColumns+`
FROM lead_magnets
WHERE is_active
ORDER BY sort_order, id
LIMIT 1
`)
	magnet, err := scanLeadMagnet(row)
	metrics.ObserveNetworkRequest("postgres", "magnets_get_active", "lead_magnets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeadMagnet{}, false, nil
	}
	if err != nil {
		return domain.LeadMagnet{}, false, err
	}
	return magnet, true, nil
}

// ListLeadMagnets возвращает все лид-магниты.
func (p *Postgres) ListLeadMagnets() ([]domain.LeadMagnet, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+leadMagnetColumns+`
FROM lead_magnets
ORDER BY sort_order, id
`)
	metrics.ObserveNetworkRequest("postgres", "magnets_list", "lead_magnets", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var magnets []domain.LeadMagnet
	for rows.Next() {
		magnet, err := scanLeadMagnet(rows)
		if err != nil {
			return nil, err
		}
		magnets = append(magnets, magnet)
	}
	return magnets, rows.Err()
}

// CreateLeadMagnet сохраняет лид-магнит.
func (p *Postgres) CreateLeadMagnet(magnet domain.LeadMagnet) (domain.LeadMagnet, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO lead_magnets (name, description, magnet_type, file_url, message_text, is_active, sort_order)
VALUES ($1, NULLIF($2,''), $3, NULLIF($4,''), $5, $6, $7)
RETURNING id
`, magnet.Name, magnet.Description, magnet.Type, magnet.FileURL, magnet.MessageText, magnet.IsActive, magnet.SortOrder).Scan(&magnet.ID)
	metrics.ObserveNetworkRequest("postgres", "magnets_insert", "lead_magnets", start, err)
	if err != nil {
		return domain.LeadMagnet{}, err
	}
	return magnet, nil
}

// UserHasLeadMagnet проверяет, получал ли пользователь лид-магнит.
func (p *Postgres) UserHasLeadMagnet(userID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM user_lead_magnets WHERE user_id = $1)
`, userID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "magnets_user_has", "user_lead_magnets", start, err)
	return exists, err
}

// RecordLeadMagnetIssued фиксирует выдачу лид-магнита.
func (p *Postgres) RecordLeadMagnetIssued(userID, magnetID int64, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_lead_magnets (user_id, lead_magnet_id, issued_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, lead_magnet_id) DO NOTHING
`, userID, magnetID, at)
	metrics.ObserveNetworkRequest("postgres", "magnets_record_issued", "user_lead_magnets", start, err)
	return err
}

const mailingColumns = `id, title, text, status, total_count, sent_count, failed_count, created_at, sent_at`

func scanMailing(row interface{ Scan(dest ...any) error }) (domain.Mailing, error) {
	var mailing domain.Mailing
	var sentAt sql.NullTime
	err := row.Scan(&mailing.ID, &mailing.Title, &mailing.Text, &mailing.Status, &mailing.TotalCount, &mailing.SentCount, &mailing.FailedCount, &mailing.CreatedAt, &sentAt)
	if err != nil {
		return domain.Mailing{}, err
	}
	if sentAt.Valid {
		ts := sentAt.Time
		mailing.SentAt = &ts
	}
	return mailing, nil
}

// CreateMailing сохраняет рассылку в статусе черновика.
func (p *Postgres) CreateMailing(mailing domain.Mailing) (domain.Mailing, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if mailing.Status == "" {
		mailing.Status = domain.MailingDraft
	}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO mailings (title, text, status)
VALUES ($1, $2, $3)
RETURNING id, created_at
`, mailing.Title, mailing.Text, mailing.Status).Scan(&mailing.ID, &mailing.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "mailings_insert", "mailings", start, err)
	if err != nil {
		return domain.Mailing{}, err
	}
	return mailing, nil
}

// GetMailingByID возвращает рассылку.
func (p *Postgres) GetMailingByID(id int64) (domain.Mailing, bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+mailingColumns+` FROM mailings WHERE id = $1`, id)
	mailing, err := scanMailing(row)
	metrics.ObserveNetworkRequest("postgres", "mailings_get_by_id", "mailings", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Mailing{}, false, nil
	}
	if err != nil {
		return domain.Mailing{}, false, err
	}
	return mailing, true, nil
}

// ListMailings возвращает рассылки от новых к старым.
func (p *Postgres) ListMailings() ([]domain.Mailing, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+mailingColumns+` FROM mailings ORDER BY created_at DESC`)
	metrics.ObserveNetworkRequest("postgres", "mailings_list", "mailings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mailings []domain.Mailing
	for rows.Next() {
		mailing, err := scanMailing(rows)
		if err != nil {
			return nil, err
		}
		mailings = append(mailings, mailing)
	}
	return mailings, rows.Err()
}

// UpdateMailingStatus переводит рассылку в новый статус и фиксирует
// плановое число получателей.
func (p *Postgres) UpdateMailingStatus(id int64, status domain.MailingStatus, total int) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE mailings SET status = $2, total_count = $3 WHERE id = $1
`, id, status, total)
	metrics.ObserveNetworkRequest("postgres", "mailings_update_status", "mailings", start, err)
	return err
}

// IncrementMailingCounters атомарно увеличивает счётчики отправки.
func (p *Postgres) IncrementMailingCounters(id int64, sent, failed int) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE mailings SET sent_count = sent_count + $2, failed_count = failed_count + $3 WHERE id = $1
`, id, sent, failed)
	metrics.ObserveNetworkRequest("postgres", "mailings_increment", "mailings", start, err)
	return err
}

// MarkMailingSent завершает рассылку.
func (p *Postgres) MarkMailingSent(id int64, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE mailings SET status = $2, sent_at = $3 WHERE id = $1
`, id, domain.MailingSent, at)
	metrics.ObserveNetworkRequest("postgres", "mailings_mark_sent", "mailings", start, err)
	return err
}

// ListActiveDialogs возвращает активные диалоги с активными вопросами
// и ответами, отсортированными по порядку.
func (p *Postgres) ListActiveDialogs() ([]domain.Dialog, error) {
	return p.listDialogs(true)
}

// ListDialogs возвращает все диалоги целиком.
func (p *Postgres) ListDialogs() ([]domain.Dialog, error) {
	return p.listDialogs(false)
}

func (p *Postgres) listDialogs(onlyActive bool) ([]domain.Dialog, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	query := `
SELECT id, name, COALESCE(description,''), status, sort_order, created_at
FROM dialogs
`
	if onlyActive {
		query += `WHERE status = 'active'
`
	}
	query += `ORDER BY sort_order, id`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	metrics.ObserveNetworkRequest("postgres", "dialogs_list", "dialogs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dialogs []domain.Dialog
	for rows.Next() {
		var dialog domain.Dialog
		if err := rows.Scan(&dialog.ID, &dialog.Name, &dialog.Description, &dialog.Status, &dialog.SortOrder, &dialog.CreatedAt); err != nil {
			return nil, err
		}
		dialogs = append(dialogs, dialog)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range dialogs {
		questions, err := p.listDialogQuestions(dialogs[i].ID, onlyActive)
		if err != nil {
			return nil, err
		}
		dialogs[i].Questions = questions
	}
	return dialogs, nil
}

func (p *Postgres) listDialogQuestions(dialogID int64, onlyActive bool) ([]domain.DialogQuestion, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	query := `
SELECT id, dialog_id, question_text, COALESCE(keywords,''), is_active, sort_order
FROM dialog_questions
WHERE dialog_id = $1
`
	if onlyActive {
		query += `AND is_active
`
	}
	query += `ORDER BY sort_order, id`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, dialogID)
	metrics.ObserveNetworkRequest("postgres", "dialog_questions_list", "dialog_questions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []domain.DialogQuestion
	for rows.Next() {
		var question domain.DialogQuestion
		if err := rows.Scan(&question.ID, &question.DialogID, &question.QuestionText, &question.Keywords, &question.IsActive, &question.SortOrder); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range questions {
		answers, err := p.listDialogAnswers(questions[i].ID, onlyActive)
		if err != nil {
			return nil, err
		}
		questions[i].Answers = answers
	}
	return questions, nil
}

func (p *Postgres) listDialogAnswers(questionID int64, onlyActive bool) ([]domain.DialogAnswer, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	query := `
SELECT id, question_id, answer_text, is_active, sort_order
FROM dialog_answers
WHERE question_id = $1
`
	if onlyActive {
		query += `AND is_active
`
	}
	query += `ORDER BY sort_order, id`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, questionID)
	metrics.ObserveNetworkRequest("postgres", "dialog_answers_list", "dialog_answers", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []domain.DialogAnswer
	for rows.Next() {
		var answer domain.DialogAnswer
		if err := rows.Scan(&answer.ID, &answer.QuestionID, &answer.AnswerText, &answer.IsActive, &answer.SortOrder); err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return answers, rows.Err()
}

// CreateDialog сохраняет диалог вместе с вопросами и ответами в одной
// транзакции.
func (p *Postgres) CreateDialog(dialog domain.Dialog) (domain.Dialog, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if dialog.Status == "" {
		dialog.Status = domain.DialogActive
	}

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "dialogs", start, err)
	if err != nil {
		return domain.Dialog{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO dialogs (name, description, status, sort_order)
VALUES ($1, NULLIF($2,''), $3, $4)
RETURNING id, created_at
`, dialog.Name, dialog.Description, dialog.Status, dialog.SortOrder).Scan(&dialog.ID, &dialog.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "dialogs_insert", "dialogs", start, err)
	if err != nil {
		return domain.Dialog{}, err
	}

	for qi := range dialog.Questions {
		question := &dialog.Questions[qi]
		question.DialogID = dialog.ID
		start = time.Now()
		err = tx.QueryRow(ctx, `
INSERT INTO dialog_questions (dialog_id, question_text, keywords, is_active, sort_order)
VALUES ($1, $2, NULLIF($3,''), $4, $5)
RETURNING id
`, question.DialogID, question.QuestionText, question.Keywords, question.IsActive, question.SortOrder).Scan(&question.ID)
		metrics.ObserveNetworkRequest("postgres", "dialog_questions_insert", "dialog_questions", start, err)
		if err != nil {
			return domain.Dialog{}, err
		}
		for ai := range question.Answers {
			answer := &question.Answers[ai]
			answer.QuestionID = question.ID
			start = time.Now()
			err = tx.QueryRow(ctx, `
INSERT INTO dialog_answers (question_id, answer_text, is_active, sort_order)
VALUES ($1, $2, $3, $4)
RETURNING id
`, answer.QuestionID, answer.AnswerText, answer.IsActive, answer.SortOrder).Scan(&answer.ID)
			metrics.ObserveNetworkRequest("postgres", "dialog_answers_insert", "dialog_answers", start, err)
			if err != nil {
				return domain.Dialog{}, err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Dialog{}, err
	}
	return dialog, nil
}

// DeleteDialog удаляет диалог с вопросами и ответами.
func (p *Postgres) DeleteDialog(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "dialogs", start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	_, err = tx.Exec(ctx, `
DELETE FROM dialog_answers
WHERE question_id IN (SELECT id FROM dialog_questions WHERE dialog_id = $1)
`, id)
	metrics.ObserveNetworkRequest("postgres", "dialog_answers_delete", "dialog_answers", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM dialog_questions WHERE dialog_id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "dialog_questions_delete", "dialog_questions", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM dialogs WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "dialogs_delete", "dialogs", start, err)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
