package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-funnel-bot/internal/adapters/telegram"
	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
	"tg-funnel-bot/internal/usecase/dialog"
	"tg-funnel-bot/internal/usecase/followup"
	"tg-funnel-bot/internal/usecase/leadmagnet"
	"tg-funnel-bot/internal/usecase/mailing"
	"tg-funnel-bot/internal/usecase/tripwire"
	"tg-funnel-bot/internal/usecase/warmup"
)

// Callback-данные кнопок воронки.
const (
	callbackGetGift     = "get_gift"
	callbackSubscribe   = "subscribe_channel"
	callbackCheckSub    = "check_subscription"
	callbackBackToStart = "back_to_start"
	offerClickPrefix    = "offer_click:"
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	users      domain.UserRepo
	events     domain.BusinessMetricRepo
	warmupUC   *warmup.Service
	tripwireUC *tripwire.Service
	magnetUC   *leadmagnet.Service
	dialogUC   *dialog.Service
	mailingUC  *mailing.Service
	channelID  int64
	isAdmin    func(tgUserID int64) bool
}

// NewHandler создаёт обработчик.
func NewHandler(
	botAPI *tgbotapi.BotAPI,
	logger zerolog.Logger,
	users domain.UserRepo,
	events domain.BusinessMetricRepo,
	warmupUC *warmup.Service,
	tripwireUC *tripwire.Service,
	magnetUC *leadmagnet.Service,
	dialogUC *dialog.Service,
	mailingUC *mailing.Service,
	channelID int64,
	isAdmin func(tgUserID int64) bool,
) *Handler {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Handler{
		bot:        botAPI,
		log:        logger,
		users:      users,
		events:     events,
		warmupUC:   warmupUC,
		tripwireUC: tripwireUC,
		magnetUC:   magnetUC,
		dialogUC:   dialogUC,
		mailingUC:  mailingUC,
		channelID:  channelID,
		isAdmin:    isAdmin,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(ctx, msg)
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, h.buildHelpMessage(), nil)
	case strings.HasPrefix(text, "/gift"):
		h.handleGift(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/stop"):
		h.handleWarmupStop(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(ctx, msg.Chat.ID, msg.From.ID)
	case strings.HasPrefix(text, "/mailing"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/mailing"))
		h.handleMailing(ctx, msg.Chat.ID, msg.From.ID, payload)
	case strings.HasPrefix(text, "/"):
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	default:
		h.handleFreeText(ctx, msg.Chat.ID, text)
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	profile := domain.TelegramProfile{
		TGUserID:  msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Locale:    msg.From.LanguageCode,
		IsBot:     msg.From.IsBot,
	}
	user, created, err := h.users.UpsertByTGID(profile)
	if err != nil {
		h.reply(msg.Chat.ID, fmt.Sprintf("Ошибка сохранения профиля: %v", err), nil)
		return
	}
	if created && h.events != nil {
		_ = h.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:      domain.BusinessMetricEventUserRegistered,
			UserID:     &user.ID,
			OccurredAt: time.Now().UTC(),
		})
	}
	name := user.FirstName
	if name == "" {
		name = "друг"
	}
	lines := []string{
		fmt.Sprintf("👋 Привет, %s!", name),
		"",
		"Здесь ты получишь систему, которая меняет жизнь.",
		"Начни с подарка — забери его по кнопке ниже.",
	}
	kb := domain.Keyboard{
		domain.Row(domain.Button{Label: "🎁 Забрать подарок", Data: callbackGetGift}),
	}
	h.reply(msg.Chat.ID, strings.Join(lines, "\n"), telegram.Markup(kb))
}

// handleGift выдаёт лид-магнит. Выдача требует подписки на канал;
// после первой выдачи пользователь записывается на прогрев.
func (h *Handler) handleGift(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.users.GetByTGID(tgUserID)
	if err != nil {
		h.reply(chatID, "Сначала отправьте /start", nil)
		return
	}

	subscribed := h.checkChannelSubscription(ctx, tgUserID)
	if err := h.users.SetChannelSubscription(user.ID, subscribed); err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("bot: не удалось сохранить статус подписки")
	}
	if !subscribed {
		kb := domain.Keyboard{
			domain.Row(domain.Button{Label: "📢 Подписаться на канал", Data: callbackSubscribe}),
			domain.Row(domain.Button{Label: "✅ Я подписался", Data: callbackCheckSub}),
		}
		h.reply(chatID, "Чтобы получить подарок, подпишись на наш канал и нажми «Я подписался».", telegram.Markup(kb))
		return
	}

	magnet, issued, err := h.magnetUC.Claim(ctx, user.ID)
	if err != nil {
		if errors.Is(err, leadmagnet.ErrNoActiveLeadMagnet) {
			h.reply(chatID, "Подарок пока не настроен, загляни позже.", nil)
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("bot: ошибка выдачи лид-магнита")
		h.reply(chatID, "Не удалось выдать подарок, попробуйте позже.", nil)
		return
	}

	text := magnet.MessageText
	if magnet.FileURL != "" {
		text = text + "\n\n" + magnet.FileURL
	}
	h.reply(chatID, text, nil)

	if issued {
		if _, _, err := h.warmupUC.Enroll(ctx, user.ID); err != nil && !errors.Is(err, warmup.ErrNoActiveScenario) {
			h.log.Error().Err(err).Int64("user_id", user.ID).Msg("bot: не удалось записать на прогрев")
		}
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID
	switch {
	case data == callbackGetGift || data == callbackCheckSub:
		h.handleGift(ctx, chatID, cb.From.ID)
	case data == callbackSubscribe:
		h.reply(chatID, "Подпишись на канал и вернись за подарком по кнопке «Я подписался».", nil)
	case data == warmup.CallbackOffer:
		h.handleShowOffer(ctx, chatID, cb.From.ID)
	case data == warmup.CallbackInfo:
		h.handleOfferInfo(chatID)
	case data == warmup.CallbackStop:
		h.handleWarmupStop(ctx, chatID, cb.From.ID)
	case data == followup.CallbackStop:
		h.reply(chatID, "Напоминания остановлены. Вернуться к офферу можно командой /help.", nil)
	case data == callbackBackToStart:
		h.reply(chatID, h.buildHelpMessage(), nil)
	case strings.HasPrefix(data, offerClickPrefix):
		h.handleOfferClick(ctx, chatID, cb.From.ID, parseID(data))
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось ответить на callback")
	}
}

// handleShowOffer показывает оффер трипвайера и фиксирует показ.
func (h *Handler) handleShowOffer(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.users.GetByTGID(tgUserID)
	if err != nil {
		h.reply(chatID, "Сначала отправьте /start", nil)
		return
	}
	product, offer, err := h.tripwireUC.ShowOffer(ctx, user.ID)
	if err != nil {
		if errors.Is(err, tripwire.ErrNoActiveOffer) {
			h.reply(chatID, "Предложение пока недоступно, загляни позже.", nil)
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("bot: ошибка показа оффера")
		h.reply(chatID, "Не удалось показать предложение, попробуйте позже.", nil)
		return
	}
	text := offer.Text
	if text == "" {
		text = product.OfferText
	}
	kb := domain.Keyboard{
		domain.Row(domain.Button{Label: "💳 Перейти к оплате", Data: offerClickPrefix + strconv.FormatInt(offer.ID, 10)}),
		domain.Row(domain.Button{Label: "🔙 Назад", Data: warmup.CallbackInfo}),
	}
	h.reply(chatID, text, telegram.Markup(kb))
}

// handleOfferClick фиксирует клик и отдаёт ссылку на оплату.
func (h *Handler) handleOfferClick(ctx context.Context, chatID, tgUserID, offerID int64) {
	user, err := h.users.GetByTGID(tgUserID)
	if err != nil {
		h.reply(chatID, "Сначала отправьте /start", nil)
		return
	}
	if _, err := h.tripwireUC.Click(ctx, user.ID, offerID); err != nil {
		if errors.Is(err, tripwire.ErrOfferNotFound) {
			h.reply(chatID, "Предложение уже неактуально.", nil)
			return
		}
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("bot: ошибка записи клика")
	}
	product, _, err := h.tripwireUC.ShowOffer(ctx, user.ID)
	if err != nil || product.PaymentURL == "" {
		h.reply(chatID, "Ссылка на оплату временно недоступна, попробуйте позже.", nil)
		return
	}
	kb := domain.Keyboard{
		domain.Row(domain.Button{Label: "💳 Оплатить", URL: product.PaymentURL}),
		domain.Row(domain.Button{Label: "🔙 Назад", Data: warmup.CallbackOffer}),
	}
	h.reply(chatID, "Отлично! Оплата по кнопке ниже.", telegram.Markup(kb))
}

func (h *Handler) handleOfferInfo(chatID int64) {
	lines := []string{
		"⚡ <b>Что внутри программы</b>",
		"",
		"• 30 практических заданий на каждый день",
		"• Система отчётности и контроля",
		"• Закрытый чат участников",
		"",
		"Готов начать?",
	}
	kb := domain.Keyboard{
		domain.Row(domain.Button{Label: "🚀 Войти в программу", Data: warmup.CallbackOffer}),
		domain.Row(domain.Button{Label: "🔙 В главное меню", Data: callbackBackToStart}),
	}
	h.reply(chatID, strings.Join(lines, "\n"), telegram.Markup(kb))
}

func (h *Handler) handleWarmupStop(ctx context.Context, chatID, tgUserID int64) {
	user, err := h.users.GetByTGID(tgUserID)
	if err != nil {
		h.reply(chatID, "Сначала отправьте /start", nil)
		return
	}
	stopped, err := h.warmupUC.Stop(ctx, user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("bot: ошибка остановки прогрева")
		h.reply(chatID, "Не удалось остановить рассылку, попробуйте позже.", nil)
		return
	}
	if !stopped {
		h.reply(chatID, "Активной серии сообщений нет.", nil)
		return
	}
	h.reply(chatID, "Серия сообщений остановлена. Вернуться можно командой /start.", nil)
}

// handleFreeText отвечает на свободный вопрос через диалоги FAQ.
func (h *Handler) handleFreeText(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	matches, err := h.dialogUC.Search(ctx, text)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: ошибка поиска по диалогам")
		h.reply(chatID, "Не удалось обработать вопрос, попробуйте позже.", nil)
		return
	}
	if len(matches) == 0 {
		h.reply(chatID, "Не нашёл ответа на этот вопрос. Попробуй задать его иначе или загляни в /help.", nil)
		return
	}
	best := matches[0]
	var b strings.Builder
	for i, answer := range best.Answers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(answer.AnswerText)
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleStats(ctx context.Context, chatID, tgUserID int64) {
	if !h.isAdmin(tgUserID) {
		h.reply(chatID, "Команда доступна только администраторам.", nil)
		return
	}
	warmupStats, err := h.warmupUC.Stats(ctx)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить статистику: %v", err), nil)
		return
	}
	activeUsers, err := h.users.CountByStatus(domain.UserStatusActive)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось получить статистику: %v", err), nil)
		return
	}
	offerStats, err := h.tripwireUC.ActiveStats(ctx)
	if err != nil && !errors.Is(err, tripwire.ErrNoActiveOffer) {
		h.reply(chatID, fmt.Sprintf("Не удалось получить статистику: %v", err), nil)
		return
	}
	h.reply(chatID, formatStats(warmupStats, offerStats, activeUsers), nil)
}

// handleMailing создаёт и запускает рассылку: /mailing Заголовок | Текст.
func (h *Handler) handleMailing(ctx context.Context, chatID, tgUserID int64, payload string) {
	if !h.isAdmin(tgUserID) {
		h.reply(chatID, "Команда доступна только администраторам.", nil)
		return
	}
	title, text, ok := splitMailingPayload(payload)
	if !ok {
		h.reply(chatID, "Формат: /mailing Заголовок | Текст рассылки", nil)
		return
	}
	created, err := h.mailingUC.Create(ctx, title, text)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось создать рассылку: %v", err), nil)
		return
	}
	total, err := h.mailingUC.Start(ctx, created.ID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось запустить рассылку: %v", err), nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Рассылка «%s» запущена: %d получателей.", title, total), nil)
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

// checkChannelSubscription проверяет членство пользователя в канале.
// При невозможности проверить (канал не настроен, ошибка API) подписка
// считается подтверждённой, чтобы не блокировать воронку.
func (h *Handler) checkChannelSubscription(ctx context.Context, tgUserID int64) bool {
	if h.channelID == 0 {
		return true
	}
	start := time.Now()
	member, err := h.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: h.channelID,
			UserID: tgUserID,
		},
	})
	metrics.ObserveNetworkRequest("telegram_bot", "get_chat_member", strconv.FormatInt(tgUserID, 10), start, err)
	if err != nil {
		h.log.Warn().Err(err).Int64("tg_user_id", tgUserID).Msg("bot: не удалось проверить подписку")
		return true
	}
	return isSubscribedStatus(member.Status)
}

func isSubscribedStatus(status string) bool {
	switch status {
	case "creator", "administrator", "member", "restricted":
		return true
	default:
		return false
	}
}

func splitMailingPayload(payload string) (title, text string, ok bool) {
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	title = strings.TrimSpace(parts[0])
	text = strings.TrimSpace(parts[1])
	if title == "" || text == "" {
		return "", "", false
	}
	return title, text, true
}

func parseID(data string) int64 {
	parts := strings.Split(data, ":")
	if len(parts) != 2 {
		return 0
	}
	id, _ := strconv.ParseInt(parts[1], 10, 64)
	return id
}

func formatStats(warmupStats domain.WarmupStats, offerStats domain.OfferStats, activeUsers int) string {
	lines := []string{
		"📊 <b>Статистика воронки</b>",
		"",
		fmt.Sprintf("Активных пользователей: %d", activeUsers),
		fmt.Sprintf("Сценариев прогрева: %d (активных %d)", warmupStats.TotalScenarios, warmupStats.ActiveScenarios),
		fmt.Sprintf("Сообщений в сценариях: %d", warmupStats.TotalMessages),
		fmt.Sprintf("Пользователей в прогреве: %d", warmupStats.ActiveUsers),
		"",
		fmt.Sprintf("Показов оффера: %d", offerStats.Shows),
		fmt.Sprintf("Кликов по офферу: %d", offerStats.Clicks),
		fmt.Sprintf("CTR: %.1f%%", offerStats.CTR*100),
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) buildHelpMessage() string {
	sections := []string{
		"📖 Что умеет бот:",
		"",
		"• /start — начать сначала и получить подарок.",
		"• /gift — забрать лид-магнит, если ещё не забирал.",
		"• /stop — остановить серию сообщений.",
		"",
		"Просто напиши свой вопрос в чат — я поищу ответ в базе знаний.",
	}
	return strings.Join(sections, "\n")
}
