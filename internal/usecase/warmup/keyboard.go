package warmup

import "tg-funnel-bot/internal/domain"

// KeyboardFor строит клавиатуру под тип сообщения прогрева.
// Кнопка остановки прогрева добавляется ко всем типам.
func KeyboardFor(t domain.WarmupMessageType) domain.Keyboard {
	var kb domain.Keyboard
	switch t {
	case domain.WarmupMessageOffer, domain.WarmupMessageFollowUp:
		kb = append(kb, domain.Row(domain.Button{Label: "Войти в программу", Data: CallbackOffer}))
	case domain.WarmupMessagePainPoint, domain.WarmupMessageSolution, domain.WarmupMessageSocialProof:
		kb = append(kb, domain.Row(domain.Button{Label: "Узнать больше", Data: CallbackInfo}))
	}
	kb = append(kb, domain.Row(domain.Button{Label: "Остановить прогрев", Data: CallbackStop}))
	return kb
}
