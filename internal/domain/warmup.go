package domain

import "time"

// WarmupMessageType описывает смысловой тип сообщения прогрева.
type WarmupMessageType string

const (
	WarmupMessageWelcome     WarmupMessageType = "welcome"
	WarmupMessagePainPoint   WarmupMessageType = "pain_point"
	WarmupMessageSolution    WarmupMessageType = "solution"
	WarmupMessageSocialProof WarmupMessageType = "social_proof"
	WarmupMessageOffer       WarmupMessageType = "offer"
	WarmupMessageFollowUp    WarmupMessageType = "follow_up"
)

// WarmupScenario описывает сценарий прогрева. Активным может быть только один.
type WarmupScenario struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	Messages    []WarmupMessage
}

// WarmupMessage описывает одно сообщение сценария.
// DelayHours отсчитывается от предыдущего сообщения последовательности,
// для первого сообщения — от момента записи на прогрев.
type WarmupMessage struct {
	ID         int64
	ScenarioID int64
	Type       WarmupMessageType
	Title      string
	Text       string
	Order      int
	DelayHours int
	IsActive   bool
}

// UserWarmup описывает прохождение прогрева пользователем.
// У пользователя не может быть двух записей с is_completed=false и is_stopped=false.
type UserWarmup struct {
	ID            int64
	UserID        int64
	ScenarioID    int64
	CurrentStep   int
	StartedAt     time.Time
	LastMessageAt *time.Time
	IsCompleted   bool
	IsStopped     bool
}

// UserWarmupMessage — запись журнала доставки. Журнал только дописывается:
// успешная запись по паре (пользователь, сообщение) закрывает пару для
// резолвера, неуспешные попытки пару не закрывают.
type UserWarmupMessage struct {
	ID           int64
	UserID       int64
	MessageID    int64
	SentAt       time.Time
	IsSent       bool
	ErrorMessage string
}

// ActiveWarmup объединяет запись прогрева с пользователем и сценарием.
type ActiveWarmup struct {
	Warmup   UserWarmup
	Scenario WarmupScenario
	User     User
}

// WarmupDueItem — пара (пользователь, сообщение), срок которой наступил.
type WarmupDueItem struct {
	User     User
	Warmup   UserWarmup
	Message  WarmupMessage
	Scenario WarmupScenario
}

// WarmupStats агрегирует статистику по сценариям прогрева.
type WarmupStats struct {
	TotalScenarios  int
	ActiveScenarios int
	TotalMessages   int
	ActiveUsers     int
	MessageTypes    map[WarmupMessageType]int
}
