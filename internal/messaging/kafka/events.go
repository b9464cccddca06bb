package kafka

// EventType определяет тип события корзины
type EventType string

const (
	EventTypeItemAdded       EventType = "cart.item_added"
	EventTypeQuantityChanged EventType = "cart.quantity_changed"
	EventTypeItemRemoved     EventType = "cart.item_removed"
	EventTypeCartCleared     EventType = "cart.cleared"
)

// Topics для Kafka
const (
	TopicCartEvents      = "cart.events"
	TopicDeadLetterQueue = "cart.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)
