package domain

import "time"

// IdempotencyStatus описывает жизненный цикл Idempotency-Key, которым
// клиент помечает мутацию корзины (добавление повторять нельзя: ретрай
// задвоил бы количество в позиции).
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — мутация принята и ещё выполняется;
	// конкурентный повтор с тем же ключом отклоняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — мутация применена, HTTP-ответ сохранён
	// и отдаётся при повторе без повторного изменения корзины.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — мутация завершилась ошибкой; повтор
	// получает сохранённый ответ с ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние одной мутации корзины по её ключу.
// RequestHash защищает от переиспользования ключа с другим телом запроса.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}
