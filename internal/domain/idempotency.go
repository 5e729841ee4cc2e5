package domain

import "time"

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности checkout.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что checkout принят и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что checkout завершён и результат сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что checkout завершился ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние checkout-запроса по idempotency-key.
// Повтор с тем же ключом возвращает сохранённый результат вместо повторного
// списания средств.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	// Result — сериализованный результат checkout (JSON).
	Result     []byte
	ResultCode int
	Status     IdempotencyStatus
	TTLAt      time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
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
