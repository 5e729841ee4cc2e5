package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// idempotencyRepositoryInMemory — in-memory хранилище ключей идемпотентности.
type idempotencyRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepository возвращает in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{records: make(map[string]domain.IdempotencyRecord)}
}

// CreateProcessing регистрирует ключ в статусе `processing`. Если ключ уже
// занят и не истёк, возвращается ErrIdempotencyKeyAlreadyExists — вызывающая
// сторона решает, реплеить результат или отклонить запрос.
func (r *idempotencyRepositoryInMemory) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.records[key]; ok && existing.TTLAt.After(now) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[key] = record
	return record, nil
}

// Get возвращает запись по ключу или ErrIdempotencyKeyNotFound.
func (r *idempotencyRepositoryInMemory) Get(key string) (domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

// MarkDone сохраняет успешный результат checkout.
func (r *idempotencyRepositoryInMemory) MarkDone(key string, result []byte, resultCode int) error {
	return r.finish(key, result, resultCode, domain.IdempotencyStatusDone)
}

// MarkFailed сохраняет ошибочный исход checkout.
func (r *idempotencyRepositoryInMemory) MarkFailed(key string, result []byte, resultCode int) error {
	return r.finish(key, result, resultCode, domain.IdempotencyStatusFailed)
}

func (r *idempotencyRepositoryInMemory) finish(key string, result []byte, resultCode int, status domain.IdempotencyStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Result = append([]byte(nil), result...)
	record.ResultCode = resultCode
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	r.records[key] = record
	return nil
}

// DeleteExpired удаляет не более limit записей с истёкшим TTL.
func (r *idempotencyRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for key, record := range r.records {
		if limit > 0 && deleted >= limit {
			break
		}
		if record.TTLAt.Before(before) {
			delete(r.records, key)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
