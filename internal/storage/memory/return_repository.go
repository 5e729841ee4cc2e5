package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// returnRepositoryInMemory — in-memory реализация ReturnRepository.
type returnRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Return
}

// NewReturnRepository возвращает in-memory репозиторий заявок на возврат.
func NewReturnRepository() domain.ReturnRepository {
	return &returnRepositoryInMemory{
		items: make(map[string]domain.Return),
	}
}

// Create сохраняет новую заявку.
func (r *returnRepositoryInMemory) Create(ret domain.Return) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[ret.ID]; exists {
		return domain.ErrReturnAlreadyOpen
	}
	r.items[ret.ID] = cloneReturn(ret)
	return nil
}

// Get возвращает заявку или ErrReturnNotFound.
func (r *returnRepositoryInMemory) Get(id string) (domain.Return, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ret, ok := r.items[id]
	if !ok {
		return domain.Return{}, domain.ErrReturnNotFound
	}
	return cloneReturn(ret), nil
}

// OpenByItem возвращает открытую (Requested/Received) заявку по позиции.
func (r *returnRepositoryInMemory) OpenByItem(itemID string) (domain.Return, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ret := range r.items {
		if ret.OrderItemID == itemID && ret.Open() {
			return cloneReturn(ret), nil
		}
	}
	return domain.Return{}, domain.ErrReturnNotFound
}

// List возвращает заявки (новые первыми) с опциональным фильтром по статусу.
func (r *returnRepositoryInMemory) List(status domain.ReturnStatus, limit int) ([]domain.Return, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Return, 0, len(r.items))
	for _, ret := range r.items {
		if status != "" && ret.Status != status {
			continue
		}
		result = append(result, cloneReturn(ret))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает существующую заявку.
func (r *returnRepositoryInMemory) Save(ret domain.Return) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[ret.ID]; !ok {
		return domain.ErrReturnNotFound
	}
	r.items[ret.ID] = cloneReturn(ret)
	return nil
}

func cloneReturn(ret domain.Return) domain.Return {
	clone := ret
	if ret.ReceivedAt != nil {
		at := *ret.ReceivedAt
		clone.ReceivedAt = &at
	}
	if ret.ProcessedAt != nil {
		at := *ret.ProcessedAt
		clone.ProcessedAt = &at
	}
	return clone
}

var _ domain.ReturnRepository = (*returnRepositoryInMemory)(nil)
