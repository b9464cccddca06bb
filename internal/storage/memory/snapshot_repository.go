package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// snapshotRepositoryInMemory — простая in-memory реализация SnapshotRepository.
type snapshotRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[domain.IdentityKey]domain.Snapshot
}

// NewSnapshotRepository возвращает in-memory хранилище снапшотов
// для локальной разработки и тестов.
func NewSnapshotRepository() domain.SnapshotRepository {
	return &snapshotRepositoryInMemory{
		items: make(map[domain.IdentityKey]domain.Snapshot),
	}
}

// Load возвращает снапшот владельца; ok=false, если корзина ещё не сохранялась.
func (r *snapshotRepositoryInMemory) Load(key domain.IdentityKey) (domain.Snapshot, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.items[key]
	if !ok {
		return domain.Snapshot{}, false, nil
	}
	return cloneSnapshot(snap), true, nil
}

// Save перезаписывает снапшот владельца целиком.
func (r *snapshotRepositoryInMemory) Save(key domain.IdentityKey, snap domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[key] = cloneSnapshot(snap)
	return nil
}

func cloneSnapshot(src domain.Snapshot) domain.Snapshot {
	dst := src
	dst.Items = make([]domain.SnapshotItem, len(src.Items))
	copy(dst.Items, src.Items)
	return dst
}

var _ domain.SnapshotRepository = (*snapshotRepositoryInMemory)(nil)
