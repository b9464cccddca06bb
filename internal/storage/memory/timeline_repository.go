package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// timelineRepositoryInMemory хранит историю активности корзин в памяти.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[domain.IdentityKey][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[domain.IdentityKey][]domain.TimelineEvent)}
}

// Append добавляет событие в историю владельца.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if event.Identity == "" {
		return domain.ErrCartIdentityRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.Identity] = append(r.events[event.Identity], event)

	sort.Slice(r.events[event.Identity], func(i, j int) bool {
		return r.events[event.Identity][i].Occurred.Before(r.events[event.Identity][j].Occurred)
	})

	return nil
}

// List возвращает события владельца в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(identity domain.IdentityKey) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[identity]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
