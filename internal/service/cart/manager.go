package cart

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/metrics"
)

// Manager раздаёт сторы по ключу владельца. На один ключ существует ровно
// один стор: авторизованный пользователь получает корзину по своему id,
// анонимные сессии делят общий гостевой ключ.
type Manager struct {
	mu     sync.Mutex
	stores map[domain.IdentityKey]*Store

	snapshots domain.SnapshotRepository
	opts      []Option
	logger    *log.Entry
	metrics   *metrics.CartMetrics
}

// NewManager создаёт менеджер сторов. Переданные опции применяются
// к каждому создаваемому стору.
func NewManager(snapshots domain.SnapshotRepository, logger *log.Entry, m *metrics.CartMetrics, opts ...Option) *Manager {
	if logger == nil {
		logger = log.WithField("component", "cart-manager")
	}
	return &Manager{
		stores:    make(map[domain.IdentityKey]*Store),
		snapshots: snapshots,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}
}

// Store возвращает стор для владельца, создавая его при первом обращении.
// Пустой ключ означает гостевую корзину.
func (m *Manager) Store(rawIdentity string) *Store {
	identity := domain.NormalizeIdentity(rawIdentity)

	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[identity]; ok {
		return store
	}

	opts := append([]Option{WithLogger(m.logger), WithMetrics(m.metrics)}, m.opts...)
	store := NewStore(identity, m.snapshots, opts...)
	m.stores[identity] = store
	if m.metrics != nil {
		m.metrics.RecordCartLoaded()
	}
	m.logger.WithField("identity", string(identity)).Debug("cart store created")
	return store
}

// Evict выгружает стор владельца из памяти. Durable-снапшот не трогается:
// следующее обращение перечитает его заново. Используется при смене
// активного identity (login/logout).
func (m *Manager) Evict(rawIdentity string) {
	identity := domain.NormalizeIdentity(rawIdentity)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stores[identity]; !ok {
		return
	}
	delete(m.stores, identity)
	if m.metrics != nil {
		m.metrics.RecordCartEvicted()
	}
	m.logger.WithField("identity", string(identity)).Debug("cart store evicted")
}

// Len возвращает количество загруженных в память сторов.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}
