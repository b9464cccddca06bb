package cart

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/cart/internal/metrics"
)

// State описывает стадию жизненного цикла стора.
type State string

const (
	// StateLoading — снапшот ещё не прочитан, корзина недоступна.
	StateLoading State = "loading"
	// StateReady — корзина загружена и принимает мутации.
	StateReady State = "ready"
)

// Store — единственный источник правды по корзине одного владельца.
// Все мутации сериализуются мьютексом: проверка остатка в AddItem
// атомарна относительно других операций над этой же корзиной.
type Store struct {
	mu    sync.Mutex
	cart  domain.Cart
	state State

	snapshots domain.SnapshotRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
	metrics   *metrics.CartMetrics
	now       func() time.Time
}

// Option настраивает опциональные зависимости стора.
type Option func(*Store)

// WithOutbox подключает transactional outbox для публикации событий.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Store) { s.outbox = outbox }
}

// WithTimeline подключает журнал активности корзины.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Store) { s.timeline = timeline }
}

// WithMetrics подключает метрики операций.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger задаёт логгер стора.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore создаёт стор для заданного владельца. Снапшот читается лениво
// при первом обращении; до этого стор находится в состоянии loading.
func NewStore(identity domain.IdentityKey, snapshots domain.SnapshotRepository, opts ...Option) *Store {
	s := &Store{
		cart:      domain.Cart{Identity: identity},
		state:     StateLoading,
		snapshots: snapshots,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "cart-store")
	}
	s.logger = s.logger.WithField("identity", string(identity))
	return s
}

// Identity возвращает владельца корзины. Владелец не меняется за время
// жизни стора, но ensureReady пересоздаёт s.cart целиком, поэтому чтение
// тоже идёт под мьютексом.
func (s *Store) Identity() domain.IdentityKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Identity
}

// State возвращает текущее состояние стора.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ensureReady загружает снапшот при первом обращении. Ошибка чтения
// поглощается: корзина в этом случае начинается пустой и несохранённой.
// Вызывается только под мьютексом.
func (s *Store) ensureReady() {
	if s.state == StateReady {
		return
	}

	now := s.now()
	snap, ok, err := s.snapshots.Load(s.cart.Identity)
	if err != nil {
		s.logger.WithError(err).Warn("snapshot load failed, starting with empty cart")
		if s.metrics != nil {
			s.metrics.RecordSnapshotLoadFailure()
		}
		s.cart = domain.Cart{Identity: s.cart.Identity, UpdatedAt: now}
		s.state = StateReady
		return
	}

	if ok {
		s.cart = domain.RestoreCart(s.cart.Identity, snap, now)
		// Позиции из старых снапшотов могли сохраниться без id.
		for idx := range s.cart.Items {
			if s.cart.Items[idx].ID == "" {
				s.cart.Items[idx].ID = uuid.NewString()
			}
		}
	} else {
		s.cart = domain.Cart{Identity: s.cart.Identity, UpdatedAt: now}
	}
	s.state = StateReady
}

// AddItem добавляет товар в корзину или увеличивает количество существующей
// позиции. Проверка остатка кумулятивная: уже лежащее в корзине количество
// плюс запрошенное не должно превысить остаток на момент вызова. При отказе
// корзина остаётся нетронутой.
func (s *Store) AddItem(product domain.Product, quantity int32) (domain.Cart, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureReady()
	defer s.observeDuration("add_item", start)

	if quantity < 1 {
		s.recordMutation("add_item", "invalid_quantity")
		return s.cart.Clone(), domain.ErrQuantityInvalid
	}
	if err := product.Validate(); err != nil {
		s.recordMutation("add_item", "malformed_product")
		return s.cart.Clone(), err
	}

	// Сумма считается в int64: два количества по int32 могут переполнить
	// int32 и отрицательная сумма проскочила бы проверку остатка.
	requested := int64(quantity)
	pos := s.cart.FindProduct(product.ID)
	if pos >= 0 {
		requested += int64(s.cart.Items[pos].Quantity)
	}
	if requested > int64(product.Stock) {
		s.logger.WithFields(log.Fields{
			"product_id": product.ID,
			"requested":  requested,
			"available":  product.Stock,
		}).Debug("add rejected, insufficient stock")
		s.recordMutation("add_item", "insufficient_stock")
		if s.metrics != nil {
			s.metrics.RecordStockRejection()
		}
		return s.cart.Clone(), &domain.InsufficientStockError{
			ProductID: product.ID,
			Requested: clampQuantity(requested),
			Available: product.Stock,
		}
	}
	newQuantity := int32(requested)

	now := s.now()
	var item domain.CartItem
	if pos >= 0 {
		s.cart.Items[pos].Quantity = newQuantity
		item = s.cart.Items[pos]
	} else {
		item = domain.CartItem{
			ID:        uuid.NewString(),
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: *product.Price,
			ImageURL:  product.DisplayImage(),
			Quantity:  quantity,
			CreatedAt: now,
		}
		s.cart.Items = append(s.cart.Items, item)
	}
	s.cart.UpdatedAt = now

	s.persist()
	s.emitEvent(kafka.EventTypeItemAdded, item.ID, item.ProductID, item.Quantity)
	s.recordMutation("add_item", "ok")
	return s.cart.Clone(), nil
}

// UpdateItemQuantity заменяет количество в позиции. Количество меньше единицы
// означает удаление позиции: строк с нулевым количеством не существует.
// Неизвестный id позиции игнорируется, UI может держать устаревшую ссылку.
func (s *Store) UpdateItemQuantity(itemID string, quantity int32) domain.Cart {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureReady()
	defer s.observeDuration("update_quantity", start)

	if quantity < 1 {
		s.removeLocked(itemID, "update_quantity")
		return s.cart.Clone()
	}

	pos := s.cart.FindItem(itemID)
	if pos < 0 {
		s.logger.WithField("item_id", itemID).Debug("quantity update for unknown item, ignoring")
		s.recordMutation("update_quantity", "unknown_item")
		return s.cart.Clone()
	}

	s.cart.Items[pos].Quantity = quantity
	s.cart.UpdatedAt = s.now()

	s.persist()
	s.emitEvent(kafka.EventTypeQuantityChanged, itemID, s.cart.Items[pos].ProductID, quantity)
	s.recordMutation("update_quantity", "ok")
	return s.cart.Clone()
}

// RemoveItem удаляет позицию по id. Отсутствующая позиция — no-op.
func (s *Store) RemoveItem(itemID string) domain.Cart {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureReady()
	defer s.observeDuration("remove_item", start)

	s.removeLocked(itemID, "remove_item")
	return s.cart.Clone()
}

func (s *Store) removeLocked(itemID, operation string) {
	pos := s.cart.FindItem(itemID)
	if pos < 0 {
		s.recordMutation(operation, "unknown_item")
		return
	}

	productID := s.cart.Items[pos].ProductID
	s.cart.Items = append(s.cart.Items[:pos], s.cart.Items[pos+1:]...)
	s.cart.UpdatedAt = s.now()

	s.persist()
	s.emitEvent(kafka.EventTypeItemRemoved, itemID, productID, 0)
	s.recordMutation(operation, "ok")
}

// Clear опустошает корзину и перезаписывает снапшот пустым состоянием.
func (s *Store) Clear() domain.Cart {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureReady()
	defer s.observeDuration("clear", start)

	s.cart.Items = nil
	s.cart.UpdatedAt = s.now()

	s.persist()
	s.emitEvent(kafka.EventTypeCartCleared, "", "", 0)
	s.recordMutation("clear", "ok")
	return s.cart.Clone()
}

// View возвращает копию текущего состояния корзины.
func (s *Store) View() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureReady()
	return s.cart.Clone()
}

// ItemCount возвращает суммарное количество единиц в корзине.
func (s *Store) ItemCount() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureReady()
	return s.cart.ItemCount()
}

// persist перезаписывает durable-снапшот. Ошибка записи поглощается:
// корзина продолжает жить в памяти, наружу сбои хранилища не выходят.
func (s *Store) persist() {
	if err := s.snapshots.Save(s.cart.Identity, domain.SnapshotFromCart(s.cart)); err != nil {
		s.logger.WithError(err).Error("snapshot save failed")
		if s.metrics != nil {
			s.metrics.RecordSnapshotSaveFailure()
		}
	}
}

// emitEvent записывает событие мутации в outbox и timeline. Outbox —
// единственный канал доставки в Kafka: запись публикуется воркером, поэтому
// каждая мутация попадает в топик ровно один раз и сама мутация не ждёт
// сетевого I/O. Оба получателя best-effort: сбой записи не отменяет мутацию.
func (s *Store) emitEvent(eventType kafka.EventType, itemID, productID string, quantity int32) {
	occurred := s.cart.UpdatedAt

	if s.outbox != nil {
		payload, err := json.Marshal(map[string]interface{}{
			"identity":   string(s.cart.Identity),
			"item_id":    itemID,
			"product_id": productID,
			"quantity":   quantity,
			"item_count": s.cart.ItemCount(),
			"total":      s.cart.Total(),
			"ts":         occurred.Format(time.RFC3339Nano),
		})
		if err != nil {
			s.logger.WithError(err).WithField("event", eventType).Error("marshal event failed")
		} else {
			msg := domain.OutboxMessage{
				AggregateType: "cart",
				AggregateID:   string(s.cart.Identity),
				EventType:     string(eventType),
				Payload:       payload,
			}
			if _, err := s.outbox.Enqueue(msg); err != nil {
				s.logger.WithError(err).WithField("event", eventType).Error("enqueue event failed")
			} else if s.metrics != nil {
				s.metrics.RecordOutboxEvent()
			}
		}
	}

	if s.timeline != nil {
		detail := productID
		if quantity > 0 {
			detail = fmtDetail(productID, quantity)
		}
		event := domain.TimelineEvent{
			Identity: s.cart.Identity,
			Type:     string(eventType),
			Detail:   detail,
			Occurred: occurred,
		}
		if err := s.timeline.Append(event); err != nil {
			s.logger.WithError(err).WithField("event", eventType).Warn("append timeline event failed")
		} else if s.metrics != nil {
			s.metrics.RecordTimelineEvent()
		}
	}
}

func fmtDetail(productID string, quantity int32) string {
	return fmt.Sprintf("%s x%d", productID, quantity)
}

// clampQuantity ужимает int64-сумму количеств до диапазона int32 для
// диагностики: остаток товара сам по себе не превышает MaxInt32.
func clampQuantity(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

func (s *Store) recordMutation(operation, result string) {
	if s.metrics != nil {
		s.metrics.RecordMutation(operation, result)
	}
}

func (s *Store) observeDuration(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordMutationDuration(operation, time.Since(start))
	}
}
