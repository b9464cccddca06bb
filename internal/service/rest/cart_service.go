package rest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/service/cart"
)

// CartService реализует HTTP/JSON API поверх менеджера корзин.
type CartService struct {
	carts    *cart.Manager
	timeline domain.TimelineRepository
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry
}

const (
	identityHeader       = "X-Identity-Key"
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour

	maxRequestBodyBytes = 1 << 20
)

// NewCartService конструирует сервис с зависимостями. Timeline и
// idempotency-репозиторий опциональны.
func NewCartService(
	carts *cart.Manager,
	timeline domain.TimelineRepository,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
) *CartService {
	if logger == nil {
		logger = log.New().WithField("component", "cart-api")
	}
	return &CartService{
		carts:    carts,
		timeline: timeline,
		idemRepo: idemRepo,
		logger:   logger,
	}
}

// Handler собирает маршруты API.
func (s *CartService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/cart", s.handleGetCart)
	mux.HandleFunc("DELETE /v1/cart", s.handleClearCart)
	mux.HandleFunc("POST /v1/cart/items", s.handleAddItem)
	mux.HandleFunc("PATCH /v1/cart/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /v1/cart/items/{id}", s.handleRemoveItem)
	mux.HandleFunc("GET /v1/cart/timeline", s.handleTimeline)
	return mux
}

type cartResponse struct {
	Identity  string                `json:"identity"`
	State     string                `json:"state"`
	Items     []domain.SnapshotItem `json:"items"`
	Total     json.RawMessage       `json:"total"`
	ItemCount int32                 `json:"itemCount"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Available *int32 `json:"available,omitempty"`
}

type addItemRequest struct {
	Product  domain.Product `json:"product"`
	Quantity int32          `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int32 `json:"quantity"`
}

type timelineEventResponse struct {
	Type     string `json:"type"`
	Detail   string `json:"detail,omitempty"`
	UnixTime int64  `json:"unixTime"`
}

func (s *CartService) handleGetCart(w http.ResponseWriter, r *http.Request) {
	store := s.storeFor(r)
	s.writeCart(w, http.StatusOK, store)
}

func (s *CartService) handleClearCart(w http.ResponseWriter, r *http.Request) {
	store := s.storeFor(r)
	s.serveIdempotent(w, r, nil, func() (int, interface{}) {
		store.Clear()
		return http.StatusOK, s.cartPayload(store)
	})
}

func (s *CartService) handleAddItem(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	store := s.storeFor(r)
	s.serveIdempotent(w, r, body, func() (int, interface{}) {
		var req addItemRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()}
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		if _, err := store.AddItem(req.Product, req.Quantity); err != nil {
			return s.mapAddItemError(err)
		}
		return http.StatusCreated, s.cartPayload(store)
	})
}

func (s *CartService) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	store := s.storeFor(r)
	s.serveIdempotent(w, r, body, func() (int, interface{}) {
		var req updateItemRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()}
		}

		store.UpdateItemQuantity(itemID, req.Quantity)
		return http.StatusOK, s.cartPayload(store)
	})
}

func (s *CartService) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	store := s.storeFor(r)
	s.serveIdempotent(w, r, nil, func() (int, interface{}) {
		store.RemoveItem(itemID)
		return http.StatusOK, s.cartPayload(store)
	})
}

func (s *CartService) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if s.timeline == nil {
		s.writeJSON(w, http.StatusOK, []timelineEventResponse{})
		return
	}

	identity := domain.NormalizeIdentity(r.Header.Get(identityHeader))
	events, err := s.timeline.List(identity)
	if err != nil {
		s.logger.WithError(err).WithField("identity", string(identity)).Error("failed to list timeline events")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list timeline events"})
		return
	}

	result := make([]timelineEventResponse, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventResponse{
			Type:     event.Type,
			Detail:   event.Detail,
			UnixTime: event.Occurred.Unix(),
		})
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *CartService) mapAddItemError(err error) (int, interface{}) {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		available := stockErr.Available
		return http.StatusConflict, errorResponse{Error: stockErr.Error(), Available: &available}
	case domain.IsMalformedProduct(err), errors.Is(err, domain.ErrQuantityInvalid):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	default:
		s.logger.WithError(err).Error("add item failed")
		return http.StatusInternalServerError, errorResponse{Error: "failed to add item"}
	}
}

func (s *CartService) storeFor(r *http.Request) *cart.Store {
	return s.carts.Store(r.Header.Get(identityHeader))
}

func (s *CartService) cartPayload(store *cart.Store) cartResponse {
	view := store.View()
	snap := domain.SnapshotFromCart(view)
	total, err := snap.Total.MarshalJSON()
	if err != nil {
		total = []byte("0")
	}
	return cartResponse{
		Identity:  string(view.Identity),
		State:     string(store.State()),
		Items:     snap.Items,
		Total:     total,
		ItemCount: view.ItemCount(),
	}
}

func (s *CartService) writeCart(w http.ResponseWriter, status int, store *cart.Store) {
	s.writeJSON(w, status, s.cartPayload(store))
}

func (s *CartService) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("failed to encode response")
	}
}

func (s *CartService) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return nil, false
	}
	return body, true
}

// serveIdempotent выполняет мутацию с учётом Idempotency-Key. Без заголовка
// запрос обрабатывается напрямую. С заголовком повтор того же запроса
// возвращает закэшированный ответ, не выполняя мутацию второй раз.
func (s *CartService) serveIdempotent(w http.ResponseWriter, r *http.Request, body []byte, handler func() (int, interface{})) {
	idemKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if s.idemRepo == nil || idemKey == "" {
		status, payload := handler()
		s.writeJSON(w, status, payload)
		return
	}

	reqHash := buildIdempotencyRequestHash(r.Method, r.URL.Path, body)
	record, err := s.idemRepo.CreateProcessing(idemKey, reqHash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		s.replayIdempotency(w, idemKey, record, err)
		return
	}

	status, payload := handler()
	cached, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		s.logger.WithError(marshalErr).WithField("idempotency_key", idemKey).Warn("failed to encode idempotency payload")
		cached = nil
	}

	if status >= http.StatusBadRequest {
		if err := s.idemRepo.MarkFailed(idemKey, cached, status); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", idemKey).Warn("failed to store idempotency failure response")
		}
	} else {
		if err := s.idemRepo.MarkDone(idemKey, cached, status); err != nil {
			s.logger.WithError(err).WithField("idempotency_key", idemKey).Warn("failed to store idempotent success response")
		}
	}

	s.writeRaw(w, status, cached)
}

func (s *CartService) replayIdempotency(w http.ResponseWriter, idemKey string, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: "idempotency key is already used with different request payload"})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 {
				s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "idempotency cache is empty"})
				return
			}
			s.writeRaw(w, record.HTTPStatus, record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			s.writeJSON(w, http.StatusConflict, errorResponse{Error: "request with the same idempotency key is already processing"})
		default:
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "unknown idempotency record status"})
		}
	default:
		s.logger.WithError(createErr).Warn("failed to create idempotency record")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to initialize idempotency request"})
	}
}

func (s *CartService) writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			s.logger.WithError(err).Warn("failed to write response")
		}
	}
}

func buildIdempotencyRequestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
