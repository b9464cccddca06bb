package rest_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	cartsvc "github.com/vladislavdragonenkov/cart/internal/service/cart"
	"github.com/vladislavdragonenkov/cart/internal/service/rest"
	"github.com/vladislavdragonenkov/cart/internal/storage/memory"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	logger := loggerForTests()
	manager := cartsvc.NewManager(memory.NewSnapshotRepository(), logger, nil,
		cartsvc.WithTimeline(memory.NewTimelineRepository()),
	)
	service := rest.NewCartService(manager, memory.NewTimelineRepository(), memory.NewIdempotencyRepository(), logger)
	return service.Handler()
}

type cartBody struct {
	Identity string `json:"identity"`
	State    string `json:"state"`
	Items    []struct {
		ID        string      `json:"id"`
		ProductID string      `json:"productId"`
		Name      string      `json:"name"`
		Price     json.Number `json:"price"`
		Image     string      `json:"image"`
		Quantity  int32       `json:"quantity"`
	} `json:"items"`
	Total     json.Number `json:"total"`
	ItemCount int32       `json:"itemCount"`
}

func doRequest(t *testing.T, handler http.Handler, method, path, identity string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if identity != "" {
		req.Header.Set("X-Identity-Key", identity)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartBody {
	t.Helper()

	var body cartBody
	decoder := json.NewDecoder(rec.Body)
	decoder.UseNumber()
	require.NoError(t, decoder.Decode(&body))
	return body
}

func addItemPayload(productID, name string, price interface{}, stock, quantity int32) map[string]interface{} {
	return map[string]interface{}{
		"product": map[string]interface{}{
			"id":    productID,
			"name":  name,
			"price": price,
			"stock": stock,
		},
		"quantity": quantity,
	}
}

func TestAPI_GetEmptyCart(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/v1/cart", "customer-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeCart(t, rec)
	require.Equal(t, "customer-1", body.Identity)
	require.Equal(t, "ready", body.State)
	require.Empty(t, body.Items)
	require.Equal(t, "0", body.Total.String())
	require.Zero(t, body.ItemCount)
}

func TestAPI_AddItem(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 20, 5, 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeCart(t, rec)
	require.Len(t, body.Items, 1)
	require.Equal(t, "product-1", body.Items[0].ProductID)
	require.NotEmpty(t, body.Items[0].ID)
	require.Equal(t, "20", body.Total.String())
	require.Equal(t, int32(1), body.ItemCount)
}

func TestAPI_AddItemStringPrice(t *testing.T) {
	handler := newTestHandler(t)

	// Каталог может прислать цену числовой строкой.
	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Mug", "9.99", 10, 3), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeCart(t, rec)
	require.Equal(t, "9.99", body.Items[0].Price.String())
	require.Equal(t, "29.97", body.Total.String())
}

func TestAPI_AddItemInsufficientStock(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 2, 5), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var errBody struct {
		Error     string `json:"error"`
		Available *int32 `json:"available"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	require.Contains(t, errBody.Error, "only 2 available")
	require.NotNil(t, errBody.Available)
	require.Equal(t, int32(2), *errBody.Available)

	// Корзина не изменилась.
	rec = doRequest(t, handler, http.MethodGet, "/v1/cart", "customer-1", nil, nil)
	require.Empty(t, decodeCart(t, rec).Items)
}

func TestAPI_AddItemMalformedProduct(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		map[string]interface{}{
			"product":  map[string]interface{}{"id": "product-1"},
			"quantity": 1,
		}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errBody struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	require.Contains(t, errBody.Error, "malformed product")
}

func TestAPI_AddItemDefaultQuantity(t *testing.T) {
	handler := newTestHandler(t)

	payload := map[string]interface{}{
		"product": map[string]interface{}{
			"id":    "product-1",
			"name":  "Shirt",
			"price": 20,
			"stock": 5,
		},
	}
	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1", payload, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int32(1), decodeCart(t, rec).ItemCount)
}

func TestAPI_UpdateItemQuantity(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	itemID := decodeCart(t, rec).Items[0].ID

	rec = doRequest(t, handler, http.MethodPatch, "/v1/cart/items/"+itemID, "customer-1",
		map[string]interface{}{"quantity": 4}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeCart(t, rec)
	require.Equal(t, int32(4), body.Items[0].Quantity)
	require.Equal(t, "40", body.Total.String())
}

func TestAPI_UpdateItemQuantityZeroRemoves(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 2), nil)
	itemID := decodeCart(t, rec).Items[0].ID

	rec = doRequest(t, handler, http.MethodPatch, "/v1/cart/items/"+itemID, "customer-1",
		map[string]interface{}{"quantity": 0}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeCart(t, rec).Items)
}

func TestAPI_UpdateUnknownItemIsNoop(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 2), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, handler, http.MethodPatch, "/v1/cart/items/no-such-item", "customer-1",
		map[string]interface{}{"quantity": 9}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(2), decodeCart(t, rec).ItemCount)
}

func TestAPI_RemoveItem(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 1), nil)
	itemID := decodeCart(t, rec).Items[0].ID

	rec = doRequest(t, handler, http.MethodDelete, "/v1/cart/items/"+itemID, "customer-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeCart(t, rec).Items)
}

func TestAPI_ClearCart(t *testing.T) {
	handler := newTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 3), nil)

	rec := doRequest(t, handler, http.MethodDelete, "/v1/cart", "customer-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeCart(t, rec)
	require.Empty(t, body.Items)
	require.Equal(t, "0", body.Total.String())
}

func TestAPI_GuestIdentityDefault(t *testing.T) {
	handler := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "",
		addItemPayload("product-1", "Shirt", 10, 10, 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "guest", decodeCart(t, rec).Identity)

	// Явный гостевой ключ видит ту же корзину.
	rec = doRequest(t, handler, http.MethodGet, "/v1/cart", "guest", nil, nil)
	require.Equal(t, int32(1), decodeCart(t, rec).ItemCount)
}

func TestAPI_IdentityIsolation(t *testing.T) {
	handler := newTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 1), nil)

	rec := doRequest(t, handler, http.MethodGet, "/v1/cart", "customer-2", nil, nil)
	require.Empty(t, decodeCart(t, rec).Items)
}

func TestAPI_IdempotentReplay(t *testing.T) {
	handler := newTestHandler(t)
	headers := map[string]string{"Idempotency-Key": "op-1"}

	first := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 1), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	// Повтор того же запроса отдаёт закэшированный ответ без второй мутации.
	replay := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 1), headers)
	require.Equal(t, http.StatusCreated, replay.Code)
	require.JSONEq(t, first.Body.String(), replay.Body.String())

	rec := doRequest(t, handler, http.MethodGet, "/v1/cart", "customer-1", nil, nil)
	require.Equal(t, int32(1), decodeCart(t, rec).ItemCount)
}

func TestAPI_IdempotencyHashMismatch(t *testing.T) {
	handler := newTestHandler(t)
	headers := map[string]string{"Idempotency-Key": "op-1"}

	first := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 1), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-2", "Mug", 5, 10, 1), headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	var errBody struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errBody))
	require.Contains(t, errBody.Error, "different request payload")
}

func TestAPI_IdempotencyReplaysFailure(t *testing.T) {
	handler := newTestHandler(t)
	headers := map[string]string{"Idempotency-Key": "op-1"}

	first := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 1, 5), headers)
	require.Equal(t, http.StatusConflict, first.Code)

	replay := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 1, 5), headers)
	require.Equal(t, http.StatusConflict, replay.Code)
	require.JSONEq(t, first.Body.String(), replay.Body.String())
}

func TestAPI_Timeline(t *testing.T) {
	logger := loggerForTests()
	timeline := memory.NewTimelineRepository()
	manager := cartsvc.NewManager(memory.NewSnapshotRepository(), logger, nil,
		cartsvc.WithTimeline(timeline),
	)
	service := rest.NewCartService(manager, timeline, memory.NewIdempotencyRepository(), logger)
	handler := service.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/v1/cart/items", "customer-1",
		addItemPayload("product-1", "Shirt", 10, 10, 2), nil)
	itemID := decodeCart(t, rec).Items[0].ID
	doRequest(t, handler, http.MethodDelete, "/v1/cart/items/"+itemID, "customer-1", nil, nil)

	resp := doRequest(t, handler, http.MethodGet, "/v1/cart/timeline", "customer-1", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var events []struct {
		Type     string `json:"type"`
		Detail   string `json:"detail"`
		UnixTime int64  `json:"unixTime"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 2)
	require.Equal(t, "cart.item_added", events[0].Type)
	require.Equal(t, "cart.item_removed", events[1].Type)
}

func TestAPI_InvalidJSONBody(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/cart/items", bytes.NewBufferString("{not json"))
	req.Header.Set("X-Identity-Key", "customer-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
