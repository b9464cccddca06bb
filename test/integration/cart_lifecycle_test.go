package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/metrics"
	cartsvc "github.com/vladislavdragonenkov/cart/internal/service/cart"
	"github.com/vladislavdragonenkov/cart/internal/service/rest"
	"github.com/vladislavdragonenkov/cart/internal/storage/memory"
)

// CartLifecycleTestSuite тестирует полный жизненный цикл корзины через HTTP API.
type CartLifecycleTestSuite struct {
	suite.Suite
	snapshots domain.SnapshotRepository
	timeline  domain.TimelineRepository
	outbox    domain.OutboxRepository
	manager   *cartsvc.Manager
	server    *httptest.Server
}

type cartView struct {
	Identity  string          `json:"identity"`
	State     string          `json:"state"`
	ItemCount int32           `json:"itemCount"`
	Total     json.RawMessage `json:"total"`
	Items     []struct {
		ID        string `json:"id"`
		ProductID string `json:"productId"`
		Quantity  int32  `json:"quantity"`
	} `json:"items"`
}

func (suite *CartLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.snapshots = memory.NewSnapshotRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.outbox = memory.NewOutboxRepository()

	suite.manager = cartsvc.NewManager(
		suite.snapshots,
		logger,
		metrics.NewCartMetrics(),
		cartsvc.WithOutbox(suite.outbox),
		cartsvc.WithTimeline(suite.timeline),
	)

	service := rest.NewCartService(
		suite.manager,
		suite.timeline,
		memory.NewIdempotencyRepository(),
		logger,
	)
	suite.server = httptest.NewServer(service.Handler())
}

func (suite *CartLifecycleTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *CartLifecycleTestSuite) addItemBody(productID string, stock, quantity int32) []byte {
	body, err := json.Marshal(map[string]any{
		"product": map[string]any{
			"id":    productID,
			"name":  "Товар " + productID,
			"price": "19.99",
			"stock": stock,
			"image": "https://example.com/" + productID + ".png",
		},
		"quantity": quantity,
	})
	require.NoError(suite.T(), err)
	return body
}

func (suite *CartLifecycleTestSuite) do(method, path, identity string, body []byte, headers map[string]string) (*http.Response, cartView) {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Identity-Key", identity)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := suite.server.Client().Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	var view cartView
	_ = json.NewDecoder(resp.Body).Decode(&view)
	return resp, view
}

// TestFullLifecycle проверяет сценарий add -> update -> remove -> clear.
func (suite *CartLifecycleTestSuite) TestFullLifecycle() {
	identity := "customer-lifecycle"

	resp, view := suite.do(http.MethodPost, "/v1/cart/items", identity, suite.addItemBody("SKU-1", 10, 2), nil)
	suite.Equal(http.StatusCreated, resp.StatusCode)
	suite.Equal(identity, view.Identity)
	suite.Equal("ready", view.State)
	suite.Require().Len(view.Items, 1)
	suite.Equal(int32(2), view.ItemCount)
	itemID := view.Items[0].ID

	resp, view = suite.do(http.MethodPatch, "/v1/cart/items/"+itemID, identity, []byte(`{"quantity":5}`), nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(int32(5), view.ItemCount)

	resp, view = suite.do(http.MethodPost, "/v1/cart/items", identity, suite.addItemBody("SKU-2", 3, 1), nil)
	suite.Equal(http.StatusCreated, resp.StatusCode)
	suite.Len(view.Items, 2)

	resp, view = suite.do(http.MethodDelete, "/v1/cart/items/"+itemID, identity, nil, nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Require().Len(view.Items, 1)
	suite.Equal("SKU-2", view.Items[0].ProductID)

	resp, view = suite.do(http.MethodDelete, "/v1/cart", identity, nil, nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Empty(view.Items)
	suite.Equal(int32(0), view.ItemCount)

	events, err := suite.timeline.List(domain.NormalizeIdentity(identity))
	suite.Require().NoError(err)
	suite.GreaterOrEqual(len(events), 5)

	stats, err := suite.outbox.Stats()
	suite.Require().NoError(err)
	suite.GreaterOrEqual(stats.PendingCount, 5)
}

// TestInsufficientStock проверяет отказ с остатком в теле ответа.
func (suite *CartLifecycleTestSuite) TestInsufficientStock() {
	identity := "customer-stock"

	req, err := http.NewRequest(
		http.MethodPost,
		suite.server.URL+"/v1/cart/items",
		bytes.NewReader(suite.addItemBody("SKU-LOW", 2, 5)),
	)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Identity-Key", identity)

	resp, err := suite.server.Client().Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	suite.Equal(http.StatusConflict, resp.StatusCode)

	var payload struct {
		Error     string `json:"error"`
		Available *int32 `json:"available"`
	}
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&payload))
	suite.NotEmpty(payload.Error)
	suite.Require().NotNil(payload.Available)
	suite.Equal(int32(2), *payload.Available)

	resp2, view := suite.do(http.MethodGet, "/v1/cart", identity, nil, nil)
	suite.Equal(http.StatusOK, resp2.StatusCode)
	suite.Empty(view.Items)
}

// TestIdempotentAdd проверяет повтор запроса с тем же Idempotency-Key.
func (suite *CartLifecycleTestSuite) TestIdempotentAdd() {
	identity := "customer-idem"
	body := suite.addItemBody("SKU-IDEM", 10, 1)
	headers := map[string]string{"Idempotency-Key": "idem-integration-1"}

	resp, view := suite.do(http.MethodPost, "/v1/cart/items", identity, body, headers)
	suite.Equal(http.StatusCreated, resp.StatusCode)
	suite.Equal(int32(1), view.ItemCount)

	resp, view = suite.do(http.MethodPost, "/v1/cart/items", identity, body, headers)
	suite.Equal(http.StatusCreated, resp.StatusCode)
	suite.Equal(int32(1), view.ItemCount, "повтор не должен увеличивать количество")

	resp, view = suite.do(http.MethodGet, "/v1/cart", identity, nil, nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(int32(1), view.ItemCount)
}

// TestSnapshotSurvivesRestart проверяет, что корзина восстанавливается
// из снапшота после пересоздания менеджера.
func (suite *CartLifecycleTestSuite) TestSnapshotSurvivesRestart() {
	identity := "customer-restart"

	resp, _ := suite.do(http.MethodPost, "/v1/cart/items", identity, suite.addItemBody("SKU-R", 10, 3), nil)
	suite.Equal(http.StatusCreated, resp.StatusCode)

	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	restarted := cartsvc.NewManager(
		suite.snapshots,
		baseLogger.WithField("component", "integration-test-restart"),
		metrics.NewCartMetrics(),
	)

	store := restarted.Store(identity)
	view := store.View()
	suite.Require().Len(view.Items, 1)
	suite.Equal("SKU-R", view.Items[0].ProductID)
	suite.Equal(int32(3), view.Items[0].Quantity)
}

// TestIdentityIsolation проверяет, что корзины разных владельцев не пересекаются.
func (suite *CartLifecycleTestSuite) TestIdentityIsolation() {
	for i := 0; i < 3; i++ {
		identity := fmt.Sprintf("customer-iso-%d", i)
		resp, _ := suite.do(http.MethodPost, "/v1/cart/items", identity, suite.addItemBody("SKU-ISO", 100, int32(i+1)), nil)
		suite.Equal(http.StatusCreated, resp.StatusCode)
	}

	for i := 0; i < 3; i++ {
		identity := fmt.Sprintf("customer-iso-%d", i)
		resp, view := suite.do(http.MethodGet, "/v1/cart", identity, nil, nil)
		suite.Equal(http.StatusOK, resp.StatusCode)
		suite.Equal(int32(i+1), view.ItemCount)
	}

	resp, view := suite.do(http.MethodGet, "/v1/cart", "", nil, nil)
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(string(domain.GuestIdentity), view.Identity)
	suite.Empty(view.Items)
}

func TestCartLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(CartLifecycleTestSuite))
}
