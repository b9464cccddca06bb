package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	identityHeader    = "X-Identity-Key"
	idempotencyHeader = "Idempotency-Key"
	defaultPrice      = "19.99"
	defaultStock      = int32(1_000_000)
)

type loadMode string

const (
	modeAdd            loadMode = "add"
	modeAddUpdate      loadMode = "add-update"
	modeAddUpdateClear loadMode = "add-update-clear"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	clearRate   int
	productID   string
	price       string
	quantity    int
	identityTag string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

func (c *collector) record(method string, latency time.Duration, status string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.methods[method]
	if !found {
		stats = &methodStats{
			statuses: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[status]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		statusesCopy := make(map[string]int64, len(stats.statuses))
		for status, count := range stats.statuses {
			statusesCopy[status] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statusesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string

	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "cart API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeAdd), "load mode: add | add-update | add-update-clear")
	flag.IntVar(&cfg.clearRate, "clear-rate", 0, "clear probability in percent for add-update mode (0..100)")
	flag.StringVar(&cfg.productID, "product-id", "SKU-LOAD", "product id used for add item requests")
	flag.StringVar(&cfg.price, "price", defaultPrice, "product price as decimal string")
	flag.IntVar(&cfg.quantity, "quantity", 1, "quantity per add item request")
	flag.StringVar(&cfg.identityTag, "identity-tag", "load", "identity key prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.clearRate < 0 || cfg.clearRate > 100 {
		return cfg, errors.New("clear-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.baseURL) == "" {
		return cfg, errors.New("base-url is required")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product-id is required")
	}
	if strings.TrimSpace(cfg.price) == "" {
		return cfg, errors.New("price is required")
	}
	if strings.TrimSpace(cfg.identityTag) == "" {
		return cfg, errors.New("identity-tag is required")
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeAdd:
		return modeAdd, nil
	case modeAddUpdate:
		return modeAddUpdate, nil
	case modeAddUpdateClear:
		return modeAddUpdateClear, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.concurrency * 2,
		MaxIdleConnsPerHost: cfg.concurrency * 2,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.timeout,
	}
	defer transport.CloseIdleConnections()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(
	client *http.Client,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioOK := true
	scenarioStatus := "200"
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioStatus, scenarioOK)
	}()

	identity := fmt.Sprintf("%s-%s-%d", cfg.identityTag, runID, index)

	addKey := fmt.Sprintf("lt-add-%s-%d", runID, index)
	itemID, status, err := callAddItem(client, cfg, identity, addKey, col)
	if err != nil {
		scenarioOK = false
		scenarioStatus = statusLabel(status, err)
		return err
	}
	if itemID == "" {
		scenarioOK = false
		scenarioStatus = "500"
		return errors.New("add item response returned empty item id")
	}

	if cfg.mode == modeAdd {
		return nil
	}

	if status, err := callUpdateItem(client, cfg, identity, itemID, col); err != nil {
		scenarioOK = false
		scenarioStatus = statusLabel(status, err)
		return err
	}

	if cfg.mode == modeAddUpdateClear || (cfg.mode == modeAddUpdate && shouldClearScenario(index, cfg.clearRate)) {
		if status, err := callClearCart(client, cfg, identity, col); err != nil {
			scenarioOK = false
			scenarioStatus = statusLabel(status, err)
			return err
		}
	}

	return nil
}

func callAddItem(
	client *http.Client,
	cfg config,
	identity, key string,
	col *collector,
) (string, int, error) {
	body, err := json.Marshal(map[string]any{
		"product": map[string]any{
			"id":    cfg.productID,
			"name":  "Load Test Product",
			"price": cfg.price,
			"stock": defaultStock,
		},
		"quantity": cfg.quantity,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal add item request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequest(http.MethodPost, cfg.baseURL+"/v1/cart/items", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, identity)
	req.Header.Set(idempotencyHeader, key)

	resp, err := client.Do(req)
	if err != nil {
		col.record("AddItem", time.Since(start), statusLabel(0, err), false)
		return "", 0, err
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusCreated
	col.record("AddItem", time.Since(start), statusLabel(resp.StatusCode, nil), ok)
	if !ok {
		drain(resp.Body)
		return "", resp.StatusCode, fmt.Errorf("add item returned status %d", resp.StatusCode)
	}

	var cartPayload struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cartPayload); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode add item response: %w", err)
	}
	if len(cartPayload.Items) == 0 {
		return "", resp.StatusCode, nil
	}
	return cartPayload.Items[len(cartPayload.Items)-1].ID, resp.StatusCode, nil
}

func callUpdateItem(
	client *http.Client,
	cfg config,
	identity, itemID string,
	col *collector,
) (int, error) {
	body, err := json.Marshal(map[string]any{"quantity": cfg.quantity + 1})
	if err != nil {
		return 0, fmt.Errorf("marshal update request: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequest(http.MethodPatch, cfg.baseURL+"/v1/cart/items/"+itemID, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, identity)

	resp, err := client.Do(req)
	if err != nil {
		col.record("UpdateItem", time.Since(start), statusLabel(0, err), false)
		return 0, err
	}
	defer resp.Body.Close()
	drain(resp.Body)

	ok := resp.StatusCode == http.StatusOK
	col.record("UpdateItem", time.Since(start), statusLabel(resp.StatusCode, nil), ok)
	if !ok {
		return resp.StatusCode, fmt.Errorf("update item returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func callClearCart(
	client *http.Client,
	cfg config,
	identity string,
	col *collector,
) (int, error) {
	start := time.Now()
	req, err := http.NewRequest(http.MethodDelete, cfg.baseURL+"/v1/cart", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(identityHeader, identity)

	resp, err := client.Do(req)
	if err != nil {
		col.record("ClearCart", time.Since(start), statusLabel(0, err), false)
		return 0, err
	}
	defer resp.Body.Close()
	drain(resp.Body)

	ok := resp.StatusCode == http.StatusOK
	col.record("ClearCart", time.Since(start), statusLabel(resp.StatusCode, nil), ok)
	if !ok {
		return resp.StatusCode, fmt.Errorf("clear cart returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func statusLabel(status int, err error) string {
	if err != nil {
		return "transport_error"
	}
	return fmt.Sprintf("%d", status)
}

func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
}

func shouldClearScenario(index, clearRate int) bool {
	if clearRate <= 0 {
		return false
	}
	if clearRate >= 100 {
		return true
	}
	return index%100 < clearRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
