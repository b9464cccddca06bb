package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики для операций корзины.
type CartMetrics struct {
	// Счётчики мутаций по операции и результату
	mutations *prometheus.CounterVec

	// Гистограммы времени выполнения
	mutationDuration *prometheus.HistogramVec

	// Счётчики отказов по нехватке остатков
	stockRejections prometheus.Counter

	// Счётчики работы со снапшотами
	snapshotLoadFailures prometheus.Counter
	snapshotSaveFailures prometheus.Counter

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для загруженных в память корзин
	activeCarts prometheus.Gauge
}

// NewCartMetrics создаёт новый экземпляр метрик корзины.
func NewCartMetrics() *CartMetrics {
	return newCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		mutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Total number of cart mutations by operation and result",
		}, []string{"operation", "result"}),
		mutationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "cart_mutation_duration_seconds",
			Help:    "Duration of cart mutations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		stockRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_stock_rejections_total",
			Help: "Total number of additions rejected due to insufficient stock",
		}),
		snapshotLoadFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_snapshot_load_failures_total",
			Help: "Total number of failed cart snapshot loads",
		}),
		snapshotSaveFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_snapshot_save_failures_total",
			Help: "Total number of failed cart snapshot saves",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cart_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
		activeCarts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cart_active_carts",
			Help: "Number of carts currently loaded in memory",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordMutation увеличивает счётчик мутаций для операции с заданным результатом.
func (m *CartMetrics) RecordMutation(operation, result string) {
	m.mutations.WithLabelValues(operation, result).Inc()
}

// RecordMutationDuration записывает время выполнения мутации.
func (m *CartMetrics) RecordMutationDuration(operation string, duration time.Duration) {
	m.mutationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStockRejection увеличивает счётчик отказов по остаткам.
func (m *CartMetrics) RecordStockRejection() {
	m.stockRejections.Inc()
}

// RecordSnapshotLoadFailure увеличивает счётчик неудачных загрузок снапшота.
func (m *CartMetrics) RecordSnapshotLoadFailure() {
	m.snapshotLoadFailures.Inc()
}

// RecordSnapshotSaveFailure увеличивает счётчик неудачных сохранений снапшота.
func (m *CartMetrics) RecordSnapshotSaveFailure() {
	m.snapshotSaveFailures.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CartMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CartMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordCartLoaded увеличивает количество корзин в памяти.
func (m *CartMetrics) RecordCartLoaded() {
	m.activeCarts.Inc()
}

// RecordCartEvicted уменьшает количество корзин в памяти.
func (m *CartMetrics) RecordCartEvicted() {
	m.activeCarts.Dec()
}
