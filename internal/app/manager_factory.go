package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cart/internal/metrics"
	"github.com/vladislavdragonenkov/cart/internal/service/cart"
)

// createCartManager собирает менеджер корзин поверх выбранного хранилища.
// События мутаций уходят только в outbox: в Kafka их доставляет воркер,
// сами сторы producer не трогают.
func createCartManager(
	deps runtimeDependencies,
	cartMetrics *metrics.CartMetrics,
	logger *log.Entry,
) *cart.Manager {
	opts := []cart.Option{
		cart.WithOutbox(deps.outboxRepo),
		cart.WithTimeline(deps.timelineRepo),
	}

	return cart.NewManager(deps.snapshots, logger, cartMetrics, opts...)
}
