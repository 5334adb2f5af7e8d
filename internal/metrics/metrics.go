package metrics

import (
	"context"

	"github.com/cryptofather/crypto-bot/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptobot_commands_total",
			Help: "Total number of handled chat commands by command",
		},
		[]string{"command"},
	)

	indexerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptobot_indexer_calls_total",
			Help: "Total number of indexer requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	indexerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cryptobot_indexer_connected",
			Help: "1 while the indexer socket is connected",
		},
	)

	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cryptobot_upstream_errors_total",
			Help: "Total number of failed upstream API requests by upstream",
		},
		[]string{"upstream"},
	)

	errorStateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cryptobot_error_state_total",
			Help: "Number of times the health flag was set to unhealthy",
		},
	)
)

func init() {
	prometheus.MustRegister(commandsTotal)
	prometheus.MustRegister(indexerCallsTotal)
	prometheus.MustRegister(indexerConnected)
	prometheus.MustRegister(upstreamErrorsTotal)
	prometheus.MustRegister(errorStateTotal)
}

func ObserveIndexerCall(method, outcome string) {
	indexerCallsTotal.WithLabelValues(method, outcome).Inc()
}

func ObserveUpstreamError(upstream string) {
	upstreamErrorsTotal.WithLabelValues(upstream).Inc()
}

// Collector turns application events into metrics.
type Collector struct {
	bus *state.EventBus

	connectedCh    chan interface{}
	disconnectedCh chan interface{}
	errorCh        chan interface{}
	commandCh      chan interface{}
}

// NewCollector subscribes right away so events published before Start are buffered.
func NewCollector(bus *state.EventBus) *Collector {
	c := &Collector{
		bus:            bus,
		connectedCh:    make(chan interface{}, 16),
		disconnectedCh: make(chan interface{}, 16),
		errorCh:        make(chan interface{}, 16),
		commandCh:      make(chan interface{}, 256),
	}
	c.subscribe()
	return c
}

func (c *Collector) Start(ctx context.Context) {
	defer c.unsubscribe()
	log.Info("Metrics collector started")

	c.loop(ctx)
	log.Info("Metrics collector is stopping...")
}

func (c *Collector) subscribe() {
	c.bus.Subscribe(state.IndexerConnected, c.connectedCh)
	c.bus.Subscribe(state.IndexerDisconnected, c.disconnectedCh)
	c.bus.Subscribe(state.ErrorRaised, c.errorCh)
	c.bus.Subscribe(state.CommandHandled, c.commandCh)
}

func (c *Collector) unsubscribe() {
	c.bus.Unsubscribe(state.IndexerConnected, c.connectedCh)
	c.bus.Unsubscribe(state.IndexerDisconnected, c.disconnectedCh)
	c.bus.Unsubscribe(state.ErrorRaised, c.errorCh)
	c.bus.Unsubscribe(state.CommandHandled, c.commandCh)
}

func (c *Collector) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.connectedCh:
			indexerConnected.Set(1)
		case <-c.disconnectedCh:
			indexerConnected.Set(0)
		case <-c.errorCh:
			errorStateTotal.Inc()
		case ev := <-c.commandCh:
			if command, ok := ev.(string); ok {
				commandsTotal.WithLabelValues(command).Inc()
			}
		}
	}
}
