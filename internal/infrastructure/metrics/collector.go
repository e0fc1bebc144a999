// Package metrics exposes the device runtime counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_device"

// Collector bundles the device metrics. It implements device.Metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks              prometheus.Counter
	TrafficTicks       prometheus.Counter
	Elements           prometheus.Gauge
	NetworkReady       prometheus.Gauge
	ProtocolRegistered *prometheus.GaugeVec
	ConnectionFailures *prometheus.CounterVec
	ServerRequests     *prometheus.CounterVec
	APIRequests        *prometheus.CounterVec
	APIDurations       *prometheus.HistogramVec
}

// NewCollector registers the device metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loop_ticks_total",
		Help:      "Main loop iterations.",
	})); err != nil {
		return nil, err
	}
	if c.TrafficTicks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loop_traffic_ticks_total",
		Help:      "Main loop iterations in which an element sent data.",
	})); err != nil {
		return nil, err
	}
	if c.Elements, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "elements",
		Help:      "Registered elements.",
	})); err != nil {
		return nil, err
	}
	if c.NetworkReady, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "network_ready",
		Help:      "1 when the active network interface is ready.",
	})); err != nil {
		return nil, err
	}
	if c.ProtocolRegistered, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "protocol_registered",
		Help:      "1 while a protocol layer is registered with its server.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if c.ConnectionFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_connection_failures_total",
		Help:      "Failed or lost protocol connections, labeled by layer.",
	}, []string{"layer"})); err != nil {
		return nil, err
	}
	if c.ServerRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "server_requests_total",
		Help:      "Server requests dispatched to elements, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.APIRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Local API requests, labeled by route and status code.",
	}, []string{"route", "code"})); err != nil {
		return nil, err
	}
	if c.APIDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Local API latency in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route"})); err != nil {
		return nil, err
	}
	return c, nil
}

// register adds col to reg, returning the existing collector when an
// identical one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTick(traffic bool) {
	c.Ticks.Inc()
	if traffic {
		c.TrafficTicks.Inc()
	}
}

func (c *Collector) SetElements(n int)          { c.Elements.Set(float64(n)) }
func (c *Collector) SetNetworkReady(ready bool) { c.NetworkReady.Set(boolGauge(ready)) }

func (c *Collector) SetProtocolRegistered(layer string, registered bool) {
	c.ProtocolRegistered.WithLabelValues(layer).Set(boolGauge(registered))
}

func (c *Collector) IncConnectionFailure(layer string) {
	c.ConnectionFailures.WithLabelValues(layer).Inc()
}

func (c *Collector) IncServerRequest(kind string) {
	c.ServerRequests.WithLabelValues(kind).Inc()
}

// ObserveAPIRequest records one local API request.
func (c *Collector) ObserveAPIRequest(route string, code int, took time.Duration) {
	c.APIRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.APIDurations.WithLabelValues(route).Observe(took.Seconds())
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
