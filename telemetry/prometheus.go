package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultCollectionAddr = ":8080"
	defaultCollectionPath = "/metrics"
)

type Telemetry interface {
	Serve(addr string) error
	Register(metrics ...Metric) error
}

type Metric interface {
	collector() prometheus.Collector
}

type telemetry struct {
	sync.Mutex
	server *http.Server
}

// Register adds to the metrics collected.
func (m *telemetry) Register(metrics ...Metric) error {
	for _, metric := range metrics {
		err := prometheus.Register(metric.collector())
		if err != nil {
			return err
		}
	}
	return nil
}

// Serve will expose prometheus metrics on addr under /metrics.
func (m *telemetry) Serve(addr string) error {
	if addr == "" {
		addr = defaultCollectionAddr
	}
	m.Lock()
	mux := http.NewServeMux()
	mux.Handle(defaultCollectionPath, promhttp.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}
	m.Unlock()
	return m.server.ListenAndServe()
}

var telemetryInstance *telemetry
var once sync.Once

func NewTelemetry() *telemetry {
	return &telemetry{}
}

func getTelemetry() *telemetry {
	once.Do(func() {
		telemetryInstance = NewTelemetry()
	})
	return telemetryInstance
}

// Counter is a cumulative metric, its value only increases or resets to zero
// on restart.
type Counter struct {
	name        string
	promCounter prometheus.Counter
}

func NewCounter(name, help string) *Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
	return &Counter{
		name:        name,
		promCounter: counter,
	}
}

// Inc adds one to a given Counter.
func (c *Counter) Inc() {
	c.promCounter.Inc()
}

func (c *Counter) collector() prometheus.Collector {
	return c.promCounter
}

// Gauge is a metric whose value can go up and down, live subscriber counts
// and queue depths use these.
type Gauge struct {
	name      string
	promGauge prometheus.Gauge
}

func NewGauge(name, help string) *Gauge {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
	return &Gauge{
		name:      name,
		promGauge: gauge,
	}
}

func (g *Gauge) Set(val float64) {
	g.promGauge.Set(val)
}

func (g *Gauge) Inc() {
	g.promGauge.Inc()
}

func (g *Gauge) Dec() {
	g.promGauge.Dec()
}

func (g *Gauge) collector() prometheus.Collector {
	return g.promGauge
}

// Serve will start an http server exposing the "/metrics" endpoint for the default telemetry.
func Serve(addr string) error {
	return getTelemetry().Serve(addr)
}

// Register registers the metrics to be collected for the default telemetry.
func Register(metrics ...Metric) error {
	return getTelemetry().Register(metrics...)
}
