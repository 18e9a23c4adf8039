// Package metrics counts push parser activity in a Prometheus registry.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/markis/saxpush/internal/push"
	"github.com/markis/saxpush/internal/sax"
)

const namespace = "saxpush"

// Collector observes a push.Parser and the events it produces. Each
// Collector owns its registry so several can exist side by side.
type Collector struct {
	registry *prometheus.Registry

	chunks       prometheus.Counter
	bytes        prometheus.Counter
	ignored      prometheus.Counter
	active       prometheus.Gauge
	sessions     *prometheus.CounterVec
	syntaxErrors *prometheus.CounterVec
	events       *prometheus.CounterVec
}

var _ push.Observer = (*Collector)(nil)

// New returns a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks consumed by the parser.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Bytes of consumed chunks.",
		}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ignored_total",
			Help:      "Chunks never read because the parse had ended.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Parse sessions currently running.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished parse sessions by outcome.",
		}, []string{"outcome"}),
		syntaxErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syntax_errors_total",
			Help:      "Syntax errors reported by finished sessions.",
		}, []string{"level"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events delivered to the sink by kind.",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(c.chunks, c.bytes, c.ignored, c.active, c.sessions, c.syntaxErrors, c.events)
	return c
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ChunkDelivered(n int) {
	c.chunks.Inc()
	c.bytes.Add(float64(n))
}

func (c *Collector) ChunkIgnored(int) {
	c.ignored.Inc()
}

func (c *Collector) SessionStarted() {
	c.active.Inc()
}

func (c *Collector) SessionFinished(outcome push.Outcome, errs []*sax.SyntaxError) {
	c.active.Dec()
	c.sessions.WithLabelValues(string(outcome)).Inc()
	for _, err := range errs {
		c.syntaxErrors.WithLabelValues(err.Level.String()).Inc()
	}
}

// Event counts ev.
func (c *Collector) Event(ev sax.Event) {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
}

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
