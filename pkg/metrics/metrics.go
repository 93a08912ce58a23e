package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric.
const Namespace = "runzero"

// Collector records what a single run did. A nil Collector is a no-op so
// callers never have to check.
type Collector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	records  *prometheus.CounterVec
	uploads  *prometheus.CounterVec
	duration prometheus.Gauge
	started  time.Time
}

// NewCollector creates a collector with its own registry.
func NewCollector(version string) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "API requests issued, by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_total",
			Help:      "Records written by a command.",
		}, []string{"command"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "uploads_total",
			Help:      "Files uploaded, by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		started: time.Now(),
	}
	registry.MustRegister(c.requests, c.records, c.uploads, c.duration)
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Subsystem:   "tool",
		Name:        "info",
		Help:        "Metadata about the tool.",
		ConstLabels: prometheus.Labels{"version": version},
	})
	registry.MustRegister(info)
	info.Set(1)
	return c
}

// ObserveRequest counts one API call. code 0 means a transport failure.
func (c *Collector) ObserveRequest(endpoint string, code int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// AddRecords counts records produced by a command.
func (c *Collector) AddRecords(command string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.records.WithLabelValues(command).Add(float64(n))
}

// ObserveUpload counts one uploaded file.
func (c *Collector) ObserveUpload(success bool) {
	if c == nil {
		return
	}
	status := "fail"
	if success {
		status = "success"
	}
	c.uploads.WithLabelValues(status).Inc()
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	c.duration.Set(time.Since(c.started).Seconds())
	return prometheus.WriteToTextfile(path, c.registry)
}
