package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "boardsync",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boardsync",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "commands",
			Name:      "handled_total",
			Help:      "Total number of board commands handled, by action and outcome.",
		},
		[]string{"action", "status"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boardsync",
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Duration of board command handling.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"action"},
	)

	wsSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Current number of connected realtime sessions.",
		},
	)

	broadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Total number of board snapshot broadcasts.",
		},
	)

	droppedSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "boardsync",
			Subsystem: "realtime",
			Name:      "dropped_snapshots_total",
			Help:      "Snapshots superseded before a slow session could send them.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		commands,
		commandDuration,
		wsSessions,
		broadcasts,
		droppedSnapshots,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordCommand records one handled board command.
func RecordCommand(action, status string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	commands.WithLabelValues(action, status).Inc()
	commandDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// SessionOpened and SessionClosed track the realtime session gauge.
func SessionOpened() { wsSessions.Inc() }

// SessionClosed decrements the realtime session gauge.
func SessionClosed() { wsSessions.Dec() }

// RecordBroadcast counts one snapshot fan-out.
func RecordBroadcast() { broadcasts.Inc() }

// RecordDroppedSnapshot counts a snapshot replaced before delivery.
func RecordDroppedSnapshot() { droppedSnapshots.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the instrumented handler.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "boards":
		if len(parts) == 1 {
			return "/boards"
		}
		return "/boards/:board"
	case "ws":
		return "/ws/boards/:board"
	default:
		return "/" + parts[0]
	}
}
