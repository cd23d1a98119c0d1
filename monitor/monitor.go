// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/partyserver/logger"
)

type Metrics struct {
	OnlineUsers      prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	MessagesReceived prometheus.Counter
	EventsBroadcast  prometheus.Counter
	BroadcastErrors  prometheus.Counter
	EventFanout      prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Number of users with at least one live connection",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms with active participants",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_game_sessions",
			Help:      "Number of game sessions in progress",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of realtime frames received",
		}),
		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Total number of events fanned out",
		}),
		BroadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "Frames dropped because a connection buffer was full",
		}),
		EventFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_fanout_connections",
			Help:      "Connections reached per room broadcast",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}

	prometheus.MustRegister(
		m.OnlineUsers,
		m.ActiveRooms,
		m.ActiveSessions,
		m.MessagesReceived,
		m.EventsBroadcast,
		m.BroadcastErrors,
		m.EventFanout,
	)

	return m
}

type Monitor struct {
	metrics   *Metrics
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

// StartServer exposes /metrics on its own listener.
func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Log.Warnf("metrics server stopped: %v", err)
		}
	}()
}

func (m *Monitor) IncOnlineUsers() { m.metrics.OnlineUsers.Inc() }
func (m *Monitor) DecOnlineUsers() { m.metrics.OnlineUsers.Dec() }

func (m *Monitor) SetActiveRooms(count int64)    { m.metrics.ActiveRooms.Set(float64(count)) }
func (m *Monitor) SetActiveSessions(count int64) { m.metrics.ActiveSessions.Set(float64(count)) }

func (m *Monitor) IncMessagesReceived() { m.metrics.MessagesReceived.Inc() }
func (m *Monitor) IncEventsBroadcast()  { m.metrics.EventsBroadcast.Inc() }
func (m *Monitor) IncBroadcastErrors()  { m.metrics.BroadcastErrors.Inc() }

func (m *Monitor) ObserveFanout(connections int) {
	m.metrics.EventFanout.Observe(float64(connections))
}

func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}
