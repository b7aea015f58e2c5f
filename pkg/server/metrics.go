package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter
	handshakeFailures    prometheus.Counter

	// Lobby metrics
	activeLobbies  prometheus.Gauge
	lobbiesCreated prometheus.Counter
	lobbiesRemoved *prometheus.CounterVec // by reason
	gamesStarted   prometheus.Counter
	hostChanges    prometheus.Counter
	reconnects     *prometheus.CounterVec // by outcome

	// Message type metrics
	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec // by reason

	// Broadcast metrics
	broadcastFanout  *prometheus.HistogramVec
	deliveryFailures *prometheus.CounterVec
	handlerPanics    *prometheus.CounterVec
}

// NewMetrics creates a metrics instance on its own registry, so several
// servers can coexist in one process
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "lobbyd_active_sessions",
			Help: "Current number of registered sessions",
		}),
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_sessions_created_total",
			Help: "Total number of sessions that completed the handshake",
		}),
		sessionsDisconnected: f.NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_sessions_disconnected_total",
			Help: "Total number of sessions disconnected",
		}),
		handshakeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_handshake_failures_total",
			Help: "Connections closed before a valid connect message",
		}),
		activeLobbies: f.NewGauge(prometheus.GaugeOpts{
			Name: "lobbyd_active_lobbies",
			Help: "Current number of lobbies",
		}),
		lobbiesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_lobbies_created_total",
			Help: "Total number of lobbies created",
		}),
		lobbiesRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_lobbies_removed_total",
			Help: "Total number of lobbies removed by reason",
		}, []string{"reason"}),
		gamesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_games_started_total",
			Help: "Total number of games started",
		}),
		hostChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "lobbyd_host_changes_total",
			Help: "Total number of host migrations",
		}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_reconnects_total",
			Help: "Reconnect requests by outcome",
		}, []string{"outcome"}),
		messagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_messages_received_total",
			Help: "Total number of messages received from clients by type",
		}, []string{"type"}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_messages_sent_total",
			Help: "Total number of messages queued to clients by type",
		}, []string{"type"}),
		messagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_messages_dropped_total",
			Help: "Inbound messages ignored by reason",
		}, []string{"reason"}),
		broadcastFanout: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lobbyd_broadcast_fanout",
			Help:    "Number of sessions that received each lobby broadcast",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12, 16},
		}, []string{"type"}),
		deliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_delivery_failures_total",
			Help: "Outbound frames that could not be queued, by type",
		}, []string{"type"}),
		handlerPanics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lobbyd_handler_panics_total",
			Help: "Recovered handler panics by message type",
		}, []string{"type"}),
	}
}

// Registry exposes the collectors for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordActiveSessions updates the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session disconnection counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

func (m *Metrics) RecordHandshakeFailure() {
	m.handshakeFailures.Inc()
}

// RecordActiveLobbies updates the lobby gauge
func (m *Metrics) RecordActiveLobbies(count int) {
	m.activeLobbies.Set(float64(count))
}

func (m *Metrics) RecordLobbyCreated() {
	m.lobbiesCreated.Inc()
}

// RecordLobbyRemoved counts a removal; reason is "empty" or "stale"
func (m *Metrics) RecordLobbyRemoved(reason string) {
	m.lobbiesRemoved.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordGameStarted() {
	m.gamesStarted.Inc()
}

func (m *Metrics) RecordHostChange() {
	m.hostChanges.Inc()
}

// RecordReconnect counts a reconnect by outcome: "restored", "joined" or "not_found"
func (m *Metrics) RecordReconnect(outcome string) {
	m.reconnects.WithLabelValues(outcome).Inc()
}

// RecordMessageReceived increments the message received counter for a type
func (m *Metrics) RecordMessageReceived(messageType string) {
	m.messagesReceived.WithLabelValues(messageType).Inc()
}

// RecordMessageSent increments the message sent counter for a type
func (m *Metrics) RecordMessageSent(messageType string) {
	m.messagesSent.WithLabelValues(messageType).Inc()
}

// RecordMessageDropped counts an inbound message that was ignored
func (m *Metrics) RecordMessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// RecordBroadcastFanout records how many sessions received a broadcast
func (m *Metrics) RecordBroadcastFanout(messageType string, recipients int) {
	m.broadcastFanout.WithLabelValues(messageType).Observe(float64(recipients))
}

// RecordDeliveryFailure counts a frame that could not be queued to a session
func (m *Metrics) RecordDeliveryFailure(messageType string) {
	m.deliveryFailures.WithLabelValues(messageType).Inc()
}

func (m *Metrics) RecordHandlerPanic(messageType string) {
	m.handlerPanics.WithLabelValues(messageType).Inc()
}
