package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openclaw_connections_total",
		Help: "Accepted TCP connections.",
	})
	metricSessionsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openclaw_sessions_online",
		Help: "Currently authenticated sessions.",
	})
	metricMessagesRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openclaw_messages_routed_total",
		Help: "1-to-1 messages delivered to a recipient session.",
	})
	metricMessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openclaw_messages_failed_total",
		Help: "1-to-1 messages rejected with msg_failed.",
	})
	metricTransfersBrokered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openclaw_transfers_brokered_total",
		Help: "File offers accepted into the pending-transfer map.",
	})
	metricBotReplies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openclaw_bot_replies_total",
		Help: "Messages answered by a virtual bot.",
	})
)
