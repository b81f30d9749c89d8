package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat_service",
			Name:      "frames_received_total",
			Help:      "Total number of websocket frames received, by frame type.",
		},
		[]string{"type"},
	)

	framesDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat_service",
			Name:      "frames_dropped_total",
			Help:      "Total number of inbound frames discarded.",
		},
		[]string{"reason"}, // "malformed", "unknown_type", "unidentified"
	)

	deliveryTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat_service",
			Name:      "delivery_transitions_total",
			Help:      "Total number of persisted delivery-status transitions.",
		},
		[]string{"status"}, // "delivered", "read"
	)

	broadcastSendFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chat_service",
			Name:      "broadcast_send_failures_total",
			Help:      "Total number of best-effort sends that failed during presence broadcast.",
		},
	)

	connectedClientsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chat_service",
			Name:      "connected_clients",
			Help:      "Number of identified live connections in the registry.",
		},
	)

	unreadPushesCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chat_service",
			Name:      "unread_pushes_total",
			Help:      "Total number of unread-count-update frames pushed to clients.",
		},
	)
)
