package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexmeet_connections",
		Help: "Open signaling connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexmeet_active_rooms",
		Help: "Rooms with at least one member",
	})

	// Joins counts join attempts by result ("created", "admitted", or an error code).
	Joins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexmeet_joins_total",
		Help: "Join attempts by result",
	}, []string{"result"})

	SignalsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexmeet_signals_relayed_total",
		Help: "Negotiation payloads forwarded to a live connection",
	})

	RelayMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexmeet_relay_misses_total",
		Help: "Negotiation payloads dropped because the target was gone",
	})

	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexmeet_chat_messages_total",
		Help: "Chat messages accepted",
	})

	WaitingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nexmeet_waiting_entries",
		Help: "Joiners currently parked in a waiting room",
	})

	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexmeet_store_retries_total",
		Help: "Durable store writes queued for retry, by operation",
	}, []string{"op"})

	StoreDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexmeet_store_dropped_total",
		Help: "Durable store writes abandoned after all retries, by operation",
	}, []string{"op"})

	MeetingsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexmeet_meetings_swept_total",
		Help: "Inactive meetings deleted by the retention sweep",
	})

	MeetingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexmeet_meeting_duration_seconds",
		Help:    "Duration of meetings at the moment they end",
		Buckets: prometheus.ExponentialBuckets(30, 2, 10),
	})
)
