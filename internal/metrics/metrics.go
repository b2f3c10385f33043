package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlayersAttached tracks how many players are currently in the registry.
	PlayersAttached = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playerwatch",
		Name:      "players_attached",
		Help:      "Number of MPRIS players currently attached",
	})

	// EventsTotal counts published events by kind.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "events_total",
		Help:      "Total number of events published to the event channel",
	}, []string{"kind"})

	// MalformedNotificationsTotal counts bus signals dropped because they could not be parsed.
	MalformedNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "malformed_notifications_total",
		Help:      "Total number of dropped malformed bus notifications",
	}, []string{"signal"})

	// PlayerErrorsTotal counts failed or timed out player calls.
	PlayerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "player_errors_total",
		Help:      "Total number of failed player method calls",
	}, []string{"property"})

	// EventChannelBlockedTotal counts publishes that found the event channel full.
	EventChannelBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "playerwatch",
		Name:      "event_channel_blocked_total",
		Help:      "Total number of publishes that had to wait for the consumer",
	})
)

// ObserveEvent records a published event.
func ObserveEvent(kind string) {
	EventsTotal.WithLabelValues(kind).Inc()
}

// ObserveMalformed records a dropped notification.
func ObserveMalformed(signal string) {
	MalformedNotificationsTotal.WithLabelValues(signal).Inc()
}

// ObservePlayerError records a failed player call.
func ObservePlayerError(property string) {
	PlayerErrorsTotal.WithLabelValues(property).Inc()
}
