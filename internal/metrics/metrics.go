// Package metrics exposes Prometheus instruments for state propagation.
//
// Instruments are registered on the default registry at init, so a process
// that serves Handler sees every state it created. Label values are the
// state kind ("sync", "lazy", "derived", ...) or the resource event name.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statewire"

var (
	// Notifications counts subscriber deliveries per state kind.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Values delivered to subscribers.",
	}, []string{"kind"})

	// SubscriberPanics counts subscriber callbacks that panicked.
	SubscriberPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriber_panics_total",
		Help:      "Subscriber callbacks that panicked during delivery.",
	}, []string{"kind"})

	// Subscribers tracks live subscriptions per state kind.
	Subscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Live subscriptions.",
	}, []string{"kind"})

	// Recomputes counts batched derived recomputations.
	Recomputes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "derived_recomputes_total",
		Help:      "Deferred recomputations of derived states.",
	})

	// ResourceEvents counts resource lifecycle events: fetch, setup,
	// teardown, write_action.
	ResourceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resource_events_total",
		Help:      "Resource lifecycle events.",
	}, []string{"event"})

	// WriteRejections counts refused writes by error code.
	WriteRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "write_rejections_total",
		Help:      "Writes refused by a state.",
	}, []string{"code"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
