package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "linkpulse"

// Redirect outcomes used as the "result" label.
const (
	RedirectFound    = "found"
	RedirectNotFound = "not_found"
	RedirectExpired  = "expired"
	RedirectError    = "error"
)

// Metrics holds the application collectors.
type Metrics struct {
	Redirects      *prometheus.CounterVec
	LinksCreated   prometheus.Counter
	ClicksRecorded prometheus.Counter
	ClickFailures  *prometheus.CounterVec
	StoreUp        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Short code resolutions by result.",
		}, []string{"result"}),
		LinksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_created_total",
			Help:      "Links created.",
		}),
		ClicksRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_recorded_total",
			Help:      "Click records written.",
		}),
		ClickFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_bookkeeping_failures_total",
			Help:      "Failed click writes by operation.",
		}, []string{"op"}),
		StoreUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 when the active store answers pings.",
		}, []string{"backend"}),
	}

	if reg != nil {
		reg.MustRegister(m.Redirects, m.LinksCreated, m.ClicksRecorded, m.ClickFailures, m.StoreUp)
	}
	return m
}
