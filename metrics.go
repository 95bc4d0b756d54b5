package profiles

import (
	"github.com/prometheus/client_golang/prometheus"
)

// View results reported by the views_total counter.
const (
	viewHit    = "hit"
	viewDedup  = "dedup"
	viewStore  = "store"
	viewAbsent = "absent"
	viewError  = "error"
)

// Metrics holds the Prometheus collectors of one manager. A nil *Metrics is valid and records nothing.
type Metrics struct {
	loads        prometheus.Counter
	loadRetries  prometheus.Counter
	views        *prometheus.CounterVec
	saves        prometheus.Counter
	saveFailures prometheus.Counter
	unloads      prometheus.Counter
	sessionsLost prometheus.Counter
	loaded       prometheus.Gauge
}

// NewMetrics creates the collectors for storeName and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer, storeName string) (*Metrics, error) {
	labels := prometheus.Labels{"store": storeName}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "profiles",
			Subsystem:   "manager",
			Name:        name,
			ConstLabels: labels,
			Help:        help,
		})
	}
	m := &Metrics{
		loads:        counter("loads_total", "Total number of profiles loaded from the record store"),
		loadRetries:  counter("load_retries_total", "Total number of exclusive load retries"),
		saves:        counter("saves_total", "Total number of profile saves"),
		saveFailures: counter("save_failures_total", "Total number of profile saves the store failed"),
		unloads:      counter("unloads_total", "Total number of profiles unloaded"),
		sessionsLost: counter("sessions_lost_total", "Total number of loaded profiles whose session was lost"),
		views: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "profiles",
			Subsystem:   "manager",
			Name:        "views_total",
			ConstLabels: labels,
			Help:        "Total number of profile views by result",
		}, []string{"result"}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "profiles",
			Subsystem:   "manager",
			Name:        "loaded_profiles",
			ConstLabels: labels,
			Help:        "Current number of loaded profiles",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.loads, m.loadRetries, m.views, m.saves, m.saveFailures, m.unloads, m.sessionsLost, m.loaded} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) loadDone(loadedCount int) {
	if m == nil {
		return
	}
	m.loads.Inc()
	m.loaded.Set(float64(loadedCount))
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.loadRetries.Inc()
}

func (m *Metrics) viewed(result string) {
	if m == nil {
		return
	}
	m.views.WithLabelValues(result).Inc()
}

func (m *Metrics) saved(err error) {
	if m == nil {
		return
	}
	m.saves.Inc()
	if err != nil {
		m.saveFailures.Inc()
	}
}

func (m *Metrics) unloaded(loadedCount int) {
	if m == nil {
		return
	}
	m.unloads.Inc()
	m.loaded.Set(float64(loadedCount))
}

func (m *Metrics) lost(loadedCount int) {
	if m == nil {
		return
	}
	m.sessionsLost.Inc()
	m.loaded.Set(float64(loadedCount))
}
