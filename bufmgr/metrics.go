package bufmgr

import "github.com/prometheus/client_golang/prometheus"

// metrics are the buffer pool counters SPEC_FULL.md's ambient-stack
// section calls for. One Mgr registers its own metrics instance rather
// than using prometheus's global default registry, so multiple Mgrs
// (e.g. one per open relation in a test) don't collide on duplicate
// registration.
type metrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  prometheus.Counter
	flushes prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vchordlite_bufmgr_pin_hits_total",
			Help: "Pins served from an already-resident buffer pool slot.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vchordlite_bufmgr_pin_misses_total",
			Help: "Pins that required loading a page from the host.",
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vchordlite_bufmgr_evictions_total",
			Help: "Buffer pool slots reclaimed via the clock sweep.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vchordlite_bufmgr_flushes_total",
			Help: "Dirty pages written back to the host during eviction.",
		}),
	}
}

// Registry exposes m's metrics for a caller that wants to serve them
// (e.g. via promhttp.HandlerFor) instead of registering against the
// global default registry, which a library should not do implicitly.
func (m *Mgr) Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(m.metrics.hits, m.metrics.misses, m.metrics.evicts, m.metrics.flushes)
	return r
}
