package tundra

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics groups the engine's Prometheus collectors. A nil *metrics is valid
// and records nothing.
type metrics struct {
	compiles    *prometheus.CounterVec
	problems    *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	renders     *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tundra_compiles_total",
			Help: "Template compilations by source kind.",
		}, []string{"source"}),
		problems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tundra_resolve_problems_total",
			Help: "Problems reported while resolving inheritance directives.",
		}, []string{"kind"}),
		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tundra_cache_lookups_total",
			Help: "Program cache lookups by result.",
		}, []string{"result"}),
		renders: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tundra_render_duration_seconds",
			Help:    "Time spent executing compiled programs.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"status"}),
	}
	m.compiles = register(reg, m.compiles)
	m.problems = register(reg, m.problems)
	m.cacheLookup = register(reg, m.cacheLookup)
	m.renders = register(reg, m.renders)
	return m
}

// register adds c to reg, reusing an identical collector registered earlier
// by another engine sharing the registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) compiled(source string) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(source).Inc()
}

func (m *metrics) problem(kind error) {
	if m == nil {
		return
	}
	label := "other"
	switch {
	case errors.Is(kind, ErrNotFound):
		label = "not_found"
	case errors.Is(kind, ErrMissingBlock):
		label = "missing_block"
	case errors.Is(kind, ErrMissingSpread):
		label = "missing_spread"
	case errors.Is(kind, ErrInheritanceCycle):
		label = "cycle"
	}
	m.problems.WithLabelValues(label).Inc()
}

func (m *metrics) lookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookup.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookup.WithLabelValues("miss").Inc()
	}
}

func (m *metrics) rendered(start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.renders.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
