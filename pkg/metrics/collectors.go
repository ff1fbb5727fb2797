package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessResolves counts per-item access resolutions by resource type and
	// resulting level.
	AccessResolves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "permissions",
		Name:      "access_resolves_total",
		Help:      "Access resolutions by resource type and resolved level.",
	}, []string{"resource_type", "level"})

	// ActionsExecuted counts committed permission-changing actions by verb.
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "permissions",
		Name:      "actions_executed_total",
		Help:      "Committed permission actions by verb.",
	}, []string{"verb"})

	// CascadeRows observes how many permission rows a single cascade touched.
	CascadeRows = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskflow",
		Subsystem: "permissions",
		Name:      "cascade_rows",
		Help:      "Permission rows written or deleted per cascade.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"verb"})

	// VisibilityFilters counts visibility predicate builds by resource type.
	VisibilityFilters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "permissions",
		Name:      "visibility_filters_total",
		Help:      "Visibility predicate builds by resource type.",
	}, []string{"resource_type"})
)
