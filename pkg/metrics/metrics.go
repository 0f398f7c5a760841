package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered with the default registry through promauto. Every
// series carries the engine id so several grids can share one process.

var (
	// RefinementPasses counts finished refinement passes per variant.
	RefinementPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparsegrid_refinement_passes_total",
			Help: "Total number of refinement passes",
		},
		[]string{"engine", "variant"},
	)

	// PointsCreated counts points appended by refinement.
	PointsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparsegrid_points_created_total",
			Help: "Total number of grid points created by refinement",
		},
		[]string{"engine"},
	)

	// RefinementDuration measures the time of one pass, journaling included.
	RefinementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sparsegrid_refinement_duration_seconds",
			Help:    "Duration of refinement passes in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"engine", "variant"},
	)

	// GridPoints tracks the current number of stored points.
	GridPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sparsegrid_points",
			Help: "Number of points in the grid",
		},
		[]string{"engine"},
	)

	// GridMaxLevel tracks the largest level of any coordinate.
	GridMaxLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sparsegrid_max_level",
			Help: "Largest level of any stored coordinate",
		},
		[]string{"engine"},
	)

	// Snapshots counts snapshot writes.
	Snapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparsegrid_snapshots_total",
			Help: "Total number of snapshots written",
		},
		[]string{"engine"},
	)
)
