package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gdelt_lake_querier_build_info",
			Help: "Build information of the GDELT lake querier",
		},
		[]string{"version", "commit", "date"},
	)

	QueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdelt_lake_querier_queries_total",
			Help: "Ad-hoc SQL queries executed",
		},
	)

	MaterializationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdelt_lake_querier_materializations_total",
			Help: "Column-oriented frame materializations executed",
		},
	)
)
