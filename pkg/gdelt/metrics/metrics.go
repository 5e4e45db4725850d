package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gdelt_lake_ingest_build_info",
			Help: "Build information of the GDELT lake ingester",
		},
		[]string{"version", "commit", "date"},
	)

	RowsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdelt_lake_ingest_rows_read_total",
			Help: "Raw feed rows read during ingestion",
		},
	)

	RowsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdelt_lake_ingest_rows_accepted_total",
			Help: "Feed rows accepted and persisted as event records",
		},
	)

	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gdelt_lake_ingest_rows_rejected_total",
			Help: "Feed rows dropped by the acceptance filters",
		},
		[]string{"reason"},
	)

	GeoLookupMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gdelt_lake_ingest_geo_lookup_misses_total",
			Help: "Location triples that missed the lookup index and resolved to null",
		},
	)
)
