package region

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	regionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regions_registered",
		Help: "The number of registered regions.",
	})

	regionUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "region_updates_total",
		Help: "The total number of region geometry updates.",
	})

	indexQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "region_index_queries_total",
		Help: "The total number of point containment queries.",
	})

	indexCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "region_index_candidates",
		Help:    "Regions registered in the queried chunk, before exact filtering.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})

	indexHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "region_index_hits_total",
		Help: "The total number of regions returned by containment queries.",
	})
)

func instrumentRegionCount(n int64) {
	regionCount.Set(float64(n))
}

func instrumentRegionUpdate() {
	regionUpdates.Inc()
}

func instrumentQuery(candidates, hits int) {
	indexQueries.Inc()
	indexCandidates.Observe(float64(candidates))
	indexHits.Add(float64(hits))
}
