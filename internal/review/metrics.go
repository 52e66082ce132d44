package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ratingRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "store_rating_recomputes_total",
	Help: "Store rating recomputations grouped by triggering operation.",
}, []string{"op"})
