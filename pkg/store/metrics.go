package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_store_mutations_total",
		Help: "Durable store mutations by operation.",
	}, []string{"op"})

	mutationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chathub_store_mutation_failures_total",
		Help: "Store mutations that failed to persist.",
	}, []string{"op"})
)
