package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHitCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rugguard_gateway_cache_hits",
	Help: "Number of gateway lookups served from cache",
}, []string{"op"})

var cacheMissCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rugguard_gateway_cache_misses",
	Help: "Number of gateway lookups which missed cache",
}, []string{"op"})

var providerErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rugguard_gateway_provider_errors",
	Help: "Number of upstream provider calls which failed",
}, []string{"op"})

var repliesPostedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rugguard_gateway_replies_posted",
	Help: "Number of replies successfully posted",
})
