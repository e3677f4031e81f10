package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rugguard_monitor_cycles",
	Help: "Number of search cycles run",
})

var triggerCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rugguard_monitor_triggers",
	Help: "Number of valid trigger posts processed",
})

var triggerErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rugguard_monitor_trigger_errors",
	Help: "Number of trigger posts whose processing failed",
})

var reportsPostedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rugguard_monitor_reports_posted",
	Help: "Number of reports posted, by kind",
}, []string{"kind"})
