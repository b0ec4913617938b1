package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var statusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flagd_status_changes",
	Help: "Number of moderator status changes",
}, []string{"content_type", "status"})
