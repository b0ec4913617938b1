package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var flagsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flagd_flags_recorded",
	Help: "Number of flags persisted",
}, []string{"content_type"})

var flagsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flagd_flags_rejected",
	Help: "Number of flags rejected while recording",
}, []string{"content_type"})

var notificationsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flagd_notifications_triggered",
	Help: "Number of flags that escalated to a moderator notification",
}, []string{"content_type"})
