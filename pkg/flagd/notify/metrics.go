package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flagd_notifications_sent",
	Help: "Number of moderator notifications handled, by result",
}, []string{"result"})

var notificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "flagd_notification_duration_sec",
	Help: "Time spent delivering one moderator notification",
})
