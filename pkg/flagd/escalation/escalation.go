// Package escalation decides when a growing flag count warrants a moderator
// notification and renders that notification.
package escalation

import (
	"github.com/mikepea/flagd/pkg/flagd/settings"
)

// ShouldNotify reports whether reaching count triggers a notification.
//
// Each rule covers counts from its threshold up to the next rule's threshold
// and fires every Every flags starting at its threshold. Reaching a positive
// objectLimit always fires. Counts below the first threshold never do.
func ShouldNotify(count int, rules []settings.EscalationRule, objectLimit int) bool {
	if objectLimit > 0 && count == objectLimit {
		return true
	}
	var active *settings.EscalationRule
	for i := range rules {
		if count < rules[i].Threshold {
			break
		}
		active = &rules[i]
	}
	if active == nil || active.Every <= 0 {
		return false
	}
	return (count-active.Threshold)%active.Every == 0
}
