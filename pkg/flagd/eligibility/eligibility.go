// Package eligibility decides whether a user may flag a content item.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/flagerr"
	"github.com/mikepea/flagd/pkg/flagd/settings"
)

const day = 24 * time.Hour

// Counter reports the ledger count of ref and how many of those flags came
// from userID. Never-flagged content reports zeros.
type Counter interface {
	Counts(ctx context.Context, ref content.Ref, userID uint) (total uint, byUser int64, err error)
}

// Checker runs the eligibility checks in order, stopping at the first failure:
// active user, content type allowlist, trust gate, per-object limit and
// per-user limit.
type Checker struct {
	settings *settings.Settings
	counts   Counter
	now      func() time.Time
}

func NewChecker(s *settings.Settings, counts Counter) *Checker {
	return &Checker{settings: s, counts: counts, now: time.Now}
}

// AssertCanFlag returns nil when user may flag ref, or the first failed check.
func (c *Checker) AssertCanFlag(ctx context.Context, user auth.User, ref content.Ref) error {
	return c.check(ctx, user, ref, true)
}

// CanFlag is AssertCanFlag as a boolean. Any failure reads as false.
func (c *Checker) CanFlag(ctx context.Context, user auth.User, ref content.Ref) bool {
	return c.check(ctx, user, ref, true) == nil
}

// Confirm is the check run before a flag form is shown. The trust gate is
// evaluated at submission only, so an untrusted user is not told about it
// here.
func (c *Checker) Confirm(ctx context.Context, user auth.User, ref content.Ref) error {
	return c.check(ctx, user, ref, false)
}

func (c *Checker) check(ctx context.Context, user auth.User, ref content.Ref, enforceTrust bool) error {
	if !user.Authenticated || !user.Active {
		return flagerr.ErrUserInactive
	}
	if !c.settings.IsAllowed(ref.Type) {
		return fmt.Errorf("%w: %s", flagerr.ErrModelNotFlaggable, ref.Type)
	}

	opts := c.settings.For(ref.Type)
	if enforceTrust && opts.NeedsTrust && !Trusted(opts.TrustDays, user.JoinedAt, c.now()) {
		return flagerr.ErrUserNotTrusted
	}

	if opts.LimitPerObject == 0 && opts.LimitPerUserPerObject == 0 {
		return nil
	}
	total, byUser, err := c.counts.Counts(ctx, ref, user.ID)
	if err != nil {
		return fmt.Errorf("reading flag counts for %s: %w", ref, err)
	}
	return CheckLimits(opts, total, byUser)
}

// Trusted reports whether an account created at joined is more than
// trustDays whole days old at now. Days are counted on UTC dates.
func Trusted(trustDays int, joined, now time.Time) bool {
	age := now.UTC().Truncate(day).Sub(joined.UTC().Truncate(day))
	return int(age/day) > trustDays
}

// CheckLimits applies the per-object and per-user ceilings to the current
// counts. A zero limit is unlimited.
func CheckLimits(opts settings.Options, total uint, byUser int64) error {
	if opts.LimitPerObject > 0 && total >= uint(opts.LimitPerObject) {
		return flagerr.ErrObjectFlaggedEnough
	}
	if opts.LimitPerUserPerObject > 0 && byUser >= int64(opts.LimitPerUserPerObject) {
		return flagerr.ErrAlreadyFlaggedByUser
	}
	return nil
}
