// Package ledger records flags: one aggregate entry per content item plus the
// append-only trail of individual flag events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/eligibility"
	"github.com/mikepea/flagd/pkg/flagd/escalation"
	"github.com/mikepea/flagd/pkg/flagd/events"
	"github.com/mikepea/flagd/pkg/flagd/flagerr"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/notify"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"
	"github.com/mikepea/flagd/pkg/flagd/workflow"
)

// Enqueuer hands a notification to background delivery.
type Enqueuer interface {
	Enqueue(msg notify.Message)
}

// NameLookup resolves user ids to display names for notifications.
type NameLookup interface {
	Names(ctx context.Context, ids ...uint) map[uint]string
}

type Config struct {
	Settings *settings.Settings
	Store    *store.Store
	Workflow *workflow.Workflow
	// Composer renders notifications; nil uses the default templates.
	Composer *escalation.Composer
	// Notifications may be nil, which disables sending.
	Notifications Enqueuer
	Bus           *events.Bus
	Names         NameLookup
	Logger        *slog.Logger
}

type Ledger struct {
	settings *settings.Settings
	store    *store.Store
	workflow *workflow.Workflow
	composer *escalation.Composer
	notifier Enqueuer
	bus      *events.Bus
	names    NameLookup
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) (*Ledger, error) {
	if cfg.Settings == nil || cfg.Store == nil || cfg.Workflow == nil {
		return nil, errors.New("ledger needs settings, a store and a workflow")
	}
	composer := cfg.Composer
	if composer == nil {
		var err error
		if composer, err = escalation.NewComposer("", ""); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		settings: cfg.Settings,
		store:    cfg.Store,
		workflow: cfg.Workflow,
		composer: composer,
		notifier: cfg.Notifications,
		bus:      cfg.Bus,
		names:    cfg.Names,
		logger:   logger.With("system", "ledger"),
		now:      time.Now,
	}, nil
}

// AddRequest is one flag submission. CreatorID and Status are optional.
type AddRequest struct {
	User      auth.User
	Ref       content.Ref
	CreatorID *uint
	Comment   string
	Status    *int
}

// AddFlag records a flag. The caller is expected to have passed the
// eligibility checks; the limits are checked again under the per-ref lock so
// concurrent submissions cannot overshoot them.
func (l *Ledger) AddFlag(ctx context.Context, req AddRequest) (*models.FlagEvent, error) {
	opts := l.settings.For(req.Ref.Type)

	var comment *string
	if c := strings.TrimSpace(req.Comment); c != "" {
		if !opts.AllowComments {
			return nil, flagerr.ErrCommentNotAllowed
		}
		comment = &req.Comment
	}

	status, err := l.workflow.ProposedStatus(req.User, req.Ref.Type, req.Status)
	if err != nil {
		return nil, err
	}
	var moderatorID *uint
	if req.Status != nil && req.User.Staff {
		moderatorID = &req.User.ID
	}

	at := l.now()
	var ev models.FlagEvent
	init := models.FlaggedContent{Status: status, CreatorID: req.CreatorID}
	entry, err := l.store.Upsert(ctx, req.Ref, init, func(tx *store.Tx, entry *models.FlaggedContent) error {
		var byUser int64
		if opts.LimitPerUserPerObject > 0 {
			n, err := tx.CountByUser(entry, req.User.ID)
			if err != nil {
				return err
			}
			byUser = n
		}
		if err := eligibility.CheckLimits(opts, entry.Count, byUser); err != nil {
			return err
		}

		ev = models.FlagEvent{UserID: req.User.ID, Comment: comment, Status: status}
		if err := tx.AppendEvent(entry, &ev); err != nil {
			return err
		}
		return tx.RecordFlag(entry, store.FlagUpdate{
			Status:      status,
			CreatorID:   req.CreatorID,
			ModeratorID: moderatorID,
			At:          at,
		})
	})
	if err != nil {
		if flagerr.UserFacing(err) {
			flagsRejected.WithLabelValues(req.Ref.Type).Inc()
			return nil, err
		}
		return nil, fmt.Errorf("recording flag on %s: %w", req.Ref, err)
	}

	flagsRecorded.WithLabelValues(req.Ref.Type).Inc()
	l.logger.Debug("flag recorded", "ref", req.Ref.String(), "user", req.User.ID, "count", entry.Count, "status", status)
	l.bus.Emit(ctx, events.ContentFlagged{Ref: req.Ref, User: req.User, Event: ev, Count: entry.Count})
	l.escalate(ctx, opts, req, entry, &ev)
	return &ev, nil
}

// escalate runs after commit. Nothing it does can fail the flag.
func (l *Ledger) escalate(ctx context.Context, opts settings.Options, req AddRequest, entry *models.FlaggedContent, ev *models.FlagEvent) {
	if l.notifier == nil || !opts.ShouldSend() {
		return
	}
	if !escalation.ShouldNotify(int(entry.Count), opts.EscalationRules, opts.LimitPerObject) {
		return
	}

	var creatorName string
	if entry.CreatorID != nil && l.names != nil {
		creatorName = l.names.Names(ctx, *entry.CreatorID)[*entry.CreatorID]
	}
	comment := ""
	if ev.Comment != nil {
		comment = *ev.Comment
	}
	msg, err := l.composer.Compose(opts, escalation.Trigger{
		Ref:         req.Ref,
		Count:       entry.Count,
		FlaggerName: req.User.Name,
		CreatorName: creatorName,
		Comment:     comment,
		StatusLabel: opts.StatusLabel(entry.Status),
		When:        ev.WhenAdded,
	})
	if err != nil {
		l.logger.Error("failed to compose notification", "ref", req.Ref.String(), "err", err)
		return
	}
	notificationsTriggered.WithLabelValues(req.Ref.Type).Inc()
	l.notifier.Enqueue(msg)
}
