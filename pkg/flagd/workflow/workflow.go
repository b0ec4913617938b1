// Package workflow polices ledger status: which statuses exist for a content
// type and who may set them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/events"
	"github.com/mikepea/flagd/pkg/flagd/flagerr"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/settings"
	"github.com/mikepea/flagd/pkg/flagd/store"
)

type Workflow struct {
	settings *settings.Settings
	store    *store.Store
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time
}

func New(s *settings.Settings, st *store.Store, bus *events.Bus, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		settings: s,
		store:    st,
		bus:      bus,
		logger:   logger.With("system", "workflow"),
		now:      time.Now,
	}
}

// ProposedStatus picks the status recorded on a new flag. Without a request
// it is the type's default. Non-staff may only choose when the type exposes a
// status choice to flaggers.
func (w *Workflow) ProposedStatus(actor auth.User, contentType string, requested *int) (int, error) {
	opts := w.settings.For(contentType)
	if requested == nil {
		return opts.DefaultStatus, nil
	}
	if !actor.Staff && !opts.StatusChoiceForFlaggers {
		return 0, flagerr.ErrNotAuthorizedForStatusChange
	}
	if !opts.HasStatus(*requested) {
		return 0, fmt.Errorf("%w: %d for %s", flagerr.ErrInvalidStatus, *requested, contentType)
	}
	return *requested, nil
}

// ValidStatus reports whether code is configured for contentType.
func (w *Workflow) ValidStatus(contentType string, code int) bool {
	return w.settings.For(contentType).HasStatus(code)
}

// ChangeStatus sets the ledger status of ref as a moderator decision. It runs
// under the same per-ref serialization as flagging.
func (w *Workflow) ChangeStatus(ctx context.Context, actor auth.User, ref content.Ref, status int) (*models.FlaggedContent, error) {
	if !actor.Authenticated || !actor.Staff {
		return nil, flagerr.ErrNotAuthorizedForStatusChange
	}
	if !w.ValidStatus(ref.Type, status) {
		return nil, fmt.Errorf("%w: %d for %s", flagerr.ErrInvalidStatus, status, ref.Type)
	}

	var from int
	at := w.now()
	entry, err := w.store.Update(ctx, ref, func(tx *store.Tx, entry *models.FlaggedContent) error {
		from = entry.Status
		return tx.SetStatus(entry, status, actor.ID, at)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", flagerr.ErrContentNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("changing status of %s: %w", ref, err)
	}

	statusChanges.WithLabelValues(ref.Type, strconv.Itoa(status)).Inc()
	w.logger.Info("flag status changed", "ref", ref.String(), "moderator", actor.ID, "from", from, "to", status)
	w.bus.Emit(ctx, events.StatusChanged{Ref: ref, Moderator: actor, From: from, To: status, At: at})
	return entry, nil
}
