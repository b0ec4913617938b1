package ledger

import (
	"context"
	"errors"

	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"github.com/mikepea/flagd/pkg/flagd/store"
)

// Status is a ledger status with its configured label.
type Status struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
}

// FlagCount returns how many times ref was flagged.
func (l *Ledger) FlagCount(ctx context.Context, ref content.Ref) (uint, error) {
	entry, err := l.store.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return entry.Count, nil
}

// FlagStatus returns the current status of ref. ok is false when ref was
// never flagged.
func (l *Ledger) FlagStatus(ctx context.Context, ref content.Ref) (st Status, ok bool, err error) {
	entry, err := l.store.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, err
	}
	return l.status(entry), true, nil
}

// Entry returns the ledger entry of ref, or store.ErrNotFound.
func (l *Ledger) Entry(ctx context.Context, ref content.Ref) (*models.FlaggedContent, error) {
	return l.store.Get(ctx, ref)
}

// Events lists the flags on ref, most recent first.
func (l *Ledger) Events(ctx context.Context, ref content.Ref, limit int) ([]models.FlagEvent, error) {
	evs, err := l.store.Events(ctx, ref, limit)
	if errors.Is(err, store.ErrNotFound) {
		return []models.FlagEvent{}, nil
	}
	return evs, err
}

// CountByUser returns how many times userID flagged ref.
func (l *Ledger) CountByUser(ctx context.Context, ref content.Ref, userID uint) (int64, error) {
	_, n, err := l.store.Counts(ctx, ref, userID)
	return n, err
}

// QueueItem is a ledger entry as shown in the moderation queue.
type QueueItem struct {
	models.FlaggedContent
	StatusLabel string `json:"status_label"`
}

// Queue lists ledger entries for moderators, most recently updated first.
func (l *Ledger) Queue(ctx context.Context, f store.ListFilter) ([]QueueItem, int64, error) {
	entries, total, err := l.store.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	items := make([]QueueItem, len(entries))
	for i, e := range entries {
		items[i] = QueueItem{FlaggedContent: e, StatusLabel: l.status(&e).Label}
	}
	return items, total, nil
}

func (l *Ledger) status(entry *models.FlaggedContent) Status {
	return Status{
		Code:  entry.Status,
		Label: l.settings.For(entry.ContentType).StatusLabel(entry.Status),
	}
}
