// Package store persists ledger entries and flag events and serializes every
// write on one ContentRef.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/database"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("content has never been flagged")

// Store is the gorm-backed ledger repository.
type Store struct {
	db         *gorm.DB
	locks      Locker
	maxRetries int
}

// New creates a store. A nil locker serializes in-process only.
func New(db *gorm.DB, locks Locker) *Store {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &Store{db: db, locks: locks, maxRetries: 3}
}

// Mutation runs inside the per-ref critical section and database transaction.
type Mutation func(tx *Tx, entry *models.FlaggedContent) error

// Update applies fn to the existing entry for ref and returns the entry as
// committed. Fails with ErrNotFound when ref was never flagged.
func (s *Store) Update(ctx context.Context, ref content.Ref, fn Mutation) (*models.FlaggedContent, error) {
	return s.mutate(ctx, ref, nil, fn)
}

// Upsert is Update, creating the entry from init first when it is missing.
// A lost creation race (unique violation) is retried against the winner's row.
func (s *Store) Upsert(ctx context.Context, ref content.Ref, init models.FlaggedContent, fn Mutation) (*models.FlaggedContent, error) {
	return s.mutate(ctx, ref, &init, fn)
}

func (s *Store) mutate(ctx context.Context, ref content.Ref, init *models.FlaggedContent, fn Mutation) (*models.FlaggedContent, error) {
	unlock, err := s.locks.Lock(ctx, ref.String())
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", ref, err)
	}
	defer unlock()

	var out *models.FlaggedContent
	for attempt := 0; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			tx := &Tx{db: gtx, postgres: database.IsPostgres(gtx)}
			entry, err := tx.load(ref, true)
			if errors.Is(err, ErrNotFound) && init != nil {
				created := *init
				created.ID = 0
				created.ContentType = ref.Type
				created.ObjectID = ref.ObjectID
				if err := gtx.Omit(clause.Associations).Create(&created).Error; err != nil {
					return err
				}
				entry = &created
			} else if err != nil {
				return err
			}

			if err := fn(tx, entry); err != nil {
				return err
			}
			out, err = tx.load(ref, false)
			return err
		})
		if init != nil && errors.Is(err, gorm.ErrDuplicatedKey) && attempt < s.maxRetries {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get reads the ledger entry for ref.
func (s *Store) Get(ctx context.Context, ref content.Ref) (*models.FlaggedContent, error) {
	var e models.FlaggedContent
	err := s.db.WithContext(ctx).
		Where("content_type = ? AND object_id = ?", ref.Type, ref.ObjectID).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Counts returns the ledger count for ref and how many of those flags userID
// made. Never-flagged content yields zeros.
func (s *Store) Counts(ctx context.Context, ref content.Ref, userID uint) (total uint, byUser int64, err error) {
	e, err := s.Get(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	byUser, err = countByUser(s.db.WithContext(ctx), e.ID, userID)
	if err != nil {
		return 0, 0, err
	}
	return e.Count, byUser, nil
}

// Events lists the flag events of ref, most recent first. limit <= 0 means all.
func (s *Store) Events(ctx context.Context, ref content.Ref, limit int) ([]models.FlagEvent, error) {
	e, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).
		Preload("User").
		Where("flagged_content_id = ?", e.ID).
		Order("when_added DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []models.FlagEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountEvents counts the stored events of ref.
func (s *Store) CountEvents(ctx context.Context, ref content.Ref) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.FlagEvent{}).
		Joins("JOIN flagged_contents ON flagged_contents.id = flag_events.flagged_content_id").
		Where("flagged_contents.content_type = ? AND flagged_contents.object_id = ?", ref.Type, ref.ObjectID).
		Count(&n).Error
	return n, err
}

// ListFilter narrows the moderation queue.
type ListFilter struct {
	ContentType string
	Status      *int
	Limit       int
	Offset      int
}

// List returns ledger entries, most recently updated first, with the total
// number matching the filter.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.FlaggedContent, int64, error) {
	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.FlaggedContent{})
		if f.ContentType != "" {
			q = q.Where("content_type = ?", f.ContentType)
		}
		if f.Status != nil {
			q = q.Where("status = ?", *f.Status)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := filtered().Order("updated_at DESC, id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var entries []models.FlaggedContent
	if err := q.Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Tx is the view of the store available inside a Mutation.
type Tx struct {
	db       *gorm.DB
	postgres bool
}

func (t *Tx) load(ref content.Ref, forUpdate bool) (*models.FlaggedContent, error) {
	q := t.db.Where("content_type = ? AND object_id = ?", ref.Type, ref.ObjectID)
	if forUpdate && t.postgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var e models.FlaggedContent
	err := q.Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CountByUser counts the events userID recorded on entry.
func (t *Tx) CountByUser(entry *models.FlaggedContent, userID uint) (int64, error) {
	return countByUser(t.db, entry.ID, userID)
}

// AppendEvent inserts a flag event for entry.
func (t *Tx) AppendEvent(entry *models.FlaggedContent, ev *models.FlagEvent) error {
	ev.FlaggedContentID = entry.ID
	return t.db.Omit(clause.Associations).Create(ev).Error
}

// FlagUpdate describes how recording one flag changes the entry.
type FlagUpdate struct {
	Status      int
	CreatorID   *uint
	ModeratorID *uint
	At          time.Time
}

// RecordFlag increments the count and mirrors the new event's status. The
// creator is only set when the entry has none yet.
func (t *Tx) RecordFlag(entry *models.FlaggedContent, u FlagUpdate) error {
	changes := map[string]any{
		"count":      gorm.Expr("count + ?", 1),
		"status":     u.Status,
		"updated_at": u.At,
	}
	if entry.CreatorID == nil && u.CreatorID != nil {
		changes["creator_id"] = *u.CreatorID
	}
	if u.ModeratorID != nil {
		changes["moderator_id"] = *u.ModeratorID
	}
	return t.db.Model(&models.FlaggedContent{}).Where("id = ?", entry.ID).Updates(changes).Error
}

// SetStatus records a moderator's status change.
func (t *Tx) SetStatus(entry *models.FlaggedContent, status int, moderatorID uint, at time.Time) error {
	return t.db.Model(&models.FlaggedContent{}).Where("id = ?", entry.ID).Updates(map[string]any{
		"status":       status,
		"moderator_id": moderatorID,
		"updated_at":   at,
	}).Error
}

func countByUser(db *gorm.DB, entryID, userID uint) (int64, error) {
	var n int64
	err := db.Model(&models.FlagEvent{}).
		Where("flagged_content_id = ? AND user_id = ?", entryID, userID).
		Count(&n).Error
	return n, err
}
