package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// RecordKind names one persisted engagement record of a profile.
type RecordKind string

const (
	RecordExperience RecordKind = "experience"
	RecordStreak     RecordKind = "streak"
	RecordGoals      RecordKind = "goals"
)

// Record is one versioned, opaque engine snapshot. Data is JSON owned by the engine.
// Revision counts writes: LoadRecord reports the stored value, and SaveRecords
// expects it back unchanged and stores Revision+1. A record never saved has revision 0.
type Record struct {
	ProfileID string     `json:"profile_id"`
	Kind      RecordKind `json:"kind"`
	Version   int        `json:"version"`
	Revision  int64      `json:"revision"`
	Data      []byte     `json:"data"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store abstracts persistent engagement storage.
// Implemented by infra/sqlite, infra/firestore and infra/memstore.
type Store interface {
	// LoadRecord returns ErrRecordNotFound when nothing has been saved yet.
	LoadRecord(ctx context.Context, profileID string, kind RecordKind) (*Record, error)

	// SaveRecords writes all records in one atomic step. If any record's
	// Revision differs from the stored one, nothing is written and
	// ErrRevisionConflict is returned.
	SaveRecords(ctx context.Context, recs ...Record) error

	InsertNotification(ctx context.Context, n Notification) error
	ListPendingNotifications(ctx context.Context, profileID string, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, profileID, id string) error
	NotificationCountSince(ctx context.Context, profileID string, since time.Time) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Clock supplies the current instant. Engines truncate it to calendar days.
type Clock interface {
	Now() time.Time
}

// Publisher receives engagement events.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}
