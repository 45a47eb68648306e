// Package memstore keeps engagement records in process memory.
// Used by tests and by the "memory" store driver; nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/touchsync/touchsync/internal/domain"
)

type recordKey struct {
	profile string
	kind    domain.RecordKind
}

// Store is a concurrency-safe in-memory domain.Store.
type Store struct {
	mu            sync.RWMutex
	records       map[recordKey]domain.Record
	notifications map[string][]domain.Notification // by profile, insertion order
	closed        bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:       make(map[recordKey]domain.Record),
		notifications: make(map[string][]domain.Notification),
	}
}

// LoadRecord returns a copy of the stored record.
func (s *Store) LoadRecord(_ context.Context, profileID string, kind domain.RecordKind) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{profileID, kind}]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec, nil
}

// SaveRecords writes every record or none of them.
func (s *Store) SaveRecords(_ context.Context, recs ...domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if cur := s.records[recordKey{rec.ProfileID, rec.Kind}].Revision; cur != rec.Revision {
			return fmt.Errorf("%w: %s record of %s at revision %d, stored %d",
				domain.ErrRevisionConflict, rec.Kind, rec.ProfileID, rec.Revision, cur)
		}
	}
	for _, rec := range recs {
		rec.Data = append([]byte(nil), rec.Data...)
		rec.Revision++
		s.records[recordKey{rec.ProfileID, rec.Kind}] = rec
	}
	return nil
}

// InsertNotification appends a notification.
func (s *Store) InsertNotification(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ProfileID] = append(s.notifications[n.ProfileID], n)
	return nil
}

// ListPendingNotifications returns unshown notifications, oldest first.
func (s *Store) ListPendingNotifications(_ context.Context, profileID string, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Notification{}
	for _, n := range s.notifications[profileID] {
		if n.Shown {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotificationShown flags a notification as shown.
func (s *Store) MarkNotificationShown(_ context.Context, profileID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifications[profileID]
	for i := range list {
		if list[i].ID == id {
			list[i].Shown = true
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

// NotificationCountSince counts notifications created at or after since.
func (s *Store) NotificationCountSince(_ context.Context, profileID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications[profileID] {
		if !n.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Ping always succeeds until the store is closed.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrPersistence
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
