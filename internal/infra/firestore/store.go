// Package firestore stores engagement state in Cloud Firestore.
//
// Layout:
//
//	profiles/{profileID}/engagement/{kind}        one document per engine record
//	profiles/{profileID}/notifications/{id}       notification log
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/touchsync/touchsync/internal/domain"
)

const (
	profilesCollection      = "profiles"
	engagementCollection    = "engagement"
	notificationsCollection = "notifications"
)

// Store is a Firestore-backed domain.Store.
type Store struct {
	client *firestore.Client
}

// Open connects to the project's Firestore. The client talks to the emulator
// when FIRESTORE_EMULATOR_HOST is set.
func Open(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client), nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

type recordDoc struct {
	Version   int       `firestore:"version"`
	Revision  int64     `firestore:"revision"`
	Data      []byte    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type notificationDoc struct {
	Type      string    `firestore:"type"`
	Title     string    `firestore:"title"`
	Body      string    `firestore:"body"`
	CreatedAt time.Time `firestore:"created_at"`
	Shown     bool      `firestore:"shown"`
}

func (s *Store) profile(profileID string) *firestore.DocumentRef {
	return s.client.Collection(profilesCollection).Doc(profileID)
}

func (s *Store) record(profileID string, kind domain.RecordKind) *firestore.DocumentRef {
	return s.profile(profileID).Collection(engagementCollection).Doc(string(kind))
}

// LoadRecord reads one engine record.
func (s *Store) LoadRecord(ctx context.Context, profileID string, kind domain.RecordKind) (*domain.Record, error) {
	snap, err := s.record(profileID, kind).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s record: %w", kind, err)
	}
	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", kind, err)
	}
	return &domain.Record{
		ProfileID: profileID,
		Kind:      kind,
		Version:   doc.Version,
		Revision:  doc.Revision,
		Data:      doc.Data,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// SaveRecords writes the records in one transaction. The stored revisions are
// read first; a mismatch aborts the transaction with domain.ErrRevisionConflict.
func (s *Store) SaveRecords(ctx context.Context, recs ...domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	refs := make([]*firestore.DocumentRef, len(recs))
	for i, rec := range recs {
		refs[i] = s.record(rec.ProfileID, rec.Kind)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for i, snap := range snaps {
			var stored int64
			if snap.Exists() {
				var doc recordDoc
				if err := snap.DataTo(&doc); err != nil {
					return fmt.Errorf("decode %s record: %w", recs[i].Kind, err)
				}
				stored = doc.Revision
			}
			if stored != recs[i].Revision {
				return fmt.Errorf("%w: %s record of %s at revision %d, stored %d",
					domain.ErrRevisionConflict, recs[i].Kind, recs[i].ProfileID, recs[i].Revision, stored)
			}
		}
		for i, rec := range recs {
			if err := tx.Set(refs[i], recordDoc{
				Version:   rec.Version,
				Revision:  rec.Revision + 1,
				Data:      rec.Data,
				UpdatedAt: rec.UpdatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrRevisionConflict) {
		return fmt.Errorf("save records: %w", err)
	}
	return err
}

// InsertNotification creates a notification document; IDs are never reused.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := s.profile(n.ProfileID).Collection(notificationsCollection).Doc(n.ID).Create(ctx, notificationDoc{
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		CreatedAt: n.CreatedAt,
		Shown:     n.Shown,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("notification %s already exists", n.ID)
	}
	return err
}

// ListPendingNotifications returns unshown notifications, oldest first.
func (s *Store) ListPendingNotifications(ctx context.Context, profileID string, limit int) ([]domain.Notification, error) {
	iter := s.profile(profileID).Collection(notificationsCollection).
		Where("shown", "==", false).
		OrderBy("created_at", firestore.Asc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	out := []domain.Notification{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc notificationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", snap.Ref.ID, err)
		}
		out = append(out, domain.Notification{
			ID:        snap.Ref.ID,
			ProfileID: profileID,
			Type:      domain.EventType(doc.Type),
			Title:     doc.Title,
			Body:      doc.Body,
			CreatedAt: doc.CreatedAt,
			Shown:     doc.Shown,
		})
	}
	return out, nil
}

// MarkNotificationShown flags a notification as shown.
func (s *Store) MarkNotificationShown(ctx context.Context, profileID, id string) error {
	_, err := s.profile(profileID).Collection(notificationsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "shown", Value: true},
	})
	if status.Code(err) == codes.NotFound {
		return domain.ErrNotificationNotFound
	}
	return err
}

// NotificationCountSince counts a profile's notifications created at or after since.
func (s *Store) NotificationCountSince(ctx context.Context, profileID string, since time.Time) (int, error) {
	iter := s.profile(profileID).Collection(notificationsCollection).
		Where("created_at", ">=", since).
		Select().
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return count, nil
		}
		if err != nil {
			return 0, err
		}
		count++
	}
}

// Ping issues a minimal read against the profiles collection.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection(profilesCollection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
