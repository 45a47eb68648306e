package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/touchsync/touchsync/internal/domain"
)

// ─── Engagement Records ─────────────────────────────────────────────────────

// LoadRecord retrieves one engine snapshot.
// Returns domain.ErrRecordNotFound if nothing has been saved.
func (d *DB) LoadRecord(ctx context.Context, profileID string, kind domain.RecordKind) (*domain.Record, error) {
	rec := domain.Record{ProfileID: profileID, Kind: kind}
	var updatedAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT version, revision, data, updated_at FROM engagement_records
		 WHERE profile_id = ? AND kind = ?`,
		profileID, string(kind),
	).Scan(&rec.Version, &rec.Revision, &rec.Data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s record: %w", kind, err)
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

// SaveRecords writes the snapshots in one transaction. Each write is
// conditional on the record's revision, so a writer holding a stale copy
// gets domain.ErrRevisionConflict instead of overwriting newer state.
func (d *DB) SaveRecords(ctx context.Context, recs ...domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		var res sql.Result
		if rec.Revision == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO engagement_records (profile_id, kind, version, revision, data, updated_at)
				 VALUES (?, ?, ?, 1, ?, ?)
				 ON CONFLICT(profile_id, kind) DO NOTHING`,
				rec.ProfileID, string(rec.Kind), rec.Version, rec.Data, rec.UpdatedAt.UnixMilli(),
			)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE engagement_records
				 SET version = ?, revision = revision + 1, data = ?, updated_at = ?
				 WHERE profile_id = ? AND kind = ? AND revision = ?`,
				rec.Version, rec.Data, rec.UpdatedAt.UnixMilli(),
				rec.ProfileID, string(rec.Kind), rec.Revision,
			)
		}
		if err != nil {
			return fmt.Errorf("save %s record: %w", rec.Kind, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s record of %s at revision %d", domain.ErrRevisionConflict, rec.Kind, rec.ProfileID, rec.Revision)
		}
	}
	return tx.Commit()
}

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification creates a new notification.
func (d *DB) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO notifications (id, profile_id, type, title, body, created_at, shown)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ProfileID, string(n.Type), n.Title, n.Body, n.CreatedAt.UnixMilli(), n.Shown,
	)
	return err
}

// NotificationCountSince returns how many notifications a profile received since t.
func (d *DB) NotificationCountSince(ctx context.Context, profileID string, since time.Time) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE profile_id = ? AND created_at >= ?`,
		profileID, since.UnixMilli(),
	).Scan(&count)
	return count, err
}

// ListPendingNotifications returns unshown notifications, oldest first.
func (d *DB) ListPendingNotifications(ctx context.Context, profileID string, limit int) ([]domain.Notification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, profile_id, type, title, body, created_at, shown
		 FROM notifications WHERE profile_id = ? AND shown = 0
		 ORDER BY created_at ASC, seq ASC LIMIT ?`, profileID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifs := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotifRows(rows)
		if err != nil {
			return nil, err
		}
		notifs = append(notifs, *n)
	}
	return notifs, rows.Err()
}

// MarkNotificationShown marks a notification as shown.
func (d *DB) MarkNotificationShown(ctx context.Context, profileID, id string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE notifications SET shown = 1 WHERE profile_id = ? AND id = ?`, profileID, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func scanNotifRows(rows *sql.Rows) (*domain.Notification, error) {
	var n domain.Notification
	var createdAt int64
	err := rows.Scan(&n.ID, &n.ProfileID, &n.Type, &n.Title, &n.Body, &createdAt, &n.Shown)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &n, nil
}
