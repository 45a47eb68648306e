package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

// recordVersion is the schema version written with every engine snapshot.
// Records carrying a higher version were written by a newer build and are ignored.
const recordVersion = 1

// recorder loads and saves one engine's snapshot for one profile.
// Failures never propagate: load falls back to defaults, save is logged and counted.
//
// A recorder remembers the revision its snapshot was read at. Standalone it
// writes on every save; under a Manager it is staged, and save only queues the
// snapshot until commit writes the profile's records together.
type recorder struct {
	store     domain.Store
	profileID string
	kind      domain.RecordKind
	log       *zap.Logger

	rev     int64
	staged  bool
	pending *domain.Record
}

func newRecorder(store domain.Store, profileID string, kind domain.RecordKind, logger *zap.Logger) recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return recorder{
		store:     store,
		profileID: profileID,
		kind:      kind,
		log:       logger.With(zap.String("profile", profileID), zap.String("record", string(kind))),
	}
}

// load decodes the stored snapshot into v. It reports whether v was populated.
// An unreadable record still sets the revision so the next save replaces it.
func (r *recorder) load(ctx context.Context, v any) bool {
	if r.store == nil {
		return false
	}
	start := time.Now()
	rec, err := r.store.LoadRecord(ctx, r.profileID, r.kind)
	metrics.StoreLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	if errors.Is(err, domain.ErrRecordNotFound) {
		return false
	}
	if err == nil {
		r.rev = rec.Revision
		if rec.Version > recordVersion {
			err = fmt.Errorf("%w: got %d, max %d", domain.ErrUnsupportedVersion, rec.Version, recordVersion)
		}
	}
	if err == nil {
		if uerr := json.Unmarshal(rec.Data, v); uerr != nil {
			err = fmt.Errorf("decode %s record: %w", r.kind, uerr)
		}
	}
	if err != nil {
		r.failed("load", err)
		r.log.Warn("engagement record unreadable, starting from defaults", zap.Error(err))
		return false
	}
	return true
}

// save writes v as the profile's snapshot, or queues it when staged.
func (r *recorder) save(ctx context.Context, v any) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.failed("save", err)
		r.log.Error("encode engagement record", zap.Error(err))
		return
	}
	rec := domain.Record{
		ProfileID: r.profileID,
		Kind:      r.kind,
		Version:   recordVersion,
		Revision:  r.rev,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	r.pending = &rec
	if r.staged {
		return
	}
	if err := commit(ctx, r.store, r); errors.Is(err, domain.ErrRevisionConflict) {
		r.failed("save", err)
	}
}

func (r *recorder) failed(op string, err error) {
	metrics.PersistenceFailures.WithLabelValues(op, string(r.kind)).Inc()
	if op == "save" {
		r.log.Error("save engagement record", zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
	}
}

// commit writes every queued snapshot in one atomic step and advances the
// revisions. On failure the snapshots stay queued and the error is returned;
// anything but a revision conflict is also logged and counted.
func commit(ctx context.Context, store domain.Store, recs ...*recorder) error {
	if store == nil {
		return nil
	}
	var (
		batch  []domain.Record
		owners []*recorder
	)
	for _, r := range recs {
		if r.pending != nil {
			batch = append(batch, *r.pending)
			owners = append(owners, r)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := store.SaveRecords(ctx, batch...)
	metrics.StoreLatency.WithLabelValues("save").Observe(time.Since(start).Seconds())
	if errors.Is(err, domain.ErrRevisionConflict) {
		metrics.RevisionConflicts.Inc()
		return err
	}
	if err != nil {
		for _, r := range owners {
			r.failed("save", err)
		}
		return err
	}
	for _, r := range owners {
		r.rev++
		r.pending = nil
	}
	return nil
}
