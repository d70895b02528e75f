package jobstate

import "context"

// SnapshotReader exposes JobStateCore's read-only queries for callers on
// other threads that must never share a mutable transaction with the
// command-processing thread. Every method opens its own Engine.View, so a
// SnapshotReader never observes a transaction still in flight on the
// core's own goroutine. It is also the stand-in this repository gives a
// future gRPC/HTTP façade to wrap, since no protobuf bindings are
// available to build that façade directly (see DESIGN.md).
type SnapshotReader struct {
	store *Store
	core  *JobStateCore
}

// NewSnapshotReader wraps store/core for read-only access.
func NewSnapshotReader(store *Store, core *JobStateCore) *SnapshotReader {
	return &SnapshotReader{store: store, core: core}
}

// GetJob returns the job's record, or nil if absent.
func (r *SnapshotReader) GetJob(ctx context.Context, key uint64) (*JobRecord, error) {
	var rec *JobRecord
	err := r.store.Engine().View(ctx, func(txn Txn) error {
		got, err := r.core.GetJob(txn, key)
		rec = got
		return err
	})
	return rec, err
}

// GetState returns the job's lifecycle state, or StateNotFound if absent.
func (r *SnapshotReader) GetState(ctx context.Context, key uint64) (JobState, error) {
	var state JobState
	err := r.store.Engine().View(ctx, func(txn Txn) error {
		got, err := r.core.GetState(txn, key)
		state = got
		return err
	})
	return state, err
}

// Exists reports whether a job record is present.
func (r *SnapshotReader) Exists(ctx context.Context, key uint64) (bool, error) {
	var exists bool
	err := r.store.Engine().View(ctx, func(txn Txn) error {
		got, err := r.core.Exists(txn, key)
		exists = got
		return err
	})
	return exists, err
}

// ListActivatable collects every activatable job of jobType, up to limit
// entries (0 means unlimited). It is the snapshot-safe counterpart to
// JobStateCore.ForEachActivatable for callers that want a plain slice
// rather than a visitor callback.
func (r *SnapshotReader) ListActivatable(ctx context.Context, jobType []byte, limit int) ([]uint64, error) {
	var keys []uint64
	err := r.store.Engine().View(ctx, func(txn Txn) error {
		return r.core.ForEachActivatable(txn, jobType, func(key uint64, _ *JobRecord) (bool, error) {
			keys = append(keys, key)
			return limit <= 0 || len(keys) < limit, nil
		})
	})
	return keys, err
}

// ListTimedOut collects every job whose deadline is strictly less than
// upperBound, up to limit entries (0 means unlimited). ForEachTimedOut
// repairs dangling deadline entries by deleting them, which a read-only
// View transaction cannot do; if the engine enforces that (badger does),
// a dangling entry surfaces here as an error rather than being silently
// skipped. Callers that expect dangling entries should poll through
// BackoffScheduler's write-side sweep instead, which repairs them.
func (r *SnapshotReader) ListTimedOut(ctx context.Context, upperBound uint64, limit int) ([]uint64, error) {
	var keys []uint64
	err := r.store.Engine().View(ctx, func(txn Txn) error {
		return r.core.ForEachTimedOut(txn, upperBound, func(key uint64, _ *JobRecord) (bool, error) {
			keys = append(keys, key)
			return limit <= 0 || len(keys) < limit, nil
		})
	})
	return keys, err
}

// ListBackedOff collects every backed-off job due at or before now, up to
// limit entries (0 means unlimited), alongside the next-due time
// FindBackedOffJobs would report.
func (r *SnapshotReader) ListBackedOff(ctx context.Context, now uint64, limit int) ([]uint64, int64, error) {
	var keys []uint64
	var nextDue int64
	err := r.store.Engine().View(ctx, func(txn Txn) error {
		due, err := r.core.FindBackedOffJobs(txn, now, func(key uint64, _ *JobRecord) (bool, error) {
			keys = append(keys, key)
			return limit <= 0 || len(keys) < limit, nil
		})
		nextDue = due
		return err
	})
	return keys, nextDue, err
}
