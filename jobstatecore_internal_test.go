package jobstate

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newInternalTestCore(t *testing.T) (*Store, *JobStateCore) {
	t.Helper()
	dir, err := os.MkdirTemp("", "jobstate_internal_*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := OpenBadgerEngine(dir, DefaultEngineTuning(), logger)
	require.NoError(t, err)

	store, err := Open(engine)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics, err := NewMetricsSink(prometheus.NewRegistry(), 0)
	require.NoError(t, err)

	core := NewJobStateCore(store, NewNotifier(logger), metrics, logger)
	return store, core
}

// TestForEachActivatableLeavesDanglingEntry exercises the documented
// asymmetry: a JOB_ACTIVATABLE entry with no backing job record is logged
// and skipped, never deleted, unlike ForEachTimedOut/FindBackedOffJobs.
func TestForEachActivatableLeavesDanglingEntry(t *testing.T) {
	store, core := newInternalTestCore(t)
	ctx := context.Background()
	jobType := []byte("send_email")

	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		return store.Activatable.Put(txn, encodeTypeJobKey(jobType, 99), nil)
	}))

	var visited []uint64
	require.NoError(t, store.Engine().View(ctx, func(txn Txn) error {
		return core.ForEachActivatable(txn, jobType, func(key uint64, _ *JobRecord) (bool, error) {
			visited = append(visited, key)
			return true, nil
		})
	}))
	require.Empty(t, visited)

	var stillThere bool
	require.NoError(t, store.Engine().View(ctx, func(txn Txn) error {
		got, err := store.Activatable.Exists(txn, encodeTypeJobKey(jobType, 99))
		stillThere = got
		return err
	}))
	require.True(t, stillThere, "dangling activatable entry must survive a visit, per the documented asymmetry")
}

// TestForEachTimedOutRepairsDanglingEntry exercises the opposite half of
// the asymmetry: a dangling JOB_DEADLINES entry is deleted during the scan.
func TestForEachTimedOutRepairsDanglingEntry(t *testing.T) {
	store, core := newInternalTestCore(t)
	ctx := context.Background()
	deadline := uint64(time.Now().Add(-time.Minute).UnixMilli())

	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		return store.Deadlines.Put(txn, encodeU64JobKey(deadline, 7), nil)
	}))

	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		return core.ForEachTimedOut(txn, uint64(time.Now().UnixMilli()), func(key uint64, _ *JobRecord) (bool, error) {
			t.Fatalf("visitor must not run for a dangling entry")
			return true, nil
		})
	}))

	var stillThere bool
	require.NoError(t, store.Engine().View(ctx, func(txn Txn) error {
		got, err := store.Deadlines.Exists(txn, encodeU64JobKey(deadline, 7))
		stillThere = got
		return err
	}))
	require.False(t, stillThere, "dangling deadline entry must be repaired by ForEachTimedOut")
}

// TestFindBackedOffJobsRepairsDanglingEntry mirrors the deadline case for
// JOB_BACKOFF.
func TestFindBackedOffJobsRepairsDanglingEntry(t *testing.T) {
	store, core := newInternalTestCore(t)
	ctx := context.Background()
	dueTime := uint64(time.Now().Add(-time.Minute).UnixMilli())

	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		return store.Backoff.Put(txn, encodeU64JobKey(dueTime, 11), nil)
	}))

	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		_, err := core.FindBackedOffJobs(txn, uint64(time.Now().UnixMilli()), func(key uint64, _ *JobRecord) (bool, error) {
			t.Fatalf("predicate must not run for a dangling entry")
			return true, nil
		})
		return err
	}))

	var stillThere bool
	require.NoError(t, store.Engine().View(ctx, func(txn Txn) error {
		got, err := store.Backoff.Exists(txn, encodeU64JobKey(dueTime, 11))
		stillThere = got
		return err
	}))
	require.False(t, stillThere, "dangling backoff entry must be repaired by FindBackedOffJobs")
}

// TestUpdateJobRetriesNeverTouchesState confirms spec Open Question (a)'s
// resolution: changing retries alone never moves a job out of FAILED.
func TestUpdateJobRetriesNeverTouchesState(t *testing.T) {
	store, core := newInternalTestCore(t)
	ctx := context.Background()

	rec := &JobRecord{Type: []byte("send_email"), Retries: 0}
	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		return core.Create(txn, 1, rec)
	}))
	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		return core.Disable(txn, 1, rec)
	}))

	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		updated, err := core.UpdateJobRetries(txn, 1, 5)
		require.NoError(t, err)
		require.Equal(t, int32(5), updated.Retries)
		return nil
	}))

	var state JobState
	require.NoError(t, store.Engine().View(ctx, func(txn Txn) error {
		got, err := core.GetState(txn, 1)
		state = got
		return err
	}))
	require.Equal(t, StateFailed, state, "UpdateJobRetries must not move the job out of FAILED")
}
