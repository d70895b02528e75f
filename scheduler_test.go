package jobstate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, store *Store, core *JobStateCore, now func() uint64) *BackoffScheduler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBackoffScheduler(store, core, logger, now, 10*time.Millisecond, time.Second)
}

func TestPollBackoffWaitsForNextDueTime(t *testing.T) {
	store, core := newInternalTestCore(t)
	ctx := context.Background()

	base := uint64(time.Now().UnixMilli())
	nowFn := func() uint64 { return base }
	scheduler := newTestScheduler(t, store, core, nowFn)

	rec := &JobRecord{Type: []byte("send_email"), Retries: 2, RetryBackoff: 5000, RecurringTime: base + 250}
	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		if err := core.Create(txn, 1, rec); err != nil {
			return err
		}
		return core.Fail(txn, 1, rec)
	}))

	wait, err := scheduler.PollBackoff(ctx, func(txn Txn, key uint64, _ *JobRecord) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	require.InDelta(t, 250*time.Millisecond, wait, float64(10*time.Millisecond))
}

func TestPollBackoffReturnsMaxIntervalWhenEmpty(t *testing.T) {
	store, core := newInternalTestCore(t)
	nowFn := func() uint64 { return uint64(time.Now().UnixMilli()) }
	scheduler := newTestScheduler(t, store, core, nowFn)

	wait, err := scheduler.PollBackoff(context.Background(), func(txn Txn, key uint64, _ *JobRecord) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, time.Second, wait)
}

func TestPollTimeoutsRestoresActivatable(t *testing.T) {
	store, core := newInternalTestCore(t)
	ctx := context.Background()

	base := uint64(time.Now().UnixMilli())
	nowFn := func() uint64 { return base }
	scheduler := newTestScheduler(t, store, core, nowFn)

	rec := &JobRecord{Type: []byte("send_email"), Retries: 1, Deadline: base - 1000}
	require.NoError(t, store.Engine().Update(ctx, func(txn Txn) error {
		if err := core.Create(txn, 1, rec); err != nil {
			return err
		}
		return core.Activate(txn, 1, rec)
	}))

	require.NoError(t, scheduler.PollTimeouts(ctx, func(txn Txn, key uint64, timedOut *JobRecord) (bool, error) {
		return true, core.Timeout(txn, key, timedOut)
	}))

	var state JobState
	require.NoError(t, store.Engine().View(ctx, func(txn Txn) error {
		got, err := core.GetState(txn, 1)
		state = got
		return err
	}))
	require.Equal(t, StateActivatable, state)
}
