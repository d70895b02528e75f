package jobstate

import (
	"context"
	"log/slog"
	"time"
)

// BackoffScheduler drives the two time-based sweeps the store itself never
// triggers on its own: backed-off jobs becoming due again, and activated
// jobs whose deadline has passed. It only calls into JobStateCore's
// existing iteration API on a timer; it never dispatches work itself and
// never adds a second notification channel alongside Notifier.
type BackoffScheduler struct {
	store  *Store
	core   *JobStateCore
	logger *slog.Logger

	now func() uint64

	minInterval time.Duration
	maxInterval time.Duration
}

// NewBackoffScheduler wires a BackoffScheduler to core's column families.
// now supplies the current time as a millisecond epoch, matching the unit
// JobRecord.Deadline/RecurringTime are encoded in; minInterval/maxInterval
// bound how soon or how late the scheduler may re-poll when it has no
// exact next-due time to wait for.
func NewBackoffScheduler(store *Store, core *JobStateCore, logger *slog.Logger, now func() uint64, minInterval, maxInterval time.Duration) *BackoffScheduler {
	return &BackoffScheduler{
		store:       store,
		core:        core,
		logger:      logger,
		now:         now,
		minInterval: minInterval,
		maxInterval: maxInterval,
	}
}

// RecurAfterBackoffFunc is consulted for each due backoff entry, with the
// transaction the sweep is running in: it should call
// JobStateCore.RecurAfterBackoff (or equivalent) on that same txn for jobs
// it wants to wake, and return whether the entry was consumed, exactly
// matching BackoffPredicate's contract. PollBackoff opens the transaction
// internally, so this takes txn explicitly rather than relying on a
// closure to have captured one — there is none to capture.
type RecurAfterBackoffFunc func(txn Txn, key uint64, rec *JobRecord) (bool, error)

// PollBackoff runs one FindBackedOffJobs sweep inside a single engine
// transaction and returns the duration the caller should wait before
// calling PollBackoff again: the gap until the next known due time if one
// was reported, clamped to [minInterval, maxInterval], or maxInterval if
// the backoff index is currently empty.
func (s *BackoffScheduler) PollBackoff(ctx context.Context, consume RecurAfterBackoffFunc) (time.Duration, error) {
	var nextDue int64
	err := s.store.Engine().Update(ctx, func(txn Txn) error {
		due, err := s.core.FindBackedOffJobs(txn, s.now(), func(key uint64, rec *JobRecord) (bool, error) {
			return consume(txn, key, rec)
		})
		nextDue = due
		return err
	})
	if err != nil {
		return 0, err
	}
	return s.waitFor(nextDue), nil
}

// TimeoutFunc is consulted for each timed-out job, with the transaction
// the sweep is running in: it should call JobStateCore.Timeout on that
// same txn for jobs it wants to restore to ACTIVATABLE.
type TimeoutFunc func(txn Txn, key uint64, rec *JobRecord) (bool, error)

// PollTimeouts runs one ForEachTimedOut sweep up to the current time
// inside a single engine transaction.
func (s *BackoffScheduler) PollTimeouts(ctx context.Context, handle TimeoutFunc) error {
	return s.store.Engine().Update(ctx, func(txn Txn) error {
		return s.core.ForEachTimedOut(txn, s.now(), func(key uint64, rec *JobRecord) (bool, error) {
			return handle(txn, key, rec)
		})
	})
}

// Run polls backoff and timeout sweeps in a loop until ctx is done,
// sleeping between sweeps for the duration PollBackoff reports. Callers
// that want independent cadences for the two sweeps should call
// PollBackoff/PollTimeouts directly instead of Run.
func (s *BackoffScheduler) Run(ctx context.Context, consume RecurAfterBackoffFunc, timeout TimeoutFunc) {
	wait := s.minInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := s.PollTimeouts(ctx, timeout); err != nil {
			s.logger.Error("timeout sweep failed", "error", err)
		}

		next, err := s.PollBackoff(ctx, consume)
		if err != nil {
			s.logger.Error("backoff sweep failed", "error", err)
			wait = s.minInterval
			continue
		}
		wait = next
	}
}

// waitFor converts a FindBackedOffJobs return value into a sleep duration,
// clamped to [minInterval, maxInterval].
func (s *BackoffScheduler) waitFor(nextDue int64) time.Duration {
	if nextDue < 0 {
		return s.maxInterval
	}
	delta := time.Duration(nextDue-int64(s.now())) * time.Millisecond
	if delta < s.minInterval {
		return s.minInterval
	}
	if delta > s.maxInterval {
		return s.maxInterval
	}
	return delta
}
