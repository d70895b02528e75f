package jobstate

import "log/slog"

// JobStateCore is the transactional job state machine. It owns
// all five column families and every method takes the active transaction
// explicitly — there is no implicit per-core transaction, matching the
// single-threaded-per-partition ownership model: the caller (a partition's
// command processor) already holds the only reference to the Txn in
// flight.
type JobStateCore struct {
	store    *Store
	notifier *Notifier
	metrics  *MetricsSink
	logger   *slog.Logger
}

// NewJobStateCore wires a JobStateCore to the column families in store,
// notifying through notifier and counting through metrics.
func NewJobStateCore(store *Store, notifier *Notifier, metrics *MetricsSink, logger *slog.Logger) *JobStateCore {
	return &JobStateCore{store: store, notifier: notifier, metrics: metrics, logger: logger}
}

// Create writes a new job in ACTIVATABLE state and notifies listeners of
// its type.
func (c *JobStateCore) Create(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("create: job %d has empty type", key)
	}
	if err := c.putRecord(txn, key, rec); err != nil {
		return err
	}
	if err := c.setState(txn, key, StateActivatable); err != nil {
		return err
	}
	if err := c.makeActivatable(txn, rec.Type, key); err != nil {
		return err
	}
	c.metrics.recordCreated()
	return nil
}

// Activate transitions a job from ACTIVATABLE to ACTIVATED, moving its
// index membership from JOB_ACTIVATABLE to JOB_DEADLINES.
func (c *JobStateCore) Activate(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("activate: job %d has empty type", key)
	}
	if rec.Deadline == 0 {
		return invalidArgumentf("activate: job %d has non-positive deadline", key)
	}
	if err := c.putRecord(txn, key, rec); err != nil {
		return err
	}
	if err := c.setState(txn, key, StateActivated); err != nil {
		return err
	}
	if err := c.makeNotActivatable(txn, rec.Type, key); err != nil {
		return err
	}
	if err := c.store.Deadlines.Put(txn, encodeU64JobKey(rec.Deadline, key), nil); err != nil {
		return err
	}
	c.metrics.recordActivated()
	return nil
}

// Timeout restores a job whose activation deadline expired back to
// ACTIVATABLE, removing the stale deadline entry.
func (c *JobStateCore) Timeout(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("timeout: job %d has empty type", key)
	}
	if rec.Deadline == 0 {
		return invalidArgumentf("timeout: job %d has non-positive deadline", key)
	}
	if err := c.putRecord(txn, key, rec); err != nil {
		return err
	}
	if err := c.setState(txn, key, StateActivatable); err != nil {
		return err
	}
	if err := c.makeActivatable(txn, rec.Type, key); err != nil {
		return err
	}
	if err := c.removeDeadline(txn, rec.Deadline, key); err != nil {
		return err
	}
	c.metrics.recordTimedOut()
	return nil
}

// Complete purges a job and increments the completed counter, but only if
// the job still existed — completing an already-absent key is a no-op
// and must not inflate the counter.
func (c *JobStateCore) Complete(txn Txn, key uint64, rec *JobRecord) error {
	existed, err := c.store.JobStates.Exists(txn, encodeJobKey(key))
	if err != nil {
		return err
	}
	if err := c.purge(txn, key, rec); err != nil {
		return err
	}
	if existed {
		c.metrics.recordCompleted()
	}
	return nil
}

// Cancel purges a job. Identical to Complete apart from metrics: there is
// no dedicated "cancelled" counter.
func (c *JobStateCore) Cancel(txn Txn, key uint64, rec *JobRecord) error {
	return c.purge(txn, key, rec)
}

// Delete purges a job. Identical to Cancel; kept as a distinct method
// because callers name the operation that triggered the purge.
func (c *JobStateCore) Delete(txn Txn, key uint64, rec *JobRecord) error {
	return c.purge(txn, key, rec)
}

// purge removes JOBS[k], JOB_STATES[k], the activatable entry, and the
// deadline entry. It deliberately leaves any backoff entry untouched: a
// job simultaneously FAILED with a backoff entry is only ever reached
// through resolve/recurAfterBackoff first, never through delete, so
// delete has no backoff entry to clean up in practice.
func (c *JobStateCore) purge(txn Txn, key uint64, rec *JobRecord) error {
	jobKey := encodeJobKey(key)
	if err := c.store.Jobs.Delete(txn, jobKey); err != nil {
		return err
	}
	if err := c.store.JobStates.Delete(txn, jobKey); err != nil {
		return err
	}
	if err := c.makeNotActivatable(txn, rec.Type, key); err != nil {
		return err
	}
	if err := c.removeDeadline(txn, rec.Deadline, key); err != nil {
		return err
	}
	return nil
}

// Disable transitions a job to FAILED without touching the backoff index
// (used when a job is disabled outright rather than retried).
func (c *JobStateCore) Disable(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("disable: job %d has empty type", key)
	}
	if err := c.updateJob(txn, key, rec, StateFailed); err != nil {
		return err
	}
	return c.makeNotActivatable(txn, rec.Type, key)
}

// ThrowError transitions a job to ERROR_THROWN.
func (c *JobStateCore) ThrowError(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("throwError: job %d has empty type", key)
	}
	if err := c.updateJob(txn, key, rec, StateErrorThrown); err != nil {
		return err
	}
	return c.makeNotActivatable(txn, rec.Type, key)
}

// Fail applies the three-way retry/backoff branch: back off with a
// positive backoff, retry immediately with no backoff, or fail outright
// with no retries left.
func (c *JobStateCore) Fail(txn Txn, key uint64, rec *JobRecord) error {
	switch {
	case rec.Retries > 0 && rec.RetryBackoff > 0:
		if err := c.store.Backoff.Put(txn, encodeU64JobKey(rec.RecurringTime, key), nil); err != nil {
			return err
		}
		if err := c.updateJob(txn, key, rec, StateFailed); err != nil {
			return err
		}
		c.metrics.recordFailed()
		return nil
	case rec.Retries > 0:
		return c.updateJob(txn, key, rec, StateActivatable)
	default:
		if err := c.updateJob(txn, key, rec, StateFailed); err != nil {
			return err
		}
		c.metrics.recordFailed()
		return nil
	}
}

// Resolve transitions a job back to ACTIVATABLE (from FAILED or
// ERROR_THROWN).
func (c *JobStateCore) Resolve(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("resolve: job %d has empty type", key)
	}
	return c.updateJob(txn, key, rec, StateActivatable)
}

// RecurAfterBackoff transitions a backed-off job back to ACTIVATABLE and
// removes its backoff entry.
func (c *JobStateCore) RecurAfterBackoff(txn Txn, key uint64, rec *JobRecord) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("recurAfterBackoff: job %d has empty type", key)
	}
	if err := c.updateJob(txn, key, rec, StateActivatable); err != nil {
		return err
	}
	return c.store.Backoff.Delete(txn, encodeU64JobKey(rec.RecurringTime, key))
}

// UpdateJobRetries overwrites the retry count on an existing job without
// touching the state machine: callers moving a FAILED job with fresh
// retries back to ACTIVATABLE must call Resolve separately. Returns nil,
// nil if the job does not exist.
func (c *JobStateCore) UpdateJobRetries(txn Txn, key uint64, retries int32) (*JobRecord, error) {
	rec, err := c.GetJob(txn, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	rec.SetRetries(retries)
	if err := c.putRecord(txn, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// updateJob is the shared tail of disable/throwError/fail/resolve/
// recurAfterBackoff: validate, overwrite the record, set the new state,
// re-insert into JOB_ACTIVATABLE when the new state is ACTIVATABLE, and
// drop any stale deadline entry.
func (c *JobStateCore) updateJob(txn Txn, key uint64, rec *JobRecord, newState JobState) error {
	if len(rec.Type) == 0 {
		return invalidArgumentf("job %d has empty type", key)
	}
	if err := c.putRecord(txn, key, rec); err != nil {
		return err
	}
	if err := c.setState(txn, key, newState); err != nil {
		return err
	}
	if newState == StateActivatable {
		if err := c.makeActivatable(txn, rec.Type, key); err != nil {
			return err
		}
	}
	if rec.Deadline > 0 {
		if err := c.removeDeadline(txn, rec.Deadline, key); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a job record is present.
func (c *JobStateCore) Exists(txn Txn, key uint64) (bool, error) {
	return c.store.Jobs.Exists(txn, encodeJobKey(key))
}

// GetState returns the job's lifecycle state, or StateNotFound if absent.
func (c *JobStateCore) GetState(txn Txn, key uint64) (JobState, error) {
	value, ok, err := c.store.JobStates.Get(txn, encodeJobKey(key))
	if err != nil {
		return "", err
	}
	if !ok {
		return StateNotFound, nil
	}
	return decodeState(value)
}

// IsInState reports whether key's current state equals state.
func (c *JobStateCore) IsInState(txn Txn, key uint64, state JobState) (bool, error) {
	got, err := c.GetState(txn, key)
	if err != nil {
		return false, err
	}
	return got == state, nil
}

// GetJob returns the job's record (variables already stripped at write
// time), or nil if absent.
func (c *JobStateCore) GetJob(txn Txn, key uint64) (*JobRecord, error) {
	value, ok, err := c.store.Jobs.Get(txn, encodeJobKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeRecord(value)
}

// ActivatableVisitor is called for each activatable job of a requested
// type. Returning false stops iteration early.
type ActivatableVisitor func(key uint64, rec *JobRecord) (bool, error)

// ForEachActivatable visits every job offerable for jobType, in key
// order, until the visitor returns false or the type's entries are
// exhausted. Unlike ForEachTimedOut and FindBackedOffJobs, a dangling
// activatable entry (no corresponding JOBS record) is only logged, never
// repaired.
func (c *JobStateCore) ForEachActivatable(txn Txn, jobType []byte, visit ActivatableVisitor) error {
	return c.store.Activatable.ScanPrefix(txn, typePrefix(jobType), func(k, _ []byte) (bool, error) {
		_, jobKey, err := decodeTypeJobKey(k)
		if err != nil {
			return false, err
		}
		rec, err := c.GetJob(txn, jobKey)
		if err != nil {
			return false, err
		}
		if rec == nil {
			c.logger.Error("dangling activatable index entry", "jobKey", jobKey, "type", string(jobType))
			return true, nil
		}
		return visit(jobKey, rec)
	})
}

// TimedOutVisitor is called for each timed-out job. Returning false stops
// iteration early.
type TimedOutVisitor func(key uint64, rec *JobRecord) (bool, error)

// ForEachTimedOut walks JOB_DEADLINES in ascending deadline order,
// visiting every entry whose deadline is strictly less than upperBound. A
// dangling deadline entry is repaired (deleted) and iteration continues;
// iteration stops at the visitor's request or at the first entry whose
// deadline is no longer less than upperBound.
func (c *JobStateCore) ForEachTimedOut(txn Txn, upperBound uint64, visit TimedOutVisitor) error {
	return c.store.Deadlines.ScanAll(txn, func(k, _ []byte) (bool, error) {
		deadline, jobKey, err := decodeU64JobKey(k)
		if err != nil {
			return false, err
		}
		if deadline >= upperBound {
			return false, nil
		}
		rec, err := c.GetJob(txn, jobKey)
		if err != nil {
			return false, err
		}
		if rec == nil {
			c.logger.Error("dangling deadline index entry", "jobKey", jobKey, "deadline", deadline)
			if err := c.store.Deadlines.Delete(txn, k); err != nil {
				return false, err
			}
			return true, nil
		}
		return visit(jobKey, rec)
	})
}

// BackoffPredicate is consulted for each due backoff entry. Returning
// false pauses the scan, making that entry's due time the reported
// next-due value.
type BackoffPredicate func(key uint64, rec *JobRecord) (bool, error)

// FindBackedOffJobs scans JOB_BACKOFF in ascending due-time order,
// consulting predicate for each entry whose due time is at most now. It
// returns the due time of the first entry not consumed this call — either
// because the predicate paused the scan there, or because the scan ran
// off the end of the due entries into a not-yet-due one — or -1 if no
// entries remain at all.
func (c *JobStateCore) FindBackedOffJobs(txn Txn, now uint64, predicate BackoffPredicate) (int64, error) {
	nextDue := int64(-1)
	err := c.store.Backoff.ScanAll(txn, func(k, _ []byte) (bool, error) {
		dueTime, jobKey, err := decodeU64JobKey(k)
		if err != nil {
			return false, err
		}
		if dueTime > now {
			nextDue = int64(dueTime)
			return false, nil
		}
		rec, err := c.GetJob(txn, jobKey)
		if err != nil {
			return false, err
		}
		if rec == nil {
			c.logger.Error("dangling backoff index entry", "jobKey", jobKey, "dueTime", dueTime)
			if err := c.store.Backoff.Delete(txn, k); err != nil {
				return false, err
			}
			return true, nil
		}
		consumed, err := predicate(jobKey, rec)
		if err != nil {
			return false, err
		}
		if !consumed {
			nextDue = int64(dueTime)
			return false, nil
		}
		return true, nil
	})
	return nextDue, err
}

func (c *JobStateCore) putRecord(txn Txn, key uint64, rec *JobRecord) error {
	projected := rec.withoutVariables()
	data, err := encodeRecord(projected)
	if err != nil {
		return err
	}
	return c.store.Jobs.Put(txn, encodeJobKey(key), data)
}

func (c *JobStateCore) setState(txn Txn, key uint64, state JobState) error {
	return c.store.JobStates.Put(txn, encodeJobKey(key), encodeState(state))
}

func (c *JobStateCore) makeActivatable(txn Txn, jobType []byte, key uint64) error {
	if len(jobType) == 0 {
		return invalidArgumentf("makeActivatable: job %d has empty type", key)
	}
	if err := c.store.Activatable.Put(txn, encodeTypeJobKey(jobType, key), nil); err != nil {
		return err
	}
	c.notifier.Notify(jobType)
	return nil
}

func (c *JobStateCore) makeNotActivatable(txn Txn, jobType []byte, key uint64) error {
	if len(jobType) == 0 {
		return nil
	}
	return c.store.Activatable.Delete(txn, encodeTypeJobKey(jobType, key))
}

func (c *JobStateCore) removeDeadline(txn Txn, deadline uint64, key uint64) error {
	return c.store.Deadlines.Delete(txn, encodeU64JobKey(deadline, key))
}
