package jobstate

import "fmt"

// Store wraps an already-open Engine and registers the fixed enumeration
// of column families job state needs. The column family set is closed
// over at compile time — ColumnFamily's declared constants — so Open
// never needs to consult any runtime configuration to know what to
// register.
type Store struct {
	engine Engine

	Jobs        *ColumnFamilyHandle
	JobStates   *ColumnFamilyHandle
	Activatable *ColumnFamilyHandle
	Deadlines   *ColumnFamilyHandle
	Backoff     *ColumnFamilyHandle

	acquired []ColumnFamily // acquisition order, for reverse-order release bookkeeping
}

// Open registers every column family against engine and returns a ready
// Store. engine must already be open; Open never opens or closes the
// underlying directory itself — callers that want Store to own the
// engine's lifecycle should call Store.Close, which closes engine too.
func Open(engine Engine) (*Store, error) {
	s := &Store{engine: engine}

	for _, cf := range []ColumnFamily{CFJobs, CFJobStates, CFJobActivatable, CFJobDeadlines, CFJobBackoff} {
		handle := newColumnFamilyHandle(cf)
		switch cf {
		case CFJobs:
			s.Jobs = handle
		case CFJobStates:
			s.JobStates = handle
		case CFJobActivatable:
			s.Activatable = handle
		case CFJobDeadlines:
			s.Deadlines = handle
		case CFJobBackoff:
			s.Backoff = handle
		default:
			if closeErr := s.engine.Close(); closeErr != nil {
				return nil, fmt.Errorf("%w: unknown column family %d (cleanup also failed: %v)", ErrStoreOpen, cf, closeErr)
			}
			return nil, fmt.Errorf("%w: unknown column family %d", ErrStoreOpen, cf)
		}
		s.acquired = append(s.acquired, cf)
	}

	return s, nil
}

// Engine returns the underlying engine, for callers that need to start
// transactions directly (JobStateCore) or hand it to a SnapshotReader.
func (s *Store) Engine() Engine {
	return s.engine
}

// Close releases the column families in the reverse of their acquisition
// order, then closes the engine. Column family handles hold no resources
// of their own today, so the reverse walk is a no-op in practice — it is
// kept so that a future handle with real per-CF state (a cached iterator
// pool, say) has a defined teardown order to slot into.
func (s *Store) Close() error {
	for i := len(s.acquired) - 1; i >= 0; i-- {
		// no per-handle teardown yet
	}
	return s.engine.Close()
}
