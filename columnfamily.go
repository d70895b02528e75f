package jobstate

// ColumnFamily enumerates the five logical keyspaces this package keeps
// mutually consistent under one transaction. Declaration order is
// load-bearing: Store derives each column family's 2-byte physical-key
// prefix from its ordinal here, the same way Zeebe's RocksDB column
// families derive a prefix from their enum ordinal. Never reorder
// existing entries; only append.
type ColumnFamily uint16

const (
	CFJobs ColumnFamily = iota
	CFJobStates
	CFJobActivatable
	CFJobDeadlines
	CFJobBackoff

	cfCount
)

func (cf ColumnFamily) String() string {
	switch cf {
	case CFJobs:
		return "JOBS"
	case CFJobStates:
		return "JOB_STATES"
	case CFJobActivatable:
		return "JOB_ACTIVATABLE"
	case CFJobDeadlines:
		return "JOB_DEADLINES"
	case CFJobBackoff:
		return "JOB_BACKOFF"
	default:
		return "UNKNOWN_CF"
	}
}

// ColumnFamilyHandle is a typed view over one logical keyspace of the
// engine: every key passed through it is prefixed with the column family's
// 2-byte ordinal before being handed to the underlying Txn, so all five
// column families can share one physical keyspace.
type ColumnFamilyHandle struct {
	cf     ColumnFamily
	prefix []byte // 2-byte big-endian ordinal, precomputed once
}

func newColumnFamilyHandle(cf ColumnFamily) *ColumnFamilyHandle {
	return &ColumnFamilyHandle{
		cf:     cf,
		prefix: appendUint16(make([]byte, 0, 2), uint16(cf)),
	}
}

// physicalKey prepends the column-family prefix to a logical key.
func (h *ColumnFamilyHandle) physicalKey(key []byte) []byte {
	out := make([]byte, 0, len(h.prefix)+len(key))
	out = append(out, h.prefix...)
	return append(out, key...)
}

// logicalKey strips the column-family prefix from a physical key returned
// by an iterator.
func (h *ColumnFamilyHandle) logicalKey(physical []byte) []byte {
	if len(physical) < len(h.prefix) {
		return nil
	}
	return physical[len(h.prefix):]
}

// Get performs a point lookup. It reports ok=false, not an error, when the
// key is absent.
func (h *ColumnFamilyHandle) Get(txn Txn, key []byte) (value []byte, ok bool, err error) {
	v, err := txn.Get(h.physicalKey(key))
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, engineErrorf(err, "get from %s", h.cf)
	}
	return v, true, nil
}

// Put upserts key to value.
func (h *ColumnFamilyHandle) Put(txn Txn, key, value []byte) error {
	if err := txn.Set(h.physicalKey(key), value); err != nil {
		return engineErrorf(err, "put into %s", h.cf)
	}
	return nil
}

// Delete removes key. Idempotent: deleting an absent key is not an error.
func (h *ColumnFamilyHandle) Delete(txn Txn, key []byte) error {
	if err := txn.Delete(h.physicalKey(key)); err != nil {
		return engineErrorf(err, "delete from %s", h.cf)
	}
	return nil
}

// Exists reports whether key is present.
func (h *ColumnFamilyHandle) Exists(txn Txn, key []byte) (bool, error) {
	_, ok, err := h.Get(txn, key)
	return ok, err
}

// ScanPrefixVisitor is called for every (key, value) pair matching a scan,
// in key order. key and value are the logical (unprefixed) key and the raw
// value; both are only valid until the visitor returns. Returning false
// stops the scan.
type ScanPrefixVisitor func(key, value []byte) (bool, error)

// ScanPrefix enumerates every (k, v) whose logical key starts with prefix,
// in key order, until the visitor returns false, returns an error, or the
// prefix is exhausted. The visitor may call Delete on the current key;
// iteration remains well-defined because the iterator is snapshot-backed
// and deletes are captured by the enclosing transaction rather than
// mutating the iterator in place.
func (h *ColumnFamilyHandle) ScanPrefix(txn Txn, prefix []byte, visit ScanPrefixVisitor) error {
	physicalPrefix := h.physicalKey(prefix)
	it := txn.NewIterator(physicalPrefix)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := h.logicalKey(it.Key())
		value, err := it.Value()
		if err != nil {
			return engineErrorf(err, "read value during scan of %s", h.cf)
		}
		cont, err := visit(key, value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// ScanAll enumerates every (k, v) in the column family, in key order, with
// the same early-exit and in-scan-deletion contract as ScanPrefix. Callers
// typically derive ordering from the key itself (e.g. a deadline-ordered
// scan over JOB_DEADLINES).
func (h *ColumnFamilyHandle) ScanAll(txn Txn, visit ScanPrefixVisitor) error {
	return h.ScanPrefix(txn, nil, visit)
}
