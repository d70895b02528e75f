package jobstate

import "context"

// Engine is the contract this package consumes from an embedded, ordered,
// prefix-scannable, transactional key-value store. BadgerEngine and
// SQLiteEngine are the two concrete
// implementations; ColumnFamilyHandle and JobStateCore only ever see this
// interface, never a concrete engine type, so the job-state logic is
// identical regardless of which engine a Store opens.
type Engine interface {
	// Update runs fn inside a read-write transaction. If fn returns a
	// non-nil error, the transaction is rolled back and the error is
	// returned (wrapped in ErrEngine if it originated below this
	// package). If fn returns nil, the transaction is committed.
	Update(ctx context.Context, fn func(Txn) error) error

	// View runs fn inside a read-only transaction taken against a
	// consistent snapshot. Writes issued by other, concurrently
	// committing transactions are never visible to it.
	View(ctx context.Context, fn func(Txn) error) error

	// Close releases every resource the engine holds.
	Close() error
}

// Txn is a single active transaction, scoped to one logical keyspace at a
// time by the 2-byte column-family prefix ColumnFamilyHandle prepends to
// every key it hands to Get/Set/Delete/NewIterator.
type Txn interface {
	// Get returns the value stored at key, or ErrNotFound if absent.
	Get(key []byte) ([]byte, error)

	// Set upserts key to value.
	Set(key []byte, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// NewIterator returns an iterator over every key with the given
	// prefix, in ascending key order, taken against this transaction's
	// snapshot. Deletes issued through this same Txn while the iterator
	// is open are honored without invalidating the iterator — the
	// dangling-index repair scans in JobStateCore rely on this.
	NewIterator(prefix []byte) Iterator
}

// Iterator walks a transaction's snapshot in ascending key order.
type Iterator interface {
	// Rewind seeks to the first key matching the iterator's prefix.
	Rewind()
	// Valid reports whether the iterator is positioned on a matching
	// key.
	Valid() bool
	// Next advances to the next matching key.
	Next()
	// Key returns the current key, including its column-family prefix.
	// The returned slice may be reused by the next call to Next; callers
	// that need to retain it must copy.
	Key() []byte
	// Value returns the current value. May copy or borrow depending on
	// the engine; treat as valid only until the next iterator call.
	Value() ([]byte, error)
	// Close releases the iterator. Must be called exactly once.
	Close()
}
