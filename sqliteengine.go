//go:build sqlite
// +build sqlite

package jobstate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteEngine implements Engine over a single ordered BLOB keyspace table,
// shared by every column family via the 2-byte ordinal prefix
// ColumnFamilyHandle already prepends to every key. It is the alternate
// engine for single-process deployments that would rather depend on CGO
// and SQLite's file format than on BadgerDB's LSM tree.
type SQLiteEngine struct {
	db *sql.DB
}

// OpenSQLiteEngine opens (creating if absent) a SQLite database at path
// and ensures the keyspace table and its ordering index exist.
func OpenSQLiteEngine(path string) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite at %q: %v", ErrStoreOpen, path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: ping sqlite at %q: %v", ErrStoreOpen, path, err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS keyspace (
		k BLOB PRIMARY KEY,
		v BLOB NOT NULL
	) WITHOUT ROWID;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrStoreOpen, err)
	}

	return &SQLiteEngine{db: db}, nil
}

// Update implements Engine.
func (e *SQLiteEngine) Update(ctx context.Context, fn func(Txn) error) error {
	ctx, err := normalizeContext(ctx)
	if err != nil {
		return err
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return engineErrorf(err, "begin update transaction")
	}
	if err := fn(&sqliteTxn{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		if isJobstateSentinel(err) {
			return err
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return engineErrorf(err, "commit update transaction")
	}
	return nil
}

// View implements Engine. SQLite's transaction isolation already gives a
// read transaction a consistent snapshot for its duration.
func (e *SQLiteEngine) View(ctx context.Context, fn func(Txn) error) error {
	ctx, err := normalizeContext(ctx)
	if err != nil {
		return err
	}
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return engineErrorf(err, "begin view transaction")
	}
	defer tx.Rollback()
	return fn(&sqliteTxn{ctx: ctx, tx: tx})
}

// Close implements Engine.
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

type sqliteTxn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTxn) Get(key []byte) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT v FROM keyspace WHERE k = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (t *sqliteTxn) Set(key, value []byte) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO keyspace (k, v) VALUES (?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v
	`, key, value)
	return err
}

func (t *sqliteTxn) Delete(key []byte) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM keyspace WHERE k = ?`, key)
	return err
}

func (t *sqliteTxn) NewIterator(prefix []byte) Iterator {
	return &sqliteIterator{ctx: t.ctx, tx: t.tx, prefix: prefix}
}

// sqliteIterator loads the full matching key range up front rather than
// streaming rows, so that deletes issued by the visitor mid-scan can never
// invalidate an open *sql.Rows cursor on the same transaction.
type sqliteIterator struct {
	ctx    context.Context
	tx     *sql.Tx
	prefix []byte

	loaded bool
	keys   [][]byte
	values [][]byte
	pos    int
}

func (it *sqliteIterator) load() {
	if it.loaded {
		return
	}
	it.loaded = true

	var rows *sql.Rows
	var err error
	if len(it.prefix) == 0 {
		rows, err = it.tx.QueryContext(it.ctx, `SELECT k, v FROM keyspace ORDER BY k ASC`)
	} else {
		upper := prefixUpperBound(it.prefix)
		if upper == nil {
			rows, err = it.tx.QueryContext(it.ctx, `SELECT k, v FROM keyspace WHERE k >= ? ORDER BY k ASC`, it.prefix)
		} else {
			rows, err = it.tx.QueryContext(it.ctx, `SELECT k, v FROM keyspace WHERE k >= ? AND k < ? ORDER BY k ASC`, it.prefix, upper)
		}
	}
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return
		}
		it.keys = append(it.keys, k)
		it.values = append(it.values, v)
	}
}

// prefixUpperBound returns the smallest key that is not prefixed by
// prefix, i.e. prefix incremented in its last non-0xFF byte with every
// trailing 0xFF byte dropped. Returns nil if prefix is all 0xFF bytes
// (meaning the scan has no upper bound).
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (it *sqliteIterator) Rewind() {
	it.load()
	it.pos = 0
}

func (it *sqliteIterator) Valid() bool {
	return it.pos < len(it.keys)
}

func (it *sqliteIterator) Next() {
	it.pos++
}

func (it *sqliteIterator) Key() []byte {
	return it.keys[it.pos]
}

func (it *sqliteIterator) Value() ([]byte, error) {
	return it.values[it.pos], nil
}

func (it *sqliteIterator) Close() {}
