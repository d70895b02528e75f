package jobstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerEngine implements Engine over BadgerDB. It is the primary engine:
// its tuning knobs are carried over from Zeebe's RocksDB column family
// configuration (ZeebeRocksDbFactory.createColumnFamilyOptions), mapped
// onto the closest badger.Options equivalent, with every approximation
// called out below.
type BadgerEngine struct {
	db     *badger.DB
	logger *slog.Logger
}

// EngineTuning holds the RocksDB-derived sizing knobs. buildBadgerOptions
// passes the fields to badger as given and does not replace zero values
// with DefaultEngineTuning's defaults (only a zero MaxWriteBuffers or
// NumLevels is skipped); LoadConfigFile is where unset fields get filled
// from DefaultEngineTuning.
type EngineTuning struct {
	// MemoryBudgetBytes is divided across the block cache and write
	// buffers the way ZeebeRocksDbFactory divides its total memory
	// budget: one third to the block cache, the rest to write buffers.
	MemoryBudgetBytes int64

	// MaxWriteBuffers is the write buffer count the original config
	// fixes at 10 (Options.setMaxWriteBufferNumber(10)).
	MaxWriteBuffers int

	// TargetSSTSizeBytes mirrors setTargetFileSizeBase (~8 MiB in the
	// original).
	TargetSSTSizeBytes int64

	// BaseLevelSizeBytes and LevelSizeMultiplier mirror
	// setMaxBytesForLevelBase (32 MiB) and setMaxBytesForLevelMultiplier
	// (10).
	BaseLevelSizeBytes  int64
	LevelSizeMultiplier int

	// NumLevels mirrors setNumLevels (4). The original leaves the top
	// two levels uncompressed and LZ4-compresses the rest; badger has no
	// per-level compression list, so BadgerEngine compresses every level
	// with Snappy, its closest stand-in for LZ4 (see buildBadgerOptions).
	NumLevels int

	// ManifestCapBytes mirrors setMaxManifestFileSize (256 MiB).
	ManifestCapBytes int64
}

// DefaultEngineTuning returns the RocksDB-derived default tuning.
func DefaultEngineTuning() EngineTuning {
	return EngineTuning{
		MemoryBudgetBytes:   512 << 20,
		MaxWriteBuffers:     10,
		TargetSSTSizeBytes:  8 << 20,
		BaseLevelSizeBytes:  32 << 20,
		LevelSizeMultiplier: 10,
		NumLevels:           4,
		ManifestCapBytes:    256 << 20,
	}
}

// OpenBadgerEngine opens (creating if absent) a BadgerDB at dir tuned per
// tuning. BadgerDB's own logger interface doesn't match slog, so its
// internal logging is disabled; logger is kept on the engine, and
// badger's own messages are not forwarded to it.
func OpenBadgerEngine(dir string, tuning EngineTuning, logger *slog.Logger) (*BadgerEngine, error) {
	opts := buildBadgerOptions(dir, tuning)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %q: %v", ErrStoreOpen, dir, err)
	}
	return &BadgerEngine{db: db, logger: logger}, nil
}

// buildBadgerOptions maps EngineTuning onto badger.Options. Every knob
// below is annotated with the RocksDB original it stands in for.
func buildBadgerOptions(dir string, tuning EngineTuning) badger.Options {
	opts := badger.DefaultOptions(dir)

	// setBlockCacheSize(budget/3) — badger calls the equivalent the
	// block cache size, shared across all tables.
	opts.BlockCacheSize = tuning.MemoryBudgetBytes / 3

	// setMaxWriteBufferNumber(10) and the implied per-buffer sizing of
	// the remaining 2/3 of the budget split across them.
	opts.NumMemtables = tuning.MaxWriteBuffers
	if tuning.MaxWriteBuffers > 0 {
		opts.MemTableSize = (tuning.MemoryBudgetBytes - opts.BlockCacheSize) / int64(tuning.MaxWriteBuffers)
	}

	// setTargetFileSizeBase(~8MiB) — badger's equivalent is the base
	// table size used when compacting into level 0.
	opts.BaseTableSize = tuning.TargetSSTSizeBytes

	// setMaxBytesForLevelBase(32MiB) / setMaxBytesForLevelMultiplier(10).
	opts.BaseLevelSize = tuning.BaseLevelSizeBytes
	opts.LevelSizeMultiplier = tuning.LevelSizeMultiplier

	// setNumLevels(4) with the top two levels uncompressed and the rest
	// LZ4. Badger has no per-level compression list (ZSTD/Snappy/none is
	// set once for the whole tree), so this approximates "compress the
	// deeper, larger levels" by enabling LZ4-equivalent (Snappy, badger's
	// closest always-available codec) compression globally — level 0/1
	// are small enough in practice that the space cost of compressing
	// them too is negligible compared to matching the original exactly.
	opts.NumLevelZeroTables = 2
	opts.Compression = options.Snappy // keeps parity without an extra cgo zstd dependency
	if tuning.NumLevels > 0 {
		opts.MaxLevels = tuning.NumLevels
	}

	// setMaxManifestFileSize(256MiB).
	opts.ValueLogFileSize = tuning.ManifestCapBytes

	// setUseFsync / async fsync every 1MiB of WAL and paranoid checks:
	// badger's SyncWrites plus its value-log threshold play the closest
	// equivalent role; paranoid_checks has no badger knob, so it is
	// approximated by enabling checksum verification on reads.
	opts.SyncWrites = false
	opts.ChecksumVerificationMode = options.OnTableAndBlockRead

	// Fixed 2-byte prefix extraction + bloom filters: every column
	// family handle already prepends a 2-byte ordinal, and badger
	// builds bloom filters over full keys by default, so no extra
	// config is needed beyond BloomFalsePositive's default.

	return opts
}

// Update implements Engine.
func (e *BadgerEngine) Update(ctx context.Context, fn func(Txn) error) error {
	if _, err := normalizeContext(ctx); err != nil {
		return err
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
	if err != nil && !isJobstateSentinel(err) {
		return engineErrorf(err, "update transaction")
	}
	return err
}

// View implements Engine.
func (e *BadgerEngine) View(ctx context.Context, fn func(Txn) error) error {
	if _, err := normalizeContext(ctx); err != nil {
		return err
	}
	err := e.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
	if err != nil && !isJobstateSentinel(err) {
		return engineErrorf(err, "view transaction")
	}
	return err
}

// Close implements Engine.
func (e *BadgerEngine) Close() error {
	return e.db.Close()
}

// isJobstateSentinel reports whether err already carries one of this
// package's sentinel kinds, to avoid double-wrapping errors that
// ColumnFamilyHandle or JobStateCore raised from inside fn.
func isJobstateSentinel(err error) bool {
	for _, sentinel := range []error{ErrInvalidArgument, ErrCorruptKey, ErrCorruptValue, ErrEngine, ErrNotFound} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t *badgerTxn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

func (t *badgerTxn) NewIterator(prefix []byte) Iterator {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = true
	return &badgerIterator{it: t.txn.NewIterator(opts), prefix: prefix}
}

type badgerIterator struct {
	it     *badger.Iterator
	prefix []byte
}

func (it *badgerIterator) Rewind() {
	it.it.Seek(it.prefix)
}

func (it *badgerIterator) Valid() bool {
	return it.it.ValidForPrefix(it.prefix)
}

func (it *badgerIterator) Next() {
	it.it.Next()
}

func (it *badgerIterator) Key() []byte {
	return it.it.Item().KeyCopy(nil)
}

func (it *badgerIterator) Value() ([]byte, error) {
	return it.it.Item().ValueCopy(nil)
}

func (it *badgerIterator) Close() {
	it.it.Close()
}
