// Package boltdb adapts bbolt to the lmx engine boundary. It is the pure
// Go engine: ordered, transactional, memory-mapped, with the status-code
// convention the access layer expects.
//
// Dup-sort databases are realized as nested buckets: each key maps to a
// sub-bucket whose keys are the duplicate values, which preserves byte-wise
// ordering among duplicates. Zero-length duplicate values cannot be
// represented (bbolt rejects empty bucket keys) and fail with ErrBadValSize.
package boltdb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/lmxdb/lmx"
)

// Reserved bucket names. Database "" lives in mainBucket; metaBucket
// records per-database flags so dup-sort survives reopen.
var (
	mainBucket = []byte("\x00lmx.main")
	metaBucket = []byte("\x00lmx.meta")
)

// initialMmapSize is the address-space reservation handed to bbolt at
// open; the data file only grows to what is actually written.
const initialMmapSize = 1 << 30

// Engine is a bbolt-backed lmx engine. Handle tables are mutex-protected
// because independent transactions may live on different goroutines; all
// per-transaction work remains single-threaded by the layer's contract.
type Engine struct {
	mu sync.Mutex

	db       *bolt.DB
	readonly bool

	txns     map[lmx.TxnHandle]*txnState
	nextTxn  uintptr
	cursors  map[lmx.CursorHandle]*cursorState
	nextCur  uintptr
	dbis     []*dbiState
	openTxns int
	openCurs int
}

type txnState struct {
	tx       *bolt.Tx
	readonly bool
	done     bool
}

type dbiState struct {
	name    string
	bname   []byte
	flags   uint
	dupSort bool
	dropped bool
}

// New returns an unopened engine.
func New() *Engine {
	return &Engine{
		txns:    make(map[lmx.TxnHandle]*txnState),
		cursors: make(map[lmx.CursorHandle]*cursorState),
	}
}

// OpenTxns reports the number of live transactions, for leak checks.
func (e *Engine) OpenTxns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openTxns
}

// OpenCursors reports the number of live cursors, for leak checks.
func (e *Engine) OpenCursors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openCurs
}

func (e *Engine) Open(path string, flags uint, mode os.FileMode) int {
	file := path
	if flags&lmx.NoSubdir == 0 {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return int(lmx.ErrPanic)
		}
		file = filepath.Join(path, "data.db")
	}
	e.readonly = flags&lmx.Readonly != 0
	opts := &bolt.Options{
		ReadOnly: e.readonly,
		NoSync:   flags&lmx.NoSync != 0,
		// Pre-size the mmap: bbolt blocks a growing commit until every
		// reader closes when it has to remap, which would wedge the
		// one-writer-many-readers model. Virtual reservation only.
		InitialMmapSize: initialMmapSize,
	}
	db, err := bolt.Open(file, mode, opts)
	if err != nil {
		return int(lmx.ErrInvalid)
	}
	e.db = db
	return 0
}

func (e *Engine) Close() {
	if e.db != nil {
		_ = e.db.Close()
		e.db = nil
	}
}

func (e *Engine) BeginTxn(flags uint) (lmx.TxnHandle, int) {
	readonly := flags&lmx.TxnReadOnly != 0
	if !readonly && e.readonly {
		return 0, int(lmx.ErrPermissionDenied)
	}
	tx, err := e.db.Begin(!readonly)
	if err != nil {
		return 0, rcOf(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextTxn++
	h := lmx.TxnHandle(e.nextTxn)
	e.txns[h] = &txnState{tx: tx, readonly: readonly}
	e.openTxns++
	return h, 0
}

func (e *Engine) txn(h lmx.TxnHandle) *txnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txns[h]
}

func (e *Engine) Commit(h lmx.TxnHandle) int {
	e.mu.Lock()
	t := e.txns[h]
	if t == nil || t.done {
		e.mu.Unlock()
		return int(lmx.ErrBadTxn)
	}
	delete(e.txns, h)
	e.openTxns--
	e.mu.Unlock()
	t.done = true
	if t.readonly {
		// A reader holds no modifications; commit is just the release.
		// A Reset reader already gave its tx back and only needs the
		// handle dropped.
		if t.tx != nil {
			_ = t.tx.Rollback()
		}
		return 0
	}
	return rcOf(t.tx.Commit())
}

func (e *Engine) Abort(h lmx.TxnHandle) {
	e.mu.Lock()
	t := e.txns[h]
	if t == nil || t.done {
		e.mu.Unlock()
		return
	}
	delete(e.txns, h)
	e.openTxns--
	e.mu.Unlock()
	t.done = true
	if t.tx != nil {
		_ = t.tx.Rollback()
	}
}

func (e *Engine) Reset(h lmx.TxnHandle) {
	t := e.txn(h)
	if t == nil || t.done || !t.readonly || t.tx == nil {
		return
	}
	_ = t.tx.Rollback()
	t.tx = nil
}

func (e *Engine) Renew(h lmx.TxnHandle) int {
	t := e.txn(h)
	if t == nil || t.done || !t.readonly {
		return int(lmx.ErrBadTxn)
	}
	if t.tx != nil {
		_ = t.tx.Rollback()
	}
	tx, err := e.db.Begin(false)
	if err != nil {
		return rcOf(err)
	}
	t.tx = tx
	return 0
}

func (e *Engine) OpenDBI(h lmx.TxnHandle, name string, flags uint) (lmx.DBIHandle, uint, int) {
	t := e.txn(h)
	if t == nil || t.done || t.tx == nil {
		return 0, 0, int(lmx.ErrBadTxn)
	}
	bname := []byte(name)
	if name == "" {
		bname = mainBucket
	}

	e.mu.Lock()
	for i, d := range e.dbis {
		if d.name == name && !d.dropped {
			existing := d
			e.mu.Unlock()
			if flags&lmx.DupSort != 0 && !existing.dupSort {
				return 0, 0, int(lmx.ErrIncompatible)
			}
			return lmx.DBIHandle(i + 1), existing.flags, 0
		}
	}
	e.mu.Unlock()

	stored, hasMeta := e.metaFlags(t.tx, name)
	if b := t.tx.Bucket(bname); b == nil {
		if flags&lmx.Create == 0 {
			return 0, 0, int(lmx.ErrNotFound)
		}
		if t.readonly {
			return 0, 0, int(lmx.ErrPermissionDenied)
		}
		if _, err := t.tx.CreateBucketIfNotExists(bname); err != nil {
			return 0, 0, rcOf(err)
		}
		if err := e.putMetaFlags(t.tx, name, flags); err != nil {
			return 0, 0, rcOf(err)
		}
		stored = flags
	} else if hasMeta && flags&lmx.DupSort != 0 && stored&lmx.DupSort == 0 {
		return 0, 0, int(lmx.ErrIncompatible)
	}

	// The persisted flags win over what the caller passed, so a dup-sort
	// database reopened with flags 0 still reports DupSort.
	eff := (stored | flags) & (lmx.DupSort | lmx.ReverseKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dbis = append(e.dbis, &dbiState{
		name:    name,
		bname:   bname,
		flags:   eff,
		dupSort: eff&lmx.DupSort != 0,
	})
	return lmx.DBIHandle(len(e.dbis)), eff, 0
}

func (e *Engine) dbi(h lmx.DBIHandle) *dbiState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == 0 || int(h) > len(e.dbis) {
		return nil
	}
	d := e.dbis[h-1]
	if d.dropped {
		return nil
	}
	return d
}

func (e *Engine) CloseDBI(h lmx.DBIHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == 0 || int(h) > len(e.dbis) {
		return
	}
	e.dbis[h-1].dropped = true
}

func (e *Engine) metaFlags(tx *bolt.Tx, name string) (uint, bool) {
	mb := tx.Bucket(metaBucket)
	if mb == nil {
		return 0, false
	}
	v := mb.Get([]byte(name))
	if len(v) < 4 {
		return 0, false
	}
	f := uint(v[0]) | uint(v[1])<<8 | uint(v[2])<<16 | uint(v[3])<<24
	return f, true
}

func (e *Engine) putMetaFlags(tx *bolt.Tx, name string, flags uint) error {
	mb, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}
	f := flags & (lmx.DupSort | lmx.ReverseKey)
	return mb.Put([]byte(name), []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// resolve fetches the live bucket for a txn/dbi pair.
func (e *Engine) resolve(th lmx.TxnHandle, dh lmx.DBIHandle) (*txnState, *dbiState, *bolt.Bucket, int) {
	t := e.txn(th)
	if t == nil || t.done || t.tx == nil {
		return nil, nil, nil, int(lmx.ErrBadTxn)
	}
	d := e.dbi(dh)
	if d == nil {
		return nil, nil, nil, int(lmx.ErrBadDBI)
	}
	b := t.tx.Bucket(d.bname)
	if b == nil {
		return nil, nil, nil, int(lmx.ErrBadDBI)
	}
	return t, d, b, 0
}

func (e *Engine) Get(th lmx.TxnHandle, dh lmx.DBIHandle, key, val *lmx.Val) int {
	_, d, b, rc := e.resolve(th, dh)
	if rc != 0 {
		return rc
	}
	k := key.Bytes()
	if d.dupSort {
		sub := b.Bucket(k)
		if sub == nil {
			return int(lmx.ErrNotFound)
		}
		first, _ := sub.Cursor().First()
		if first == nil {
			return int(lmx.ErrNotFound)
		}
		*val = lmx.Wrap(first)
		return 0
	}
	v := b.Get(k)
	if v == nil {
		return int(lmx.ErrNotFound)
	}
	*val = lmx.Wrap(v)
	return 0
}

func (e *Engine) Put(th lmx.TxnHandle, dh lmx.DBIHandle, key, val *lmx.Val, flags uint) int {
	t, d, b, rc := e.resolve(th, dh)
	if rc != 0 {
		return rc
	}
	if t.readonly {
		return int(lmx.ErrPermissionDenied)
	}
	return put(b, d, key, val, flags)
}

// put is shared by Put and CursorPut. bbolt retains references to the
// slices it is handed until commit, while the boundary only guarantees
// caller buffers for the call's duration, so keys and values are copied
// here. Reserve is the exception: its whole point is handing back the
// retained buffer for the caller to fill.
func put(b *bolt.Bucket, d *dbiState, key, val *lmx.Val, flags uint) int {
	k := key.Copy()
	if len(k) == 0 {
		return int(lmx.ErrBadValSize)
	}
	if d.dupSort {
		if flags&lmx.Reserve != 0 {
			return int(lmx.ErrIncompatible)
		}
		if flags&lmx.NoOverwrite != 0 {
			if sub := b.Bucket(k); sub != nil {
				if first, _ := sub.Cursor().First(); first != nil {
					*val = lmx.Wrap(first)
					return int(lmx.ErrKeyExist)
				}
			}
		}
		v := val.Copy()
		if len(v) == 0 {
			return int(lmx.ErrBadValSize)
		}
		sub, err := b.CreateBucketIfNotExists(k)
		if err != nil {
			return rcOf(err)
		}
		if flags&lmx.NoDupData != 0 && dupExists(sub, v) {
			return int(lmx.ErrKeyExist)
		}
		return rcOf(sub.Put(v, []byte{}))
	}
	if flags&lmx.NoOverwrite != 0 {
		if existing := b.Get(k); existing != nil {
			*val = lmx.Wrap(existing)
			return int(lmx.ErrKeyExist)
		}
	}
	if flags&lmx.Reserve != 0 {
		buf := make([]byte, val.Size)
		if err := b.Put(k, buf); err != nil {
			return rcOf(err)
		}
		*val = lmx.Wrap(buf)
		return 0
	}
	return rcOf(b.Put(k, val.Copy()))
}

func dupExists(sub *bolt.Bucket, v []byte) bool {
	k, _ := sub.Cursor().Seek(v)
	return bytes.Equal(k, v)
}

func (e *Engine) Del(th lmx.TxnHandle, dh lmx.DBIHandle, key, val *lmx.Val) int {
	t, d, b, rc := e.resolve(th, dh)
	if rc != 0 {
		return rc
	}
	if t.readonly {
		return int(lmx.ErrPermissionDenied)
	}
	k := key.Bytes()
	if d.dupSort {
		sub := b.Bucket(k)
		if sub == nil {
			return int(lmx.ErrNotFound)
		}
		if val == nil {
			return rcOf(b.DeleteBucket(key.Copy()))
		}
		v := val.Bytes()
		if !dupExists(sub, v) {
			return int(lmx.ErrNotFound)
		}
		if rc := rcOf(sub.Delete(val.Copy())); rc != 0 {
			return rc
		}
		if first, _ := sub.Cursor().First(); first == nil {
			return rcOf(b.DeleteBucket(key.Copy()))
		}
		return 0
	}
	if b.Get(k) == nil {
		return int(lmx.ErrNotFound)
	}
	return rcOf(b.Delete(key.Copy()))
}

func (e *Engine) Drop(th lmx.TxnHandle, dh lmx.DBIHandle, del bool) int {
	t, d, _, rc := e.resolve(th, dh)
	if rc != 0 {
		return rc
	}
	if t.readonly {
		return int(lmx.ErrPermissionDenied)
	}
	if err := t.tx.DeleteBucket(d.bname); err != nil {
		return rcOf(err)
	}
	if !del {
		if _, err := t.tx.CreateBucketIfNotExists(d.bname); err != nil {
			return rcOf(err)
		}
		return 0
	}
	if mb := t.tx.Bucket(metaBucket); mb != nil {
		_ = mb.Delete([]byte(d.name))
	}
	d.dropped = true
	return 0
}

func (e *Engine) Stat(th lmx.TxnHandle, dh lmx.DBIHandle) (*lmx.Stat, int) {
	t, d, b, rc := e.resolve(th, dh)
	if rc != 0 {
		return nil, rc
	}
	bs := b.Stats()
	st := &lmx.Stat{
		PSize:         uint(t.tx.DB().Info().PageSize),
		Depth:         uint(bs.Depth),
		BranchPages:   uint64(bs.BranchPageN),
		LeafPages:     uint64(bs.LeafPageN),
		OverflowPages: uint64(bs.BranchOverflowN + bs.LeafOverflowN),
		Entries:       uint64(bs.KeyN),
	}
	if d.dupSort {
		// KeyN counts sub-buckets; the entries are the duplicates inside.
		var entries uint64
		_ = b.ForEach(func(k, v []byte) error {
			if sub := b.Bucket(k); sub != nil {
				entries += uint64(sub.Stats().KeyN)
			}
			return nil
		})
		st.Entries = entries
	}
	return st, 0
}

// rcOf maps bbolt errors onto boundary status codes.
func rcOf(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bolt.ErrTxNotWritable):
		return int(lmx.ErrPermissionDenied)
	case errors.Is(err, bolt.ErrKeyTooLarge), errors.Is(err, bolt.ErrValueTooLarge), errors.Is(err, bolt.ErrKeyRequired):
		return int(lmx.ErrBadValSize)
	case errors.Is(err, bolt.ErrIncompatibleValue):
		return int(lmx.ErrIncompatible)
	case errors.Is(err, bolt.ErrBucketNotFound):
		return int(lmx.ErrNotFound)
	case errors.Is(err, bolt.ErrBucketExists):
		return int(lmx.ErrKeyExist)
	case errors.Is(err, bolt.ErrDatabaseNotOpen), errors.Is(err, bolt.ErrTxClosed):
		return int(lmx.ErrBadTxn)
	default:
		return int(lmx.ErrProblem)
	}
}
