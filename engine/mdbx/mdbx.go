// Package mdbx adapts libmdbx, via the mdbx-go cgo binding, to the
// lmx.Engine boundary. It is the production engine: descriptors written
// back from gets and cursor moves reference the memory map directly, so
// the zero-copy paths through the layer involve no copying at all.
//
// Write transactions pin the calling goroutine to its OS thread for
// their lifetime; begin and commit must happen on the same goroutine.
package mdbx

import (
	"errors"
	"os"
	"runtime"
	"sync"

	gomdbx "github.com/erigontech/mdbx-go/mdbx"

	"github.com/lmxdb/lmx"
)

const (
	maxDBs     = 64
	maxReaders = 128

	geomUpper  = 1 << 34
	geomGrowth = 1 << 23
)

// Engine wraps one mdbx environment. Handle tables translate the
// boundary's opaque handles to mdbx-go objects.
type Engine struct {
	label string

	mu      sync.Mutex
	env     *gomdbx.Env
	txns    map[lmx.TxnHandle]*txnState
	nextTxn uintptr
	curs    map[lmx.CursorHandle]*cursorState
	nextCur uintptr
}

type txnState struct {
	t        *gomdbx.Txn
	readonly bool
	locked   bool
	done     bool

	// Cursors opened under a write transaction; libmdbx invalidates
	// them when the transaction ends, so the adapter closes them first.
	curs []lmx.CursorHandle
}

type cursorState struct {
	c   *gomdbx.Cursor
	t   *txnState
	dbi gomdbx.DBI
}

// New returns an unopened engine. label names the environment for mdbx
// diagnostics.
func New(label string) *Engine {
	return &Engine{
		label: label,
		txns:  make(map[lmx.TxnHandle]*txnState),
		curs:  make(map[lmx.CursorHandle]*cursorState),
	}
}

func (e *Engine) Open(path string, flags uint, mode os.FileMode) int {
	env, err := gomdbx.NewEnv(gomdbx.Label(e.label))
	if err != nil {
		return rcOf(err)
	}
	if err := env.SetOption(gomdbx.OptMaxDB, maxDBs); err != nil {
		env.Close()
		return rcOf(err)
	}
	if err := env.SetOption(gomdbx.OptMaxReaders, maxReaders); err != nil {
		env.Close()
		return rcOf(err)
	}
	if err := env.SetGeometry(-1, -1, geomUpper, geomGrowth, -1, -1); err != nil {
		env.Close()
		return rcOf(err)
	}
	if err := env.Open(path, envFlags(flags), mode); err != nil {
		env.Close()
		return rcOf(err)
	}
	e.env = env
	return 0
}

func (e *Engine) Close() {
	if e.env != nil {
		e.env.Close()
		e.env = nil
	}
}

func envFlags(flags uint) uint {
	var f uint
	if flags&lmx.NoSubdir != 0 {
		f |= gomdbx.NoSubdir
	}
	if flags&lmx.Readonly != 0 {
		f |= gomdbx.Readonly
	}
	if flags&lmx.NoSync != 0 {
		f |= gomdbx.SafeNoSync
	}
	return f
}

func (e *Engine) BeginTxn(flags uint) (lmx.TxnHandle, int) {
	readonly := flags&lmx.TxnReadOnly != 0
	var gf uint
	if readonly {
		gf = gomdbx.Readonly
	} else {
		// A writer owns the single write slot and must not migrate off
		// its OS thread while it holds it.
		runtime.LockOSThread()
	}
	t, err := e.env.BeginTxn(nil, gf)
	if err != nil {
		if !readonly {
			runtime.UnlockOSThread()
		}
		return 0, rcOf(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextTxn++
	h := lmx.TxnHandle(e.nextTxn)
	e.txns[h] = &txnState{t: t, readonly: readonly, locked: !readonly}
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
	t.done = true
	e.mu.Unlock()
	e.closeTxnCursors(t)
	if t.readonly {
		// A reader commits nothing; Abort is the release and, unlike
		// mdbx_txn_commit, is also valid on a reset reader.
		t.t.Abort()
		return 0
	}
	_, err := t.t.Commit()
	if t.locked {
		runtime.UnlockOSThread()
	}
	return rcOf(err)
}

func (e *Engine) Abort(h lmx.TxnHandle) {
	e.mu.Lock()
	t := e.txns[h]
	if t == nil || t.done {
		e.mu.Unlock()
		return
	}
	delete(e.txns, h)
	t.done = true
	e.mu.Unlock()
	e.closeTxnCursors(t)
	t.t.Abort()
	if t.locked {
		runtime.UnlockOSThread()
	}
}

// closeTxnCursors closes the native cursors of an ending write
// transaction. The layer's own CursorClose afterwards finds the handle
// gone and does nothing.
func (e *Engine) closeTxnCursors(t *txnState) {
	if t.readonly {
		return
	}
	e.mu.Lock()
	handles := t.curs
	t.curs = nil
	var cs []*cursorState
	for _, h := range handles {
		if c := e.curs[h]; c != nil {
			cs = append(cs, c)
			delete(e.curs, h)
		}
	}
	e.mu.Unlock()
	for _, c := range cs {
		c.c.Close()
	}
}

func (e *Engine) Reset(h lmx.TxnHandle) {
	t := e.txn(h)
	if t == nil || t.done || !t.readonly {
		return
	}
	t.t.Reset()
}

func (e *Engine) Renew(h lmx.TxnHandle) int {
	t := e.txn(h)
	if t == nil || t.done || !t.readonly {
		return int(lmx.ErrBadTxn)
	}
	return rcOf(t.t.Renew())
}

func (e *Engine) OpenDBI(h lmx.TxnHandle, name string, flags uint) (lmx.DBIHandle, uint, int) {
	t := e.txn(h)
	if t == nil || t.done {
		return 0, 0, int(lmx.ErrBadTxn)
	}
	var dbi gomdbx.DBI
	var err error
	if name == "" {
		dbi, err = t.t.OpenRoot(dbFlags(flags))
	} else {
		dbi, err = t.t.OpenDBI(name, dbFlags(flags), nil, nil)
	}
	if err != nil {
		return 0, 0, rcOf(err)
	}
	// Read the flags back so the caller sees how the database was
	// actually created, not what it asked for.
	raw, err := t.t.Flags(dbi)
	if err != nil {
		return 0, 0, rcOf(err)
	}
	// mdbx DBIs start at zero; shift so the boundary's zero stays the
	// poisoned sentinel.
	return lmx.DBIHandle(dbi) + 1, dbFlagsOf(raw), 0
}

func dbFlags(flags uint) uint {
	var f uint
	if flags&lmx.Create != 0 {
		f |= gomdbx.Create
	}
	if flags&lmx.DupSort != 0 {
		f |= gomdbx.DupSort
	}
	if flags&lmx.ReverseKey != 0 {
		f |= gomdbx.ReverseKey
	}
	return f
}

// dbFlagsOf maps mdbx database flags back onto boundary flags.
func dbFlagsOf(f uint) uint {
	var out uint
	if f&gomdbx.DupSort != 0 {
		out |= lmx.DupSort
	}
	if f&gomdbx.ReverseKey != 0 {
		out |= lmx.ReverseKey
	}
	return out
}

func dbiOf(h lmx.DBIHandle) gomdbx.DBI {
	return gomdbx.DBI(h - 1)
}

// CloseDBI is a no-op: mdbx DBI slots are cheap and released with the
// environment.
func (e *Engine) CloseDBI(lmx.DBIHandle) {}

func (e *Engine) Drop(th lmx.TxnHandle, dh lmx.DBIHandle, del bool) int {
	t := e.txn(th)
	if t == nil || t.done {
		return int(lmx.ErrBadTxn)
	}
	return rcOf(t.t.Drop(dbiOf(dh), del))
}

func (e *Engine) Get(th lmx.TxnHandle, dh lmx.DBIHandle, key, val *lmx.Val) int {
	t := e.txn(th)
	if t == nil || t.done {
		return int(lmx.ErrBadTxn)
	}
	v, err := t.t.Get(dbiOf(dh), key.Bytes())
	if err != nil {
		return rcOf(err)
	}
	*val = lmx.Wrap(v)
	return 0
}

func putFlags(flags uint) uint {
	var f uint
	if flags&lmx.NoOverwrite != 0 {
		f |= gomdbx.NoOverwrite
	}
	if flags&lmx.NoDupData != 0 {
		f |= gomdbx.NoDupData
	}
	if flags&lmx.Current != 0 {
		f |= gomdbx.Current
	}
	if flags&lmx.Append != 0 {
		f |= gomdbx.Append
	}
	if flags&lmx.AppendDup != 0 {
		f |= gomdbx.AppendDup
	}
	return f
}

func (e *Engine) Put(th lmx.TxnHandle, dh lmx.DBIHandle, key, val *lmx.Val, flags uint) int {
	t := e.txn(th)
	if t == nil || t.done {
		return int(lmx.ErrBadTxn)
	}
	dbi := dbiOf(dh)
	k := key.Bytes()
	if flags&lmx.Reserve != 0 {
		buf, err := t.t.PutReserve(dbi, k, int(val.Size), putFlags(flags))
		if err != nil {
			return rcOf(err)
		}
		*val = lmx.Wrap(buf)
		return 0
	}
	err := t.t.Put(dbi, k, val.Bytes(), putFlags(flags))
	rc := rcOf(err)
	if rc == int(lmx.ErrKeyExist) && flags&lmx.NoOverwrite != 0 {
		// Hand back the stored value so the layer can surface it as a
		// normal result.
		if existing, gerr := t.t.Get(dbi, k); gerr == nil {
			*val = lmx.Wrap(existing)
		}
	}
	return rc
}

func (e *Engine) Del(th lmx.TxnHandle, dh lmx.DBIHandle, key, val *lmx.Val) int {
	t := e.txn(th)
	if t == nil || t.done {
		return int(lmx.ErrBadTxn)
	}
	var v []byte
	if val != nil {
		v = val.Bytes()
	}
	return rcOf(t.t.Del(dbiOf(dh), key.Bytes(), v))
}

func (e *Engine) Stat(th lmx.TxnHandle, dh lmx.DBIHandle) (*lmx.Stat, int) {
	t := e.txn(th)
	if t == nil || t.done {
		return nil, int(lmx.ErrBadTxn)
	}
	st, err := t.t.StatDBI(dbiOf(dh))
	if err != nil {
		return nil, rcOf(err)
	}
	return &lmx.Stat{
		PSize:         uint(st.PSize),
		Depth:         uint(st.Depth),
		BranchPages:   st.BranchPages,
		LeafPages:     st.LeafPages,
		OverflowPages: st.OverflowPages,
		Entries:       st.Entries,
	}, 0
}

func (e *Engine) CursorOpen(th lmx.TxnHandle, dh lmx.DBIHandle) (lmx.CursorHandle, int) {
	t := e.txn(th)
	if t == nil || t.done {
		return 0, int(lmx.ErrBadTxn)
	}
	c, err := t.t.OpenCursor(dbiOf(dh))
	if err != nil {
		return 0, rcOf(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCur++
	h := lmx.CursorHandle(e.nextCur)
	e.curs[h] = &cursorState{c: c, t: t, dbi: dbiOf(dh)}
	if !t.readonly {
		t.curs = append(t.curs, h)
	}
	return h, 0
}

func (e *Engine) cursor(h lmx.CursorHandle) *cursorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.curs[h]
}

func (e *Engine) CursorClose(h lmx.CursorHandle) {
	e.mu.Lock()
	cs := e.curs[h]
	delete(e.curs, h)
	e.mu.Unlock()
	if cs != nil {
		cs.c.Close()
	}
}

func (e *Engine) CursorRenew(th lmx.TxnHandle, ch lmx.CursorHandle) int {
	cs := e.cursor(ch)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	t := e.txn(th)
	if t == nil || t.done || !t.readonly {
		return int(lmx.ErrBadTxn)
	}
	if err := cs.c.Renew(t.t); err != nil {
		return rcOf(err)
	}
	cs.t = t
	return 0
}

var opTable = map[lmx.CursorOp]uint{
	lmx.First:        gomdbx.First,
	lmx.FirstDup:     gomdbx.FirstDup,
	lmx.GetBoth:      gomdbx.GetBoth,
	lmx.GetBothRange: gomdbx.GetBothRange,
	lmx.GetCurrent:   gomdbx.GetCurrent,
	lmx.Last:         gomdbx.Last,
	lmx.LastDup:      gomdbx.LastDup,
	lmx.Next:         gomdbx.Next,
	lmx.NextDup:      gomdbx.NextDup,
	lmx.NextNoDup:    gomdbx.NextNoDup,
	lmx.Prev:         gomdbx.Prev,
	lmx.PrevDup:      gomdbx.PrevDup,
	lmx.PrevNoDup:    gomdbx.PrevNoDup,
	lmx.Set:          gomdbx.Set,
	lmx.SetKey:       gomdbx.SetKey,
	lmx.SetRange:     gomdbx.SetRange,
}

func (e *Engine) CursorGet(h lmx.CursorHandle, key, val *lmx.Val, op lmx.CursorOp) int {
	cs := e.cursor(h)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	gop, ok := opTable[op]
	if !ok {
		return int(lmx.ErrInvalidParam)
	}
	k, v, err := cs.c.Get(key.Bytes(), val.Bytes(), gop)
	if err != nil {
		return rcOf(err)
	}
	*key = lmx.Wrap(k)
	*val = lmx.Wrap(v)
	return 0
}

func (e *Engine) CursorPut(h lmx.CursorHandle, key, val *lmx.Val, flags uint) int {
	cs := e.cursor(h)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	if flags&lmx.Reserve != 0 {
		// Reservation goes through the owning transaction; the cursor
		// position is unaffected.
		buf, err := cs.t.t.PutReserve(cs.dbi, key.Bytes(), int(val.Size), putFlags(flags))
		if err != nil {
			return rcOf(err)
		}
		*val = lmx.Wrap(buf)
		return 0
	}
	return rcOf(cs.c.Put(key.Bytes(), val.Bytes(), putFlags(flags)))
}

func (e *Engine) CursorDel(h lmx.CursorHandle, flags uint) int {
	cs := e.cursor(h)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	var gf uint
	if flags&lmx.NoDupData != 0 {
		// The delete-all-duplicates request maps to mdbx's AllDups.
		gf |= gomdbx.AllDups
	}
	return rcOf(cs.c.Del(gf))
}

func (e *Engine) CursorCount(h lmx.CursorHandle) (uint64, int) {
	cs := e.cursor(h)
	if cs == nil {
		return 0, int(lmx.ErrInvalidParam)
	}
	n, err := cs.c.Count()
	if err != nil {
		return 0, rcOf(err)
	}
	return n, 0
}

// rcOf maps an mdbx-go error to a boundary status code. The numeric
// errno space is shared, so known codes pass through unchanged.
func rcOf(err error) int {
	if err == nil {
		return 0
	}
	if gomdbx.IsNotFound(err) {
		return int(lmx.ErrNotFound)
	}
	var en gomdbx.Errno
	if errors.As(err, &en) {
		return int(en)
	}
	return int(lmx.ErrProblem)
}
