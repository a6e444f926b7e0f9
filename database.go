package lmx

import "runtime"

// Database is a handle to a named ordered key-value mapping inside the
// engine. Handles exist independently of any single transaction and are
// bound to the environment's lifetime.
//
// Every operation takes a *Txn. Passing nil opens a throwaway transaction
// for the single call (read-only for lookups, read-write for mutations)
// and commits or aborts it automatically, mirroring the single-shot
// convenience of the transactional overloads.
type Database struct {
	env     *Env
	handle  DBIHandle
	name    string
	dupSort bool
}

// Name returns the database name; "" is the root database.
func (db *Database) Name() string {
	return db.name
}

// DupSort reports whether the database permits multiple ordered values per
// key.
func (db *Database) DupSort() bool {
	return db.dupSort
}

// Close releases the native handle. Normally unnecessary; handles are
// cheap and environment-scoped. Do not close a handle while a transaction
// that touched it is in flight.
func (db *Database) Close() {
	if db.handle != invalidDBI {
		db.env.eng.CloseDBI(db.handle)
		db.handle = invalidDBI
	}
}

// resolveTxn returns the transaction to operate under and whether it is
// owned by this call. readonly selects the throwaway mode when txn is nil.
func (db *Database) resolveTxn(txn *Txn, readonly bool) (*Txn, bool, error) {
	if txn != nil {
		if !txn.valid() {
			return nil, false, NewError(ErrBadTxn)
		}
		return txn, false, nil
	}
	flags := uint(0)
	if readonly {
		flags = TxnReadOnly
	}
	t, err := db.env.BeginTxn(flags)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// finishOwned ends a call-owned transaction: commit on success, abort on
// failure. Soft signals (not-found, key-exists) count as success.
func finishOwned(txn *Txn, owned bool, err error) error {
	if !owned {
		return err
	}
	if err == nil || IsNotFound(err) || IsKeyExist(err) {
		if cerr := txn.Commit(); cerr != nil && err == nil {
			return cerr
		}
		return err
	}
	txn.Abort()
	return err
}

func (db *Database) check() error {
	if db.handle == invalidDBI {
		return NewError(ErrBadDBI)
	}
	return nil
}

// Get looks up key and returns a copy of its value. Absence is signaled by
// an ErrNotFound-coded error; use IsNotFound to distinguish it from engine
// failures. For a dup-sort database only the first duplicate is returned;
// retrieving the others requires a cursor.
func (db *Database) Get(txn *Txn, key []byte) ([]byte, error) {
	var out []byte
	err := db.getVal(txn, key, func(v Val) {
		out = v.Copy()
	})
	return out, err
}

// GetVal is the zero-copy lookup: the engine-provided descriptor is written
// into val with no intermediate buffer. The descriptor is valid until the
// next mutating call on the same transaction or the transaction's end.
// txn must be non-nil; a throwaway transaction would end before the caller
// could read the descriptor.
func (db *Database) GetVal(txn *Txn, key []byte, val *Val) error {
	if val == nil {
		return NewError(ErrInvalidParam)
	}
	if txn == nil {
		return NewError(ErrInvalidParam)
	}
	return db.getVal(txn, key, func(v Val) {
		*val = v
	})
}

func (db *Database) getVal(txn *Txn, key []byte, sink func(Val)) error {
	if key == nil {
		return NewError(ErrInvalidParam)
	}
	if err := db.check(); err != nil {
		return err
	}
	t, owned, err := db.resolveTxn(txn, true)
	if err != nil {
		return err
	}
	kp, vp := t.keyVal(key)
	rc := db.env.eng.Get(t.handle, db.handle, kp, vp)
	runtime.KeepAlive(key)
	if rc == 0 {
		sink(*vp)
	}
	return finishOwned(t, owned, operr(rc))
}

// Put inserts or overwrites key/value. With NoOverwrite set and the key
// already present, the existing value is returned as a normal result and
// nothing is written; every other conflict propagates as an error. A nil
// return with nil error means the pair was stored.
func (db *Database) Put(txn *Txn, key, value []byte, flags uint) ([]byte, error) {
	if key == nil || value == nil {
		return nil, NewError(ErrInvalidParam)
	}
	if err := db.check(); err != nil {
		return nil, err
	}
	t, owned, err := db.resolveTxn(txn, false)
	if err != nil {
		return nil, err
	}
	kp, vp := t.keyValPair(key, value)
	rc := db.env.eng.Put(t.handle, db.handle, kp, vp, flags)
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	if rc == int(ErrKeyExist) && flags&NoOverwrite != 0 {
		// The engine hands back the stored value; surface it as a
		// result, not an error.
		existing := vp.Copy()
		if ferr := finishOwned(t, owned, nil); ferr != nil {
			return nil, ferr
		}
		return existing, nil
	}
	return nil, finishOwned(t, owned, operr(rc))
}

// PutVal is the zero-copy store: both descriptors are marshaled through
// the transaction's scratch region. The caller keeps the referenced
// buffers alive for the duration of the call.
func (db *Database) PutVal(txn *Txn, key, val *Val, flags uint) error {
	if key == nil || val == nil {
		return NewError(ErrInvalidParam)
	}
	if err := db.check(); err != nil {
		return err
	}
	t, owned, err := db.resolveTxn(txn, false)
	if err != nil {
		return err
	}
	t.scratch.set(0, *key)
	t.scratch.set(1, *val)
	rc := db.env.eng.Put(t.handle, db.handle, t.scratch.val(0), t.scratch.val(1), flags)
	if rc == 0 {
		// Write-back: Reserve and NoOverwrite produce output descriptors.
		*val = *t.scratch.val(1)
	}
	return finishOwned(t, owned, operr(rc))
}

// PutReserve reserves n writable bytes for key without copying a value.
// The returned buffer references engine memory and must be fully written
// before the next engine call on the transaction. Not supported together
// with dup-sort. txn must be non-nil.
func (db *Database) PutReserve(txn *Txn, key []byte, n int, flags uint) ([]byte, error) {
	if key == nil || n < 0 {
		return nil, NewError(ErrInvalidParam)
	}
	if txn == nil {
		return nil, NewError(ErrInvalidParam)
	}
	if db.dupSort {
		return nil, NewError(ErrIncompatible)
	}
	if err := db.check(); err != nil {
		return nil, err
	}
	if !txn.valid() {
		return nil, NewError(ErrBadTxn)
	}
	kp, vp := txn.keyVal(key)
	vp.Size = uintptr(n)
	rc := db.env.eng.Put(txn.handle, db.handle, kp, vp, flags|Reserve)
	runtime.KeepAlive(key)
	if rc != 0 {
		return nil, operr(rc)
	}
	return vp.Bytes(), nil
}

// Del removes an entry. The boolean result distinguishes "removed" from
// "was not there"; absence is not an error. On a dup-sort database a nil
// value removes every duplicate of key, a non-nil value removes only the
// exact pair. On a plain database the value argument is ignored.
func (db *Database) Del(txn *Txn, key, value []byte) (bool, error) {
	if key == nil {
		return false, NewError(ErrInvalidParam)
	}
	if err := db.check(); err != nil {
		return false, err
	}
	t, owned, err := db.resolveTxn(txn, false)
	if err != nil {
		return false, err
	}
	var kp, vp *Val
	if value == nil {
		kp, vp = t.keyVal(key)
		vp = nil
	} else {
		kp, vp = t.keyValPair(key, value)
	}
	rc := db.env.eng.Del(t.handle, db.handle, kp, vp)
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	if rc == int(ErrNotFound) {
		return false, finishOwned(t, owned, nil)
	}
	if rc != 0 {
		return false, finishOwned(t, owned, operr(rc))
	}
	return true, finishOwned(t, owned, nil)
}

// Drop empties the database. With del true the database definition is also
// removed from the engine and this handle becomes invalid; with del false
// only the entries are cleared and the handle remains usable.
func (db *Database) Drop(txn *Txn, del bool) error {
	if err := db.check(); err != nil {
		return err
	}
	t, owned, err := db.resolveTxn(txn, false)
	if err != nil {
		return err
	}
	rc := db.env.eng.Drop(t.handle, db.handle, del)
	err = finishOwned(t, owned, operr(rc))
	if err == nil && del {
		db.handle = invalidDBI
	}
	return err
}

// Stat returns the database's structural counters.
func (db *Database) Stat(txn *Txn) (*Stat, error) {
	if err := db.check(); err != nil {
		return nil, err
	}
	t, owned, err := db.resolveTxn(txn, true)
	if err != nil {
		return nil, err
	}
	st, rc := db.env.eng.Stat(t.handle, db.handle)
	if err := finishOwned(t, owned, operr(rc)); err != nil {
		return nil, err
	}
	return st, nil
}

// OpenCursor creates a cursor over this database under txn. A cursor in a
// write transaction is closed implicitly when the transaction ends; a
// cursor in a read-only transaction must be closed explicitly and may be
// renewed for reuse before its final close.
func (db *Database) OpenCursor(txn *Txn) (*Cursor, error) {
	if txn == nil {
		return nil, NewError(ErrInvalidParam)
	}
	if !txn.valid() {
		return nil, NewError(ErrBadTxn)
	}
	if err := db.check(); err != nil {
		return nil, err
	}
	h, rc := db.env.eng.CursorOpen(txn.handle, db.handle)
	if rc != 0 {
		return nil, operr(rc)
	}
	c := &Cursor{
		txn:    txn,
		db:     db,
		handle: h,
	}
	txn.addCursor(c)
	return c, nil
}

// Iterate creates a forward iterator and an owned read-only transaction
// positioned at the first key. Closing the iterator releases both.
func (db *Database) Iterate() (*EntryIterator, error) {
	return db.iterate(nil, true)
}

// IterateBackward creates a backward iterator starting at the last key.
func (db *Database) IterateBackward() (*EntryIterator, error) {
	return db.iterate(nil, false)
}

// Seek creates a forward iterator positioned at the smallest stored key
// >= key. If no such key exists the iterator is immediately exhausted.
func (db *Database) Seek(key []byte) (*EntryIterator, error) {
	if key == nil {
		return nil, NewError(ErrInvalidParam)
	}
	return db.iterate(key, true)
}

// SeekBackward creates a backward iterator positioned at the largest
// stored key <= key.
func (db *Database) SeekBackward(key []byte) (*EntryIterator, error) {
	if key == nil {
		return nil, NewError(ErrInvalidParam)
	}
	return db.iterate(key, false)
}

func (db *Database) iterate(key []byte, forward bool) (*EntryIterator, error) {
	txn, err := db.env.BeginTxn(TxnReadOnly)
	if err != nil {
		return nil, err
	}
	c, err := db.OpenCursor(txn)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	return newEntryIterator(c, txn, key, forward), nil
}

// BufferCursor creates a zero-copy cursor and an owned read-only
// transaction. Key and value descriptors are rebound in place as the
// cursor moves; closing the cursor releases the transaction.
func (db *Database) BufferCursor() (*BufferCursor, error) {
	return db.bufferCursor(TxnReadOnly)
}

// BufferCursorWriter creates a zero-copy cursor over an owned write
// transaction, for seek-and-modify use. Closing commits the transaction;
// Abort discards it.
func (db *Database) BufferCursorWriter() (*BufferCursor, error) {
	return db.bufferCursor(0)
}

func (db *Database) bufferCursor(flags uint) (*BufferCursor, error) {
	txn, err := db.env.BeginTxn(flags)
	if err != nil {
		return nil, err
	}
	c, err := db.OpenCursor(txn)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	return newBufferCursor(c, txn, true, DefaultBufferSize), nil
}

// BufferCursorOn creates a zero-copy cursor under the caller's transaction
// with a caller-sized staging buffer; the caller keeps ownership of txn.
// size <= 0 selects DefaultBufferSize.
func (db *Database) BufferCursorOn(txn *Txn, size int) (*BufferCursor, error) {
	if txn == nil {
		return nil, NewError(ErrInvalidParam)
	}
	c, err := db.OpenCursor(txn)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultBufferSize
	}
	return newBufferCursor(c, txn, false, size), nil
}
