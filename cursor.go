package lmx

import "runtime"

// Cursor is a movable position within one database under one transaction.
// It supports absolute and relative positioning and mutation at the
// current position.
//
// A cursor created under a write transaction is closed implicitly when the
// transaction ends. A cursor created under a read-only transaction is not
// auto-closed; it must be closed explicitly, and may be renewed against a
// fresh read-only transaction before its final close.
type Cursor struct {
	txn    *Txn
	db     *Database
	handle CursorHandle
	closed bool
}

// Txn returns the owning transaction.
func (c *Cursor) Txn() *Txn {
	return c.txn
}

// Database returns the database the cursor traverses.
func (c *Cursor) Database() *Database {
	return c.db
}

func (c *Cursor) valid() bool {
	return c != nil && !c.closed && c.txn.valid()
}

// Get positions the cursor per op and returns copies of the key and value
// at the new position. setkey seeds the Set/SetKey/SetRange family; setval
// additionally seeds GetBoth/GetBothRange. Moving past either boundary
// yields an ErrNotFound-coded error and leaves the position engine-defined:
// do not assume a relative move recovers without re-seeking.
func (c *Cursor) Get(setkey, setval []byte, op CursorOp) ([]byte, []byte, error) {
	if !c.valid() {
		return nil, nil, c.stateErr()
	}
	kp, vp := c.txn.keyValPair(setkey, setval)
	rc := c.txn.env.eng.CursorGet(c.handle, kp, vp, op)
	runtime.KeepAlive(setkey)
	runtime.KeepAlive(setval)
	if rc != 0 {
		return nil, nil, operr(rc)
	}
	return kp.Copy(), vp.Copy(), nil
}

// Position is the zero-copy variant of Get: both descriptors are rebound
// in place to the cursor's new position through the transaction's scratch
// region, with no per-entry allocation. Input descriptor contents seed the
// seek ops exactly as in Get; on return both reference engine memory with
// the usual validity window.
func (c *Cursor) Position(key, val *Val, op CursorOp) error {
	if key == nil || val == nil {
		return NewError(ErrInvalidParam)
	}
	if !c.valid() {
		return c.stateErr()
	}
	s := c.txn.scratch
	s.set(0, *key)
	s.set(1, *val)
	rc := c.txn.env.eng.CursorGet(c.handle, s.val(0), s.val(1), op)
	if rc != 0 {
		return operr(rc)
	}
	*key = *s.val(0)
	*val = *s.val(1)
	return nil
}

// Put stores key/value at the appropriate position. Flags follow Database.
// Put; Current replaces the value at the cursor's current position.
func (c *Cursor) Put(key, value []byte, flags uint) error {
	if key == nil || value == nil {
		return NewError(ErrInvalidParam)
	}
	if !c.valid() {
		return c.stateErr()
	}
	if c.txn.IsReadOnly() {
		return NewError(ErrPermissionDenied)
	}
	kp, vp := c.txn.keyValPair(key, value)
	rc := c.txn.env.eng.CursorPut(c.handle, kp, vp, flags)
	runtime.KeepAlive(key)
	runtime.KeepAlive(value)
	return operr(rc)
}

// Del removes the entry at the current position. With NoDupData set on a
// dup-sort database, all duplicates of the current key are removed.
func (c *Cursor) Del(flags uint) error {
	if !c.valid() {
		return c.stateErr()
	}
	if c.txn.IsReadOnly() {
		return NewError(ErrPermissionDenied)
	}
	return operr(c.txn.env.eng.CursorDel(c.handle, flags))
}

// Count returns the number of duplicates at the current key.
func (c *Cursor) Count() (uint64, error) {
	if !c.valid() {
		return 0, c.stateErr()
	}
	n, rc := c.txn.env.eng.CursorCount(c.handle)
	if rc != 0 {
		return 0, operr(rc)
	}
	return n, nil
}

// Renew rebinds the cursor to txn, which must be an active read-only
// transaction, resetting the position. Only read-only cursors renew.
func (c *Cursor) Renew(txn *Txn) error {
	if txn == nil {
		return NewError(ErrInvalidParam)
	}
	if c.closed {
		return NewError(ErrBadCursor)
	}
	if !txn.valid() || !txn.IsReadOnly() {
		return NewError(ErrBadTxn)
	}
	if rc := c.txn.env.eng.CursorRenew(txn.handle, c.handle); rc != 0 {
		return operr(rc)
	}
	if c.txn != txn {
		if c.txn.valid() {
			c.txn.removeCursor(c)
		}
		c.txn = txn
		txn.addCursor(c)
	}
	return nil
}

// Close releases the native cursor handle. Idempotent.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closeInternal()
	if c.txn.valid() {
		c.txn.removeCursor(c)
	}
}

// closeInternal releases the handle without touching the transaction's
// registry; the transaction uses it while tearing itself down.
func (c *Cursor) closeInternal() {
	if c.closed {
		return
	}
	c.txn.env.eng.CursorClose(c.handle)
	c.closed = true
}

func (c *Cursor) stateErr() error {
	if c == nil || c.closed {
		return NewError(ErrBadCursor)
	}
	return NewError(ErrBadTxn)
}
