package boltdb

import (
	"bytes"

	bolt "go.etcd.io/bbolt"

	"github.com/lmxdb/lmx"
)

// cursorState holds a cursor's position as adapter-owned copies of the
// current key and value. Positioning ops re-derive the live location by
// seeking from the stored pair, which keeps the cursor correct across
// mutations on the same transaction (bbolt cursors themselves do not
// survive writes). Descriptors written back to the layer reference the
// stored copies and are overwritten by the next move, which is exactly
// the validity window the boundary promises.
type cursorState struct {
	t *txnState
	d *dbiState

	k, v       []byte
	positioned bool
	deleted    bool
}

func (e *Engine) CursorOpen(th lmx.TxnHandle, dh lmx.DBIHandle) (lmx.CursorHandle, int) {
	t, d, _, rc := e.resolve(th, dh)
	if rc != 0 {
		return 0, rc
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCur++
	h := lmx.CursorHandle(e.nextCur)
	e.cursors[h] = &cursorState{t: t, d: d}
	e.openCurs++
	return h, 0
}

func (e *Engine) cursor(h lmx.CursorHandle) *cursorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursors[h]
}

func (e *Engine) CursorClose(h lmx.CursorHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cursors[h]; !ok {
		return
	}
	delete(e.cursors, h)
	e.openCurs--
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
	cs.t = t
	cs.positioned = false
	cs.deleted = false
	return 0
}

func (e *Engine) CursorCount(h lmx.CursorHandle) (uint64, int) {
	cs := e.cursor(h)
	if cs == nil {
		return 0, int(lmx.ErrInvalidParam)
	}
	b, rc := cs.bucket()
	if rc != 0 {
		return 0, rc
	}
	if !cs.positioned || cs.deleted {
		return 0, int(lmx.ErrInvalidParam)
	}
	if !cs.d.dupSort {
		return 1, 0
	}
	sub := b.Bucket(cs.k)
	if sub == nil {
		return 0, int(lmx.ErrNotFound)
	}
	return uint64(sub.Stats().KeyN), 0
}

func (cs *cursorState) bucket() (*bolt.Bucket, int) {
	if cs.t.done || cs.t.tx == nil {
		return nil, int(lmx.ErrBadTxn)
	}
	b := cs.t.tx.Bucket(cs.d.bname)
	if b == nil {
		return nil, int(lmx.ErrBadDBI)
	}
	return b, 0
}

// bind records a new position and writes both descriptors back.
func (cs *cursorState) bind(key, val *lmx.Val, k, v []byte) int {
	cs.k = append(cs.k[:0], k...)
	cs.v = append(cs.v[:0], v...)
	cs.positioned = true
	cs.deleted = false
	*key = lmx.Wrap(cs.k)
	*val = lmx.Wrap(cs.v)
	return 0
}

func (cs *cursorState) descendFirst(b *bolt.Bucket, key, val *lmx.Val, k []byte) int {
	sub := b.Bucket(k)
	if sub == nil {
		return int(lmx.ErrCorrupted)
	}
	first, _ := sub.Cursor().First()
	if first == nil {
		return int(lmx.ErrNotFound)
	}
	return cs.bind(key, val, k, first)
}

func (cs *cursorState) descendLast(b *bolt.Bucket, key, val *lmx.Val, k []byte) int {
	sub := b.Bucket(k)
	if sub == nil {
		return int(lmx.ErrCorrupted)
	}
	last, _ := sub.Cursor().Last()
	if last == nil {
		return int(lmx.ErrNotFound)
	}
	return cs.bind(key, val, k, last)
}

func (e *Engine) CursorGet(h lmx.CursorHandle, key, val *lmx.Val, op lmx.CursorOp) int {
	cs := e.cursor(h)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	b, rc := cs.bucket()
	if rc != 0 {
		return rc
	}
	dup := cs.d.dupSort

	switch op {
	case lmx.First:
		k, v := b.Cursor().First()
		if k == nil {
			return int(lmx.ErrNotFound)
		}
		if dup {
			return cs.descendFirst(b, key, val, k)
		}
		return cs.bind(key, val, k, v)

	case lmx.Last:
		k, v := b.Cursor().Last()
		if k == nil {
			return int(lmx.ErrNotFound)
		}
		if dup {
			return cs.descendLast(b, key, val, k)
		}
		return cs.bind(key, val, k, v)

	case lmx.Next:
		if !cs.positioned {
			return e.CursorGet(h, key, val, lmx.First)
		}
		if dup {
			if rc := cs.nextDup(b, key, val); rc == 0 {
				return 0
			}
			return cs.nextKeyFirstDup(b, key, val)
		}
		c := b.Cursor()
		k, v := c.Seek(cs.k)
		if k != nil && bytes.Equal(k, cs.k) {
			k, v = c.Next()
		}
		if k == nil {
			return int(lmx.ErrNotFound)
		}
		return cs.bind(key, val, k, v)

	case lmx.Prev:
		if !cs.positioned {
			return e.CursorGet(h, key, val, lmx.Last)
		}
		if dup {
			if rc := cs.prevDup(b, key, val); rc == 0 {
				return 0
			}
			return cs.prevKeyLastDup(b, key, val)
		}
		c := b.Cursor()
		k, v := c.Seek(cs.k)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		if k == nil {
			return int(lmx.ErrNotFound)
		}
		return cs.bind(key, val, k, v)

	case lmx.GetCurrent:
		if !cs.positioned || cs.deleted {
			return int(lmx.ErrInvalidParam)
		}
		*key = lmx.Wrap(cs.k)
		*val = lmx.Wrap(cs.v)
		return 0

	case lmx.Set, lmx.SetKey:
		sought := key.Copy()
		c := b.Cursor()
		k, v := c.Seek(sought)
		if k == nil || !bytes.Equal(k, sought) {
			return int(lmx.ErrNotFound)
		}
		if dup {
			return cs.descendFirst(b, key, val, k)
		}
		return cs.bind(key, val, k, v)

	case lmx.SetRange:
		sought := key.Copy()
		c := b.Cursor()
		k, v := c.Seek(sought)
		if k == nil {
			return int(lmx.ErrNotFound)
		}
		if dup {
			return cs.descendFirst(b, key, val, k)
		}
		return cs.bind(key, val, k, v)

	case lmx.FirstDup:
		if !dup {
			return int(lmx.ErrIncompatible)
		}
		if !cs.positioned {
			return int(lmx.ErrInvalidParam)
		}
		return cs.descendFirst(b, key, val, cs.k)

	case lmx.LastDup:
		if !dup {
			return int(lmx.ErrIncompatible)
		}
		if !cs.positioned {
			return int(lmx.ErrInvalidParam)
		}
		return cs.descendLast(b, key, val, cs.k)

	case lmx.NextDup:
		if !dup {
			return int(lmx.ErrIncompatible)
		}
		if !cs.positioned {
			return int(lmx.ErrInvalidParam)
		}
		return cs.nextDup(b, key, val)

	case lmx.PrevDup:
		if !dup {
			return int(lmx.ErrIncompatible)
		}
		if !cs.positioned {
			return int(lmx.ErrInvalidParam)
		}
		return cs.prevDup(b, key, val)

	case lmx.NextNoDup:
		if !dup {
			return e.CursorGet(h, key, val, lmx.Next)
		}
		if !cs.positioned {
			return e.CursorGet(h, key, val, lmx.First)
		}
		return cs.nextKeyFirstDup(b, key, val)

	case lmx.PrevNoDup:
		if !dup {
			return e.CursorGet(h, key, val, lmx.Prev)
		}
		if !cs.positioned {
			return e.CursorGet(h, key, val, lmx.Last)
		}
		return cs.prevKeyLastDup(b, key, val)

	case lmx.GetBoth, lmx.GetBothRange:
		if !dup {
			return int(lmx.ErrIncompatible)
		}
		sought := key.Copy()
		want := val.Copy()
		sub := b.Bucket(sought)
		if sub == nil {
			return int(lmx.ErrNotFound)
		}
		ic := sub.Cursor()
		iv, _ := ic.Seek(want)
		if iv == nil {
			return int(lmx.ErrNotFound)
		}
		if op == lmx.GetBoth && !bytes.Equal(iv, want) {
			return int(lmx.ErrNotFound)
		}
		return cs.bind(key, val, sought, iv)

	default:
		return int(lmx.ErrInvalidParam)
	}
}

// nextDup advances to the next duplicate of the current key, or
// ErrNotFound when the duplicates are exhausted.
func (cs *cursorState) nextDup(b *bolt.Bucket, key, val *lmx.Val) int {
	sub := b.Bucket(cs.k)
	if sub == nil {
		return int(lmx.ErrNotFound)
	}
	ic := sub.Cursor()
	iv, _ := ic.Seek(cs.v)
	if iv != nil && bytes.Equal(iv, cs.v) && !cs.deleted {
		iv, _ = ic.Next()
	}
	if iv == nil {
		return int(lmx.ErrNotFound)
	}
	return cs.bind(key, val, cs.k, iv)
}

func (cs *cursorState) prevDup(b *bolt.Bucket, key, val *lmx.Val) int {
	sub := b.Bucket(cs.k)
	if sub == nil {
		return int(lmx.ErrNotFound)
	}
	ic := sub.Cursor()
	iv, _ := ic.Seek(cs.v)
	if iv == nil {
		iv, _ = ic.Last()
	} else {
		iv, _ = ic.Prev()
	}
	if iv == nil {
		return int(lmx.ErrNotFound)
	}
	return cs.bind(key, val, cs.k, iv)
}

// nextKeyFirstDup steps to the first duplicate of the next key.
func (cs *cursorState) nextKeyFirstDup(b *bolt.Bucket, key, val *lmx.Val) int {
	c := b.Cursor()
	k, _ := c.Seek(cs.k)
	if k != nil && bytes.Equal(k, cs.k) {
		k, _ = c.Next()
	}
	if k == nil {
		return int(lmx.ErrNotFound)
	}
	return cs.descendFirst(b, key, val, k)
}

// prevKeyLastDup steps to the last duplicate of the previous key.
func (cs *cursorState) prevKeyLastDup(b *bolt.Bucket, key, val *lmx.Val) int {
	c := b.Cursor()
	k, _ := c.Seek(cs.k)
	if k == nil {
		k, _ = c.Last()
	} else {
		k, _ = c.Prev()
	}
	if k == nil {
		return int(lmx.ErrNotFound)
	}
	return cs.descendLast(b, key, val, k)
}

func (e *Engine) CursorPut(h lmx.CursorHandle, key, val *lmx.Val, flags uint) int {
	cs := e.cursor(h)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	b, rc := cs.bucket()
	if rc != 0 {
		return rc
	}
	if cs.t.readonly {
		return int(lmx.ErrPermissionDenied)
	}

	if flags&lmx.Current != 0 {
		if !cs.positioned || cs.deleted {
			return int(lmx.ErrInvalidParam)
		}
		v := val.Copy()
		if cs.d.dupSort {
			sub := b.Bucket(cs.k)
			if sub == nil {
				return int(lmx.ErrNotFound)
			}
			if len(v) == 0 {
				return int(lmx.ErrBadValSize)
			}
			if err := sub.Delete(cs.v); err != nil {
				return rcOf(err)
			}
			if err := sub.Put(v, []byte{}); err != nil {
				return rcOf(err)
			}
		} else {
			if err := b.Put(append([]byte(nil), cs.k...), v); err != nil {
				return rcOf(err)
			}
		}
		cs.v = append(cs.v[:0], v...)
		*key = lmx.Wrap(cs.k)
		*val = lmx.Wrap(cs.v)
		return 0
	}

	k := key.Copy()
	v := val.Copy()
	if rc := put(b, cs.d, key, val, flags); rc != 0 {
		return rc
	}
	// The cursor tracks the stored pair, like a native cursor put.
	if flags&lmx.Reserve != 0 {
		v = val.Bytes()
	}
	cs.k = append(cs.k[:0], k...)
	cs.v = append(cs.v[:0], v...)
	cs.positioned = true
	cs.deleted = false
	return 0
}

func (e *Engine) CursorDel(h lmx.CursorHandle, flags uint) int {
	cs := e.cursor(h)
	if cs == nil {
		return int(lmx.ErrInvalidParam)
	}
	b, rc := cs.bucket()
	if rc != 0 {
		return rc
	}
	if cs.t.readonly {
		return int(lmx.ErrPermissionDenied)
	}
	if !cs.positioned || cs.deleted {
		return int(lmx.ErrInvalidParam)
	}
	if cs.d.dupSort {
		sub := b.Bucket(cs.k)
		if sub == nil {
			return int(lmx.ErrNotFound)
		}
		if flags&lmx.NoDupData != 0 {
			if err := b.DeleteBucket(append([]byte(nil), cs.k...)); err != nil {
				return rcOf(err)
			}
		} else {
			if err := sub.Delete(append([]byte(nil), cs.v...)); err != nil {
				return rcOf(err)
			}
			if first, _ := sub.Cursor().First(); first == nil {
				if err := b.DeleteBucket(append([]byte(nil), cs.k...)); err != nil {
					return rcOf(err)
				}
			}
		}
	} else {
		if b.Get(cs.k) == nil {
			return int(lmx.ErrNotFound)
		}
		if err := b.Delete(append([]byte(nil), cs.k...)); err != nil {
			return rcOf(err)
		}
	}
	cs.deleted = true
	return 0
}
