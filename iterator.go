package lmx

import "bytes"

// Entry is one key-value pair produced by an iterator. Both slices are
// copies owned by the caller.
type Entry struct {
	Key   []byte
	Value []byte
}

// EntryIterator is a lazy, single-pass, non-restartable sequence of
// entries over one database. It owns both its cursor and its transaction;
// Close releases them in cursor-then-transaction order. The iterator
// auto-closes when it exhausts the sequence, but callers abandoning it
// early must call Close themselves; defer it at creation:
//
//	it, err := db.Seek(start)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    e := it.Entry()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
//
// Reaching the boundary is not an error: Next returns false and Err
// returns nil.
type EntryIterator struct {
	c       *Cursor
	txn     *Txn
	start   []byte
	forward bool

	started   bool
	exhausted bool
	closed    bool
	entry     Entry
	err       error
}

func newEntryIterator(c *Cursor, txn *Txn, start []byte, forward bool) *EntryIterator {
	return &EntryIterator{c: c, txn: txn, start: start, forward: forward}
}

// Next advances to the next entry, seeking to the start position on the
// first call. It returns false once the sequence is exhausted or an engine
// error occurred; check Err afterwards.
func (it *EntryIterator) Next() bool {
	if it.closed || it.exhausted {
		return false
	}
	var k, v []byte
	var err error
	if !it.started {
		it.started = true
		k, v, err = it.position()
	} else if it.forward {
		k, v, err = it.c.Get(nil, nil, Next)
	} else {
		k, v, err = it.c.Get(nil, nil, Prev)
	}
	if err != nil {
		it.exhausted = true
		if !IsNotFound(err) {
			it.err = err
		}
		it.Close()
		return false
	}
	it.entry = Entry{Key: k, Value: v}
	return true
}

// position seeks the first entry. Forward: first key >= start, or the
// first key when no start was given. Backward: largest key <= start via
// SetRange with a Prev fallback, or the last key when no start was given.
func (it *EntryIterator) position() ([]byte, []byte, error) {
	if it.start == nil {
		if it.forward {
			return it.c.Get(nil, nil, First)
		}
		return it.c.Get(nil, nil, Last)
	}
	k, v, err := it.c.Get(it.start, nil, SetRange)
	if it.forward {
		return k, v, err
	}
	if err != nil {
		if IsNotFound(err) {
			// Everything sorts below start; begin at the end.
			return it.c.Get(nil, nil, Last)
		}
		return nil, nil, err
	}
	if !bytes.Equal(k, it.start) {
		// SetRange landed above start; step back to the largest key
		// below it.
		return it.c.Get(nil, nil, Prev)
	}
	return k, v, nil
}

// Entry returns the current entry. Only valid after a true Next.
func (it *EntryIterator) Entry() *Entry {
	return &it.entry
}

// Err returns the engine error that terminated iteration, if any.
// Exhaustion is not an error.
func (it *EntryIterator) Err() error {
	return it.err
}

// Close releases the cursor, then ends the owned transaction: read-only
// transactions commit (nothing was mutated, commit and abort are
// equivalent releases), write transactions commit on a clean iterator and
// abort if an engine error terminated it. Idempotent.
func (it *EntryIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.c.Close()
	if !it.txn.valid() {
		return
	}
	if it.txn.IsReadOnly() || it.err == nil {
		if err := it.txn.Commit(); err != nil && it.err == nil {
			it.err = err
		}
		return
	}
	it.txn.Abort()
}
