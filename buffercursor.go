package lmx

// DefaultBufferSize is the initial capacity of a BufferCursor's internal
// staging buffer. The buffer grows geometrically on demand, so the
// constant bounds nothing; it only sizes the common case.
const DefaultBufferSize = 1024

// BufferCursor is the zero-copy variant of a cursor: the current key and
// value are exposed as live descriptors that are rebound in place on every
// move, avoiding per-entry allocation when scanning large ranges.
//
// The descriptor views returned by Key and Value reference engine memory
// and obey the Val validity window: they are overwritten by the next move
// and become invalid when the owning transaction ends. Accessors on a
// closed cursor return nil rather than a stale view.
type BufferCursor struct {
	c      *Cursor
	txn    *Txn
	ownTxn bool

	key Val
	val Val

	// staging buffer for seek keys and writer-side keys; grows by
	// doubling when an input outsizes it
	buf []byte

	positioned bool
	closed     bool
}

func newBufferCursor(c *Cursor, txn *Txn, ownTxn bool, size int) *BufferCursor {
	return &BufferCursor{
		c:      c,
		txn:    txn,
		ownTxn: ownTxn,
		buf:    make([]byte, 0, size),
	}
}

// First positions at the first entry. Returns false when the database is
// empty.
func (bc *BufferCursor) First() (bool, error) {
	return bc.move(First)
}

// Last positions at the last entry.
func (bc *BufferCursor) Last() (bool, error) {
	return bc.move(Last)
}

// Next moves forward one entry. Returns false past the last entry, after
// which the position is engine-defined until the next absolute move.
func (bc *BufferCursor) Next() (bool, error) {
	return bc.move(Next)
}

// Prev moves backward one entry.
func (bc *BufferCursor) Prev() (bool, error) {
	return bc.move(Prev)
}

// Seek positions at the first key >= key. The key is staged through the
// internal buffer so the caller's slice may be reused immediately.
func (bc *BufferCursor) Seek(key []byte) (bool, error) {
	if key == nil {
		return false, NewError(ErrInvalidParam)
	}
	bc.stageKey(key)
	return bc.move(SetRange)
}

// SeekKey positions at the exact key, returning false when absent.
func (bc *BufferCursor) SeekKey(key []byte) (bool, error) {
	if key == nil {
		return false, NewError(ErrInvalidParam)
	}
	bc.stageKey(key)
	return bc.move(SetKey)
}

// move issues one Position call, rebinding both descriptors.
func (bc *BufferCursor) move(op CursorOp) (bool, error) {
	if bc.closed {
		return false, NewError(ErrBadCursor)
	}
	err := bc.c.Position(&bc.key, &bc.val, op)
	if err != nil {
		bc.positioned = false
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	bc.positioned = true
	return true, nil
}

// stageKey copies key into the staging buffer, doubling the buffer until
// it fits, and binds the key descriptor to the staged bytes.
func (bc *BufferCursor) stageKey(key []byte) {
	need := len(key)
	if cap(bc.buf) < need {
		grown := cap(bc.buf)
		if grown == 0 {
			grown = DefaultBufferSize
		}
		for grown < need {
			grown *= 2
		}
		bc.buf = make([]byte, 0, grown)
	}
	bc.buf = bc.buf[:need]
	copy(bc.buf, key)
	bc.key = Wrap(bc.buf)
	bc.val = Val{}
}

// Key returns the live zero-copy view of the current key, or nil when the
// cursor is unpositioned or closed.
func (bc *BufferCursor) Key() []byte {
	if !bc.live() {
		return nil
	}
	return bc.key.Bytes()
}

// Value returns the live zero-copy view of the current value, or nil when
// the cursor is unpositioned or closed.
func (bc *BufferCursor) Value() []byte {
	if !bc.live() {
		return nil
	}
	return bc.val.Bytes()
}

// KeyCopy returns a caller-owned copy of the current key.
func (bc *BufferCursor) KeyCopy() []byte {
	if !bc.live() {
		return nil
	}
	return bc.key.Copy()
}

// ValueCopy returns a caller-owned copy of the current value.
func (bc *BufferCursor) ValueCopy() []byte {
	if !bc.live() {
		return nil
	}
	return bc.val.Copy()
}

// live gates the accessors: a closed cursor or an ended transaction must
// not hand out stale engine memory.
func (bc *BufferCursor) live() bool {
	return !bc.closed && bc.positioned && bc.c.valid()
}

// Put stores key/value through the cursor. Writer cursors only.
func (bc *BufferCursor) Put(key, value []byte, flags uint) error {
	if bc.closed {
		return NewError(ErrBadCursor)
	}
	return bc.c.Put(key, value, flags)
}

// Overwrite replaces the value at the current position.
func (bc *BufferCursor) Overwrite(value []byte) error {
	if bc.closed {
		return NewError(ErrBadCursor)
	}
	if !bc.positioned {
		return NewError(ErrInvalidParam)
	}
	return bc.c.Put(bc.key.Bytes(), value, Current)
}

// Append stores key/value asserting ascending key order; see Append flag.
func (bc *BufferCursor) Append(key, value []byte) error {
	if bc.closed {
		return NewError(ErrBadCursor)
	}
	return bc.c.Put(key, value, Append)
}

// Delete removes the entry at the current position.
func (bc *BufferCursor) Delete() error {
	if bc.closed {
		return NewError(ErrBadCursor)
	}
	if !bc.positioned {
		return NewError(ErrInvalidParam)
	}
	bc.positioned = false
	return bc.c.Del(0)
}

// Txn returns the transaction the cursor runs under.
func (bc *BufferCursor) Txn() *Txn {
	return bc.txn
}

// Close releases the cursor and, when the cursor owns its transaction,
// commits it (the read-only case treats commit as the release; a writer
// cursor's work becomes durable here). Idempotent.
func (bc *BufferCursor) Close() error {
	if bc.closed {
		return nil
	}
	bc.closed = true
	bc.positioned = false
	bc.c.Close()
	if !bc.ownTxn || !bc.txn.valid() {
		return nil
	}
	return bc.txn.Commit()
}

// Abort releases the cursor and discards the owned transaction instead of
// committing it.
func (bc *BufferCursor) Abort() {
	if bc.closed {
		return
	}
	bc.closed = true
	bc.positioned = false
	bc.c.Close()
	if bc.ownTxn && bc.txn.valid() {
		bc.txn.Abort()
	}
}
