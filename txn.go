package lmx

// txnState tracks the transaction lifecycle. The terminal states are
// final; no operation may be issued against a committed or aborted
// transaction.
type txnState uint8

const (
	txnActive txnState = iota
	txnCommitted
	txnAborted
	// txnReset marks a read-only transaction between Reset and Renew;
	// operations are invalid but the handle and scratch region survive.
	txnReset
)

// Txn bounds a sequence of database operations. Read-only transactions
// operate on an engine snapshot; at most one write transaction is active
// per environment.
//
// A Txn owns its scratch region for its whole lifetime and must be used by
// one goroutine at a time. Concurrent use of the same Txn is a programming
// error with engine-level undefined behavior, not a recoverable fault.
type Txn struct {
	env     *Env
	handle  TxnHandle
	flags   uint
	state   txnState
	scratch *scratchRegion

	// Cursors opened under this transaction. A write transaction closes
	// them implicitly when it ends; read-only cursors stay open for
	// renewal and must be closed explicitly.
	cursors []*Cursor
}

// Env returns the environment the transaction belongs to.
func (txn *Txn) Env() *Env {
	return txn.env
}

// IsReadOnly reports whether the transaction is a snapshot reader.
func (txn *Txn) IsReadOnly() bool {
	return txn.flags&TxnReadOnly != 0
}

func (txn *Txn) valid() bool {
	return txn != nil && txn.state == txnActive
}

// endable reports whether the transaction still holds engine resources.
// A Reset read-only transaction is not valid for operations but must
// remain releasable.
func (txn *Txn) endable() bool {
	return txn != nil && (txn.state == txnActive || txn.state == txnReset)
}

// Commit makes the transaction's modifications durable and ends it. For a
// read-only transaction Commit simply releases the snapshot, including one
// sitting in the Reset state. Committing twice, or after Abort, fails with
// ErrBadTxn.
func (txn *Txn) Commit() error {
	if !txn.endable() {
		return NewError(ErrBadTxn)
	}
	rc := txn.env.eng.Commit(txn.handle)
	txn.finish(txnCommitted)
	return operr(rc)
}

// Abort discards the transaction's modifications and ends it, releasing
// the engine handle and the scratch region. A Reset transaction that will
// not be renewed is released the same way. Aborting an already-ended
// transaction is a no-op.
func (txn *Txn) Abort() {
	if !txn.endable() {
		return
	}
	txn.env.eng.Abort(txn.handle)
	txn.finish(txnAborted)
}

// Reset releases a read-only transaction's snapshot while keeping the
// native handle and scratch region for Renew. An optimization for reader
// reuse, not a correctness requirement.
func (txn *Txn) Reset() {
	if !txn.valid() || !txn.IsReadOnly() {
		return
	}
	txn.env.eng.Reset(txn.handle)
	txn.state = txnReset
}

// Renew re-acquires an engine snapshot on a Reset read-only transaction.
func (txn *Txn) Renew() error {
	if txn == nil || txn.state != txnReset {
		return NewError(ErrBadTxn)
	}
	if rc := txn.env.eng.Renew(txn.handle); rc != 0 {
		return operr(rc)
	}
	txn.state = txnActive
	return nil
}

// finish moves to a terminal state and releases owned resources. Cursors
// under a write transaction are implicitly closed; read-only cursors are
// left for the caller to close or renew, but are unbound so later
// operations on them fail cleanly.
func (txn *Txn) finish(state txnState) {
	if !txn.IsReadOnly() {
		for _, c := range txn.cursors {
			c.closeInternal()
		}
	}
	txn.cursors = nil
	txn.state = state
	if txn.scratch != nil {
		txn.scratch.free()
		txn.scratch = nil
	}
}

func (txn *Txn) addCursor(c *Cursor) {
	txn.cursors = append(txn.cursors, c)
}

func (txn *Txn) removeCursor(c *Cursor) {
	for i, cur := range txn.cursors {
		if cur == c {
			txn.cursors = append(txn.cursors[:i], txn.cursors[i+1:]...)
			return
		}
	}
}

// keyVal marshals the key descriptor into the scratch region and returns
// the in-region pointers for an engine call. Both pointers stay valid for
// exactly one call; the caller re-reads outputs before the next use.
func (txn *Txn) keyVal(key []byte) (*Val, *Val) {
	txn.scratch.set(0, Wrap(key))
	txn.scratch.set(1, Val{})
	return txn.scratch.val(0), txn.scratch.val(1)
}

// keyValPair marshals both descriptors.
func (txn *Txn) keyValPair(key, value []byte) (*Val, *Val) {
	txn.scratch.set(0, Wrap(key))
	txn.scratch.set(1, Wrap(value))
	return txn.scratch.val(0), txn.scratch.val(1)
}
