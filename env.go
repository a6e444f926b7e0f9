package lmx

import "os"

// Env owns an engine and hands out transactions and database handles.
// An Env is safe for concurrent use; the engine provides the cross-thread
// coordination (one writer, many snapshot readers).
type Env struct {
	eng    Engine
	opened bool
	closed bool
}

// NewEnv wraps an engine adapter. The environment is unusable until Open.
func NewEnv(eng Engine) *Env {
	return &Env{eng: eng}
}

// Open opens or creates the store at path.
func (e *Env) Open(path string, flags uint, mode os.FileMode) error {
	if e.closed {
		return NewError(ErrPanic)
	}
	if e.opened {
		return NewError(ErrInvalid)
	}
	if rc := e.eng.Open(path, flags, mode); rc != 0 {
		return operr(rc)
	}
	e.opened = true
	return nil
}

// Close shuts the engine down. Transactions and cursors must already be
// finished; the engine does not protect against use after Close.
func (e *Env) Close() {
	if e.opened && !e.closed {
		e.eng.Close()
	}
	e.closed = true
}

// Engine exposes the underlying adapter, mainly for diagnostics.
func (e *Env) Engine() Engine {
	return e.eng
}

// BeginTxn starts a transaction and allocates its scratch region. Pass
// TxnReadOnly for a snapshot reader. The returned transaction, and any
// cursor derived from it, must be used by one goroutine at a time.
func (e *Env) BeginTxn(flags uint) (*Txn, error) {
	if !e.opened || e.closed {
		return nil, NewError(ErrPanic)
	}
	h, rc := e.eng.BeginTxn(flags)
	if rc != 0 {
		return nil, operr(rc)
	}
	scratch, err := allocScratch()
	if err != nil {
		e.eng.Abort(h)
		return nil, err
	}
	return &Txn{
		env:     e,
		handle:  h,
		flags:   flags,
		state:   txnActive,
		scratch: scratch,
	}, nil
}

// OpenDatabase opens or creates the named database using a throwaway write
// transaction that is committed before returning. The handle is bound to
// the environment's lifetime, not to any transaction.
func (e *Env) OpenDatabase(name string, flags uint) (*Database, error) {
	txn, err := e.BeginTxn(0)
	if err != nil {
		return nil, err
	}
	db, err := e.openDatabase(txn, name, flags)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return db, nil
}

// ReadonlyDatabase opens an existing named database under a throwaway
// read-only transaction.
func (e *Env) ReadonlyDatabase(name string) (*Database, error) {
	txn, err := e.BeginTxn(TxnReadOnly)
	if err != nil {
		return nil, err
	}
	db, err := e.openDatabase(txn, name, 0)
	if err != nil {
		txn.Abort()
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return db, nil
}

func (e *Env) openDatabase(txn *Txn, name string, flags uint) (*Database, error) {
	h, eff, rc := e.eng.OpenDBI(txn.handle, name, flags)
	if rc != 0 {
		return nil, operr(rc)
	}
	// The engine reports how the database was actually created, so a
	// dup-sort database reopened without the flag still behaves as one.
	return &Database{
		env:     e,
		handle:  h,
		name:    name,
		dupSort: eff&DupSort != 0,
	}, nil
}

// TxnOp is the callback type for View, Update, and RunTxn.
type TxnOp func(txn *Txn) error

// View executes a read-only transaction. The transaction is committed when
// fn returns nil and aborted when it returns an error.
func (e *Env) View(fn TxnOp) error {
	return e.RunTxn(TxnReadOnly, fn)
}

// Update executes a read-write transaction. The transaction is committed
// when fn returns nil and aborted when it returns an error.
func (e *Env) Update(fn TxnOp) error {
	return e.RunTxn(0, fn)
}

// RunTxn runs fn inside a transaction with the given flags.
func (e *Env) RunTxn(flags uint, fn TxnOp) error {
	txn, err := e.BeginTxn(flags)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}
