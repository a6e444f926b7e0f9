package lmx

import "os"

// TxnHandle is an opaque native transaction handle allocated by the engine.
type TxnHandle uintptr

// DBIHandle is an opaque native database handle allocated by the engine.
type DBIHandle uint32

// CursorHandle is an opaque native cursor handle allocated by the engine.
type CursorHandle uintptr

// invalidDBI is the poisoned-handle sentinel set by Drop with delete.
const invalidDBI DBIHandle = 0

// Engine is the boundary to the excluded storage component. Every call is
// synchronous and returns an integer status code: zero for success, the
// reserved ErrNotFound / ErrKeyExist codes for the soft signals, any other
// value for an engine failure. Data crosses the boundary only as Val
// descriptors; output descriptors are written back in place and reference
// engine memory subject to the validity window documented on Val.
//
// Engines ship as adapters: engine/mdbx binds libmdbx through cgo,
// engine/boltdb wraps bbolt in pure Go.
type Engine interface {
	// Open opens or creates the store at path. flags is a bitwise OR of
	// the Env* open flags below; adapters honor what they can and ignore
	// the rest.
	Open(path string, flags uint, mode os.FileMode) int
	Close()

	// BeginTxn starts a transaction. A Readonly flag requests a snapshot
	// reader; reader-slot exhaustion surfaces as ErrReadersFull.
	BeginTxn(flags uint) (TxnHandle, int)
	Commit(txn TxnHandle) int
	Abort(txn TxnHandle)
	// Reset releases a read-only transaction's snapshot but keeps the
	// handle for Renew.
	Reset(txn TxnHandle)
	// Renew re-acquires a snapshot on a Reset read-only transaction.
	Renew(txn TxnHandle) int

	// OpenDBI opens the named database; "" names the root database. The
	// uint result carries the database's effective flags, which for an
	// existing database reflect how it was created rather than what the
	// caller passed.
	OpenDBI(txn TxnHandle, name string, flags uint) (DBIHandle, uint, int)
	CloseDBI(dbi DBIHandle)
	// Drop empties the database; del also removes its definition.
	Drop(txn TxnHandle, dbi DBIHandle, del bool) int

	// Get looks up key and writes the engine-provided value descriptor
	// into val.
	Get(txn TxnHandle, dbi DBIHandle, key, val *Val) int
	// Put stores key/value. val is in-out: with NoOverwrite it receives
	// the existing value descriptor on ErrKeyExist; with Reserve it
	// receives a writable descriptor the caller must fill before the
	// next engine call.
	Put(txn TxnHandle, dbi DBIHandle, key, val *Val, flags uint) int
	// Del removes an entry. A nil val on a dup-sort database removes all
	// duplicates of key.
	Del(txn TxnHandle, dbi DBIHandle, key, val *Val) int
	Stat(txn TxnHandle, dbi DBIHandle) (*Stat, int)

	CursorOpen(txn TxnHandle, dbi DBIHandle) (CursorHandle, int)
	CursorClose(cur CursorHandle)
	// CursorRenew rebinds a cursor to a renewed read-only transaction.
	CursorRenew(txn TxnHandle, cur CursorHandle) int
	// CursorGet positions the cursor per op and writes both descriptors
	// back in place. Set-family ops read the sought key (and for the
	// GetBoth family the sought value) from the same descriptors.
	CursorGet(cur CursorHandle, key, val *Val, op CursorOp) int
	CursorPut(cur CursorHandle, key, val *Val, flags uint) int
	CursorDel(cur CursorHandle, flags uint) int
	CursorCount(cur CursorHandle) (uint64, int)
}

// Environment open flags
const (
	// Default opens with no special behavior
	Default uint = 0

	// NoSubdir opens path as the data file itself rather than a directory
	NoSubdir uint = 0x4000

	// NoSync asks the engine not to fsync after commit
	NoSync uint = 0x10000

	// Readonly opens the environment, or begins a transaction, in
	// read-only mode
	Readonly uint = 0x20000

	// TxnReadOnly is the transaction-scoped alias for Readonly
	TxnReadOnly = Readonly
)

// Database flags
const (
	// ReverseKey compares keys as reversed byte strings
	ReverseKey uint = 0x02

	// DupSort permits multiple ordered values per key
	DupSort uint = 0x04

	// Create creates the named database if it does not exist
	Create uint = 0x40000
)

// Write operation flags
const (
	// NoOverwrite refuses to replace an existing key; the existing value
	// is handed back as a normal return, not an error
	NoOverwrite uint = 0x10

	// NoDupData refuses an exact key/value pair that already exists in a
	// dup-sort database; as a delete flag it removes all duplicates of
	// the key at the cursor
	NoDupData uint = 0x20

	// Current replaces the value at the cursor's current position
	Current uint = 0x40

	// Reserve returns a writable descriptor of the requested size instead
	// of copying the value; the caller fills it before the next engine
	// call on the transaction
	Reserve uint = 0x10000

	// Append asserts keys arrive in ascending order. The layer does not
	// validate the assertion; violating it corrupts ordering
	Append uint = 0x20000

	// AppendDup is Append for sorted duplicate values
	AppendDup uint = 0x80000
)

// CursorOp selects a cursor positioning mode.
type CursorOp uint

const (
	// First positions at the first key
	First CursorOp = iota
	// FirstDup positions at the first duplicate of the current key
	FirstDup
	// GetBoth positions at the exact key/value pair
	GetBoth
	// GetBothRange positions at key with value >= specified
	GetBothRange
	// GetCurrent returns the current key/value
	GetCurrent
	// Last positions at the last key
	Last
	// LastDup positions at the last duplicate of the current key
	LastDup
	// Next moves to the next key/value
	Next
	// NextDup moves to the next duplicate of the current key
	NextDup
	// NextNoDup moves to the first value of the next key
	NextNoDup
	// Prev moves to the previous key/value
	Prev
	// PrevDup moves to the previous duplicate of the current key
	PrevDup
	// PrevNoDup moves to the last value of the previous key
	PrevNoDup
	// Set positions at the exact key
	Set
	// SetKey positions at the exact key, returning key and value
	SetKey
	// SetRange positions at the first key >= specified
	SetRange
)

// Stat holds structural counters for a database. Read-only and
// side-effect-free to obtain.
type Stat struct {
	PSize         uint   // Page size
	Depth         uint   // Tree depth
	BranchPages   uint64 // Number of branch pages
	LeafPages     uint64 // Number of leaf pages
	OverflowPages uint64 // Number of overflow pages
	Entries       uint64 // Number of entries
}
