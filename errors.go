package lmx

import (
	"errors"
	"fmt"
)

// Error represents an lmx error with an engine status code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lmx: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("lmx: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, NewError(ErrNotFound)) works alongside the helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// ErrorCode represents engine status codes, numbered LMDB/MDBX style.
// Zero is success, the reserved negative range carries the soft signals
// (not-found, key-exists) and the hard engine failures.
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = 0

	// ErrKeyExist indicates the key/data pair already exists
	ErrKeyExist ErrorCode = -30799

	// ErrNotFound indicates the key/data pair was not found (EOF)
	ErrNotFound ErrorCode = -30798

	// ErrPageNotFound indicates a requested page was not found (corruption)
	ErrPageNotFound ErrorCode = -30797

	// ErrCorrupted indicates the database is corrupted
	ErrCorrupted ErrorCode = -30796

	// ErrPanic indicates a fatal environment error
	ErrPanic ErrorCode = -30795

	// ErrVersionMismatch indicates DB version doesn't match library
	ErrVersionMismatch ErrorCode = -30794

	// ErrInvalid indicates the file is not a valid database file
	ErrInvalid ErrorCode = -30793

	// ErrMapFull indicates the environment mapsize was reached
	ErrMapFull ErrorCode = -30792

	// ErrDBsFull indicates the environment maxdbs was reached
	ErrDBsFull ErrorCode = -30791

	// ErrReadersFull indicates the environment maxreaders was reached;
	// BeginTxn of a read-only transaction fails with this when the
	// engine's reader slots are exhausted
	ErrReadersFull ErrorCode = -30790

	// ErrTxnFull indicates the transaction has too many dirty pages
	ErrTxnFull ErrorCode = -30788

	// ErrCursorFull indicates cursor stack overflow (corruption)
	ErrCursorFull ErrorCode = -30787

	// ErrPageFull indicates a page has no space (internal error)
	ErrPageFull ErrorCode = -30786

	// ErrIncompatible indicates incompatible operation or flags,
	// e.g. a dup-sort-only flag against a plain database
	ErrIncompatible ErrorCode = -30784

	// ErrBadRSlot indicates reader slot was corrupted or reused
	ErrBadRSlot ErrorCode = -30783

	// ErrBadTxn indicates the transaction has ended or is otherwise
	// invalid; issued for any operation against a committed or aborted
	// transaction
	ErrBadTxn ErrorCode = -30782

	// ErrBadValSize indicates invalid key or data size
	ErrBadValSize ErrorCode = -30781

	// ErrBadDBI indicates the database handle is invalid, including a
	// handle poisoned by Drop with delete
	ErrBadDBI ErrorCode = -30780

	// ErrProblem indicates an unexpected engine error
	ErrProblem ErrorCode = -30779

	// ErrBusy indicates another write transaction is running
	ErrBusy ErrorCode = -30778

	// ErrBadCursor indicates the cursor is closed or its transaction
	// has ended
	ErrBadCursor ErrorCode = -30409

	// ErrInvalidParam indicates a nil or invalid caller argument,
	// detected before any engine call (EINVAL)
	ErrInvalidParam ErrorCode = 22

	// ErrPermissionDenied indicates a write through a read-only
	// transaction or environment (EACCES)
	ErrPermissionDenied ErrorCode = 13
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:             "success",
	ErrKeyExist:         "key/data pair already exists",
	ErrNotFound:         "key/data pair not found",
	ErrPageNotFound:     "requested page not found",
	ErrCorrupted:        "database is corrupted",
	ErrPanic:            "fatal environment error",
	ErrVersionMismatch:  "database version mismatch",
	ErrInvalid:          "file is not a valid database",
	ErrMapFull:          "environment mapsize limit reached",
	ErrDBsFull:          "environment maxdbs limit reached",
	ErrReadersFull:      "environment maxreaders limit reached",
	ErrTxnFull:          "transaction has too many dirty pages",
	ErrCursorFull:       "cursor stack overflow",
	ErrPageFull:         "page has no space",
	ErrIncompatible:     "incompatible operation or flags",
	ErrBadRSlot:         "reader slot corrupted",
	ErrBadTxn:           "transaction is invalid",
	ErrBadValSize:       "invalid key or value size",
	ErrBadDBI:           "invalid database handle",
	ErrProblem:          "unexpected engine error",
	ErrBusy:             "another write transaction is running",
	ErrBadCursor:        "cursor is closed",
	ErrInvalidParam:     "invalid parameter",
	ErrPermissionDenied: "permission denied",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// operr converts an engine status code into an error; 0 is nil.
func operr(rc int) error {
	if rc == 0 {
		return nil
	}
	return NewError(ErrorCode(rc))
}

// IsNotFound returns true if the error carries the reserved not-found code.
// Not-found is a soft signal, not an engine failure.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrNotFound
	}
	return false
}

// IsKeyExist returns true if the error carries the key-exists code
func IsKeyExist(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrKeyExist
	}
	return false
}

// IsCorrupted returns true if the error indicates database corruption
func IsCorrupted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCorrupted || e.Code == ErrPageNotFound
	}
	return false
}

// IsMapFull returns true if the error is ErrMapFull
func IsMapFull(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrMapFull
	}
	return false
}

// Code returns the error code from an error, or ErrProblem if not an lmx error
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrProblem
}
