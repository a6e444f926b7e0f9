// Package lmx is a client access layer over an embedded, ordered,
// memory-mapped key-value engine reached through a foreign-call style
// boundary with a status-code return convention.
//
// lmx does not implement the storage engine itself. The engine is supplied
// as an Engine adapter: engine/mdbx binds libmdbx through cgo, engine/boltdb
// wraps bbolt in pure Go. On top of the boundary lmx provides transactions,
// named databases, cursors, ordered iterators and a zero-copy descriptor
// path that avoids allocation on the hot get/put path.
//
// Basic usage:
//
//	env := lmx.NewEnv(boltdb.New())
//	if err := env.Open("/path/to/db", 0, 0644); err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	db, err := env.OpenDatabase("test", lmx.Create)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	txn, err := env.BeginTxn(0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := db.Put(txn, []byte("key"), []byte("value"), 0); err != nil {
//	    txn.Abort()
//	    log.Fatal(err)
//	}
//
//	if err := txn.Commit(); err != nil {
//	    log.Fatal(err)
//	}
//
// Passing a nil transaction to Database operations opens a throwaway
// transaction for the single call and commits or aborts it automatically.
//
// A transaction and any cursor or iterator derived from it must be used by
// one goroutine at a time. The layer performs no locking of its own; the
// engine provides the only cross-goroutine coordination (one writer, many
// snapshot readers).
package lmx
