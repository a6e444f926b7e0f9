package lmx_test

import (
	"testing"

	"github.com/lmxdb/lmx"
)

func TestTxnCommitVisibility(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	txn, err := env.BeginTxn(0)
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, db, txn, "alpha", "1")
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	if got := mustGet(t, db, nil, "alpha"); got != "1" {
		t.Fatalf("got %q, want %q", got, "1")
	}
}

func TestTxnAbortDiscards(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	txn, err := env.BeginTxn(0)
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, db, txn, "alpha", "1")
	txn.Abort()

	_, err = db.Get(nil, []byte("alpha"))
	if !lmx.IsNotFound(err) {
		t.Fatalf("expected not-found after abort, got %v", err)
	}
}

func TestTxnDoubleCommit(t *testing.T) {
	env, _ := newTestEnv(t)

	txn, err := env.BeginTxn(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	err = txn.Commit()
	if lmx.Code(err) != lmx.ErrBadTxn {
		t.Fatalf("expected ErrBadTxn, got %v", err)
	}
	// Abort after commit is a no-op, not a crash.
	txn.Abort()
}

func TestTxnCommitAfterAbort(t *testing.T) {
	env, _ := newTestEnv(t)

	txn, err := env.BeginTxn(0)
	if err != nil {
		t.Fatal(err)
	}
	txn.Abort()
	if err := txn.Commit(); lmx.Code(err) != lmx.ErrBadTxn {
		t.Fatalf("expected ErrBadTxn, got %v", err)
	}
}

func TestTxnReadonlyRejectsWrites(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	txn, err := env.BeginTxn(lmx.TxnReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Abort()

	if !txn.IsReadOnly() {
		t.Fatal("transaction should report read-only")
	}
	_, err = db.Put(txn, []byte("k"), []byte("v"), 0)
	if err == nil {
		t.Fatal("put in read-only transaction should fail")
	}
}

func TestTxnSnapshotIsolation(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	mustPut(t, db, nil, "alpha", "old")

	reader, err := env.BeginTxn(lmx.TxnReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Abort()

	mustPut(t, db, nil, "alpha", "new")

	// The reader keeps its snapshot.
	if got := mustGet(t, db, reader, "alpha"); got != "old" {
		t.Fatalf("snapshot read got %q, want %q", got, "old")
	}
	if got := mustGet(t, db, nil, "alpha"); got != "new" {
		t.Fatalf("fresh read got %q, want %q", got, "new")
	}
}

func TestTxnResetRenew(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	mustPut(t, db, nil, "alpha", "old")

	reader, err := env.BeginTxn(lmx.TxnReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, db, reader, "alpha"); got != "old" {
		t.Fatalf("got %q", got)
	}

	reader.Reset()

	// Operations between Reset and Renew are invalid.
	if _, err := db.Get(reader, []byte("alpha")); lmx.Code(err) != lmx.ErrBadTxn {
		t.Fatalf("expected ErrBadTxn between reset and renew, got %v", err)
	}

	mustPut(t, db, nil, "alpha", "new")

	if err := reader.Renew(); err != nil {
		t.Fatal(err)
	}
	// The renewed snapshot observes the later write.
	if got := mustGet(t, db, reader, "alpha"); got != "new" {
		t.Fatalf("renewed read got %q, want %q", got, "new")
	}
	if err := reader.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestTxnResetAbortReleases(t *testing.T) {
	env, eng := newTestEnv(t)

	reader, err := env.BeginTxn(lmx.TxnReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	reader.Reset()
	// A reset reader that is never renewed must still be releasable.
	reader.Abort()
	if n := eng.OpenTxns(); n != 0 {
		t.Fatalf("%d transactions still open after abort of reset reader", n)
	}

	reader, err = env.BeginTxn(lmx.TxnReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	reader.Reset()
	if err := reader.Commit(); err != nil {
		t.Fatal(err)
	}
	if n := eng.OpenTxns(); n != 0 {
		t.Fatalf("%d transactions still open after commit of reset reader", n)
	}
}

func TestTxnRenewWithoutReset(t *testing.T) {
	env, _ := newTestEnv(t)

	txn, err := env.BeginTxn(lmx.TxnReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer txn.Abort()
	if err := txn.Renew(); lmx.Code(err) != lmx.ErrBadTxn {
		t.Fatalf("expected ErrBadTxn, got %v", err)
	}
}

func TestRunTxnHelpers(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	err := env.Update(func(txn *lmx.Txn) error {
		_, err := db.Put(txn, []byte("k"), []byte("v"), 0)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	err = env.View(func(txn *lmx.Txn) error {
		if got := mustGet(t, db, txn, "k"); got != "v" {
			t.Fatalf("got %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunTxnAbortsOnError(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	boom := lmx.NewError(lmx.ErrProblem)
	err := env.Update(func(txn *lmx.Txn) error {
		mustPut(t, db, txn, "k", "v")
		return boom
	})
	if err != boom {
		t.Fatalf("expected callback error back, got %v", err)
	}
	if _, err := db.Get(nil, []byte("k")); !lmx.IsNotFound(err) {
		t.Fatalf("write should have been rolled back, got %v", err)
	}
}
