package lmx_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/lmxdb/lmx"
)

func u64key(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func TestBufferCursorScan(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	// Big-endian keys keep numeric and byte order aligned, so Append is
	// safe here.
	err := env.Update(func(txn *lmx.Txn) error {
		for i := uint64(0); i < 100; i++ {
			if _, err := db.Put(txn, u64key(i), u64key(i*i), lmx.Append); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	bc, err := db.BufferCursor()
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close()

	var n uint64
	ok, err := bc.First()
	for ; ok; ok, err = bc.Next() {
		if got := binary.BigEndian.Uint64(bc.Key()); got != n {
			t.Fatalf("key %d, want %d", got, n)
		}
		if got := binary.BigEndian.Uint64(bc.Value()); got != n*n {
			t.Fatalf("value %d, want %d", got, n*n)
		}
		n++
	}
	if err != nil {
		t.Fatal(err)
	}
	if n != 100 {
		t.Fatalf("scanned %d entries, want 100", n)
	}
}

func TestBufferCursorSeek(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	for _, k := range []uint64{10, 30, 50} {
		if _, err := db.Put(nil, u64key(k), u64key(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	bc, err := db.BufferCursor()
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close()

	ok, err := bc.Seek(u64key(20))
	if err != nil || !ok {
		t.Fatalf("seek: ok=%v err=%v", ok, err)
	}
	if got := binary.BigEndian.Uint64(bc.Key()); got != 30 {
		t.Fatalf("landed on %d, want 30", got)
	}

	// Past the end: false without error.
	ok, err = bc.Seek(u64key(99))
	if err != nil || ok {
		t.Fatalf("seek past end: ok=%v err=%v", ok, err)
	}
	if bc.Key() != nil {
		t.Fatal("unpositioned cursor handed out a key")
	}

	// Exact lookup.
	ok, err = bc.SeekKey(u64key(30))
	if err != nil || !ok {
		t.Fatalf("seek key: ok=%v err=%v", ok, err)
	}
	ok, err = bc.SeekKey(u64key(31))
	if err != nil || ok {
		t.Fatalf("seek absent key: ok=%v err=%v", ok, err)
	}
}

func TestBufferCursorLastPrev(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	for _, k := range []uint64{1, 2, 3} {
		if _, err := db.Put(nil, u64key(k), u64key(k), 0); err != nil {
			t.Fatal(err)
		}
	}

	bc, err := db.BufferCursor()
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close()

	ok, err := bc.Last()
	if err != nil || !ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if got := binary.BigEndian.Uint64(bc.Key()); got != 3 {
		t.Fatalf("last key %d", got)
	}
	ok, err = bc.Prev()
	if err != nil || !ok {
		t.Fatalf("prev: ok=%v err=%v", ok, err)
	}
	if got := binary.BigEndian.Uint64(bc.Key()); got != 2 {
		t.Fatalf("prev key %d", got)
	}
}

func TestBufferCursorCopies(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	mustPut(t, db, nil, "a", "1")
	mustPut(t, db, nil, "b", "2")

	bc, err := db.BufferCursor()
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close()

	if _, err := bc.First(); err != nil {
		t.Fatal(err)
	}
	keyCopy := bc.KeyCopy()
	valCopy := bc.ValueCopy()
	if _, err := bc.Next(); err != nil {
		t.Fatal(err)
	}
	// Copies survive moves; live views do not.
	if !bytes.Equal(keyCopy, []byte("a")) || !bytes.Equal(valCopy, []byte("1")) {
		t.Fatalf("copies mutated: %q=%q", keyCopy, valCopy)
	}
	if !bytes.Equal(bc.Key(), []byte("b")) {
		t.Fatalf("live key %q", bc.Key())
	}
}

func TestBufferCursorStagingGrowth(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	big := bytes.Repeat([]byte("k"), 4*lmx.DefaultBufferSize)
	if _, err := db.Put(nil, big, []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	bc, err := db.BufferCursor()
	if err != nil {
		t.Fatal(err)
	}
	defer bc.Close()

	// The seek key outsizes the staging buffer; it must grow, not truncate.
	ok, err := bc.SeekKey(big)
	if err != nil || !ok {
		t.Fatalf("seek: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(bc.Key(), big) {
		t.Fatal("staged key truncated")
	}
}

func TestBufferCursorWriter(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	mustPut(t, db, nil, "a", "old")
	mustPut(t, db, nil, "b", "2")

	bc, err := db.BufferCursorWriter()
	if err != nil {
		t.Fatal(err)
	}
	ok, err := bc.SeekKey([]byte("a"))
	if err != nil || !ok {
		t.Fatalf("seek: ok=%v err=%v", ok, err)
	}
	if err := bc.Overwrite([]byte("new")); err != nil {
		t.Fatal(err)
	}
	ok, err = bc.SeekKey([]byte("b"))
	if err != nil || !ok {
		t.Fatalf("seek: ok=%v err=%v", ok, err)
	}
	if err := bc.Delete(); err != nil {
		t.Fatal(err)
	}
	// Close commits the owned write transaction.
	if err := bc.Close(); err != nil {
		t.Fatal(err)
	}

	if got := mustGet(t, db, nil, "a"); got != "new" {
		t.Fatalf("got %q, want %q", got, "new")
	}
	if _, err := db.Get(nil, []byte("b")); !lmx.IsNotFound(err) {
		t.Fatalf("expected b deleted, got %v", err)
	}
}

func TestBufferCursorAbortDiscards(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	bc, err := db.BufferCursorWriter()
	if err != nil {
		t.Fatal(err)
	}
	if err := bc.Put([]byte("k"), []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	bc.Abort()

	if _, err := db.Get(nil, []byte("k")); !lmx.IsNotFound(err) {
		t.Fatalf("aborted write visible: %v", err)
	}
}

func TestBufferCursorClosedAccessors(t *testing.T) {
	env, eng := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	mustPut(t, db, nil, "a", "1")

	bc, err := db.BufferCursor()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bc.First(); err != nil {
		t.Fatal(err)
	}
	if err := bc.Close(); err != nil {
		t.Fatal(err)
	}

	// No stale views after close.
	if bc.Key() != nil || bc.Value() != nil {
		t.Fatal("closed cursor handed out a view")
	}
	if _, err := bc.Next(); lmx.Code(err) != lmx.ErrBadCursor {
		t.Fatalf("expected ErrBadCursor, got %v", err)
	}
	if n := eng.OpenTxns(); n != 0 {
		t.Fatalf("%d transactions still open", n)
	}
	if n := eng.OpenCursors(); n != 0 {
		t.Fatalf("%d cursors still open", n)
	}
}

func TestBufferCursorOnSharedTxn(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	txn, err := env.BeginTxn(0)
	if err != nil {
		t.Fatal(err)
	}
	bc, err := db.BufferCursorOn(txn, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := bc.Put([]byte("k"), []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	// Close must not commit a transaction it does not own.
	if err := bc.Close(); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, db, txn, "k"); got != "v" {
		t.Fatalf("got %q", got)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
}
