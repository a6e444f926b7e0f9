package lmx_test

import (
	"testing"

	"github.com/lmxdb/lmx"
)

func collect(t *testing.T, it *lmx.EntryIterator) []string {
	t.Helper()
	defer it.Close()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Entry().Key))
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return keys
}

func equalKeys(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestIterateForward(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	fillSorted(t, env, db, map[string]string{"3": "c", "1": "a", "2": "b"})

	it, err := db.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"1", "2", "3"}) {
		t.Fatalf("keys = %v", got)
	}
}

func TestIterateBackward(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	fillSorted(t, env, db, map[string]string{"3": "c", "1": "a", "2": "b"})

	it, err := db.IterateBackward()
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"3", "2", "1"}) {
		t.Fatalf("keys = %v", got)
	}
}

func TestIterateEmpty(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)

	it, err := db.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); len(got) != 0 {
		t.Fatalf("keys = %v", got)
	}
}

func TestSeekForward(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	fillSorted(t, env, db, map[string]string{"10": "a", "30": "c", "50": "e"})

	// Start lands on the smallest key at or above it.
	it, err := db.Seek([]byte("20"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"30", "50"}) {
		t.Fatalf("keys = %v", got)
	}

	// Exact hit includes the key itself.
	it, err = db.Seek([]byte("30"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"30", "50"}) {
		t.Fatalf("keys = %v", got)
	}

	// Past the end: immediately exhausted, no error.
	it, err = db.Seek([]byte("99"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); len(got) != 0 {
		t.Fatalf("keys = %v", got)
	}
}

func TestSeekBackward(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	fillSorted(t, env, db, map[string]string{"10": "a", "30": "c", "50": "e"})

	// Start lands on the largest key at or below it.
	it, err := db.SeekBackward([]byte("40"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"30", "10"}) {
		t.Fatalf("keys = %v", got)
	}

	it, err = db.SeekBackward([]byte("30"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"30", "10"}) {
		t.Fatalf("keys = %v", got)
	}

	// Above every key: starts from the end.
	it, err = db.SeekBackward([]byte("99"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); !equalKeys(got, []string{"50", "30", "10"}) {
		t.Fatalf("keys = %v", got)
	}

	// Below every key: exhausted.
	it, err = db.SeekBackward([]byte("00"))
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(t, it); len(got) != 0 {
		t.Fatalf("keys = %v", got)
	}
}

func TestIteratorEntriesAreCopies(t *testing.T) {
	env, _ := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	fillSorted(t, env, db, map[string]string{"a": "1", "b": "2"})

	it, err := db.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	if !it.Next() {
		t.Fatal("expected first entry")
	}
	first := it.Entry().Key
	held := append([]byte(nil), first...)
	it.Next()
	// The held copy is unaffected by advancing.
	if string(held) != "a" {
		t.Fatalf("held key mutated to %q", held)
	}
}

func TestIteratorReleasesResources(t *testing.T) {
	env, eng := newTestEnv(t)
	db := openDB(t, env, "data", 0)
	fillSorted(t, env, db, map[string]string{"a": "1", "b": "2", "c": "3"})

	// Full traversal auto-closes.
	it, err := db.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	for it.Next() {
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if n := eng.OpenTxns(); n != 0 {
		t.Fatalf("%d transactions open after exhaustion", n)
	}
	if n := eng.OpenCursors(); n != 0 {
		t.Fatalf("%d cursors open after exhaustion", n)
	}

	// Early abandonment must release on Close.
	it, err = db.Iterate()
	if err != nil {
		t.Fatal(err)
	}
	if !it.Next() {
		t.Fatal("expected an entry")
	}
	it.Close()
	if n := eng.OpenTxns(); n != 0 {
		t.Fatalf("%d transactions open after early close", n)
	}
	if n := eng.OpenCursors(); n != 0 {
		t.Fatalf("%d cursors open after early close", n)
	}

	// Next after Close stays false.
	if it.Next() {
		t.Fatal("closed iterator advanced")
	}
}
