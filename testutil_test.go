package lmx_test

import (
	"testing"

	"github.com/lmxdb/lmx"
	"github.com/lmxdb/lmx/engine/boltdb"
)

// newTestEnv opens an environment over the pure-Go engine in a temp dir.
// The engine is returned too so tests can assert on its leak counters.
func newTestEnv(t *testing.T) (*lmx.Env, *boltdb.Engine) {
	t.Helper()
	eng := boltdb.New()
	env := lmx.NewEnv(eng)
	if err := env.Open(t.TempDir(), lmx.Default, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(env.Close)
	return env, eng
}

func openDB(t *testing.T, env *lmx.Env, name string, flags uint) *lmx.Database {
	t.Helper()
	db, err := env.OpenDatabase(name, flags|lmx.Create)
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func mustPut(t *testing.T, db *lmx.Database, txn *lmx.Txn, key, value string) {
	t.Helper()
	if _, err := db.Put(txn, []byte(key), []byte(value), 0); err != nil {
		t.Fatalf("put %q: %v", key, err)
	}
}

func mustGet(t *testing.T, db *lmx.Database, txn *lmx.Txn, key string) string {
	t.Helper()
	v, err := db.Get(txn, []byte(key))
	if err != nil {
		t.Fatalf("get %q: %v", key, err)
	}
	return string(v)
}
