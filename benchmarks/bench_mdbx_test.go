package benchmarks

import (
	"encoding/binary"
	"runtime"
	"testing"

	gomdbx "github.com/erigontech/mdbx-go/mdbx"

	"github.com/lmxdb/lmx"
	lmxmdbx "github.com/lmxdb/lmx/engine/mdbx"
)

func newLmxMdbxDB(b *testing.B, numKeys int) (*lmx.Env, *lmx.Database) {
	b.Helper()
	env := lmx.NewEnv(lmxmdbx.New("bench"))
	if err := env.Open(b.TempDir(), lmx.NoSync, 0o644); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(env.Close)
	db, err := env.OpenDatabase("bench", lmx.Create)
	if err != nil {
		b.Fatal(err)
	}
	key := make([]byte, 8)
	val := make([]byte, benchValSize)
	err = env.Update(func(txn *lmx.Txn) error {
		for i := 0; i < numKeys; i++ {
			if _, err := db.Put(txn, benchKey(key, i), val, lmx.Append); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
	return env, db
}

func newRawMdbxDB(b *testing.B, numKeys int) (*gomdbx.Env, gomdbx.DBI) {
	b.Helper()
	env, err := gomdbx.NewEnv(gomdbx.Label("bench-raw"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(env.Close)
	env.SetOption(gomdbx.OptMaxDB, 10)
	env.SetGeometry(-1, -1, 1<<30, -1, -1, 4096)
	if err := env.Open(b.TempDir(), gomdbx.SafeNoSync, 0o644); err != nil {
		b.Fatal(err)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		b.Fatal(err)
	}
	dbi, err := txn.OpenDBI("bench", gomdbx.Create, nil, nil)
	if err != nil {
		txn.Abort()
		b.Fatal(err)
	}
	key := make([]byte, 8)
	val := make([]byte, benchValSize)
	for i := 0; i < numKeys; i++ {
		if err := txn.Put(dbi, benchKey(key, i), val, gomdbx.Append); err != nil {
			txn.Abort()
			b.Fatal(err)
		}
	}
	if _, err := txn.Commit(); err != nil {
		b.Fatal(err)
	}
	return env, dbi
}

func BenchmarkMdbxSeqGet(b *testing.B) {
	const size = 100_000
	b.Run("SeqGet_100k/lmx-mdbx", func(b *testing.B) {
		env, db := newLmxMdbxDB(b, size)
		txn, err := env.BeginTxn(lmx.TxnReadOnly)
		if err != nil {
			b.Fatal(err)
		}
		defer txn.Abort()

		key := make([]byte, 8)
		var v lmx.Val
		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if err := db.GetVal(txn, benchKey(key, i%size), &v); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("SeqGet_100k/mdbx", func(b *testing.B) {
		env, dbi := newRawMdbxDB(b, size)
		txn, err := env.BeginTxn(nil, gomdbx.Readonly)
		if err != nil {
			b.Fatal(err)
		}
		defer txn.Abort()

		key := make([]byte, 8)
		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := txn.Get(dbi, benchKey(key, i%size)); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkMdbxSeqPut(b *testing.B) {
	const size = 100_000
	b.Run("SeqPut_100k/lmx-mdbx", func(b *testing.B) {
		env, db := newLmxMdbxDB(b, size)
		txn, err := env.BeginTxn(0)
		if err != nil {
			b.Fatal(err)
		}
		defer txn.Abort()

		key := make([]byte, 8)
		val := make([]byte, benchValSize)
		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			binary.BigEndian.PutUint64(val, uint64(i))
			if _, err := db.Put(txn, benchKey(key, i%size), val, 0); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.Run("SeqPut_100k/mdbx", func(b *testing.B) {
		env, dbi := newRawMdbxDB(b, size)

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		txn, err := env.BeginTxn(nil, 0)
		if err != nil {
			b.Fatal(err)
		}
		defer txn.Abort()

		key := make([]byte, 8)
		val := make([]byte, benchValSize)
		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			binary.BigEndian.PutUint64(val, uint64(i))
			if err := txn.Put(dbi, benchKey(key, i%size), val, 0); err != nil {
				b.Fatal(err)
			}
		}
	})
}
