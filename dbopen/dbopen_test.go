package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemory(t *testing.T) {
	// WHAT: In-memory open succeeds and pragmas are applied.
	// WHY: Every store test depends on this helper.
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}
}

func TestOpenWithSchema(t *testing.T) {
	// WHAT: WithSchema executes DDL during open.
	// WHY: The gateway opens its database with the items schema inline.
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY)`))
	if _, err := db.Exec(`INSERT INTO things (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestOpenMkdirAll(t *testing.T) {
	// WHAT: WithMkdirAll creates missing parent directories.
	// WHY: First run on a clean machine has no data/ directory yet.
	path := filepath.Join(t.TempDir(), "nested", "deep", "items.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdir: %v", err)
	}
	db.Close()
}

func TestIsBusy(t *testing.T) {
	// WHAT: BUSY detection matches the sqlite error strings.
	// WHY: Retry logic must not retry unrelated failures.
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database is locked"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("UNIQUE constraint failed: items.natural_id"), false},
	}
	for _, c := range cases {
		if got := IsBusy(c.err); got != c.want {
			t.Errorf("IsBusy(%v): got %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRunTxCommit(t *testing.T) {
	// WHAT: RunTx commits on success and rolls back on error.
	// WHY: Batch upsert must be all-or-nothing per batch.
	db := OpenMemory(t, WithSchema(`CREATE TABLE n (v INTEGER)`))
	ctx := context.Background()

	if err := RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO n (v) VALUES (1)`)
		return err
	}); err != nil {
		t.Fatalf("commit tx: %v", err)
	}

	wantErr := errors.New("boom")
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO n (v) VALUES (2)`)
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("rollback tx: got %v, want %v", err, wantErr)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM n`).Scan(&count)
	if count != 1 {
		t.Errorf("rows after rollback: got %d, want 1", count)
	}
}
