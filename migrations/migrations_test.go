package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExecUpDown(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if err := Run(db); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, err := Version(ctx, db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}

	if _, err := db.ExecContext(ctx, `SELECT notified_at FROM notices`); err != nil {
		t.Errorf("notified_at column missing: %v", err)
	}

	if err := Exec(ctx, db, "down"); err != nil {
		t.Fatalf("down: %v", err)
	}
	if v, _ := Version(ctx, db); v != 1 {
		t.Errorf("version after down = %d, want 1", v)
	}

	if err := Exec(ctx, db, "up-one"); err != nil {
		t.Fatalf("up-one: %v", err)
	}
	if v, _ := Version(ctx, db); v != 2 {
		t.Errorf("version after up-one = %d, want 2", v)
	}
}

func TestExecUnknownCommand(t *testing.T) {
	if err := Exec(context.Background(), openMemory(t), "sideways"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
