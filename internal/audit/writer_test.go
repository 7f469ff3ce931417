package audit_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"tasktrail/internal/audit"
	"tasktrail/internal/db"
	"tasktrail/internal/domain"
	"tasktrail/internal/migrate"
	"tasktrail/internal/repo"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func entry() audit.Entry {
	return audit.Entry{
		TaskID:     "t1",
		OwnerID:    "u1",
		ModifiedBy: "u1",
		ChangeType: domain.ChangeUpdated,
		Updates: []domain.FieldChange{
			{Field: domain.FieldTitle, OldValue: domain.TextValue("a"), NewValue: domain.TextValue("b")},
		},
	}
}

func TestAppendRequiresTransaction(t *testing.T) {
	w := audit.Writer{}
	if _, err := w.Append(context.Background(), nil, entry()); !errors.Is(err, audit.ErrNoTx) {
		t.Fatalf("expected ErrNoTx, got %v", err)
	}
}

func TestAppendRejectsEmptyUpdates(t *testing.T) {
	conn := openDB(t)
	tx, err := conn.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	e := entry()
	e.Updates = nil
	if _, err := (audit.Writer{}).Append(context.Background(), tx, e); err == nil {
		t.Fatalf("expected error for entry without updates")
	}
}

func TestAppendVisibleOnlyAfterCommit(t *testing.T) {
	conn := openDB(t)
	ctx := context.Background()
	r := repo.Repo{DB: conn}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w := audit.Writer{NewID: func() string { return "entry-1" }}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	e := entry()
	e.At = at
	id, err := w.Append(ctx, tx, e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id != "entry-1" {
		t.Fatalf("unexpected id %s", id)
	}
	if n, _ := r.CountAudit(ctx, tx, "t1"); n != 1 {
		t.Fatalf("entry should be visible inside its transaction, got %d", n)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if n, _ := r.CountAudit(ctx, nil, "t1"); n != 0 {
		t.Fatalf("rolled back entry persisted: %d", n)
	}

	tx, err = conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := w.Append(ctx, tx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	entries, err := r.ListHistory(ctx, repo.AuditFilters{TaskID: "t1"})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if !got.Timestamp.Equal(at) || got.ChangeType != domain.ChangeUpdated || got.OwnerID != "u1" {
		t.Fatalf("unexpected entry: %+v", got.AuditEntry)
	}
	if len(got.Updates) != 1 || got.Updates[0].NewValue.Kind != domain.KindText || got.Updates[0].NewValue.Text != "b" {
		t.Fatalf("updates not decoded: %+v", got.Updates)
	}
}
