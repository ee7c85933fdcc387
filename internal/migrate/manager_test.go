package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_add_widgets.up.sql", "create table widgets (id text)")
	writeMigration(t, dir, "0002_add_widgets.down.sql", "drop table widgets")
	writeMigration(t, dir, "0001_init.up.sql", "create table base (id text)")
	writeMigration(t, dir, "0001_init.down.sql", "drop table base")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Version 1 already applied; only version 2 should run.
	mock.ExpectQuery("select version from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("create table widgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").
		WithArgs(2, "add_widgets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := NewManager(db, dir).Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackHighestApplied(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_init.up.sql", "create table base (id text)")
	writeMigration(t, dir, "0001_init.down.sql", "drop table base")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select version from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("drop table base").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := NewManager(db, dir).Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if !ok {
		t.Fatal("Down reported nothing to roll back")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoadRejectsMissingUpFile(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_init.down.sql", "drop table base")

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	if _, err := NewManager(db, dir).load(); err == nil {
		t.Fatal("want error for down-only migration")
	}
}
