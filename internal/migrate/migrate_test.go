package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/0001_accounts.up.sql":   {Data: []byte("create table accounts (id text primary key)")},
		"sql/0001_accounts.down.sql": {Data: []byte("drop table accounts")},
		"sql/0002_tokens.up.sql":     {Data: []byte("create table refresh_tokens (id text primary key);\ncreate index tokens_idx on refresh_tokens (id)")},
		"sql/0002_tokens.down.sql":   {Data: []byte("drop table refresh_tokens")},
		"seed/0001_admin.sql":        {Data: []byte("insert into accounts (id) values ('admin')")},
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_accounts.up.sql"))

	// only 0002 is pending; its two statements run in one transaction
	mock.ExpectBegin()
	mock.ExpectExec("create table refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index tokens_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_tokens.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	runner := NewRunner(db, testFS(), "sql", "seed")
	if err := runner.Up(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_accounts.up.sql").
			AddRow("0002_tokens.up.sql"))

	mock.ExpectBegin()
	mock.ExpectExec("drop table refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("delete from schema_migrations").
		WithArgs("0002_tokens.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))

	runner := NewRunner(db, testFS(), "sql", "seed")
	if err := runner.Down(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	runner := NewRunner(db, testFS(), "sql", "seed")
	if err := runner.Down(context.Background()); err == nil {
		t.Fatal("expected error when nothing is applied")
	}
}

func TestSeedUsesOwnBookkeeping(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	mock.ExpectBegin()
	mock.ExpectExec("insert into accounts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_seeds").
		WithArgs("0001_admin.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	runner := NewRunner(db, testFS(), "sql", "seed")
	if err := runner.Seed(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusListsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_accounts.up.sql").
			AddRow("0002_tokens.up.sql"))

	runner := NewRunner(db, testFS(), "sql", "seed")
	applied, err := runner.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 || applied[0] != "0001_accounts.up.sql" {
		t.Fatalf("unexpected status: %v", applied)
	}
}
