package profile

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryBootstrapIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.CreateDefaultProfile(ctx, "acc-1", "student")
	if err != nil {
		t.Fatal(err)
	}
	if first == "" {
		t.Fatal("expected a profile id")
	}
	second, err := m.CreateDefaultProfile(ctx, "acc-1", "student")
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Fatalf("bootstrap must be idempotent: %s != %s", second, first)
	}
	if !m.Has("acc-1") {
		t.Fatal("Has must report the profile")
	}
}

func TestMemoryBootstrapRoles(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if id, err := m.CreateDefaultProfile(ctx, "acc-admin", "admin"); err != nil || id != "" {
		t.Fatalf("admin: expected no profile, got id=%q err=%v", id, err)
	}
	if _, err := m.CreateDefaultProfile(ctx, "acc-x", "janitor"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestPGBootstrapperStudent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into students").
		WithArgs(sqlmock.AnyArg(), "acc-1", "Beginner", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := NewPGBootstrapper(db).CreateDefaultProfile(context.Background(), "acc-1", "student")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a profile id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGBootstrapperTeacherAndAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into teachers").
		WithArgs(sqlmock.AnyArg(), "acc-2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	b := NewPGBootstrapper(db)
	if _, err := b.CreateDefaultProfile(context.Background(), "acc-2", "teacher"); err != nil {
		t.Fatal(err)
	}
	// admins carry no profile and hit no SQL
	if id, err := b.CreateDefaultProfile(context.Background(), "acc-3", "admin"); err != nil || id != "" {
		t.Fatalf("admin: expected no profile, got id=%q err=%v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
