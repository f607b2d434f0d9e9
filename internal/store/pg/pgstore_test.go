package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"accessdesk.org/internal/access"
	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/directory"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestReconcileGrantsAppliesDelta(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select platform_id from grants").
		WithArgs("u1", "a1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}).AddRow("p1").AddRow("p2"))
	mock.ExpectQuery("select platform_id from catalog_entries").
		WithArgs("a1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}).AddRow("p1").AddRow("p2").AddRow("p3"))
	mock.ExpectExec("delete from grants").
		WithArgs("u1", "a1", "b1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into grants").
		WithArgs(sqlmock.AnyArg(), "u1", "a1", "b1", "p3", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	scope := access.GrantScope{UserID: "u1", ApplicationID: "a1", BrandID: "b1", ActorID: "admin-1"}
	delta, err := store.ReconcileGrants(context.Background(), scope, []string{"p2", "p3"})
	if err != nil {
		t.Fatalf("ReconcileGrants: %v", err)
	}
	if delta.Added != 1 || delta.Removed != 1 {
		t.Fatalf("delta = %+v, want 1 added, 1 removed", delta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReconcileGrantsUnlicensedRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select platform_id from grants").
		WithArgs("u1", "a1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}).AddRow("p1"))
	mock.ExpectQuery("select platform_id from catalog_entries").
		WithArgs("a1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}).AddRow("p1").AddRow("p2"))
	mock.ExpectRollback()

	scope := access.GrantScope{UserID: "u1", ApplicationID: "a1", BrandID: "b1"}
	_, err := store.ReconcileGrants(context.Background(), scope, []string{"p1", "p9"})
	if !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var unlicensed *access.UnlicensedError
	if !errors.As(err, &unlicensed) || len(unlicensed.PlatformIDs) != 1 || unlicensed.PlatformIDs[0] != "p9" {
		t.Fatalf("unexpected error detail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReconcileGrantsNoChangeShortCircuits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select platform_id from grants").
		WithArgs("u1", "a1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}).AddRow("p1"))
	mock.ExpectCommit()

	scope := access.GrantScope{UserID: "u1", ApplicationID: "a1", BrandID: "b1"}
	delta, err := store.ReconcileGrants(context.Background(), scope, []string{"p1"})
	if err != nil {
		t.Fatalf("ReconcileGrants: %v", err)
	}
	if delta.Added != 0 || delta.Removed != 0 {
		t.Fatalf("expected empty delta, got %+v", delta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRemoveBrandGrantsCountsRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from grants").
		WithArgs("u1", "a1", "b1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	scope := access.GrantScope{UserID: "u1", ApplicationID: "a1", BrandID: "b1"}
	removed, err := store.RemoveBrandGrants(context.Background(), scope)
	if err != nil {
		t.Fatalf("RemoveBrandGrants: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
}

func TestReconcileEntryCascades(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select platform_id from catalog_entries").
		WithArgs("a1", "b1").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}).AddRow("p1").AddRow("p2"))
	mock.ExpectExec("delete from catalog_entries").
		WithArgs("a1", "b1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from grants").
		WithArgs("a1", "b1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into catalog_entries").
		WithArgs(sqlmock.AnyArg(), "a1", "b1", "p3").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("delete from dashboard_bindings").
		WithArgs("a1", "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	delta, err := store.ReconcileEntry(context.Background(), access.CatalogChange{
		ApplicationID: "a1", BrandID: "b1", PlatformIDs: []string{"p2", "p3"},
	})
	if err != nil {
		t.Fatalf("ReconcileEntry: %v", err)
	}
	if delta.PlatformsAdded != 1 || delta.PlatformsRemoved != 1 || delta.GrantsCascaded != 2 {
		t.Fatalf("delta = %+v", delta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReconcileEntryUnknownIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select platform_id from catalog_entries").
		WithArgs("a1", "b9").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id"}))
	mock.ExpectRollback()

	_, err := store.ReconcileEntry(context.Background(), access.CatalogChange{
		ApplicationID: "a1", BrandID: "b9", PlatformIDs: []string{"p1"},
	})
	if !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteEntryCollectsCounts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from dashboard_bindings").
		WithArgs("a1", "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from grants").
		WithArgs("a1", "b1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("delete from catalog_entries").
		WithArgs("a1", "b1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	counts, err := store.DeleteEntry(context.Background(), "a1", "b1")
	if err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if counts.Bindings != 1 || counts.Grants != 4 || counts.Platforms != 2 {
		t.Fatalf("counts = %+v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.CreateUser(context.Background(), directory.User{
		Name: "Dana", Email: "dana@example.test", UserType: directory.TypeAnalyst,
		Organisation: "Example", Status: directory.StatusActive,
	}, "hash")
	if !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuditListBuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	cols := []string{
		"id", "user_id", "app_id", "brand_id", "platform_id", "action",
		"action_details", "request_body", "outcome", "error_message",
		"performed_by", "performed_at", "ip_address", "user_agent",
	}
	mock.ExpectQuery("select (.+) from audit_log").
		WithArgs("u1", "grant.brand.set", 50).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"rec-1", "u1", "a1", "b1", "", "grant.brand.set",
			"added 1, removed 0", []byte(`{"platform_ids":["p1"]}`),
			audit.OutcomeSuccess, "", "admin-1", now, "10.0.0.7", "curl/8.0",
		))

	records, err := store.List(context.Background(), audit.Filter{
		SubjectID: "u1",
		Action:    "grant.brand.set",
	}, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].PerformedBy != "admin-1" || records[0].Outcome != audit.OutcomeSuccess {
		t.Fatalf("unexpected record: %+v", records[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
