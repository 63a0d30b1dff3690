package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fieldlabs/hydrosync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_WritesOneRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO audit_entries`).
		WithArgs("a1", "anna", "sample", "s1", "update",
			`{"old":1}`, `{"new":2}`, "status",
			false, "", "", "10.0.0.5", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.AuditEntry{
		ID:         "a1",
		Actor:      "anna",
		EntityType: models.EntitySample,
		EntityID:   "s1",
		Action:     models.ActionUpdate,
		OldValue:   []byte(`{"old":1}`),
		NewValue:   []byte(`{"new":2}`),
		ChangedFields: "status",
		OriginAddr: "10.0.0.5",
		RecordedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSelectArchivableIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -90)
	mock.ExpectQuery(`SELECT id FROM audit_entries WHERE recorded_at<\$1 ORDER BY recorded_at, id LIMIT \$2`).
		WithArgs(cutoff, 1000).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))

	ids, err := repo.SelectArchivableIDs(context.Background(), cutoff, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a1" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestCopyToArchive_IdempotentInsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_archive .* SELECT .* FROM audit_entries WHERE id IN \(\$1, \$2\) ON CONFLICT DO NOTHING`).
		WithArgs("a1", "a2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.CopyToArchive(context.Background(), []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 copied, got %d", n)
	}
}

func TestCopyToArchive_EmptyBatchIsNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	n, err := repo.CopyToArchive(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("empty batch must be a no-op, got n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no SQL expected: %v", err)
	}
}

func TestDeleteByIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM audit_entries WHERE id IN \(\$1, \$2\)`).
		WithArgs("a1", "a2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteByIDs(context.Background(), []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 deleted, got %d", n)
	}
}
