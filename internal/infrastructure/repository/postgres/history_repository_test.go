package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*HistoryRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewHistoryRepository(db), mock, func() { _ = db.Close() }
}

var historyColumns = []string{"task_id", "nif", "fiscal_year", "company_name", "status", "rating", "error_message", "created_at", "completed_at"}

func TestRecordTaskUpserts(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := created.Add(2 * time.Minute)
	mock.ExpectExec("INSERT INTO analysis_history").
		WithArgs("t1", "516807706", "2023", "Empresa", "completed", "BAIXO", nil, created, &completed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordTask(context.Background(), domain.HistoryEntry{
		TaskID:      "t1",
		NIF:         "516807706",
		FiscalYear:  "2023",
		CompanyName: "Empresa",
		Status:      domain.TaskStatusCompleted,
		Rating:      "BAIXO",
		CreatedAt:   created,
		CompletedAt: &completed,
	})
	if err != nil {
		t.Fatalf("RecordTask() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordTaskRequiresID(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	err := repo.RecordTask(context.Background(), domain.HistoryEntry{Status: domain.TaskStatusError})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListRecentScansRows(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(historyColumns).
		AddRow("t2", "", "", "", "error", "", "boom", now, nil).
		AddRow("t1", "516807706", "2023", "Empresa", "completed", "BAIXO", "", now.Add(-time.Hour), now)

	mock.ExpectQuery("FROM analysis_history").
		WithArgs(defaultListLimit).
		WillReturnRows(rows)

	entries, err := repo.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CompletedAt != nil || entries[0].Error != "boom" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].CompletedAt == nil || entries[1].Status != domain.TaskStatusCompleted {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByTaskIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("WHERE task_id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByTaskID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaRunsInsideLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analysis_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
