package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"driftregistry.org/internal/audit"
)

func auditColumns() []string {
	return []string{
		"id", "occurred_at", "subject", "resource", "resource_type", "action",
		"allowed", "reason", "role_id", "assignment_id", "scope", "source",
	}
}

func TestWriteBatchInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into audit_records").
		WithArgs(
			"rec-1", sqlmock.AnyArg(), "alice", "acme/api", "repository", "push",
			true, "granted by role developer", "developer", "asg-1", "repository:acme/api", "10.1.2.3",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_records").
		WithArgs(
			"rec-2", sqlmock.AnyArg(), "bob", "acme/api", "repository", "push",
			false, "no matching grant", "", "", "repository:acme/api", "",
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(db)
	batch := []audit.Record{
		{
			ID: "rec-1", Time: time.Now().UTC(), Subject: "alice", Resource: "acme/api",
			ResourceType: "repository", Action: "push", Allow: true,
			Reason: "granted by role developer", RoleID: "developer", AssignmentID: "asg-1",
			Scope: "repository:acme/api", Source: "10.1.2.3",
		},
		{
			ID: "rec-2", Time: time.Now().UTC(), Subject: "bob", Resource: "acme/api",
			ResourceType: "repository", Action: "push", Allow: false,
			Reason: "no matching grant", Scope: "repository:acme/api",
		},
	}
	if err := store.Write(context.Background(), batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWriteRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into audit_records").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	store := NewStore(db)
	err = store.Write(context.Background(), []audit.Record{{ID: "rec-1"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWriteEmptyBatchIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	if err := store.Write(context.Background(), nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryAppliesFiltersAndPaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(auditColumns()).
		AddRow("rec-1", now, "alice", "acme/api", "repository", "push",
			true, "granted by role developer", "developer", "asg-1", "repository:acme/api", "").
		AddRow("rec-2", now.Add(time.Second), "alice", "acme/api", "repository", "push",
			true, "granted by role developer", "developer", "asg-1", "repository:acme/api", "").
		AddRow("rec-3", now.Add(2*time.Second), "alice", "acme/api", "repository", "push",
			true, "granted by role developer", "developer", "asg-1", "repository:acme/api", "")

	allow := true
	mock.ExpectQuery("select id, occurred_at, subject, resource, resource_type, action").
		WithArgs("alice", allow, 3, 0).
		WillReturnRows(rows)

	store := NewStore(db)
	res, err := store.Query(context.Background(), audit.Query{
		Subject:  "alice",
		Allow:    &allow,
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if !res.Paging.HasNext || res.Paging.NextPage != 2 {
		t.Fatalf("paging: %+v", res.Paging)
	}
	if res.Records[0].ID != "rec-1" || res.Records[1].ID != "rec-2" {
		t.Fatalf("unexpected page: %+v", res.Records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestQueryLastPageHasNoNext(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(auditColumns()).
		AddRow("rec-3", now, "alice", "acme/api", "repository", "push",
			false, "no matching grant", "", "", "repository:acme/api", "")

	mock.ExpectQuery("select id, occurred_at, subject").
		WithArgs(3, 2).
		WillReturnRows(rows)

	store := NewStore(db)
	res, err := store.Query(context.Background(), audit.Query{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %d", len(res.Records))
	}
	if res.Paging.HasNext {
		t.Fatalf("unexpected has_next")
	}
	if res.Paging.PrevPage != 1 {
		t.Fatalf("paging: %+v", res.Paging)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
