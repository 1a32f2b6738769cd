package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/authgate/internal/model"
)

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// FindByIDは期限内のセッションを返すことを検証
// （SQL側でexpires_at > now()を条件に含むため、期限切れ行は返らない）
func TestPostgresSessionRepo_FindByID_ReturnsActiveSession(t *testing.T) {
	db, mock := newMockDB(t)
	expires := time.Now().Add(3 * time.Hour)
	created := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
		AddRow("session-1", "user-1", expires, created)
	mock.ExpectQuery("SELECT id, user_id, expires_at, created_at").
		WithArgs("session-1").
		WillReturnRows(rows)

	repo := NewPostgresSessionRepo(db)
	session, err := repo.FindByID(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if session == nil {
		t.Fatal("expected non-nil session")
	}
	if session.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", session.UserID, "user-1")
	}
}

// FindByIDは該当行がない場合（存在しない or 期限切れ）にnilを返すことを検証
func TestPostgresSessionRepo_FindByID_NotFound_ReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id, user_id, expires_at, created_at").
		WithArgs("expired-session").
		WillReturnError(sql.ErrNoRows)

	repo := NewPostgresSessionRepo(db)
	session, err := repo.FindByID(context.Background(), "expired-session")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if session != nil {
		t.Errorf("expected nil session, got %+v", session)
	}
}

// Createがセッション行を挿入することを検証
func TestPostgresSessionRepo_Create_InsertsRow(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	expires := now.Add(3 * time.Hour)
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("session-1", "user-1", expires, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresSessionRepo(db)
	err := repo.Create(context.Background(), &model.Session{
		ID:        "session-1",
		UserID:    "user-1",
		ExpiresAt: expires,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// DeleteByIDが削除クエリを発行することを検証（存在しないIDでもエラーにしない）
func TestPostgresSessionRepo_DeleteByID_IsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM sessions WHERE id").
		WithArgs("gone-session").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresSessionRepo(db)
	if err := repo.DeleteByID(context.Background(), "gone-session"); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
}
