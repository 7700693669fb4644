package ormkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/fernandezvara/ormkit/meta"
)

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected string
	}{
		{CodeNotFound, "NOT_FOUND"},
		{CodeDuplicate, "DUPLICATE"},
		{CodeForeignKey, "FOREIGN_KEY"},
		{CodeStateMisuse, "STATE_MISUSE"},
		{CodeConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		if string(tt.code) != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.code)
		}
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		err      *Error
		expected string
	}{
		{
			err:      &Error{Message: "test error"},
			expected: "ormkit: test error",
		},
		{
			err:      &Error{Op: "Insert", Message: "failed"},
			expected: "ormkit.Insert: failed",
		},
		{
			err:      &Error{Op: "Insert", Message: "failed", Table: "users"},
			expected: "ormkit.Insert: failed (table: users)",
		},
		{
			err:      &Error{Op: "Insert", Message: "failed", Table: "users", Constraint: "users_email_key"},
			expected: "ormkit.Insert: failed (table: users) (constraint: users_email_key)",
		},
	}

	for _, tt := range tests {
		if tt.err.Error() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.err.Error())
		}
	}
}

func TestError_Is(t *testing.T) {
	tests := []struct {
		err    *Error
		target error
		match  bool
	}{
		{&Error{Code: CodeNotFound}, ErrNotFound, true},
		{&Error{Code: CodeDuplicate}, ErrDuplicate, true},
		{&Error{Code: CodeForeignKey}, ErrForeignKey, true},
		{&Error{Code: CodeStateMisuse}, ErrStateMisuse, true},
		{&Error{Code: CodeConfiguration}, meta.ErrConfiguration, true},
		{&Error{Code: CodeMapping}, meta.ErrMapping, true},
		{&Error{Code: CodeNotFound}, ErrDuplicate, false},
		{&Error{Code: CodeUnknown}, ErrNotFound, false},
	}

	for _, tt := range tests {
		if errors.Is(tt.err, tt.target) != tt.match {
			t.Errorf("expected Is(%v, %v) = %v", tt.err.Code, tt.target, tt.match)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Code: CodeUnknown, Cause: cause}

	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestWrapError_Nil(t *testing.T) {
	if wrapError(nil, "Test") != nil {
		t.Error("wrapError(nil) should return nil")
	}
}

func TestWrapError_AlreadyWrapped(t *testing.T) {
	original := &Error{Code: CodeNotFound, Message: "original"}
	wrapped := wrapError(original, "Test")

	if wrapped != original {
		t.Error("already wrapped error should be returned as-is")
	}
}

func TestWrapError_NoRows(t *testing.T) {
	wrapped := Classify(fmt.Errorf("scan: %w", sql.ErrNoRows), "FindByID")

	var dbErr *Error
	if !errors.As(wrapped, &dbErr) {
		t.Fatal("expected *Error")
	}

	if dbErr.Code != CodeNotFound {
		t.Errorf("expected CodeNotFound, got %s", dbErr.Code)
	}
	if dbErr.Op != "FindByID" {
		t.Errorf("expected FindByID, got %s", dbErr.Op)
	}
}

func TestWrapError_Deadline(t *testing.T) {
	if !IsTimeout(context.DeadlineExceeded) {
		t.Error("deadline exceeded should classify as timeout")
	}
}

func TestWrapPgError(t *testing.T) {
	tests := []struct {
		pgCode   string
		expected ErrorCode
	}{
		{"23505", CodeDuplicate},
		{"23503", CodeForeignKey},
		{"23502", CodeNotNullViolation},
		{"23514", CodeCheckViolation},
		{"40001", CodeSerialization},
		{"40P01", CodeDeadlock},
		{"57014", CodeTimeout},
		{"08000", CodeConnectionFailed},
		{"99999", CodeUnknown},
	}

	for _, tt := range tests {
		pgErr := &pgconn.PgError{
			Code:           tt.pgCode,
			Message:        "test",
			TableName:      "users",
			ColumnName:     "email",
			ConstraintName: "users_email_key",
		}

		wrapped := wrapPgError(pgErr, "Insert")

		if wrapped.Code != tt.expected {
			t.Errorf("pgCode %s: expected %s, got %s", tt.pgCode, tt.expected, wrapped.Code)
		}
		if wrapped.Table != "users" {
			t.Errorf("expected table users, got %s", wrapped.Table)
		}
		if wrapped.Column != "email" {
			t.Errorf("expected column email, got %s", wrapped.Column)
		}
		if wrapped.Constraint != "users_email_key" {
			t.Errorf("expected constraint users_email_key, got %s", wrapped.Constraint)
		}
	}
}

func TestClassify_PqError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "users_email_key", Table: "users"})

	if !IsDuplicate(err) {
		t.Fatal("expected duplicate")
	}
	constraint, ok := GetConstraint(err)
	if !ok || constraint != "users_email_key" {
		t.Errorf("expected users_email_key, got %q", constraint)
	}
	table, ok := GetTable(err)
	if !ok || table != "users" {
		t.Errorf("expected users, got %q", table)
	}
}

func TestClassify_MySQLError(t *testing.T) {
	tests := []struct {
		number   uint16
		expected ErrorCode
	}{
		{1062, CodeDuplicate},
		{1452, CodeForeignKey},
		{1048, CodeNotNullViolation},
		{3819, CodeCheckViolation},
		{1213, CodeDeadlock},
		{1205, CodeTimeout},
		{1146, CodeUnknown},
	}

	for _, tt := range tests {
		code, ok := GetErrorCode(Classify(&mysql.MySQLError{Number: tt.number, Message: "test"}, "Insert"))
		if !ok || code != tt.expected {
			t.Errorf("mysql %d: expected %s, got %s", tt.number, tt.expected, code)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	err := &Error{Code: CodeNotFound}
	if !IsNotFound(err) {
		t.Error("IsNotFound should return true")
	}

	err2 := &Error{Code: CodeDuplicate}
	if IsNotFound(err2) {
		t.Error("IsNotFound should return false for non-NotFound errors")
	}

	if !IsNotFound(sql.ErrNoRows) {
		t.Error("IsNotFound should recognise sql.ErrNoRows")
	}
}

func TestIsDuplicate(t *testing.T) {
	err := &Error{Code: CodeDuplicate}
	if !IsDuplicate(err) {
		t.Error("IsDuplicate should return true")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{CodeSerialization, true},
		{CodeDeadlock, true},
		{CodeNotFound, false},
		{CodeDuplicate, false},
	}

	for _, tt := range tests {
		err := &Error{Code: tt.code}
		if IsRetryable(err) != tt.expected {
			t.Errorf("IsRetryable(%s) = %v, expected %v", tt.code, !tt.expected, tt.expected)
		}
	}
}

func TestIsStateMisuse(t *testing.T) {
	if !IsStateMisuse(misuse("Commit", "transaction already finished")) {
		t.Error("misuse should be a state-misuse error")
	}
	if IsStateMisuse(errors.New("plain error")) {
		t.Error("plain error is not a state-misuse error")
	}
}

func TestGetErrorCode(t *testing.T) {
	err := &Error{Code: CodeDuplicate}
	code, ok := GetErrorCode(err)
	if !ok {
		t.Error("expected ok=true")
	}
	if code != CodeDuplicate {
		t.Errorf("expected CodeDuplicate, got %s", code)
	}

	_, ok = GetErrorCode(errors.New("plain error"))
	if ok {
		t.Error("expected ok=false for plain error")
	}
}

func TestGetConstraint(t *testing.T) {
	err := &Error{Code: CodeDuplicate, Constraint: "users_email_key"}
	constraint, ok := GetConstraint(err)
	if !ok {
		t.Error("expected ok=true")
	}
	if constraint != "users_email_key" {
		t.Errorf("expected users_email_key, got %s", constraint)
	}

	err2 := &Error{Code: CodeNotFound}
	_, ok = GetConstraint(err2)
	if ok {
		t.Error("expected ok=false when no constraint")
	}
}
