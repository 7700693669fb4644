package ormkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/fernandezvara/ormkit/meta"
)

// ErrorCode represents a database error classification
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeForeignKey       ErrorCode = "FOREIGN_KEY"
	CodeCheckViolation   ErrorCode = "CHECK_VIOLATION"
	CodeNotNullViolation ErrorCode = "NOT_NULL"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeSerialization    ErrorCode = "SERIALIZATION"
	CodeDeadlock         ErrorCode = "DEADLOCK"
	CodeConfiguration    ErrorCode = "CONFIGURATION"
	CodeMapping          ErrorCode = "MAPPING"
	CodeStateMisuse      ErrorCode = "STATE_MISUSE"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Sentinel errors for quick checks
var (
	ErrNotFound         = errors.New("ormkit: record not found")
	ErrDuplicate        = errors.New("ormkit: duplicate key violation")
	ErrForeignKey       = errors.New("ormkit: foreign key violation")
	ErrCheckViolation   = errors.New("ormkit: check constraint violation")
	ErrNotNullViolation = errors.New("ormkit: not null violation")
	ErrConnection       = errors.New("ormkit: connection failed")
	ErrTimeout          = errors.New("ormkit: operation timeout")
	ErrSerialization    = errors.New("ormkit: serialization failure")
	ErrDeadlock         = errors.New("ormkit: deadlock detected")
	ErrStateMisuse      = errors.New("ormkit: invalid state")
	ErrConflict         = errors.New("ormkit: optimistic locking conflict - record was modified")

	// ErrConfiguration and ErrMapping are shared with the meta package so
	// derivation errors match either way.
	ErrConfiguration = meta.ErrConfiguration
	ErrMapping       = meta.ErrMapping
)

// Error is a rich database error with context
type Error struct {
	Code       ErrorCode // Error classification
	Message    string    // Human-readable message
	Op         string    // Operation that failed (e.g., "Get", "Insert")
	Table      string    // Table name if known
	Column     string    // Column name if known
	Constraint string    // Constraint name if applicable
	Detail     string    // Additional detail from the server
	Hint       string    // Hint from the server
	Query      string    // Query that failed (may be empty for security)
	Cause      error     // Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ormkit: %s", e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("ormkit.%s: %s", e.Op, e.Message)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table: %s)", e.Table)
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (constraint: %s)", e.Constraint)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

var sentinels = map[ErrorCode]error{
	CodeNotFound:         ErrNotFound,
	CodeDuplicate:        ErrDuplicate,
	CodeForeignKey:       ErrForeignKey,
	CodeCheckViolation:   ErrCheckViolation,
	CodeNotNullViolation: ErrNotNullViolation,
	CodeConnectionFailed: ErrConnection,
	CodeTimeout:          ErrTimeout,
	CodeSerialization:    ErrSerialization,
	CodeDeadlock:         ErrDeadlock,
	CodeConfiguration:    ErrConfiguration,
	CodeMapping:          ErrMapping,
	CodeStateMisuse:      ErrStateMisuse,
	CodeConflict:         ErrConflict,
}

// Is implements errors.Is for sentinel error matching
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && target == s
}

func misuse(op, format string, args ...any) error {
	return &Error{Code: CodeStateMisuse, Op: op, Message: fmt.Sprintf(format, args...)}
}

func notFound(op, table string) error {
	return &Error{Code: CodeNotFound, Op: op, Message: "record not found", Table: table, Cause: sql.ErrNoRows}
}

// Classify converts a raw error into a rich *Error. Errors raised by the
// execution pipeline are returned to callers unchanged; Classify is the
// opt-in way to inspect them.
func Classify(err error, op string) error {
	return wrapError(err, op)
}

// wrapError converts a raw error to a rich Error
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}

	// Already wrapped
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &Error{Code: CodeNotFound, Message: "record not found", Op: op, Cause: err}
	case errors.Is(err, meta.ErrConfiguration):
		return &Error{Code: CodeConfiguration, Message: err.Error(), Op: op, Cause: err}
	case errors.Is(err, meta.ErrMapping):
		return &Error{Code: CodeMapping, Message: err.Error(), Op: op, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Message: "command timed out", Op: op, Cause: err}
	case errors.Is(err, sql.ErrConnDone):
		return &Error{Code: CodeConnectionFailed, Message: "database connection failed", Op: op, Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapPgError(pgErr, op)
	}
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		return wrapSQLState(drvErr.Field('C'), drvErr.Field('M'), op, err, func(e *Error) {
			e.Table = drvErr.Field('t')
			e.Column = drvErr.Field('c')
			e.Constraint = drvErr.Field('n')
			e.Detail = drvErr.Field('D')
			e.Hint = drvErr.Field('H')
		})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return wrapSQLState(string(pqErr.Code), pqErr.Message, op, err, func(e *Error) {
			e.Table = pqErr.Table
			e.Column = pqErr.Column
			e.Constraint = pqErr.Constraint
			e.Detail = pqErr.Detail
			e.Hint = pqErr.Hint
		})
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return wrapMySQLError(myErr, op)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return wrapSQLiteError(liteErr, op)
	}

	// Generic wrapping
	return &Error{
		Code:    CodeUnknown,
		Message: err.Error(),
		Op:      op,
		Cause:   err,
	}
}

// wrapPgError converts pgx PostgreSQL errors to rich errors
func wrapPgError(pgErr *pgconn.PgError, op string) *Error {
	return wrapSQLState(pgErr.Code, pgErr.Message, op, pgErr, func(e *Error) {
		e.Table = pgErr.TableName
		e.Column = pgErr.ColumnName
		e.Constraint = pgErr.ConstraintName
		e.Detail = pgErr.Detail
		e.Hint = pgErr.Hint
	})
}

// wrapSQLState maps a PostgreSQL SQLSTATE code.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
func wrapSQLState(code, message, op string, cause error, fill func(*Error)) *Error {
	e := &Error{Op: op, Cause: cause}
	if fill != nil {
		fill(e)
	}

	switch code {
	case "23505": // unique_violation
		e.Code = CodeDuplicate
		e.Message = "duplicate key value violates unique constraint"
	case "23503": // foreign_key_violation
		e.Code = CodeForeignKey
		e.Message = "foreign key constraint violation"
	case "23502": // not_null_violation
		e.Code = CodeNotNullViolation
		e.Message = "null value in column violates not-null constraint"
	case "23514": // check_violation
		e.Code = CodeCheckViolation
		e.Message = "check constraint violation"
	case "40001": // serialization_failure
		e.Code = CodeSerialization
		e.Message = "serialization failure, retry transaction"
	case "40P01": // deadlock_detected
		e.Code = CodeDeadlock
		e.Message = "deadlock detected"
	case "57014": // query_canceled (timeout)
		e.Code = CodeTimeout
		e.Message = "query was cancelled due to timeout"
	case "08000", "08003", "08006": // connection errors
		e.Code = CodeConnectionFailed
		e.Message = "database connection failed"
	default:
		e.Code = CodeUnknown
		e.Message = message
	}
	return e
}

// wrapMySQLError maps MySQL server error numbers.
func wrapMySQLError(myErr *mysql.MySQLError, op string) *Error {
	e := &Error{Op: op, Message: myErr.Message, Cause: myErr}
	switch myErr.Number {
	case 1062, 1586: // ER_DUP_ENTRY, ER_DUP_ENTRY_WITH_KEY_NAME
		e.Code = CodeDuplicate
	case 1216, 1217, 1451, 1452: // foreign key parent / child rows
		e.Code = CodeForeignKey
	case 1048, 1364: // ER_BAD_NULL_ERROR, ER_NO_DEFAULT_FOR_FIELD
		e.Code = CodeNotNullViolation
	case 3819: // ER_CHECK_CONSTRAINT_VIOLATED
		e.Code = CodeCheckViolation
	case 1213: // ER_LOCK_DEADLOCK
		e.Code = CodeDeadlock
	case 1205, 3024: // lock wait timeout, max execution time exceeded
		e.Code = CodeTimeout
	default:
		e.Code = CodeUnknown
	}
	return e
}

// wrapSQLiteError maps SQLite extended result codes.
func wrapSQLiteError(liteErr *sqlite.Error, op string) *Error {
	e := &Error{Op: op, Message: liteErr.Error(), Cause: liteErr}
	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		e.Code = CodeDuplicate
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		e.Code = CodeForeignKey
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		e.Code = CodeNotNullViolation
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		e.Code = CodeCheckViolation
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		e.Code = CodeDeadlock
	default:
		e.Code = CodeUnknown
	}
	return e
}

func codeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var dbErr *Error
	if errors.As(wrapError(err, ""), &dbErr) {
		return dbErr.Code
	}
	return CodeUnknown
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return codeOf(err) == CodeNotFound
}

// IsDuplicate checks if error is a duplicate key error
func IsDuplicate(err error) bool {
	return codeOf(err) == CodeDuplicate
}

// IsForeignKey checks if error is a foreign key error
func IsForeignKey(err error) bool {
	return codeOf(err) == CodeForeignKey
}

// IsCheckViolation checks if error is a check constraint error
func IsCheckViolation(err error) bool {
	return codeOf(err) == CodeCheckViolation
}

// IsNotNullViolation checks if error is a not null violation error
func IsNotNullViolation(err error) bool {
	return codeOf(err) == CodeNotNullViolation
}

// IsConnection checks if error is a connection error
func IsConnection(err error) bool {
	return codeOf(err) == CodeConnectionFailed
}

// IsTimeout checks if error is a timeout error
func IsTimeout(err error) bool {
	return codeOf(err) == CodeTimeout
}

// IsStateMisuse checks if error reports an invalid transaction or savepoint use
func IsStateMisuse(err error) bool {
	return errors.Is(err, ErrStateMisuse)
}

// IsRetryable checks if the error is retryable (serialization, deadlock)
func IsRetryable(err error) bool {
	code := codeOf(err)
	return code == CodeSerialization || code == CodeDeadlock
}

// GetErrorCode extracts the error code if it's an ormkit error
func GetErrorCode(err error) (ErrorCode, bool) {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Code, true
	}
	return "", false
}

// GetConstraint extracts the constraint name if available
func GetConstraint(err error) (string, bool) {
	var dbErr *Error
	if errors.As(wrapError(err, ""), &dbErr) && dbErr.Constraint != "" {
		return dbErr.Constraint, true
	}
	return "", false
}

// GetTable extracts the table name if available
func GetTable(err error) (string, bool) {
	var dbErr *Error
	if errors.As(wrapError(err, ""), &dbErr) && dbErr.Table != "" {
		return dbErr.Table, true
	}
	return "", false
}
