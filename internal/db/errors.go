package db

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/propane-pricer/internal/model"
)

// UpsertError is a failed write for one row.
type UpsertError struct {
	Reason model.UpsertReason
	Err    error
}

func (e *UpsertError) Error() string {
	return e.Err.Error()
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}

// NewUpsertError wraps err, classifying it by cause.
func NewUpsertError(err error) *UpsertError {
	return &UpsertError{Reason: Classify(err), Err: err}
}

// ReasonOf returns the classified reason for an error returned by an
// Upserter, classifying it on the spot if it is not an *UpsertError.
func ReasonOf(err error) model.UpsertReason {
	var ue *UpsertError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return Classify(err)
}

// Classify maps a driver error to an upsert reason.
func Classify(err error) model.UpsertReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return model.UpsertReasonTimeout
	case isConstraint(err):
		return model.UpsertReasonConstraint
	case isConnection(err):
		return model.UpsertReasonConnection
	default:
		return model.UpsertReasonOther
	}
}

// isConstraint matches integrity violations: Postgres SQLSTATE class 23 and
// SQLite's SQLITE_CONSTRAINT family.
func isConstraint(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// isConnection matches network-level failures between us and the database.
func isConnection(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// String-based heuristics for errors that lost their type when wrapped.
	msg := strings.ToLower(err.Error())
	connPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"connection refused",
		"conn closed",
		"closed pool",
		"no such host",
		"i/o timeout",
	}
	for _, p := range connPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
