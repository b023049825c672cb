package errors

import (
	"context"
	"errors"
	"net"
	"os"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// visitor ids and handoff tokens: 32 lowercase hex characters
var hexIDRegex = regexp.MustCompile(`^[a-f0-9]{32}$`)

// error categories logged with internal errors
const (
	CategoryDatabase  = "database"
	CategoryConflict  = "conflict"
	CategoryNetwork   = "network"
	CategoryNotFound  = "not_found"
	CategoryTimeout   = "timeout"
	CategoryCancelled = "cancelled"
	CategoryUnknown   = "unknown"
)

const pgUniqueViolation = "23505"

type classification struct {
	category string
	public   string
	match    func(err error) bool
}

// first match wins
var classifications = []classification{
	{CategoryConflict, "duplicate record", func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
	}},
	{CategoryDatabase, "database operation failed", func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr)
	}},
	{CategoryNotFound, "resource not found", func(err error) bool {
		return errors.Is(err, pgx.ErrNoRows)
	}},
	{CategoryTimeout, "request timed out", func(err error) bool {
		var netErr net.Error
		return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	}},
	{CategoryCancelled, "request canceled", func(err error) bool {
		return errors.Is(err, context.Canceled)
	}},
	{CategoryNetwork, "connection error occurred", func(err error) bool {
		var opErr *net.OpError
		var connErr *pgconn.ConnectError
		return errors.As(err, &opErr) || errors.As(err, &connErr)
	}},
}

// category of err plus the message safe to return to clients.
// outside production the raw error text is returned instead.
func classifyError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{CategoryUnknown, ""}
	}

	info := ErrorInfo{category: CategoryUnknown, sanitized: "an error occurred"}
	for _, c := range classifications {
		if c.match(err) {
			info = ErrorInfo{category: c.category, sanitized: c.public}
			break
		}
	}

	if os.Getenv("ENVIRONMENT") != "production" {
		info.sanitized = err.Error()
	}

	return info
}

// validates a 32-character lowercase hex identifier
func IsValidHexID(id string) bool {
	return hexIDRegex.MatchString(id)
}
