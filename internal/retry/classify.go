// Package retry supplies the transient/permanent error classifier
// shared by the outbox publisher and the processor, replacing ad hoc
// catch-on-type-name checks with one explicit classifier function.
package retry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the classifier's verdict on an error.
type Kind int

const (
	KindPermanent Kind = iota
	KindTransient
)

// ErrPermanent is a sentinel dispatch handlers wrap around decode and
// schema failures to force a permanent classification regardless of the
// underlying cause.
var ErrPermanent = errors.New("permanent processing failure")

// transientPgCodes are specific Postgres SQLSTATE codes worth retrying:
// 40001 (serialization failure), 55P03 (lock not available).
var transientPgCodes = map[string]bool{
	"40001": true,
	"55P03": true,
}

// transientPgClassPrefix is the SQLSTATE class for connection exceptions.
const transientPgClassPrefix = "08"

// Classify decides whether err should be retried (transient) or sent to
// the dead-letter path (permanent).
func Classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}
	if errors.Is(err, ErrPermanent) {
		return KindPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if transientPgCodes[pgErr.Code] || len(pgErr.Code) >= 2 && pgErr.Code[:2] == transientPgClassPrefix {
			return KindTransient
		}
		return KindPermanent
	}

	return KindTransient
}
