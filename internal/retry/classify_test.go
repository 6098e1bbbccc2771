package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPermanentSentinel(t *testing.T) {
	assert.Equal(t, KindPermanent, Classify(ErrPermanent))
	assert.Equal(t, KindPermanent, Classify(fmt.Errorf("decode: %w", ErrPermanent)))
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(context.DeadlineExceeded))
}

func TestClassifyPgConnectionException(t *testing.T) {
	err := &pgconn.PgError{Code: "08006"}
	assert.Equal(t, KindTransient, Classify(err))
}

func TestClassifyPgSerializationFailure(t *testing.T) {
	err := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, KindTransient, Classify(err))
}

func TestClassifyPgConstraintViolationIsPermanent(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	assert.Equal(t, KindPermanent, Classify(err))
}

func TestClassifyUnknownErrorDefaultsTransient(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(errors.New("connection reset")))
}
