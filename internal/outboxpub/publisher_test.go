package outboxpub

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"

	"github.com/google/uuid"
)

func TestNextAttemptGrowsWithRetries(t *testing.T) {
	p := &Publisher{cfg: Config{BackoffBase: 1 * time.Second, BackoffMax: 30 * time.Second}}

	first := p.nextAttempt(0)
	second := p.nextAttempt(5)

	assert.True(t, second.After(first.Add(-1*time.Second)))
}

func TestNextAttemptCapsAtBackoffMax(t *testing.T) {
	p := &Publisher{cfg: Config{BackoffBase: 1 * time.Second, BackoffMax: 5 * time.Second}}

	far := p.nextAttempt(50)
	now := time.Now()
	assert.True(t, far.Before(now.Add(6*time.Second)))
}

func TestUUIDStringRoundTrip(t *testing.T) {
	id := uuid.New()
	var pg pgtype.UUID
	pg.Bytes = id
	pg.Valid = true

	assert.Equal(t, id.String(), uuidString(pg))
	assert.Equal(t, "", uuidString(pgtype.UUID{}))
}
