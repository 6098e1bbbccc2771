package optout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store standing in for *db.Queries; the SQL
// behind the real one is a single statement per method and is covered
// by integration tests against a live pool.
type fakeStore struct {
	rows map[string]bool
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]bool{}}
}

func (f *fakeStore) IsOptedOut(_ context.Context, appUUID, anonUserID string) (bool, error) {
	return f.rows[appUUID+"/"+anonUserID], f.err
}

func (f *fakeStore) UpsertOptOut(_ context.Context, appUUID, anonUserID string) error {
	if f.err != nil {
		return f.err
	}
	f.rows[appUUID+"/"+anonUserID] = true
	return nil
}

func TestRegisterThenIsOptedOut(t *testing.T) {
	reg := NewRegistry(newFakeStore())
	ctx := context.Background()

	optedOut, err := reg.IsOptedOut(ctx, "app-a", "anon_user_123456")
	require.NoError(t, err)
	assert.False(t, optedOut)

	require.NoError(t, reg.Register(ctx, "app-a", "anon_user_123456"))
	// Registering twice is idempotent.
	require.NoError(t, reg.Register(ctx, "app-a", "anon_user_123456"))

	optedOut, err = reg.IsOptedOut(ctx, "app-a", "anon_user_123456")
	require.NoError(t, err)
	assert.True(t, optedOut)
}

func TestIsOptedOutScopedToAppAndUser(t *testing.T) {
	reg := NewRegistry(newFakeStore())
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "app-a", "anon_user_123456"))

	otherUser, err := reg.IsOptedOut(ctx, "app-a", "anon_other_123456")
	require.NoError(t, err)
	assert.False(t, otherUser)

	otherApp, err := reg.IsOptedOut(ctx, "app-b", "anon_user_123456")
	require.NoError(t, err)
	assert.False(t, otherApp)
}

func TestRegistryWrapsStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	reg := NewRegistry(&fakeStore{rows: map[string]bool{}, err: storeErr})
	ctx := context.Background()

	_, err := reg.IsOptedOut(ctx, "app-a", "anon_user_123456")
	assert.ErrorIs(t, err, storeErr)

	err = reg.Register(ctx, "app-a", "anon_user_123456")
	assert.ErrorIs(t, err, storeErr)
}
