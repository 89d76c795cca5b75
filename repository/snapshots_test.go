package repository_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/condovalle/go-auth"
	"github.com/condovalle/go-auth/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...repository.SnapshotsOption) *repository.Snapshots {
	t.Helper()
	store, err := repository.Open(context.Background(), ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleProfile() *auth.Profile {
	return &auth.Profile{
		ID:           uuid.New(),
		Role:         auth.RoleResident,
		HouseNumber:  7,
		ResidentName: "Casa Siete",
		Email:        "siete@condovalle.test",
	}
}

func TestSnapshotsLoadEmptyStore(t *testing.T) {
	store := openTestStore(t)

	profile, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestSnapshotsSaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	profile := sampleProfile()

	require.NoError(t, store.Save(context.Background(), profile))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, profile.ID, loaded.ID)
	assert.Equal(t, profile.Role, loaded.Role)
	assert.Equal(t, profile.HouseNumber, loaded.HouseNumber)
}

func TestSnapshotsSaveOverwritesPreviousSnapshot(t *testing.T) {
	store := openTestStore(t)

	first := sampleProfile()
	require.NoError(t, store.Save(context.Background(), first))

	second := sampleProfile()
	second.Role = auth.RoleAdmin
	require.NoError(t, store.Save(context.Background(), second))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, second.ID, loaded.ID)
	assert.Equal(t, auth.RoleAdmin, loaded.Role)
}

func TestSnapshotsSaveNilClears(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(context.Background(), sampleProfile()))
	require.NoError(t, store.Save(context.Background(), nil))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSnapshotsClear(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(context.Background(), sampleProfile()))
	require.NoError(t, store.Clear(context.Background()))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// clearing an already empty store is fine
	require.NoError(t, store.Clear(context.Background()))
}

func TestSnapshotsCustomKeyIsolation(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store := openTestStore(t,
		repository.WithSnapshotKey("other-key"),
		repository.WithSnapshotsClock(func() time.Time { return now }),
	)

	require.NoError(t, store.Save(context.Background(), sampleProfile()))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}
