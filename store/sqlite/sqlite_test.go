package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningdevkit/vss-server/store/sqlite"
	"github.com/lightningdevkit/vss-server/store/storetest"
	"github.com/lightningdevkit/vss-server/vss"
)

func newTestStore(t *testing.T) vss.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "vss.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vss.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = store.Put(context.Background(), "user", &vss.PutObjectRequest{
		StoreID:          "store",
		TransactionItems: []vss.KeyValue{{Key: "k", Value: []byte("v"), Version: 0}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening runs the migrator as a no-op and finds the data intact.
	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	resp, err := store.Get(context.Background(), "user", &vss.GetObjectRequest{StoreID: "store", Key: "k"})
	require.NoError(t, err)
	require.Equal(t, []byte("v"), resp.Value.Value)
	require.Equal(t, int64(1), resp.Value.Version)
}
