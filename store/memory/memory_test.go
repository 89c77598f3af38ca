package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningdevkit/vss-server/store/memory"
	"github.com/lightningdevkit/vss-server/store/storetest"
	"github.com/lightningdevkit/vss-server/vss"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) vss.Store {
		return memory.New()
	})
}

func TestMemoryStoreRejectsBogusPageToken(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	token := "not-a-number"
	_, err := s.ListKeyVersions(ctx, "user", &vss.ListKeyVersionsRequest{
		StoreID:   "store",
		PageToken: &token,
	})
	assert.ErrorIs(t, err, vss.ErrInvalidRequest)
}

func TestMemoryStoreIsolatesNamespaces(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.Put(ctx, "alice", &vss.PutObjectRequest{
		StoreID:          "wallet",
		TransactionItems: []vss.KeyValue{{Key: "k", Value: []byte("a"), Version: 0}},
	})
	require.NoError(t, err)

	// Same key, different store id: insert-if-absent must succeed.
	_, err = s.Put(ctx, "alice", &vss.PutObjectRequest{
		StoreID:          "backup",
		TransactionItems: []vss.KeyValue{{Key: "k", Value: []byte("b"), Version: 0}},
	})
	require.NoError(t, err)

	// Same key and store id, different user: also independent.
	_, err = s.Put(ctx, "bob", &vss.PutObjectRequest{
		StoreID:          "wallet",
		TransactionItems: []vss.KeyValue{{Key: "k", Value: []byte("c"), Version: 0}},
	})
	require.NoError(t, err)

	resp, err := s.Get(ctx, "alice", &vss.GetObjectRequest{StoreID: "wallet", Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), resp.Value.Value)
}
