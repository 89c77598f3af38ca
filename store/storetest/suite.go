/*
Package storetest holds the conformance suite shared by every backend.

PURPOSE:
  The store contract has one behavioral definition and two
  implementations. Each backend's test package calls Run with its own
  constructor, so any divergence between the in-memory and sqlite
  backends fails the suite rather than surfacing in production.

SEE ALSO:
  - store/memory/memory_test.go, store/sqlite/sqlite_test.go: callers
*/
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningdevkit/vss-server/vss"
)

const (
	testUser  = "test_user"
	testStore = "test_store"
)

// Run executes the conformance suite against a fresh store per subtest.
func Run(t *testing.T, newStore func(t *testing.T) vss.Store) {
	tests := map[string]func(*testing.T, vss.Store){
		"PutSingleObject":                  testPutSingleObject,
		"PutMultiObject":                   testPutMultiObject,
		"PutFailsOnKeyVersionMismatch":     testPutFailsOnKeyVersionMismatch,
		"PutBatchFailsAtomically":          testPutBatchFailsAtomically,
		"PutFailsOnGlobalVersionMismatch":  testPutFailsOnGlobalVersionMismatch,
		"PutWithoutGlobalVersion":          testPutWithoutGlobalVersion,
		"PutAndDeleteAtomic":               testPutAndDeleteAtomic,
		"PutRejectsOverLimitBatch":         testPutRejectsOverLimitBatch,
		"PutRejectsDuplicateKeys":          testPutRejectsDuplicateKeys,
		"NonConditionalPutResetsVersion":   testNonConditionalPutResetsVersion,
		"SequentialConditionalUpdates":     testSequentialConditionalUpdates,
		"DeleteSucceedsWhenItemExists":     testDeleteSucceedsWhenItemExists,
		"DeleteSucceedsWhenItemMissing":    testDeleteSucceedsWhenItemMissing,
		"DeleteIsIdempotent":               testDeleteIsIdempotent,
		"DeleteConflictsOnVersionMismatch": testDeleteConflictsOnVersionMismatch,
		"DeleteRequiresKeyValue":           testDeleteRequiresKeyValue,
		"GetMissingKeyFails":               testGetMissingKeyFails,
		"GetAbsentSentinelReturnsZero":     testGetAbsentSentinelReturnsZero,
		"GetReturnsCurrentValue":           testGetReturnsCurrentValue,
		"ListPaginates":                    testListPaginates,
		"ListHonoursPageSizeAndPrefix":     testListHonoursPageSizeAndPrefix,
		"ListCapsPageSize":                 testListCapsPageSize,
		"ListNeverReturnsSentinel":         testListNeverReturnsSentinel,
		"ListPrefixBelowToken":             testListPrefixBelowToken,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func kv(key, value string, version int64) vss.KeyValue {
	return vss.KeyValue{Key: key, Value: []byte(value), Version: version}
}

func i64(v int64) *int64 { return &v }

func i32(v int32) *int32 { return &v }

func str(v string) *string { return &v }

func putObjects(t *testing.T, s vss.Store, globalVersion *int64, items ...vss.KeyValue) error {
	t.Helper()
	_, err := s.Put(context.Background(), testUser, &vss.PutObjectRequest{
		StoreID:          testStore,
		GlobalVersion:    globalVersion,
		TransactionItems: items,
	})
	return err
}

func getObject(t *testing.T, s vss.Store, key string) (*vss.KeyValue, error) {
	t.Helper()
	resp, err := s.Get(context.Background(), testUser, &vss.GetObjectRequest{StoreID: testStore, Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func mustGet(t *testing.T, s vss.Store, key string) *vss.KeyValue {
	t.Helper()
	value, err := getObject(t, s, key)
	require.NoError(t, err)
	return value
}

// listAllPages walks the pagination to the end, checking the token and
// global-version contract along the way, and returns every key seen.
func listAllPages(t *testing.T, s vss.Store, prefix *string, pageSize *int32) ([]vss.KeyValue, int64) {
	t.Helper()
	var (
		all       []vss.KeyValue
		token     *string
		globalVer int64
	)
	for page := 0; ; page++ {
		require.Less(t, page, 1000, "pagination did not terminate")
		resp, err := s.ListKeyVersions(context.Background(), testUser, &vss.ListKeyVersionsRequest{
			StoreID:   testStore,
			KeyPrefix: prefix,
			PageSize:  pageSize,
			PageToken: token,
		})
		require.NoError(t, err)
		if page == 0 {
			require.NotNil(t, resp.GlobalVersion, "first page must carry the global version")
			globalVer = *resp.GlobalVersion
		} else {
			assert.Nil(t, resp.GlobalVersion, "only the first page may carry the global version")
		}
		all = append(all, resp.KeyVersions...)
		require.NotNil(t, resp.NextPageToken)
		if *resp.NextPageToken == "" {
			return all, globalVer
		}
		token = resp.NextPageToken
	}
}

// =============================================================================
// PUT
// =============================================================================

func testPutSingleObject(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, i64(0), kv("k1", "k1v1", 0)))

	value := mustGet(t, s, "k1")
	assert.Equal(t, []byte("k1v1"), value.Value)
	assert.Equal(t, int64(1), value.Version)

	sentinel := mustGet(t, s, vss.GlobalVersionKey)
	assert.Equal(t, int64(1), sentinel.Version)

	// Second write advances both the key and the store counter.
	require.NoError(t, putObjects(t, s, i64(1), kv("k1", "k1v2", 1)))
	value = mustGet(t, s, "k1")
	assert.Equal(t, []byte("k1v2"), value.Value)
	assert.Equal(t, int64(2), value.Version)
	assert.Equal(t, int64(2), mustGet(t, s, vss.GlobalVersionKey).Version)
}

func testPutMultiObject(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, i64(0), kv("k1", "k1v1", 0), kv("k2", "k2v1", 0)))

	assert.Equal(t, int64(1), mustGet(t, s, "k1").Version)
	assert.Equal(t, int64(1), mustGet(t, s, "k2").Version)
	assert.Equal(t, int64(1), mustGet(t, s, vss.GlobalVersionKey).Version)
}

func testPutFailsOnKeyVersionMismatch(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))

	err := putObjects(t, s, nil, kv("k1", "k1v2", 3))
	assert.ErrorIs(t, err, vss.ErrConflict)

	// Conditional insert of an existing key conflicts too.
	err = putObjects(t, s, nil, kv("k1", "k1v2", 0))
	assert.ErrorIs(t, err, vss.ErrConflict)

	value := mustGet(t, s, "k1")
	assert.Equal(t, []byte("k1v1"), value.Value)
	assert.Equal(t, int64(1), value.Version)
}

func testPutBatchFailsAtomically(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))

	// k2 is fine, k1's version is stale; neither may land.
	err := putObjects(t, s, nil, kv("k2", "k2v1", 0), kv("k1", "k1v2", 7))
	require.ErrorIs(t, err, vss.ErrConflict)

	_, err = getObject(t, s, "k2")
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)
	assert.Equal(t, int64(1), mustGet(t, s, "k1").Version)
}

func testPutFailsOnGlobalVersionMismatch(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, i64(0), kv("k1", "v1", 0)))

	err := putObjects(t, s, i64(0), kv("k1", "v2", 1))
	require.ErrorIs(t, err, vss.ErrConflict)

	value := mustGet(t, s, "k1")
	assert.Equal(t, []byte("v1"), value.Value)
	assert.Equal(t, int64(1), value.Version)
	assert.Equal(t, int64(1), mustGet(t, s, vss.GlobalVersionKey).Version)
}

func testPutWithoutGlobalVersion(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v2", 1)))

	// The sentinel was neither checked nor advanced.
	assert.Equal(t, int64(0), mustGet(t, s, vss.GlobalVersionKey).Version)
}

func testPutAndDeleteAtomic(t *testing.T, s vss.Store) {
	ctx := context.Background()
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))

	_, err := s.Put(ctx, testUser, &vss.PutObjectRequest{
		StoreID:          testStore,
		TransactionItems: []vss.KeyValue{kv("k2", "k2v1", 0)},
		DeleteItems:      []vss.KeyValue{{Key: "k1", Version: 1}},
	})
	require.NoError(t, err)

	_, err = getObject(t, s, "k1")
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)
	assert.Equal(t, int64(1), mustGet(t, s, "k2").Version)

	// Stale delete version: the new key must not appear and k2 must stay.
	_, err = s.Put(ctx, testUser, &vss.PutObjectRequest{
		StoreID:          testStore,
		TransactionItems: []vss.KeyValue{kv("k3", "k3v1", 0)},
		DeleteItems:      []vss.KeyValue{{Key: "k2", Version: 3}},
	})
	require.ErrorIs(t, err, vss.ErrConflict)

	_, err = getObject(t, s, "k3")
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)
	assert.Equal(t, int64(1), mustGet(t, s, "k2").Version)

	// A delete of an absent key inside a Put conflicts, unlike the
	// standalone Delete operation.
	_, err = s.Put(ctx, testUser, &vss.PutObjectRequest{
		StoreID:     testStore,
		DeleteItems: []vss.KeyValue{{Key: "nope", Version: -1}},
	})
	assert.ErrorIs(t, err, vss.ErrConflict)
}

func testPutRejectsOverLimitBatch(t *testing.T, s vss.Store) {
	items := make([]vss.KeyValue, vss.MaxPutItemCount+1)
	for i := range items {
		items[i] = kv(fmt.Sprintf("key-%04d", i), "v", 0)
	}
	err := putObjects(t, s, nil, items...)
	assert.ErrorIs(t, err, vss.ErrInvalidRequest)

	// Exactly at the limit is fine.
	require.NoError(t, putObjects(t, s, nil, items[:vss.MaxPutItemCount]...))
}

func testPutRejectsDuplicateKeys(t *testing.T, s vss.Store) {
	err := putObjects(t, s, nil, kv("k1", "a", 0), kv("k1", "b", 0))
	assert.ErrorIs(t, err, vss.ErrConflict)

	_, err = getObject(t, s, "k1")
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)

	ctx := context.Background()
	_, err = s.Put(ctx, testUser, &vss.PutObjectRequest{
		StoreID:          testStore,
		TransactionItems: []vss.KeyValue{kv("k2", "a", 0)},
		DeleteItems:      []vss.KeyValue{{Key: "k2", Version: -1}},
	})
	assert.ErrorIs(t, err, vss.ErrConflict)
}

func testNonConditionalPutResetsVersion(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, i64(0), kv("k2", "a", -1)))
	require.NoError(t, putObjects(t, s, i64(1), kv("k2", "b", -1)))

	value := mustGet(t, s, "k2")
	assert.Equal(t, []byte("b"), value.Value)
	assert.Equal(t, int64(1), value.Version, "non-conditional put must reset the version")

	// Conditional writes advance it again from 1.
	require.NoError(t, putObjects(t, s, i64(2), kv("k2", "c", 1)))
	assert.Equal(t, int64(2), mustGet(t, s, "k2").Version)
}

func testSequentialConditionalUpdates(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("counter", "v0", 0)))
	for v := int64(1); v <= 9; v++ {
		require.NoError(t, putObjects(t, s, nil, kv("counter", "v", v)))
	}
	assert.Equal(t, int64(10), mustGet(t, s, "counter").Version)
}

// =============================================================================
// DELETE (standalone)
// =============================================================================

func deleteObject(t *testing.T, s vss.Store, kv *vss.KeyValue) error {
	t.Helper()
	_, err := s.Delete(context.Background(), testUser, &vss.DeleteObjectRequest{
		StoreID:  testStore,
		KeyValue: kv,
	})
	return err
}

func testDeleteSucceedsWhenItemExists(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))
	require.NoError(t, deleteObject(t, s, &vss.KeyValue{Key: "k1", Version: 1}))

	_, err := getObject(t, s, "k1")
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)

	// The identity is free for re-insertion at version 1.
	require.NoError(t, putObjects(t, s, nil, kv("k1", "again", 0)))
	assert.Equal(t, int64(1), mustGet(t, s, "k1").Version)
}

func testDeleteSucceedsWhenItemMissing(t *testing.T, s vss.Store) {
	require.NoError(t, deleteObject(t, s, &vss.KeyValue{Key: "ghost", Version: 4}))
	require.NoError(t, deleteObject(t, s, &vss.KeyValue{Key: "ghost", Version: -1}))
}

func testDeleteIsIdempotent(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))
	require.NoError(t, deleteObject(t, s, &vss.KeyValue{Key: "k1", Version: 1}))
	require.NoError(t, deleteObject(t, s, &vss.KeyValue{Key: "k1", Version: 1}))
	require.NoError(t, deleteObject(t, s, &vss.KeyValue{Key: "k1", Version: -1}))
}

func testDeleteConflictsOnVersionMismatch(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "k1v1", 0)))

	err := deleteObject(t, s, &vss.KeyValue{Key: "k1", Version: 5})
	assert.ErrorIs(t, err, vss.ErrConflict)
	assert.Equal(t, int64(1), mustGet(t, s, "k1").Version)
}

func testDeleteRequiresKeyValue(t *testing.T, s vss.Store) {
	err := deleteObject(t, s, nil)
	assert.ErrorIs(t, err, vss.ErrInvalidRequest)
}

// =============================================================================
// GET
// =============================================================================

func testGetMissingKeyFails(t *testing.T, s vss.Store) {
	_, err := getObject(t, s, "missing")
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)
}

func testGetAbsentSentinelReturnsZero(t *testing.T, s vss.Store) {
	value := mustGet(t, s, vss.GlobalVersionKey)
	assert.Equal(t, vss.GlobalVersionKey, value.Key)
	assert.Equal(t, int64(0), value.Version)
	assert.Empty(t, value.Value)
}

func testGetReturnsCurrentValue(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, nil, kv("k1", "first", 0)))
	require.NoError(t, putObjects(t, s, nil, kv("k1", "second", 1)))

	value := mustGet(t, s, "k1")
	assert.Equal(t, "k1", value.Key)
	assert.Equal(t, []byte("second"), value.Value)
	assert.Equal(t, int64(2), value.Version)

	// Reads from another user's namespace do not leak.
	_, err := s.Get(context.Background(), "other_user", &vss.GetObjectRequest{StoreID: testStore, Key: "k1"})
	assert.ErrorIs(t, err, vss.ErrNoSuchKey)
}

// =============================================================================
// LIST
// =============================================================================

func testListPaginates(t *testing.T, s vss.Store) {
	for i := 0; i < 20; i++ {
		require.NoError(t, putObjects(t, s, nil, kv(fmt.Sprintf("%dk", i), "v", 0)))
	}

	keys, _ := listAllPages(t, s, str("1"), i32(5))
	require.Len(t, keys, 11, "prefix 1 matches 1k and 10k..19k")
	seen := make(map[string]struct{})
	for _, k := range keys {
		_, dup := seen[k.Key]
		assert.False(t, dup, "key %s returned twice", k.Key)
		seen[k.Key] = struct{}{}
		assert.Equal(t, int64(1), k.Version)
		assert.Empty(t, k.Value, "list responses carry no values")
	}
}

func testListHonoursPageSizeAndPrefix(t *testing.T, s vss.Store) {
	for i := 0; i < 6; i++ {
		require.NoError(t, putObjects(t, s, nil, kv(fmt.Sprintf("a%d", i), "v", 0)))
		require.NoError(t, putObjects(t, s, nil, kv(fmt.Sprintf("b%d", i), "v", 0)))
	}

	resp, err := s.ListKeyVersions(context.Background(), testUser, &vss.ListKeyVersionsRequest{
		StoreID:   testStore,
		KeyPrefix: str("b"),
		PageSize:  i32(4),
	})
	require.NoError(t, err)
	require.Len(t, resp.KeyVersions, 4)
	for i, k := range resp.KeyVersions {
		assert.Equal(t, fmt.Sprintf("b%d", i), k.Key, "keys must come back in ascending order")
	}
}

func testListCapsPageSize(t *testing.T, s vss.Store) {
	items := make([]vss.KeyValue, 150)
	for i := range items {
		items[i] = kv(fmt.Sprintf("key-%04d", i), "v", 0)
	}
	require.NoError(t, putObjects(t, s, nil, items...))

	// An oversized page size behaves exactly like the cap.
	resp, err := s.ListKeyVersions(context.Background(), testUser, &vss.ListKeyVersionsRequest{
		StoreID:  testStore,
		PageSize: i32(10000),
	})
	require.NoError(t, err)
	assert.Len(t, resp.KeyVersions, vss.MaxListPageSize)

	// So does an absent one, and the full walk sees every key once.
	keys, _ := listAllPages(t, s, nil, nil)
	assert.Len(t, keys, 150)
}

func testListNeverReturnsSentinel(t *testing.T, s vss.Store) {
	require.NoError(t, putObjects(t, s, i64(0), kv("global", "v", 0), kv("globe", "v", 0)))

	keys, globalVer := listAllPages(t, s, nil, i32(1))
	assert.Equal(t, int64(1), globalVer)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.NotEqual(t, vss.GlobalVersionKey, k.Key)
	}

	// Even a prefix that matches the sentinel exactly cannot surface it.
	keys, _ = listAllPages(t, s, str(vss.GlobalVersionKey), i32(10))
	assert.Empty(t, keys)
}

func testListPrefixBelowToken(t *testing.T, s vss.Store) {
	// The continuation token sorts above the prefix; later pages must
	// stay inside the prefix rather than degenerate to a raw key > token
	// scan.
	for i := 0; i < 7; i++ {
		require.NoError(t, putObjects(t, s, nil, kv(fmt.Sprintf("a%d", i), "v", 0)))
	}
	require.NoError(t, putObjects(t, s, nil, kv("z-outside", "v", 0)))

	keys, _ := listAllPages(t, s, str("a"), i32(3))
	require.Len(t, keys, 7)
	for _, k := range keys {
		assert.NotEqual(t, "z-outside", k.Key)
	}
}
