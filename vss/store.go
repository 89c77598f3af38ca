/*
store.go - Store interface and shared write-rule validation

PURPOSE:
  The behavioral contract every backend implements. Two variants exist
  (store/memory for tests, store/sqlite for durability); both must pass the
  shared conformance suite in store/storetest.

WRITE RULES (per item):
  version -1  non-conditional; a put resets the stored version to 1
  version  0  put: insert-if-absent, Conflict when the record exists;
              delete: matches no stored record (stored versions start at 1)
  version  v  conditional; stored version must equal v, put advances to v+1

GLOBAL VERSION:
  Each (user_token, store_id) namespace reserves the key "global_version"
  for a store-wide counter. A PutObjectRequest carrying GlobalVersion checks
  and advances the counter inside the same transaction as its items. The
  sentinel is never listed and reads as version 0 when absent.

SEE ALSO:
  - store/memory/memory.go: reference implementation
  - store/sqlite/sqlite.go: SQL implementation
  - store/storetest/suite.go: conformance suite
*/
package vss

import "context"

// GlobalVersionKey is the reserved key holding the per-store version
// counter. It never appears in list results.
const GlobalVersionKey = "global_version"

// InitialRecordVersion is the stored version of a freshly inserted record.
const InitialRecordVersion = 1

// MaxPutItemCount bounds the combined number of transaction and delete
// items accepted in a single PutObjectRequest.
const MaxPutItemCount = 1000

// MaxListPageSize caps the number of key versions returned per page.
const MaxListPageSize = 100

// Store is the transactional key-value engine. Every operation is scoped
// by the authenticated user token; implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the current value and version of a key. A missing
	// non-sentinel key fails with ErrNoSuchKey; the sentinel reads as
	// version 0 when absent.
	Get(ctx context.Context, userToken string, req *GetObjectRequest) (*GetObjectResponse, error)

	// Put applies all transaction items, delete items and the optional
	// global-version advance atomically. Any version mismatch aborts the
	// whole batch with ErrConflict.
	Put(ctx context.Context, userToken string, req *PutObjectRequest) (*PutObjectResponse, error)

	// Delete removes a single item. Deleting an absent key succeeds.
	Delete(ctx context.Context, userToken string, req *DeleteObjectRequest) (*DeleteObjectResponse, error)

	// ListKeyVersions enumerates keys and versions under a prefix in
	// ascending key order, one page at a time.
	ListKeyVersions(ctx context.Context, userToken string, req *ListKeyVersionsRequest) (*ListKeyVersionsResponse, error)
}

// ValidatePut enforces the request-level Put constraints shared by all
// backends: the combined item limit and key distinctness. A key used
// twice would make the transaction's outcome depend on statement order,
// so duplicates are rejected up front as the conflict they would become.
func ValidatePut(req *PutObjectRequest) error {
	if len(req.TransactionItems)+len(req.DeleteItems) > MaxPutItemCount {
		return NewInvalidRequest(
			"Number of write items per request should be less than equal to %d", MaxPutItemCount)
	}
	seen := make(map[string]struct{}, len(req.TransactionItems)+len(req.DeleteItems))
	if req.GlobalVersion != nil {
		seen[GlobalVersionKey] = struct{}{}
	}
	for _, items := range [][]KeyValue{req.TransactionItems, req.DeleteItems} {
		for i := range items {
			key := items[i].Key
			if _, dup := seen[key]; dup {
				return NewConflict("Duplicate key %s in request", key)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

// EffectivePageSize clamps a requested page size to the server cap. A
// missing or non-positive size means "as large as the cap allows".
func EffectivePageSize(requested *int32) int {
	if requested == nil || *requested <= 0 {
		return MaxListPageSize
	}
	if *requested > MaxListPageSize {
		return MaxListPageSize
	}
	return int(*requested)
}
