/*
types.go - Protocol types shared by every backend and the HTTP layer

PURPOSE:
  In-memory representations of the externally defined protobuf messages.
  The wire encoding lives in vss/wire; backends and handlers only ever see
  these structs.

VERSION SENTINELS:
  A request-side version of -1 means "non-conditional" and 0 means
  "insert-if-absent". Stored versions always start at 1. See store.go for
  the write rules.

SEE ALSO:
  - store.go: Store interface and write semantics
  - wire/wire.go: protobuf encoding/decoding
*/
package vss

// KeyValue is a key with its version and (possibly empty) value bytes.
// List responses reuse it with Value left empty.
type KeyValue struct {
	Key     string
	Version int64
	Value   []byte
}

// GetObjectRequest fetches the current value and version of a single key
// within a store.
type GetObjectRequest struct {
	StoreID string
	Key     string
}

// GetObjectResponse carries the fetched key-value.
type GetObjectResponse struct {
	Value *KeyValue
}

// PutObjectRequest writes and/or deletes a batch of items atomically.
//
// GlobalVersion, when set, is checked against the store-wide version
// counter exactly like a conditional update of any other key, and the
// counter is advanced by one on commit.
type PutObjectRequest struct {
	StoreID          string
	GlobalVersion    *int64
	TransactionItems []KeyValue
	DeleteItems      []KeyValue
}

// PutObjectResponse is empty; success is conveyed by the status code.
type PutObjectResponse struct{}

// DeleteObjectRequest removes a single item. Unlike a delete inside a
// PutObjectRequest, deleting an absent key succeeds.
type DeleteObjectRequest struct {
	StoreID  string
	KeyValue *KeyValue
}

// DeleteObjectResponse is empty.
type DeleteObjectResponse struct{}

// ListKeyVersionsRequest enumerates keys and versions under an optional
// prefix, one page at a time.
type ListKeyVersionsRequest struct {
	StoreID   string
	KeyPrefix *string
	PageSize  *int32
	PageToken *string
}

// ListKeyVersionsResponse is one page of keys. NextPageToken is the empty
// string once the last page has been served; GlobalVersion is only set on
// the first page and is read before any of the returned keys.
type ListKeyVersionsResponse struct {
	KeyVersions   []KeyValue
	NextPageToken *string
	GlobalVersion *int64
}

// ErrorCode values mirror the protobuf ErrorCode enum.
type ErrorCode int32

const (
	ErrorCodeUnknown        ErrorCode = 0
	ErrorCodeConflict       ErrorCode = 1
	ErrorCodeInvalidRequest ErrorCode = 2
	ErrorCodeInternalServer ErrorCode = 3
	ErrorCodeNoSuchKey      ErrorCode = 4
	ErrorCodeAuth           ErrorCode = 5
)

// ErrorResponse is the body of every non-200 response that made it past
// request parsing.
type ErrorResponse struct {
	ErrorCode ErrorCode
	Message   string
}
