package vss

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePutItemLimit(t *testing.T) {
	items := make([]KeyValue, MaxPutItemCount)
	for i := range items {
		items[i] = KeyValue{Key: fmt.Sprintf("key-%04d", i)}
	}
	assert.NoError(t, ValidatePut(&PutObjectRequest{TransactionItems: items}))

	over := append(items, KeyValue{Key: "one-more"})
	err := ValidatePut(&PutObjectRequest{TransactionItems: over})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// The limit counts puts and deletes together.
	err = ValidatePut(&PutObjectRequest{TransactionItems: items, DeleteItems: []KeyValue{{Key: "d"}}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestValidatePutDuplicateKeys(t *testing.T) {
	err := ValidatePut(&PutObjectRequest{
		TransactionItems: []KeyValue{{Key: "k"}, {Key: "k"}},
	})
	assert.ErrorIs(t, err, ErrConflict)

	err = ValidatePut(&PutObjectRequest{
		TransactionItems: []KeyValue{{Key: "k"}},
		DeleteItems:      []KeyValue{{Key: "k"}},
	})
	assert.ErrorIs(t, err, ErrConflict)

	// Writing the sentinel explicitly while also passing the
	// global_version field is a duplicate write of the same key.
	gv := int64(0)
	err = ValidatePut(&PutObjectRequest{
		GlobalVersion:    &gv,
		TransactionItems: []KeyValue{{Key: GlobalVersionKey}},
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEffectivePageSize(t *testing.T) {
	clamp := func(v int32) int {
		return EffectivePageSize(&v)
	}
	assert.Equal(t, MaxListPageSize, EffectivePageSize(nil))
	assert.Equal(t, MaxListPageSize, clamp(0))
	assert.Equal(t, MaxListPageSize, clamp(-3))
	assert.Equal(t, MaxListPageSize, clamp(101))
	assert.Equal(t, 5, clamp(5))
	assert.Equal(t, MaxListPageSize, clamp(MaxListPageSize))
}
