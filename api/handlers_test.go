package api_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightningdevkit/vss-server/api"
	"github.com/lightningdevkit/vss-server/auth"
	"github.com/lightningdevkit/vss-server/store/memory"
	"github.com/lightningdevkit/vss-server/vss"
	"github.com/lightningdevkit/vss-server/vss/wire"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := api.NewHandler(memory.New(), auth.Noop{}, 0, zerolog.Nop())
	server := httptest.NewServer(api.NewRouter(handler, nil))
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, path string, body []byte) (int, []byte) {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/octet-stream", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func putObjects(t *testing.T, server *httptest.Server, req *vss.PutObjectRequest) (int, []byte) {
	t.Helper()
	return post(t, server, "/vss/putObjects", wire.MarshalPutObjectRequest(req))
}

func getObject(t *testing.T, server *httptest.Server, storeID, key string) (int, []byte) {
	t.Helper()
	return post(t, server, "/vss/getObject",
		wire.MarshalGetObjectRequest(&vss.GetObjectRequest{StoreID: storeID, Key: key}))
}

func i64(v int64) *int64 { return &v }

func i32(v int32) *int32 { return &v }

func kv(key, value string, version int64) vss.KeyValue {
	return vss.KeyValue{Key: key, Value: []byte(value), Version: version}
}

func decodeErrorResponse(t *testing.T, body []byte) *vss.ErrorResponse {
	t.Helper()
	errResp, err := wire.UnmarshalErrorResponse(body)
	require.NoError(t, err)
	return errResp
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestConditionalLifecycle(t *testing.T) {
	server := newTestServer(t)

	status, _ := putObjects(t, server, &vss.PutObjectRequest{
		StoreID:          "store",
		GlobalVersion:    i64(0),
		TransactionItems: []vss.KeyValue{kv("k1", "k1v1", 0)},
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = putObjects(t, server, &vss.PutObjectRequest{
		StoreID:          "store",
		GlobalVersion:    i64(1),
		TransactionItems: []vss.KeyValue{kv("k1", "k1v2", 1)},
	})
	require.Equal(t, http.StatusOK, status)

	status, body := getObject(t, server, "store", "k1")
	require.Equal(t, http.StatusOK, status)
	getResp, err := wire.UnmarshalGetObjectResponse(body)
	require.NoError(t, err)
	require.NotNil(t, getResp.Value)
	assert.Equal(t, "k1", getResp.Value.Key)
	assert.Equal(t, []byte("k1v2"), getResp.Value.Value)
	assert.Equal(t, int64(2), getResp.Value.Version)

	status, body = getObject(t, server, "store", vss.GlobalVersionKey)
	require.Equal(t, http.StatusOK, status)
	getResp, err = wire.UnmarshalGetObjectResponse(body)
	require.NoError(t, err)
	assert.Equal(t, int64(2), getResp.Value.Version)
}

func TestGlobalVersionMismatchLeavesStateUntouched(t *testing.T) {
	server := newTestServer(t)

	status, _ := putObjects(t, server, &vss.PutObjectRequest{
		StoreID:          "store",
		GlobalVersion:    i64(0),
		TransactionItems: []vss.KeyValue{kv("k1", "v1", 0)},
	})
	require.Equal(t, http.StatusOK, status)

	status, body := putObjects(t, server, &vss.PutObjectRequest{
		StoreID:          "store",
		GlobalVersion:    i64(0),
		TransactionItems: []vss.KeyValue{kv("k1", "v2", 1)},
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, vss.ErrorCodeConflict, decodeErrorResponse(t, body).ErrorCode)

	_, body = getObject(t, server, "store", "k1")
	getResp, err := wire.UnmarshalGetObjectResponse(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), getResp.Value.Value)
	assert.Equal(t, int64(1), getResp.Value.Version)
}

func TestListPaginationOverHTTP(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 20; i++ {
		status, _ := putObjects(t, server, &vss.PutObjectRequest{
			StoreID:          "store",
			TransactionItems: []vss.KeyValue{kv(fmt.Sprintf("%dk", i), "v", 0)},
		})
		require.Equal(t, http.StatusOK, status)
	}

	prefix := "1"
	var (
		token *string
		seen  []string
	)
	for page := 0; ; page++ {
		require.Less(t, page, 10, "pagination did not terminate")
		status, body := post(t, server, "/vss/listKeyVersions",
			wire.MarshalListKeyVersionsRequest(&vss.ListKeyVersionsRequest{
				StoreID:   "store",
				KeyPrefix: &prefix,
				PageSize:  i32(5),
				PageToken: token,
			}))
		require.Equal(t, http.StatusOK, status)
		resp, err := wire.UnmarshalListKeyVersionsResponse(body)
		require.NoError(t, err)
		if page == 0 {
			require.NotNil(t, resp.GlobalVersion)
			assert.Equal(t, int64(0), *resp.GlobalVersion)
		} else {
			assert.Nil(t, resp.GlobalVersion)
		}
		for _, k := range resp.KeyVersions {
			seen = append(seen, k.Key)
		}
		require.NotNil(t, resp.NextPageToken)
		if *resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	assert.Len(t, seen, 11)
}

func TestDeleteObjectIsIdempotentOverHTTP(t *testing.T) {
	server := newTestServer(t)

	status, _ := putObjects(t, server, &vss.PutObjectRequest{
		StoreID:          "store",
		TransactionItems: []vss.KeyValue{kv("k1", "v", 0)},
	})
	require.Equal(t, http.StatusOK, status)

	deleteBody := wire.MarshalDeleteObjectRequest(&vss.DeleteObjectRequest{
		StoreID:  "store",
		KeyValue: &vss.KeyValue{Key: "k1", Version: 1},
	})
	status, _ = post(t, server, "/vss/deleteObject", deleteBody)
	require.Equal(t, http.StatusOK, status)
	status, _ = post(t, server, "/vss/deleteObject", deleteBody)
	require.Equal(t, http.StatusOK, status)

	status, body := getObject(t, server, "store", "k1")
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, vss.ErrorCodeNoSuchKey, decodeErrorResponse(t, body).ErrorCode)
}

// =============================================================================
// SHORT CIRCUITS AND ERROR MAPPING
// =============================================================================

func TestInvalidPathAndMethod(t *testing.T) {
	server := newTestServer(t)

	status, body := post(t, server, "/vss/unknownOp", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request path.", string(body))

	resp, err := http.Get(server.URL + "/vss/getObject")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request path.", string(data))
}

func TestParseFailureIsPlainText(t *testing.T) {
	server := newTestServer(t)

	// A lone field tag with its payload missing cannot decode.
	status, body := post(t, server, "/vss/getObject", []byte{0x0a})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Error parsing request", string(body))
}

func TestDeleteWithoutKeyValueIsInvalidRequest(t *testing.T) {
	server := newTestServer(t)

	status, body := post(t, server, "/vss/deleteObject",
		wire.MarshalDeleteObjectRequest(&vss.DeleteObjectRequest{StoreID: "store"}))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, vss.ErrorCodeInvalidRequest, decodeErrorResponse(t, body).ErrorCode)
}

func TestBodySizeCap(t *testing.T) {
	handler := api.NewHandler(memory.New(), auth.Noop{}, 64, zerolog.Nop())
	server := httptest.NewServer(api.NewRouter(handler, nil))
	defer server.Close()

	big := wire.MarshalPutObjectRequest(&vss.PutObjectRequest{
		StoreID:          "store",
		TransactionItems: []vss.KeyValue{kv("k1", string(make([]byte, 256)), 0)},
	})
	resp, err := http.Post(server.URL+"/vss/putObjects", "application/octet-stream", bytes.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAuthFailureShortCircuits(t *testing.T) {
	// The signature authenticator rejects requests without a header
	// before the body is ever considered.
	handler := api.NewHandler(memory.New(), auth.SignatureAuthenticator{}, 0, zerolog.Nop())
	server := httptest.NewServer(api.NewRouter(handler, nil))
	defer server.Close()

	status, body := post(t, server, "/vss/getObject",
		wire.MarshalGetObjectRequest(&vss.GetObjectRequest{StoreID: "store", Key: "k"}))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, vss.ErrorCodeAuth, decodeErrorResponse(t, body).ErrorCode)
}

type panickyStore struct{}

func (panickyStore) Get(context.Context, string, *vss.GetObjectRequest) (*vss.GetObjectResponse, error) {
	panic("boom")
}
func (panickyStore) Put(context.Context, string, *vss.PutObjectRequest) (*vss.PutObjectResponse, error) {
	panic("boom")
}
func (panickyStore) Delete(context.Context, string, *vss.DeleteObjectRequest) (*vss.DeleteObjectResponse, error) {
	panic("boom")
}
func (panickyStore) ListKeyVersions(context.Context, string, *vss.ListKeyVersionsRequest) (*vss.ListKeyVersionsResponse, error) {
	panic("boom")
}

func TestPanicBecomesInternalServerError(t *testing.T) {
	handler := api.NewHandler(panickyStore{}, auth.Noop{}, 0, zerolog.Nop())
	server := httptest.NewServer(api.NewRouter(handler, nil))
	defer server.Close()

	status, body := post(t, server, "/vss/getObject",
		wire.MarshalGetObjectRequest(&vss.GetObjectRequest{StoreID: "store", Key: "k"}))
	assert.Equal(t, http.StatusInternalServerError, status)
	errResp := decodeErrorResponse(t, body)
	assert.Equal(t, vss.ErrorCodeInternalServer, errResp.ErrorCode)
	assert.Equal(t, "Unknown Server Error occurred.", errResp.Message)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
