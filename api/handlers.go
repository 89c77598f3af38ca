/*
handlers.go - HTTP handlers for the four storage operations

PURPOSE:
  Bridges HTTP to the store: header extraction, authentication, bounded
  body reads, protobuf decoding, and error-kind to status-code mapping.

ENDPOINTS:
  POST /vss/getObject         Fetch one key
  POST /vss/putObjects        Atomic batch write/delete
  POST /vss/deleteObject      Idempotent single delete
  POST /vss/listKeyVersions   Paginated key enumeration
  GET  /healthz               Liveness probe

REQUEST FLOW:
  1. Lowercase the request headers into a map
  2. Authenticate (before any body read)
  3. Read the body up to the configured cap (413 past it)
  4. Decode the protobuf (plain-text 400 on failure)
  5. Execute the store operation under the authenticated user token
  6. Encode the response, or map the error kind to a status

ERROR MAPPING:
  Conflict -> 409, NoSuchKey -> 404, InvalidRequest -> 400, Auth -> 401,
  everything else -> 500 with the message redacted to a constant. All of
  these carry an ErrorResponse protobuf; only the bad-path, parse-failure
  and oversize short circuits are plain text.

SEE ALSO:
  - server.go: router wiring and panic recovery
  - vss/wire/wire.go: body encoding
*/
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lightningdevkit/vss-server/auth"
	"github.com/lightningdevkit/vss-server/vss"
	"github.com/lightningdevkit/vss-server/vss/wire"
)

// DefaultMaxBodyBytes caps request bodies at 1 GiB, which is also the
// hard maximum a deployment may configure.
const DefaultMaxBodyBytes = 1 << 30

const (
	parseFailureBody  = "Error parsing request"
	oversizeBody      = "Request body too large."
	redactedServerErr = "Unknown Server Error occurred."
	invalidPathBody   = "Invalid request path."
)

// Handler couples the store, the authenticator and the request limits.
// It is stateless beyond these references and safe for concurrent use.
type Handler struct {
	store        vss.Store
	auth         auth.Authenticator
	maxBodyBytes int64
	log          zerolog.Logger
}

// NewHandler builds a Handler. A non-positive maxBodyBytes selects the
// default cap; values above the default are clamped to it.
func NewHandler(store vss.Store, authenticator auth.Authenticator, maxBodyBytes int64, logger zerolog.Logger) *Handler {
	if maxBodyBytes <= 0 || maxBodyBytes > DefaultMaxBodyBytes {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{store: store, auth: authenticator, maxBodyBytes: maxBodyBytes, log: logger}
}

// GetObject handles POST /vss/getObject.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	userToken, body, ok := h.authAndRead(w, r)
	if !ok {
		return
	}
	req, err := wire.UnmarshalGetObjectRequest(body)
	if err != nil {
		plainError(w, http.StatusBadRequest, parseFailureBody)
		return
	}
	resp, err := h.store.Get(r.Context(), userToken, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeProto(w, wire.MarshalGetObjectResponse(resp))
}

// PutObjects handles POST /vss/putObjects.
func (h *Handler) PutObjects(w http.ResponseWriter, r *http.Request) {
	userToken, body, ok := h.authAndRead(w, r)
	if !ok {
		return
	}
	req, err := wire.UnmarshalPutObjectRequest(body)
	if err != nil {
		plainError(w, http.StatusBadRequest, parseFailureBody)
		return
	}
	resp, err := h.store.Put(r.Context(), userToken, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeProto(w, wire.MarshalPutObjectResponse(resp))
}

// DeleteObject handles POST /vss/deleteObject.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	userToken, body, ok := h.authAndRead(w, r)
	if !ok {
		return
	}
	req, err := wire.UnmarshalDeleteObjectRequest(body)
	if err != nil {
		plainError(w, http.StatusBadRequest, parseFailureBody)
		return
	}
	resp, err := h.store.Delete(r.Context(), userToken, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeProto(w, wire.MarshalDeleteObjectResponse(resp))
}

// ListKeyVersions handles POST /vss/listKeyVersions.
func (h *Handler) ListKeyVersions(w http.ResponseWriter, r *http.Request) {
	userToken, body, ok := h.authAndRead(w, r)
	if !ok {
		return
	}
	req, err := wire.UnmarshalListKeyVersionsRequest(body)
	if err != nil {
		plainError(w, http.StatusBadRequest, parseFailureBody)
		return
	}
	resp, err := h.store.ListKeyVersions(r.Context(), userToken, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeProto(w, wire.MarshalListKeyVersionsResponse(resp))
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// authAndRead runs the shared front half of every operation:
// authentication first (no body is read for unauthorized requests), then
// a size-capped body read.
func (h *Handler) authAndRead(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	userToken, err := h.auth.Verify(r.Context(), lowercaseHeaders(r.Header))
	if err != nil {
		h.writeError(w, err)
		return "", nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			plainError(w, http.StatusRequestEntityTooLarge, oversizeBody)
		} else {
			h.writeError(w, vss.NewInternal("failed to read request body: %v", err))
		}
		return "", nil, false
	}
	return userToken, body, true
}

// lowercaseHeaders flattens the request headers into a case-insensitive
// map keyed by lowercased names.
func lowercaseHeaders(header http.Header) map[string]string {
	headers := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	return headers
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		status  int
		message = err.Error()
	)
	switch {
	case errors.Is(err, vss.ErrNoSuchKey):
		status = http.StatusNotFound
	case errors.Is(err, vss.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, vss.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, vss.ErrAuth):
		status = http.StatusUnauthorized
	default:
		status = http.StatusInternalServerError
		h.log.Error().Err(err).Msg("internal server error")
		message = redactedServerErr
	}

	body := wire.MarshalErrorResponse(&vss.ErrorResponse{
		ErrorCode: vss.CodeFor(err),
		Message:   message,
	})
	w.WriteHeader(status)
	w.Write(body)
}

func writeProto(w http.ResponseWriter, body []byte) {
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func plainError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
