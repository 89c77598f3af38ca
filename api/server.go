/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router for the fixed storage paths. Anything outside
  the four storage endpoints and the GET /healthz probe (or another
  method on them) is answered with a plain-text 400, matching the
  protocol's narrow surface.

MIDDLEWARE STACK:
  1. RequestID:  unique ID per request for log correlation
  2. recoverer:  panic -> 500 ErrorResponse instead of a dead process
  3. CORS:       only when origins are configured (browser wallet clients)

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lightningdevkit/vss-server/vss"
	"github.com/lightningdevkit/vss-server/vss/wire"
)

// NewRouter creates the router with all routes configured. corsOrigins
// may be empty, in which case no CORS headers are emitted.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))
	}

	// The protocol has exactly four paths; everything else is a client
	// error, not a 404. Set before mounting the subrouter: chi copies the
	// parent's handlers into subrouters at Route time.
	r.NotFound(invalidPath)
	r.MethodNotAllowed(invalidPath)

	r.Route("/vss", func(r chi.Router) {
		r.Post("/getObject", h.GetObject)
		r.Post("/putObjects", h.PutObjects)
		r.Post("/deleteObject", h.DeleteObject)
		r.Post("/listKeyVersions", h.ListKeyVersions)
	})
	r.Get("/healthz", h.Healthz)

	return r
}

func invalidPath(w http.ResponseWriter, _ *http.Request) {
	plainError(w, http.StatusBadRequest, invalidPathBody)
}

// recoverer converts handler panics into the protocol's InternalServer
// error so a single bad request cannot take the process down.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic in request handler")
				body := wire.MarshalErrorResponse(&vss.ErrorResponse{
					ErrorCode: vss.ErrorCodeInternalServer,
					Message:   redactedServerErr,
				})
				w.WriteHeader(http.StatusInternalServerError)
				w.Write(body)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
