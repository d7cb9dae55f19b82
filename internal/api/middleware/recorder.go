package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// statusRecorder remembers the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// responseSession prefers the session a handler echoed, since ask requests
// may name their session in the body or fall back to the default one.
func responseSession(rec *statusRecorder, req *http.Request) string {
	if id := rec.Header().Get(SessionIDHeader); id != "" {
		return id
	}
	return GetSessionID(req.Context())
}

// routePattern returns the matched chi pattern, or the raw path when the
// request was not routed by chi.
func routePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return req.URL.Path
}
