package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"genba/pkg/requestcontext"
)

// RequestMeta assigns a correlation ID, echoing the caller's when present.
// Apply first in the chain.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
