package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/alphacut/alphacut-backend/pkg/logger"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

// RequestID tags every request with an id, reusing a well-formed inbound
// X-Request-Id so traces line up with the caller.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID, ok := inboundRequestID(r.Header.Get(requestIDHeader))
			if !ok {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := WithRequestID(r.Context(), reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return "", false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return "", false
		}
	}
	return id, true
}
