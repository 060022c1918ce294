package middleware

import (
	"net/http"

	apperrors "github.com/openclaw/match-relay-go/internal/errors"
	"github.com/openclaw/match-relay-go/internal/httputil"
)

const DefaultMaxBodySize = 1 << 20

// BodyLimitMiddleware rejects bodies that declare more than maxSize bytes
// and caps reads for the rest.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxSize {
			httputil.WriteError(w, apperrors.TooLarge(m.maxSize))
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		}
		next.ServeHTTP(w, r)
	})
}
