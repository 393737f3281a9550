package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"deepsafe/internal/auth"
	"deepsafe/internal/pkg/result"
)

// Authenticator verifies bearer access tokens.
type Authenticator interface {
	Authenticate(token string) (*auth.Claims, error)
}

type ctxKey string

const claimsKey ctxKey = "deepsafe:claims"

var (
	errMissingToken   = result.New(result.KindUnauthorized, "authorization header missing")
	errMalformedToken = result.New(result.KindUnauthorized, "authorization header is malformed")
	errAdminOnly      = result.New(result.KindForbidden, "admin access required")
	errMissingVersion = result.New(result.KindValidation, "If-Match header with the progress version is required")
)

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID(r)).
			Msg("HTTP request")
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// requireAuth rejects requests without a valid bearer token and stores the
// claims in the request context.
func requireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
			claims, err := authn.Authenticate(token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin must run after requireAuth.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFrom(r.Context())
		if !ok || !claims.Admin {
			writeError(w, r, errAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errMalformedToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errMalformedToken
	}
	return token, nil
}

func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// userID returns the authenticated profile id. Only valid behind requireAuth.
func userID(r *http.Request) string {
	if claims, ok := claimsFrom(r.Context()); ok {
		return claims.Subject
	}
	return ""
}
