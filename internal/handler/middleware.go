package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/haulways/be-driver-payroll/internal/client"
	"github.com/haulways/be-driver-payroll/internal/errors"
)

// Session is the resolved access-gate state for one request: who the caller
// is, whether they are on the admin allowlist, and which account's data the
// request targets. It is passed explicitly through the request context — no
// component re-queries the identity provider.
type Session struct {
	AccountID string
	Email     string
	IsAdmin   bool

	// TargetAccountID is the caller's own account, or another account when
	// an admin set the X-Act-As-Account header.
	TargetAccountID string
}

// ActedAs reports whether this session is operating on another account.
func (s Session) ActedAs() bool {
	return s.TargetAccountID != s.AccountID
}

type contextKey struct{ name string }

var sessionContextKey = &contextKey{"Session"}

// SessionFromContext returns the session stored by AuthMiddleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	return s, ok
}

// AuthMiddleware resolves the bearer session token against the identity
// provider, checks the static admin allowlist, and resolves the target
// account. Non-admins may only target their own account.
func AuthMiddleware(identity client.IdentityClientInterface, adminEmails map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, errors.New(errors.ErrCodeUnauthorized, "missing session token"))
				return
			}

			ident, err := identity.Whoami(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}

			session := Session{
				AccountID:       ident.AccountID,
				Email:           ident.Email,
				IsAdmin:         adminEmails[ident.Email],
				TargetAccountID: ident.AccountID,
			}

			if target := strings.TrimSpace(r.Header.Get("X-Act-As-Account")); target != "" && target != session.AccountID {
				if !session.IsAdmin {
					writeError(w, errors.New(errors.ErrCodeForbidden, "only admins may act on another account"))
					return
				}
				session.TargetAccountID = target
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-Session-Token"))
}

// RequestLogger emits one structured log line per request.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
