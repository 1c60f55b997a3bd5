package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const UserKey contextKey = "user_id"

// DefaultUserHeader carries the identity set by the upstream gateway.
const DefaultUserHeader = "X-User-ID"

// Identity reads the caller's user id from header into the request context.
// A missing header means an anonymous caller; a malformed one is rejected.
func Identity(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultUserHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(header))
			if user == "" {
				next.ServeHTTP(w, r)
				return
			}
			if err := ValidateUserID(user); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireUser rejects anonymous callers (history endpoints).
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == "" {
			http.Error(w, "missing user identity", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// UserFromContext returns "" for anonymous requests.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(UserKey).(string); ok {
		return user
	}
	return ""
}
