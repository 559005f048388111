// Package identity carries the authenticated user through request contexts.
// Authentication itself happens upstream; the proxy forwards the user in X-User-ID.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// HeaderUserID is the request header holding the authenticated user
const HeaderUserID = "X-User-ID"

type contextKey struct{}

// ActivityRecorder is notified of every authenticated request
type ActivityRecorder interface {
	Touch(userID string)
}

// WithUserID returns a copy of ctx carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID extracts the user from ctx
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// RequireUser rejects requests without X-User-ID and stores the user in the request context
func RequireUser(recorder ActivityRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if userID == "" {
				http.Error(w, "missing "+HeaderUserID+" header", http.StatusUnauthorized)
				return
			}

			if recorder != nil {
				recorder.Touch(userID)
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
