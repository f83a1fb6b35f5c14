package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/NaierGG/Nierade/internal/apperr"
	"github.com/NaierGG/Nierade/internal/auth"
	"github.com/NaierGG/Nierade/internal/httputil"
)

type ctxKey string

const (
	userIDKey  ctxKey = "user_id"
	guestIDKey ctxKey = "guest_id"
)

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// WithUser requires a valid bearer token and stores the user id on the
// request context.
func WithUser(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.Error(w, apperr.Unauthenticated("missing bearer token"))
				return
			}
			userID, err := svc.ParseToken(token)
			if err != nil {
				httputil.Error(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAccount resolves the trading identity for a request: a bearer
// token maps to the user's linked guest id, otherwise the X-Guest-ID
// header is accepted when it has the guest_<uuid> shape.
func WithAccount(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				userID, err := svc.ParseToken(token)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				user, err := svc.GetUser(r.Context(), userID)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				ctx := context.WithValue(r.Context(), userIDKey, userID)
				ctx = context.WithValue(ctx, guestIDKey, user.GuestID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			guestID := strings.TrimSpace(r.Header.Get("X-Guest-ID"))
			if !auth.ValidGuestID(guestID) {
				httputil.Error(w, apperr.Unauthenticated("missing or malformed X-Guest-ID"))
				return
			}
			ctx := context.WithValue(r.Context(), guestIDKey, guestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(userIDKey).(string)
	return id, ok
}

func GuestID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(guestIDKey).(string)
	return id, ok
}

// CronAuth guards scheduler endpoints with the shared secret.
func CronAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Cron-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				httputil.Error(w, apperr.Unauthenticated("invalid cron secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
