package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/angiebeauty/storefront/pkg/httputil"
)

type contextKeyType string

const (
	ownerKey  contextKeyType = "owner"
	userIDKey contextKeyType = "user_id"
)

// Identity headers set by the edge gateway. X-User-ID is present for signed
// in shoppers; guests carry an opaque X-Guest-ID issued by the storefront.
const (
	UserIDHeader  = "X-User-ID"
	GuestIDHeader = "X-Guest-ID"
)

var guestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Owner resolves who the request acts for. Signed-in shoppers are keyed by
// user id, guests by "guest:<id>". Requests with neither get a 400.
func Owner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := r.Header.Get(UserIDHeader); userID != "" {
				ctx = context.WithValue(ctx, userIDKey, userID)
				ctx = context.WithValue(ctx, ownerKey, userID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			guestID := r.Header.Get(GuestIDHeader)
			if !guestIDPattern.MatchString(guestID) {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "MISSING_IDENTITY",
						Message: UserIDHeader + " or a valid " + GuestIDHeader + " header is required",
					},
				})
				return
			}
			ctx = context.WithValue(ctx, ownerKey, "guest:"+guestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the cart owner resolved by Owner.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey).(string); ok {
		return v
	}
	return ""
}

// UserIDFromContext returns the signed-in user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithOwner returns a context carrying owner, and userID when non-empty.
func WithOwner(ctx context.Context, owner, userID string) context.Context {
	ctx = context.WithValue(ctx, ownerKey, owner)
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	return ctx
}
