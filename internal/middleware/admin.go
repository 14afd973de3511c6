package middleware

import (
	"context"
	"net/http"
)

// RoleManageEscrow gates refund and fee-withdrawal endpoints.
const RoleManageEscrow = "CanManageEscrow"

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireAdmin authorizes before any handler state is read. Super admins
// pass every role check.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			isAdmin, isSuper, err := adminStore.IsAdmin(r.Context(), userID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "unable to verify admin")
				return
			}
			if !isAdmin {
				respondError(w, http.StatusForbidden, "admin privileges required")
				return
			}
			if isSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), userID, role)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "unable to verify role")
				return
			}
			if !hasRole {
				respondError(w, http.StatusForbidden, "missing required role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
