package handlers

import (
	"net/http"
	"strings"

	"settlement/internal/auth"
	"settlement/internal/websocket"
)

// WSBalances upgrades the connection and subscribes the caller to balance
// and withdrawal pushes. Browsers cannot set headers on websocket dials,
// so the token is also accepted as a query parameter.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}

	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
