package handlers

import "net/http"

func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.oracle.Snapshot())
}
