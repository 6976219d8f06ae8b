package handlers

import (
	"net/http"
)

// prev. bridge implementation compatibility
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIStateResponse{
		Status: "ok",
	}, http.StatusOK)
}

func (h *Handlers) Timestamp(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIResponseTimestamp{
		Now: h.now().UnixMilli(),
	}, http.StatusOK)
}
