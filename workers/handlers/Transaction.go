package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"trtlbridge/apperrors"
	"trtlbridge/blockfrost"
)

// GetTransaction proxies the indexer's view of a Cardano transaction, used by clients
// to wait until their transaction is indexed before submitting it.
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txHash := chi.URLParam(r, "id")
	if txHash == "" {
		responsePlain(w, nil, http.StatusBadRequest)
		return
	}

	tx, err := h.deps.Indexer.Transaction(r.Context(), txHash)
	switch {
	case errors.Is(err, blockfrost.ErrNotFound):
		h.responseError(w, r, apperrors.NotFound(err, "not found"))
		return
	case blockfrost.IsTransient(err):
		h.responseError(w, r, apperrors.Temporary(err, "Cardano indexer temporarily unavailable"))
		return
	case err != nil:
		h.responseError(w, r, apperrors.General(err))
		return
	}

	responseJSON(w, tx, http.StatusOK)
}
