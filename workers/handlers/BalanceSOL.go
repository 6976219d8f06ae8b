package handlers

import (
	"net/http"

	"trtlbridge/apperrors"
)

// BalanceSOL reports the bridged token left in the application's Solana account.
func (h *Handlers) BalanceSOL(w http.ResponseWriter, r *http.Request) {
	amount, err := h.deps.Balance.AppBalance(r.Context())
	if err != nil {
		h.responseError(w, r, apperrors.Temporary(err, "Cannot read application balance"))
		return
	}

	responseJSON(w, &APIResponseBalance{TokenAmount: amount}, http.StatusOK)
}
