package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"trtlbridge/apperrors"
)

// BridgeTx records the payout of a Cardano transaction sent to the bridge address.
// 201 for a new record, 200 when the transaction was already submitted.
func (h *Handlers) BridgeTx(w http.ResponseWriter, r *http.Request) {
	var req BridgeTxRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, created, err := h.deps.Bridge.Submit(r.Context(), req.TxHash)
	if err != nil {
		h.responseError(w, r, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	} else {
		h.logger.Info("bridge transaction submitted again", zap.String("id", rec.ID), zap.String("txHash", rec.SourceTxHash))
	}
	responseJSON(w, &APIResponseRecordID{ID: rec.ID}, code)
}

// BridgeCron runs a payout pass. Schedulers only need to know the trigger was accepted.
func (h *Handlers) BridgeCron(w http.ResponseWriter, r *http.Request) {
	// a disconnecting caller must not cut a pass short
	ctx := context.WithoutCancel(r.Context())
	if err := h.deps.RunPayouts(ctx); err != nil {
		h.responseError(w, r, apperrors.General(err))
		return
	}
	responseNoContent(w)
}
