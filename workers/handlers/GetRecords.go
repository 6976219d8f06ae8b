package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"trtlbridge/apperrors"
	"trtlbridge/mongo"
	"trtlbridge/types"
)

// failed records listed for manual review
const failedListLimit = 500

func recordError(err error) error {
	switch {
	case errors.Is(err, mongo.ErrNotFound):
		return apperrors.NotFound(err, "Record not found")
	case errors.Is(err, mongo.ErrNotUpdated):
		return apperrors.Conflict(err, "Record is not failed")
	}
	return apperrors.General(err)
}

func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Records.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.responseError(w, r, recordError(err))
		return
	}

	responseJSON(w, rec, http.StatusOK)
}

func (h *Handlers) GetFailedRecords(w http.ResponseWriter, r *http.Request) {
	failed, err := h.deps.Records.ListByStatus(r.Context(), types.StatusFailed, failedListLimit)
	if err != nil {
		h.responseError(w, r, apperrors.General(err))
		return
	}
	if failed == nil {
		failed = []*types.BridgeRecord{}
	}

	responseJSON(w, &APIResponseRecords{Count: len(failed), Items: failed}, http.StatusOK)
}

// RetryRecord puts a failed record back in the payout queue once an operator reviewed it.
func (h *Handlers) RetryRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Records.ResetFailed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.responseError(w, r, recordError(err))
		return
	}

	h.logger.Info("failed record requeued", zap.String("id", rec.ID), zap.String("sourceTxHash", rec.SourceTxHash))
	responseJSON(w, rec, http.StatusOK)
}
