package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"trtlbridge/apperrors"
	"trtlbridge/oracle"
)

func oracleError(err error) error {
	switch {
	case errors.Is(err, oracle.ErrUnknownPool):
		return apperrors.BadRequest(err, "Invalid pool type")
	case errors.Is(err, oracle.ErrUnavailable):
		return apperrors.Temporary(err, "Price information is not available")
	}
	return apperrors.General(err)
}

func (h *Handlers) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	price, err := h.deps.Prices.USDPrice(r.Context(), asset)
	if err != nil {
		h.responseError(w, r, oracleError(err))
		return
	}

	responseJSON(w, &APIResponsePrice{Asset: asset, USD: price}, http.StatusOK)
}

// GetPoolTVL is the ADA value locked in the v1 or v2 ADA/TRTL pool.
func (h *Handlers) GetPoolTVL(w http.ResponseWriter, r *http.Request) {
	tvl, err := h.deps.Prices.PoolTVL(r.Context(), r.URL.Query().Get("poolType"))
	if err != nil {
		h.responseError(w, r, oracleError(err))
		return
	}

	responseJSON(w, &APIResponseTVL{TVL: tvl}, http.StatusOK)
}

func (h *Handlers) GetRequiredLP(w http.ResponseWriter, r *http.Request) {
	required, err := h.deps.Prices.RequiredLP(r.Context(), r.URL.Query().Get("pool"))
	if err != nil {
		h.responseError(w, r, oracleError(err))
		return
	}

	responseJSON(w, required, http.StatusOK)
}
