package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"trtlbridge/apperrors"
	"trtlbridge/types"
)

func (h *Handlers) ListWallets(w http.ResponseWriter, r *http.Request) {
	links, err := h.deps.Wallets.ListWalletLinks(r.Context())
	if err != nil {
		h.responseError(w, r, apperrors.General(err))
		return
	}
	if links == nil {
		links = []*types.WalletLink{}
	}

	responseJSON(w, &APIResponseWallets{Count: len(links), Items: links}, http.StatusOK)
}

// SaveWallet returns the links already matching the given addresses. Otherwise it updates
// the link named by ?id (mobile wallets connect one chain at a time) or creates a new one.
func (h *Handlers) SaveWallet(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Cardano == "" && req.Solana == "" {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "No wallet address provided",
		}, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	existing, err := h.deps.Wallets.FindWalletLinks(ctx, req.Cardano, req.Solana)
	if err != nil {
		h.responseError(w, r, apperrors.General(err))
		return
	}
	if len(existing) > 0 {
		responseJSON(w, &APIResponseWallets{Count: len(existing), Items: existing}, http.StatusOK)
		return
	}

	var link *types.WalletLink
	if id := r.URL.Query().Get("id"); id != "" {
		link, err = h.deps.Wallets.GetWalletLink(ctx, id)
		if err != nil {
			h.responseError(w, r, apperrors.General(err))
			return
		}
		if link == nil {
			responsePlain(w, []byte("Bad ID"), http.StatusBadRequest)
			return
		}
		if req.Cardano != "" {
			link.Cardano = req.Cardano
		}
		if req.Solana != "" {
			link.Solana = req.Solana
		}
	} else {
		link = &types.WalletLink{Cardano: req.Cardano, Solana: req.Solana}
	}

	if err = h.deps.Wallets.UpsertWalletLink(ctx, link); err != nil {
		h.responseError(w, r, apperrors.General(err))
		return
	}

	h.logger.Info("wallet link saved", zap.String("id", link.ID), zap.String("cardano", link.Cardano), zap.String("solana", link.Solana))
	responseJSON(w, &APIResponseWallets{Count: 1, Items: []*types.WalletLink{link}}, http.StatusCreated)
}

func (h *Handlers) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		deleted, err := h.deps.Wallets.DeleteWalletLink(r.Context(), id)
		if err != nil {
			h.responseError(w, r, apperrors.General(err))
			return
		}
		if deleted {
			h.logger.Info("wallet link deleted", zap.String("id", id))
		}
	}

	responseNoContent(w)
}
