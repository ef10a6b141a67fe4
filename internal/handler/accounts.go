package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

func (h *Handler) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	account := r.Context().Value(AccountInfoCtx).(*domain.Account)

	if account.IsActive {
		h.writeJSON(w, r, http.StatusOK, account)
		return
	}

	account.IsActive = true
	if err := h.repository.UpdateAccount(r.Context(), account); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, http.StatusConflict, "Account was modified concurrently, please retry")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, account)
}
