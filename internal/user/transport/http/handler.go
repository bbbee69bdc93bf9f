package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plugstore/internal/api/dto"
	"plugstore/internal/user/service"
	"plugstore/pkg/middleware"
)

type Handler struct {
	UserService *service.UserService
}

func NewHandler(us *service.UserService) *Handler {
	return &Handler{UserService: us}
}

// Me возвращает профиль и баланс текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.UserService.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			middleware.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("UserHandler: ERROR: get profile %d: %v", userID, err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u)
}

// TopUp: ручное пополнение баланса администратором.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req dto.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	balance, err := h.UserService.TopUp(r.Context(), userID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			middleware.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrInvalidTopUpAmount), errors.Is(err, service.ErrTopUpPrecisionLimit):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("UserHandler: ERROR: top up %d: %v", userID, err)
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
	})
}
