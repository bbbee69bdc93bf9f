package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plugstore/internal/api/dto"
	"plugstore/internal/category/service"
	"plugstore/pkg/middleware"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(service *service.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, categories)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCategory(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := categoryID(w, r)
	if !ok {
		return
	}
	req, ok := decodeCategory(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

func categoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid category id")
		return 0, false
	}
	return id, true
}

func decodeCategory(w http.ResponseWriter, r *http.Request) (*dto.CategoryRequest, bool) {
	var req dto.CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return nil, false
	}
	return &req, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrCategoryNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNameTaken):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidName):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("CategoryHandler: ERROR: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
