package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plugstore/internal/api/dto"
	"plugstore/internal/bundle"
	"plugstore/internal/bundle/service"
	"plugstore/internal/pricing"
	"plugstore/internal/product"
	"plugstore/pkg/middleware"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(service *service.Service) *Handler {
	return &Handler{Service: service}
}

// CalculateDiscount: предпросмотр цены с набором
func (h *Handler) CalculateDiscount(w http.ResponseWriter, r *http.Request) {
	var req dto.CalculateBundleDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}

	res, err := h.Service.CalculateDiscount(r.Context(), req.BundleID, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("BundleHandler: ERROR: calculate discount: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.NewDiscountResponse(res))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	bundles, err := h.Service.List(r.Context())
	if err != nil {
		log.Printf("BundleHandler: ERROR: list bundles: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, bundles)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := bundleID(w, r)
	if !ok {
		return
	}
	b, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeBundle(w, r)
	if !ok {
		return
	}
	b, err := h.Service.Create(r.Context(), in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := bundleID(w, r)
	if !ok {
		return
	}
	in, ok := decodeBundle(w, r)
	if !ok {
		return
	}
	b, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := bundleID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bundleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid bundle id")
		return 0, false
	}
	return id, true
}

func decodeBundle(w http.ResponseWriter, r *http.Request) (service.BundleInput, bool) {
	var req dto.BundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return service.BundleInput{}, false
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return service.BundleInput{}, false
	}

	in := service.BundleInput{
		Name:          req.Name,
		DiscountType:  pricing.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		ApplyTo:       bundle.ApplyTo(req.ApplyTo),
		CategoryID:    req.CategoryID,
		ProductIDs:    req.ProductIDs,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      true,
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	return in, true
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrBundleNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case service.IsValidationError(err):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("BundleHandler: ERROR: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
