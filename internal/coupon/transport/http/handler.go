package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plugstore/internal/api/dto"
	"plugstore/internal/coupon/service"
	"plugstore/internal/discount"
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

// CalculateDiscount: предпросмотр цены с купоном
func (h *Handler) CalculateDiscount(w http.ResponseWriter, r *http.Request) {
	var req dto.CalculateCouponDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}

	res, err := h.Service.CalculateDiscount(r.Context(), req.CouponCode, req.ProductID, req.Context == "cart")
	if err != nil {
		writeDiscountError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.NewDiscountResponse(res))
}

func writeDiscountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, product.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, discount.ErrCouponNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case discount.IsCouponError(err):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("CouponHandler: ERROR: calculate discount: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Service.List(r.Context())
	if err != nil {
		log.Printf("CouponHandler: ERROR: list coupons: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, coupons)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := couponID(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCoupon(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Create(r.Context(), in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := couponID(w, r)
	if !ok {
		return
	}
	in, ok := decodeCoupon(w, r)
	if !ok {
		return
	}
	c, err := h.Service.Update(r.Context(), id, in)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := couponID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func couponID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid coupon id")
		return 0, false
	}
	return id, true
}

func decodeCoupon(w http.ResponseWriter, r *http.Request) (service.CouponInput, bool) {
	var req dto.CouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return service.CouponInput{}, false
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return service.CouponInput{}, false
	}

	in := service.CouponInput{
		Code:          req.Code,
		DiscountType:  pricing.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		MaxUses:       req.MaxUses,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      true,
		UsableInCart:  true,
		ProductIDs:    req.ProductIDs,
	}
	if req.IsActive != nil {
		in.IsActive = *req.IsActive
	}
	if req.UsableInCart != nil {
		in.UsableInCart = *req.UsableInCart
	}
	return in, true
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrCouponNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCouponCodeTaken):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case service.IsValidationError(err):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("CouponHandler: ERROR: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
