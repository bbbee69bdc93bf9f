package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plugstore/internal/api/dto"
	"plugstore/internal/order"
	"plugstore/internal/order/service"
	"plugstore/pkg/middleware"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*order.Order, error)
	CompleteOrder(ctx context.Context, orderID int64) (*order.Order, error)
	FailOrder(ctx context.Context, orderID int64) (*order.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*order.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*order.Order, error)
	GetLicense(ctx context.Context, userID, orderID int64) (*order.License, error)
}

type Handler struct {
	Service OrderService
}

func NewHandler(service OrderService) *Handler {
	return &Handler{Service: service}
}

// CreateOrder: покупка товара текущим пользователем.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dto.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}

	o, err := h.Service.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:        userID,
		ProductID:     req.ProductID,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orders, err := h.Service.ListOrders(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := userAndOrder(w, r)
	if !ok {
		return
	}
	o, err := h.Service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) GetLicense(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := userAndOrder(w, r)
	if !ok {
		return
	}
	l, err := h.Service.GetLicense(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, l)
}

// PaymentWebhook принимает результат оплаты от шлюза. Повторная доставка
// "paid" для завершённого заказа отвечает 200 без изменений.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req dto.PaymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}

	var (
		o   *order.Order
		err error
	)
	if req.Status == "paid" {
		o, err = h.Service.CompleteOrder(r.Context(), req.OrderID)
	} else {
		o, err = h.Service.FailOrder(r.Context(), req.OrderID)
	}
	if errors.Is(err, service.ErrDuplicateCompletion) {
		middleware.WriteJSON(w, http.StatusOK, o)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, o)
}

func userAndOrder(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || orderID <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid order id")
		return 0, 0, false
	}
	return userID, orderID, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrLicenseNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCoupon):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		middleware.WriteError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrUnsupportedPaymentMethod):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("OrderHandler: ERROR: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
