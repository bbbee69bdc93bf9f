package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"plugstore/internal/api/dto"
	"plugstore/internal/product"
	"plugstore/internal/product/service"
	"plugstore/pkg/middleware"
)

type Handler struct {
	Service *service.Service
}

func NewHandler(service *service.Service) *Handler {
	return &Handler{Service: service}
}

// List отдаёт витрине только активные товары.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// AdminList показывает и снятые с продажи товары.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	products, err := h.Service.List(r.Context(), includeInactive)
	if err != nil {
		log.Printf("ProductHandler: ERROR: list products: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if products == nil {
		products = []*product.Product{}
	}
	middleware.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.Service.GetActive(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	if err := h.Service.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	p.ID = id
	if p.Status == "" {
		p.Status = product.StatusActive
	}
	if err := h.Service.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (*product.Product, bool) {
	var req dto.ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return nil, false
	}
	return &product.Product{
		Name:          req.Name,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		CategoryID:    req.CategoryID,
		Status:        req.Status,
		DownloadURL:   req.DownloadURL,
		LicenseKey:    req.LicenseKey,
	}, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case service.IsValidationError(err):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("ProductHandler: ERROR: %v", err)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
