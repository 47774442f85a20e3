package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packline-io/packline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for delivery orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the dispatch handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Get("/orders", h.handleList)
	r.Get("/orders/{id}", h.handleGet)
	r.Post("/orders/{id}/submit", h.handleSubmit)
	r.Post("/orders/{id}/post", h.handlePost)
}

type createOrderRequest struct {
	CustomerCode string             `json:"customer_code" validate:"required"`
	Warehouse    string             `json:"warehouse" validate:"required"`
	Reference    string             `json:"reference"`
	DeliveryDate string             `json:"delivery_date"`
	Lines        []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
	ActorID      int64              `json:"actor_id"`
}

type orderLineRequest struct {
	ItemCode    string  `json:"item_code" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	BatchNumber string  `json:"batch_number"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var deliveryDate time.Time
	if req.DeliveryDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DeliveryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "delivery_date must be YYYY-MM-DD")
			return
		}
		deliveryDate = parsed
	}
	input := CreateOrderInput{
		CustomerCode: req.CustomerCode,
		Warehouse:    req.Warehouse,
		Reference:    req.Reference,
		DeliveryDate: deliveryDate,
		ActorID:      req.ActorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, OrderLineInput{
			ItemCode:    line.ItemCode,
			Quantity:    line.Quantity,
			BatchNumber: line.BatchNumber,
		})
	}
	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	order, lines, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "lines": lines})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		ActorID int64 `json:"actor_id"`
	}
	_ = httpx.DecodeJSON(r, &body)
	if err := h.service.Submit(r.Context(), id, body.ActorID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": OrderSubmitted})
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		ActorID int64 `json:"actor_id"`
	}
	_ = httpx.DecodeJSON(r, &body)
	order, err := h.service.PostOrder(r.Context(), id, body.ActorID)
	if err != nil && order.ID == 0 {
		h.respondError(w, r, err)
		return
	}
	if err != nil {
		httpx.JSON(w, http.StatusBadGateway, map[string]any{"order": order, "error": "delivery posting was rejected by the ERP"})
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "delivery order not found")
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrDuplicateOrder):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("dispatch request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
