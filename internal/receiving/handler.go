package receiving

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/packline-io/packline/internal/platform/httpx"
	"github.com/packline-io/packline/internal/shared"
)

// PostEnqueuer hands ERP posting off to the background worker.
type PostEnqueuer interface {
	EnqueuePost(ctx context.Context, documentID, actorID int64) error
}

// Handler wires HTTP endpoints for the receiving module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer PostEnqueuer
	validate *validator.Validate
}

// NewHandler constructs the receiving handler. enqueuer may be nil, in
// which case posting always runs synchronously.
func NewHandler(logger *slog.Logger, service *Service, enqueuer PostEnqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, validate: validator.New()}
}

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.handleCreateDocument)
	r.Get("/documents", h.handleListDocuments)
	r.Get("/documents/{id}", h.handleGetDocument)
	r.Post("/documents/{id}/lines", h.handleAddLine)
	r.Post("/documents/{id}/submit", h.handleSubmit)
	r.Post("/documents/{id}/qc-approve", h.handleQCApprove)
	r.Post("/documents/{id}/qc-reject", h.handleQCReject)
	r.Post("/documents/{id}/post", h.handlePost)
	r.Post("/lines/{id}/details", h.handleAddDetail)
	r.Put("/details/{id}", h.handleEditDetail)
	r.Get("/lines/{id}/details", h.handleListDetails)
}

type createDocumentRequest struct {
	Type          string `json:"type" validate:"required,oneof=GRPO MGRN"`
	SupplierCode  string `json:"supplier_code" validate:"required"`
	WarehouseCode string `json:"warehouse_code" validate:"required"`
	ReceivedAt    string `json:"received_at"`
	Note          string `json:"note"`
	ActorID       int64  `json:"actor_id"`
}

type addLineRequest struct {
	ItemCode    string  `json:"item_code" validate:"required"`
	PONumber    string  `json:"po_number"`
	POEntry     int64   `json:"po_entry"`
	POLine      int     `json:"po_line"`
	OrderedQty  float64 `json:"ordered_qty" validate:"gte=0"`
	BinLocation string  `json:"bin_location"`
	ActorID     int64   `json:"actor_id"`
}

type detailRequest struct {
	BatchNumber string  `json:"batch_number"`
	TotalQty    float64 `json:"total_qty" validate:"gte=0"`
	PackCount   int     `json:"pack_count"`
	ExpiryDate  string  `json:"expiry_date"`
	MfgDate     string  `json:"mfg_date"`
	ActorID     int64   `json:"actor_id"`
}

type rejectRequest struct {
	Reason  string `json:"reason" validate:"required,min=10"`
	ActorID int64  `json:"actor_id"`
}

func (h *Handler) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receivedAt, ok := parseDate(req.ReceivedAt)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "received_at must be YYYY-MM-DD")
		return
	}
	doc, err := h.service.CreateDocument(r.Context(), CreateDocumentInput{
		Type:          DocumentType(req.Type),
		SupplierCode:  req.SupplierCode,
		WarehouseCode: req.WarehouseCode,
		ReceivedAt:    receivedAt,
		Note:          req.Note,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	docs, pagination, err := h.service.ListDocuments(r.Context(), DocumentFilter{
		Status:  DocumentStatus(q.Get("status")),
		Type:    DocumentType(q.Get("type")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs, "pagination": pagination})
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	doc, lines, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"document": doc, "lines": lines})
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var req addLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.AddLineItem(r.Context(), AddLineInput{
		DocumentID:  id,
		ItemCode:    req.ItemCode,
		PONumber:    req.PONumber,
		POEntry:     req.POEntry,
		POLine:      req.POLine,
		OrderedQty:  req.OrderedQty,
		BinLocation: req.BinLocation,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) handleAddDetail(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	input, ok := h.decodeDetail(w, r)
	if !ok {
		return
	}
	input.LineID = lineID
	detail, packs, err := h.service.AddDetail(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"detail": detail, "packs": packViews(packs)})
}

func (h *Handler) handleEditDetail(w http.ResponseWriter, r *http.Request) {
	detailID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid detail id")
		return
	}
	input, ok := h.decodeDetail(w, r)
	if !ok {
		return
	}
	detail, packs, err := h.service.EditDetail(r.Context(), detailID, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"detail": detail, "packs": packViews(packs)})
}

func (h *Handler) handleListDetails(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	details, err := h.service.ListDetails(r.Context(), lineID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"details": details})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actorID int64) error {
		return h.service.Submit(r.Context(), id, actorID)
	})
}

func (h *Handler) handleQCApprove(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(id, actorID int64) error {
		return h.service.QCApprove(r.Context(), id, actorID)
	})
}

func (h *Handler) handleQCReject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.QCReject(r.Context(), id, req.ActorID, req.Reason); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": StatusQCRejected})
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	var body struct {
		ActorID int64 `json:"actor_id"`
		Async   bool  `json:"async"`
	}
	_ = httpx.DecodeJSON(r, &body)
	if body.Async && h.enqueuer != nil {
		if err := h.enqueuer.EnqueuePost(r.Context(), id, body.ActorID); err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}
	doc, err := h.service.PostDocument(r.Context(), id, body.ActorID)
	if err != nil && doc.ID == 0 {
		h.respondError(w, r, err)
		return
	}
	if err != nil {
		// The document moved to FAILED; report that state with the cause.
		httpx.JSON(w, http.StatusBadGateway, map[string]any{"document": doc, "error": shared.UserSafeMessage(err)})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, fn func(id, actorID int64) error) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	if err := fn(id, actorFromBody(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	doc, err := h.service.repo.GetDocument(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) decodeDetail(w http.ResponseWriter, r *http.Request) (DetailInput, bool) {
	var req detailRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return DetailInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return DetailInput{}, false
	}
	expiry, ok := parseDate(req.ExpiryDate)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
		return DetailInput{}, false
	}
	mfg, ok := parseDate(req.MfgDate)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "mfg_date must be YYYY-MM-DD")
		return DetailInput{}, false
	}
	return DetailInput{
		BatchNumber: req.BatchNumber,
		TotalQty:    req.TotalQty,
		PackCount:   req.PackCount,
		ExpiryDate:  expiry,
		MfgDate:     mfg,
		ActorID:     req.ActorID,
	}, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "The requested record was not found.")
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotVerified), errors.Is(err, ErrDetailLocked), errors.Is(err, ErrDuplicatePack), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("receiving request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// packView hides the raw image bytes from document endpoints; labels are
// fetched from the labeling routes when printing.
type packView struct {
	ID       int64        `json:"id"`
	Seq      int          `json:"seq"`
	Qty      int64        `json:"qty"`
	Code     string       `json:"code"`
	Status   VerifyStatus `json:"status"`
	HasLabel bool         `json:"has_label"`
}

func packViews(packs []Pack) []packView {
	views := make([]packView, 0, len(packs))
	for _, pack := range packs {
		views = append(views, packView{
			ID:       pack.ID,
			Seq:      pack.Seq,
			Qty:      pack.Qty,
			Code:     pack.Code,
			Status:   pack.Status,
			HasLabel: pack.Payload != "",
		})
	}
	return views
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func actorFromBody(r *http.Request) int64 {
	var body struct {
		ActorID int64 `json:"actor_id"`
	}
	_ = httpx.DecodeJSON(r, &body)
	return body.ActorID
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
