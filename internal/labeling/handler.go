package labeling

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/packline-io/packline/internal/platform/httpx"
)

// Handler exposes label endpoints for the detail screen and printers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the labeling handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers labeling routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/details/{id}/labels", h.handleListLabels)
	r.Post("/details/{id}/labels/generate", h.handleGenerate)
	r.Post("/packs/{id}/label/regenerate", h.handleRegenerate)
	r.Post("/packs/{id}/printed", h.handleMarkPrinted)
}

type labelView struct {
	PackID    int64      `json:"pack_id"`
	Code      string     `json:"code"`
	Seq       int        `json:"seq"`
	Qty       int64      `json:"qty"`
	Payload   string     `json:"payload"`
	ImagePNG  string     `json:"image_png,omitempty"`
	Printed   bool       `json:"printed"`
	PrintedAt *time.Time `json:"printed_at,omitempty"`
}

func (h *Handler) handleListLabels(w http.ResponseWriter, r *http.Request) {
	detailID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid detail id")
		return
	}
	contexts, err := h.service.Labels(r.Context(), detailID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"labels": labelViews(contexts)})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	detailID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid detail id")
		return
	}
	if err := h.service.GenerateLabels(r.Context(), detailID); err != nil {
		h.respondError(w, r, err)
		return
	}
	contexts, err := h.service.Labels(r.Context(), detailID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"labels": labelViews(contexts)})
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	packID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid pack id")
		return
	}
	row, err := h.service.RegeneratePack(r.Context(), packID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := labelViews([]PackContext{row})
	httpx.JSON(w, http.StatusOK, views[0])
}

func (h *Handler) handleMarkPrinted(w http.ResponseWriter, r *http.Request) {
	packID, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid pack id")
		return
	}
	if err := h.service.MarkPrinted(r.Context(), packID); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"printed": true})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrPackNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "pack not found")
		return
	}
	h.logger.Error("labeling request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func labelViews(contexts []PackContext) []labelView {
	views := make([]labelView, 0, len(contexts))
	for _, row := range contexts {
		view := labelView{
			PackID:    row.PackID,
			Code:      row.Code,
			Seq:       row.Seq,
			Qty:       row.Qty,
			Payload:   row.Payload,
			Printed:   row.Printed,
			PrintedAt: row.PrintedAt,
		}
		if row.HasImage && row.Image != nil {
			view.ImagePNG = base64.StdEncoding.EncodeToString(row.Image)
		}
		views = append(views, view)
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
