package verification

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/packline-io/packline/internal/platform/httpx"
)

const maxScanBody = 16 << 10

// Handler exposes the scan endpoint consumed by the mobile QR client
// and the progress rollup shown on the floor dashboard.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	progress singleflight.Group
}

// NewHandler constructs the verification handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers verification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/scan", h.handleScan)
	r.Get("/documents/{id}/progress", h.handleProgress)
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxScanBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable scan payload")
		return
	}
	outcome, err := h.engine.AcceptScan(r.Context(), raw)
	if err != nil {
		h.respondScanError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

// handleProgress collapses concurrent dashboard polls for the same
// document into a single repository read.
func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return
	}
	result, err, _ := h.progress.Do(chi.URLParam(r, "id"), func() (any, error) {
		return h.engine.Progress(r.Context(), id)
	})
	if err != nil {
		h.logger.Error("progress read failed", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		httpx.Problem(w, http.StatusBadRequest, "Rejected Scan", "the scanned code is not a readable label payload")
	case errors.Is(err, ErrPackNotFound), errors.Is(err, ErrDetailNotFound):
		httpx.Problem(w, http.StatusNotFound, "Rejected Scan", "no pack matches the scanned label; check the label and rescan")
	case errors.Is(err, ErrQuantityMismatch):
		httpx.Problem(w, http.StatusConflict, "Rejected Scan", "the scanned quantity does not match this pack; re-check the physical labeling")
	default:
		h.logger.Error("scan failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
