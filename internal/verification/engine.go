package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/packline-io/packline/internal/distribution"
	"github.com/packline-io/packline/internal/grn"
)

var (
	ErrPackNotFound     = errors.New("verification: pack not found")
	ErrDetailNotFound   = errors.New("verification: parent detail not found")
	ErrQuantityMismatch = errors.New("verification: scanned quantity does not match pack")
	ErrInvalidPayload   = errors.New("verification: invalid scan payload")
)

// ScanPayload is the wire shape encoded in the QR label. Extra fields in
// the scanned JSON are ignored.
type ScanPayload struct {
	ID  string  `json:"id"`
	Qty float64 `json:"qty"`
}

// Outcome reports one accepted scan back to the scanning client.
type Outcome struct {
	AlreadyVerified bool   `json:"already_verified"`
	PackID          int64  `json:"pack_id"`
	PackCode        string `json:"pack_code"`
	PackQty         int64  `json:"pack_qty"`
	DetailID        int64  `json:"detail_id"`
	BatchNumber     string `json:"batch_number"`
	DetailVerified  bool   `json:"detail_verified"`
	TotalPacks      int    `json:"total_packs"`
	VerifiedPacks   int    `json:"verified_packs"`
	PendingPacks    int    `json:"pending_packs"`
}

// RepositoryPort describes the persistence the engine needs.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	IsDocumentFullyVerified(ctx context.Context, documentID int64) (bool, error)
	Progress(ctx context.Context, documentID int64) (DocumentProgress, error)
}

// MetricsPort counts scans by outcome.
type MetricsPort interface {
	ObserveScan(outcome string)
}

// Engine is the scan verification core: it accepts scanned label
// payloads, latches pack and detail state, and answers the document
// gating question for the QC workflow.
type Engine struct {
	logger  *slog.Logger
	repo    RepositoryPort
	metrics MetricsPort
}

// NewEngine constructs the engine. metrics may be nil.
func NewEngine(logger *slog.Logger, repo RepositoryPort, metrics MetricsPort) *Engine {
	return &Engine{logger: logger, repo: repo, metrics: metrics}
}

// AcceptScan processes one scanned payload. A pack transitions pending
// to verified exactly once; the row lock inside the transaction makes a
// losing concurrent scan observe "already verified" instead of double
// counting toward the detail rollup.
func (e *Engine) AcceptScan(ctx context.Context, rawPayload []byte) (Outcome, error) {
	payload, err := parsePayload(rawPayload)
	if err != nil {
		e.observe("rejected")
		return Outcome{}, err
	}
	scannedQty := distribution.RoundHalfUp(payload.Qty)

	var outcome Outcome
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pack, err := e.lookupPack(ctx, tx, payload.ID)
		if err != nil {
			return err
		}
		detail, err := tx.GetDetail(ctx, pack.DetailID)
		if err != nil {
			return err
		}

		outcome = Outcome{
			PackID:      pack.ID,
			PackCode:    pack.Code,
			PackQty:     pack.Qty,
			DetailID:    detail.ID,
			BatchNumber: detail.BatchNumber,
		}

		if pack.Verified {
			outcome.AlreadyVerified = true
			outcome.DetailVerified = detail.Verified
			counts, err := tx.CountPacks(ctx, detail.ID)
			if err != nil {
				return err
			}
			outcome.fillCounts(counts)
			return nil
		}

		if scannedQty != pack.Qty {
			return fmt.Errorf("%w: scanned %d, pack %s holds %d", ErrQuantityMismatch, scannedQty, pack.Code, pack.Qty)
		}

		if err := tx.MarkPackVerified(ctx, pack.ID); err != nil {
			return err
		}
		counts, err := tx.CountPacks(ctx, detail.ID)
		if err != nil {
			return err
		}
		outcome.fillCounts(counts)
		if counts.Total > 0 && counts.Verified == counts.Total {
			if err := tx.LatchDetailVerified(ctx, detail.ID); err != nil {
				return err
			}
			outcome.DetailVerified = true
		}
		return nil
	})
	if err != nil {
		e.observe(outcomeLabel(err))
		return Outcome{}, err
	}

	if outcome.AlreadyVerified {
		e.observe("already_verified")
	} else {
		e.observe("verified")
	}
	return outcome, nil
}

// lookupPack resolves a scanned id to its pack row under lock. Scanners
// sometimes append decoration past the pack sequence; when the exact
// string misses, the id is truncated to its five-field form and retried
// once.
func (e *Engine) lookupPack(ctx context.Context, tx TxRepository, scannedID string) (ScanPack, error) {
	pack, err := tx.GetPackForUpdate(ctx, scannedID)
	if !errors.Is(err, ErrPackNotFound) {
		return pack, err
	}
	code, parseErr := grn.ParsePackCode(scannedID)
	if parseErr != nil {
		return ScanPack{}, ErrPackNotFound
	}
	canonical := code.String()
	if canonical == scannedID {
		return ScanPack{}, ErrPackNotFound
	}
	e.logger.Debug("retrying scan lookup with truncated id",
		slog.String("scanned", scannedID), slog.String("canonical", canonical))
	return tx.GetPackForUpdate(ctx, canonical)
}

// IsDocumentFullyVerified answers the QC gate: every detail of the
// document is verified. A document without any detail records passes
// vacuously.
func (e *Engine) IsDocumentFullyVerified(ctx context.Context, documentID int64) (bool, error) {
	return e.repo.IsDocumentFullyVerified(ctx, documentID)
}

// Progress returns the scan rollup used by the floor dashboard.
func (e *Engine) Progress(ctx context.Context, documentID int64) (DocumentProgress, error) {
	return e.repo.Progress(ctx, documentID)
}

func (o *Outcome) fillCounts(counts PackCounts) {
	o.TotalPacks = counts.Total
	o.VerifiedPacks = counts.Verified
	o.PendingPacks = counts.Pending()
}

func parsePayload(raw []byte) (ScanPayload, error) {
	var payload ScanPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ScanPayload{}, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	if payload.ID == "" {
		return ScanPayload{}, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}
	return payload, nil
}

func (e *Engine) observe(outcome string) {
	if e.metrics != nil {
		e.metrics.ObserveScan(outcome)
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrQuantityMismatch):
		return "mismatch"
	case errors.Is(err, ErrPackNotFound), errors.Is(err, ErrDetailNotFound):
		return "not_found"
	default:
		return "error"
	}
}
