package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/packline-io/packline/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypePostDocument posts a QC-approved GRN document to the ERP.
	TaskTypePostDocument = "erp:post_document"
	// TaskTypeLabelSweep regenerates labels with incomplete payloads.
	TaskTypeLabelSweep = "labels:integrity_sweep"
)

// PostDocumentPayload identifies the document to post and who asked.
type PostDocumentPayload struct {
	DocumentID int64 `json:"document_id"`
	ActorID    int64 `json:"actor_id"`
}

// LabelSweepPayload bounds one sweep run.
type LabelSweepPayload struct {
	Limit int `json:"limit"`
}

// NewPostDocumentTask constructs an Asynq task.
func NewPostDocumentTask(payload PostDocumentPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePostDocument, data), nil
}

// NewLabelSweepTask constructs an Asynq task.
func NewLabelSweepTask(payload LabelSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLabelSweep, data), nil
}

// DocumentPoster is the receiving-side operation the worker invokes.
type DocumentPoster interface {
	PostDocumentByID(ctx context.Context, documentID, actorID int64) error
}

// LabelSweeper regenerates incomplete labels.
type LabelSweeper interface {
	SweepIncomplete(ctx context.Context, limit int) (int, error)
}

// HandlePostDocumentTask builds the erp:post_document handler. Posting
// errors are returned so asynq retries with backoff; the document sits
// in FAILED between attempts.
func HandlePostDocumentTask(logger *slog.Logger, poster DocumentPoster, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PostDocumentPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskTypePostDocument)
		if err := poster.PostDocumentByID(ctx, payload.DocumentID, payload.ActorID); err != nil {
			logger.Warn("document post failed, will retry",
				slog.Int64("document_id", payload.DocumentID), slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("document posted", slog.Int64("document_id", payload.DocumentID))
		return tracker.End(nil)
	}
}

const defaultSweepLimit = 500

// HandleLabelSweepTask builds the labels:integrity_sweep handler.
func HandleLabelSweepTask(logger *slog.Logger, sweeper LabelSweeper, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LabelSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultSweepLimit
		}
		tracker := metrics.Track(TaskTypeLabelSweep)
		repaired, err := sweeper.SweepIncomplete(ctx, limit)
		if err != nil {
			return tracker.End(err)
		}
		if repaired > 0 {
			logger.Info("label sweep repaired labels", slog.Int("repaired", repaired))
		}
		return tracker.End(nil)
	}
}
