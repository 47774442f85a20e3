package labeling

import (
	"context"
	"log/slog"
)

// MetricsPort records label generation counts.
type MetricsPort interface {
	ObserveLabelsGenerated(count int)
}

// Service builds, persists and regenerates pack labels.
type Service struct {
	logger  *slog.Logger
	repo    RepositoryPort
	encoder Encoder
	metrics MetricsPort
}

// NewService constructs the labeling service. metrics may be nil.
func NewService(logger *slog.Logger, repo RepositoryPort, encoder Encoder, metrics MetricsPort) *Service {
	return &Service{logger: logger, repo: repo, encoder: encoder, metrics: metrics}
}

// GenerateLabels builds labels for every pack of a detail. The call is
// idempotent: packs that already carry a complete payload and an image
// are left untouched, so re-running after a partial failure only fills
// the gaps. Encoder failures degrade the affected pack to payload-only;
// siblings continue.
func (s *Service) GenerateLabels(ctx context.Context, detailID int64) error {
	contexts, err := s.repo.ListPackContexts(ctx, detailID)
	if err != nil {
		return err
	}
	generated := 0
	for _, row := range contexts {
		if row.HasImage && PayloadComplete(row.Payload) {
			continue
		}
		if err := s.renderPack(ctx, row); err != nil {
			return err
		}
		generated++
	}
	if generated > 0 && s.metrics != nil {
		s.metrics.ObserveLabelsGenerated(generated)
	}
	return nil
}

// RegeneratePack rebuilds a single pack's label in place regardless of
// its current payload. Operators use this when a printed label is
// damaged or predates a label schema change.
func (s *Service) RegeneratePack(ctx context.Context, packID int64) (PackContext, error) {
	row, err := s.repo.GetPackContext(ctx, packID)
	if err != nil {
		return PackContext{}, err
	}
	if err := s.renderPack(ctx, row); err != nil {
		return PackContext{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveLabelsGenerated(1)
	}
	return s.repo.GetPackContext(ctx, packID)
}

// MarkPrinted flags a pack label as sent to the printer.
func (s *Service) MarkPrinted(ctx context.Context, packID int64) error {
	return s.repo.MarkPrinted(ctx, packID)
}

// Labels returns the label rows for a detail in pack order.
func (s *Service) Labels(ctx context.Context, detailID int64) ([]PackContext, error) {
	return s.repo.ListPackContexts(ctx, detailID)
}

// SweepIncomplete regenerates labels whose stored payloads are absent or
// missing required fields. Invoked from the periodic integrity job.
func (s *Service) SweepIncomplete(ctx context.Context, limit int) (int, error) {
	contexts, err := s.repo.ListStalePayloads(ctx, limit)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, row := range contexts {
		if row.HasImage && PayloadComplete(row.Payload) {
			continue
		}
		if err := s.renderPack(ctx, row); err != nil {
			return repaired, err
		}
		repaired++
	}
	if repaired > 0 && s.metrics != nil {
		s.metrics.ObserveLabelsGenerated(repaired)
	}
	return repaired, nil
}

func (s *Service) renderPack(ctx context.Context, row PackContext) error {
	canonical, err := BuildPayload(row).Canonical()
	if err != nil {
		return err
	}
	image, err := s.encoder.Encode(canonical)
	if err != nil {
		// The numeric pack code on the detail screen keeps the pack
		// usable; the sweep retries the image later.
		s.logger.Warn("label encode failed, storing payload without image",
			slog.String("pack_code", row.Code), slog.Any("error", err))
		image = nil
	}
	return s.repo.SaveLabel(ctx, row.PackID, canonical, image)
}
