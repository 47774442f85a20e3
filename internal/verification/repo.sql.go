package verification

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPackForUpdate(ctx context.Context, code string) (ScanPack, error) {
	var pack ScanPack
	var status string
	err := r.tx.QueryRow(ctx, `SELECT id, detail_id, seq, qty, pack_code, status
FROM grn_packs WHERE pack_code=$1 FOR UPDATE`, code).
		Scan(&pack.ID, &pack.DetailID, &pack.Seq, &pack.Qty, &pack.Code, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScanPack{}, ErrPackNotFound
	}
	if err != nil {
		return ScanPack{}, err
	}
	pack.Verified = status == "VERIFIED"
	return pack, nil
}

func (r *txRepository) GetDetail(ctx context.Context, detailID int64) (ScanDetail, error) {
	var detail ScanDetail
	var status string
	err := r.tx.QueryRow(ctx, `SELECT id, line_id, seq, batch_number, status
FROM grn_details WHERE id=$1`, detailID).
		Scan(&detail.ID, &detail.LineID, &detail.Seq, &detail.BatchNumber, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScanDetail{}, ErrDetailNotFound
	}
	if err != nil {
		return ScanDetail{}, err
	}
	detail.Verified = status == "VERIFIED"
	return detail, nil
}

func (r *txRepository) MarkPackVerified(ctx context.Context, packID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE grn_packs SET status='VERIFIED', verified_at=NOW() WHERE id=$1`, packID)
	return err
}

func (r *txRepository) CountPacks(ctx context.Context, detailID int64) (PackCounts, error) {
	var counts PackCounts
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE status='VERIFIED')
FROM grn_packs WHERE detail_id=$1`, detailID).
		Scan(&counts.Total, &counts.Verified)
	return counts, err
}

func (r *txRepository) LatchDetailVerified(ctx context.Context, detailID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE grn_details SET status='VERIFIED' WHERE id=$1`, detailID)
	return err
}

// IsDocumentFullyVerified aggregates on demand instead of keeping an
// incremental counter: the read is cheap at floor scale and can never
// drift from the pack rows.
func (r *Repository) IsDocumentFullyVerified(ctx context.Context, documentID int64) (bool, error) {
	var unverified int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM grn_details d
JOIN grn_lines l ON l.id = d.line_id
WHERE l.document_id=$1 AND d.status <> 'VERIFIED'`, documentID).Scan(&unverified)
	if err != nil {
		return false, err
	}
	return unverified == 0, nil
}

// Progress returns the scan rollup for one document.
func (r *Repository) Progress(ctx context.Context, documentID int64) (DocumentProgress, error) {
	progress := DocumentProgress{DocumentID: documentID, AsOf: time.Now().UTC()}
	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(DISTINCT d.id),
  COUNT(DISTINCT d.id) FILTER (WHERE d.status = 'VERIFIED'),
  COUNT(p.id),
  COUNT(p.id) FILTER (WHERE p.status = 'VERIFIED')
FROM grn_lines l
LEFT JOIN grn_details d ON d.line_id = l.id
LEFT JOIN grn_packs p ON p.detail_id = d.id
WHERE l.document_id=$1`, documentID).
		Scan(&progress.TotalDetails, &progress.VerifiedDetails, &progress.TotalPacks, &progress.VerifiedPacks)
	if err != nil {
		return DocumentProgress{}, err
	}
	progress.FullyVerified = progress.TotalDetails == progress.VerifiedDetails
	return progress, nil
}
