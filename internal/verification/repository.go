package verification

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packline-io/packline/internal/platform/db"
)

// ScanPack is the slice of a pack row the engine needs while holding
// the row lock.
type ScanPack struct {
	ID       int64
	DetailID int64
	Seq      int
	Qty      int64
	Code     string
	Verified bool
}

// ScanDetail is the parent detail as seen during a scan.
type ScanDetail struct {
	ID          int64
	LineID      int64
	Seq         int
	BatchNumber string
	Verified    bool
}

// PackCounts aggregates sibling state under one detail.
type PackCounts struct {
	Total    int
	Verified int
}

// Pending returns the packs still awaiting a scan.
func (c PackCounts) Pending() int {
	return c.Total - c.Verified
}

// DocumentProgress is the verification rollup for one document.
type DocumentProgress struct {
	DocumentID      int64     `json:"document_id"`
	TotalDetails    int       `json:"total_details"`
	VerifiedDetails int       `json:"verified_details"`
	TotalPacks      int       `json:"total_packs"`
	VerifiedPacks   int       `json:"verified_packs"`
	FullyVerified   bool      `json:"fully_verified"`
	AsOf            time.Time `json:"as_of"`
}

// TxRepository exposes the row-locked operations of one scan.
type TxRepository interface {
	GetPackForUpdate(ctx context.Context, code string) (ScanPack, error)
	GetDetail(ctx context.Context, detailID int64) (ScanDetail, error)
	MarkPackVerified(ctx context.Context, packID int64) error
	CountPacks(ctx context.Context, detailID int64) (PackCounts, error)
	LatchDetailVerified(ctx context.Context, detailID int64) error
}

// Repository persists scan verification state in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs one scan inside a repeatable-read transaction. The pack
// row lock taken by GetPackForUpdate serializes concurrent scans of the
// same label.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}
