package receiving

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packline-io/packline/internal/platform/db"
)

// Repository persists receiving documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Status  DocumentStatus
	Type    DocumentType
	Page    int
	PerPage int
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	SetDocumentNumber(ctx context.Context, id int64, number string) error
	UpdateDocumentStatus(ctx context.Context, id int64, status DocumentStatus) error
	SetPostedResult(ctx context.Context, id int64, status DocumentStatus, postedDocNum string) error
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	AddLineReceivedQty(ctx context.Context, lineID int64, qty float64) error
	InsertDetail(ctx context.Context, detail Detail) (int64, error)
	InsertPack(ctx context.Context, pack Pack) (int64, error)
	DeleteDetailWithPacks(ctx context.Context, detailID int64) error
	NextDetailSeq(ctx context.Context, lineID int64) (int, error)
	HasVerifiedPacks(ctx context.Context, detailID int64) (bool, error)
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}
