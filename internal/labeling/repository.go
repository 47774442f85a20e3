package labeling

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort describes the persistence operations labeling uses.
type RepositoryPort interface {
	ListPackContexts(ctx context.Context, detailID int64) ([]PackContext, error)
	GetPackContext(ctx context.Context, packID int64) (PackContext, error)
	SaveLabel(ctx context.Context, packID int64, payload string, image []byte) error
	MarkPrinted(ctx context.Context, packID int64) error
	ListStalePayloads(ctx context.Context, limit int) ([]PackContext, error)
}

// Repository reads pack label context from PostgreSQL and writes label
// artifacts back onto the pack rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}
