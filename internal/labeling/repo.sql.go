package labeling

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrPackNotFound = errors.New("labeling: pack not found")

const packContextQuery = `SELECT p.id, p.detail_id, p.pack_code, p.seq, p.qty, p.payload, p.image, p.printed, p.printed_at,
       d.batch_number, d.pack_count, d.expiry_date,
       l.po_number, l.item_code, l.bin_location,
       doc.received_at
FROM grn_packs p
JOIN grn_details d ON d.id = p.detail_id
JOIN grn_lines l ON l.id = d.line_id
JOIN grn_documents doc ON doc.id = l.document_id`

func (r *Repository) ListPackContexts(ctx context.Context, detailID int64) ([]PackContext, error) {
	rows, err := r.pool.Query(ctx, packContextQuery+` WHERE p.detail_id=$1 ORDER BY p.seq ASC`, detailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContexts(rows)
}

func (r *Repository) GetPackContext(ctx context.Context, packID int64) (PackContext, error) {
	row, err := scanContext(r.pool.QueryRow(ctx, packContextQuery+` WHERE p.id=$1`, packID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PackContext{}, ErrPackNotFound
	}
	return row, err
}

// SaveLabel writes the payload and image in one statement so a pack
// never carries a payload from one generation and an image from another.
func (r *Repository) SaveLabel(ctx context.Context, packID int64, payload string, image []byte) error {
	tag, err := r.pool.Exec(ctx, `UPDATE grn_packs SET payload=$2, image=$3 WHERE id=$1`, packID, payload, image)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPackNotFound
	}
	return nil
}

func (r *Repository) MarkPrinted(ctx context.Context, packID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE grn_packs SET printed=TRUE, printed_at=NOW() WHERE id=$1`, packID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPackNotFound
	}
	return nil
}

// ListStalePayloads returns candidates for the integrity sweep: packs
// whose payload is empty or whose image never got written. Structural
// payload checks happen in Go; SQL only narrows the candidate set.
func (r *Repository) ListStalePayloads(ctx context.Context, limit int) ([]PackContext, error) {
	rows, err := r.pool.Query(ctx, packContextQuery+`
 WHERE CASE
   WHEN p.payload IS NULL OR p.payload = '' OR p.image IS NULL THEN TRUE
   WHEN NOT pg_input_is_valid(p.payload, 'jsonb') THEN TRUE
   ELSE NOT (p.payload::jsonb ?& $2::text[])
 END
 ORDER BY p.id ASC LIMIT $1`, limit, requiredKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContexts(rows)
}

func collectContexts(rows pgx.Rows) ([]PackContext, error) {
	var contexts []PackContext
	for rows.Next() {
		row, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, row)
	}
	return contexts, rows.Err()
}

func scanContext(row pgx.Row) (PackContext, error) {
	var (
		c         PackContext
		payload   *string
		printedAt *time.Time
		expiry    *time.Time
	)
	err := row.Scan(&c.PackID, &c.DetailID, &c.Code, &c.Seq, &c.Qty, &payload, &c.Image, &c.Printed, &printedAt,
		&c.BatchNumber, &c.PackCount, &expiry,
		&c.PONumber, &c.ItemCode, &c.BinLocation,
		&c.GRNDate)
	if err != nil {
		return PackContext{}, err
	}
	if payload != nil {
		c.Payload = *payload
	}
	c.HasImage = len(c.Image) > 0
	if expiry != nil {
		c.ExpiryDate = *expiry
	}
	c.PrintedAt = printedAt
	return c, nil
}
