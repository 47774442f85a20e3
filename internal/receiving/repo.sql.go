package receiving

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/packline-io/packline/internal/shared"
)

type txRepository struct {
	tx pgx.Tx
}

// GetDocument loads a document header.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	return scanDocument(r.pool.QueryRow(ctx, `SELECT id, number, doc_type, supplier_code, warehouse_code, status, received_at, posted_doc_num, note, created_by, created_at
FROM grn_documents WHERE id=$1`, id))
}

// GetDocumentWithLines loads a document and its line items.
func (r *Repository) GetDocumentWithLines(ctx context.Context, id int64) (Document, []LineItem, error) {
	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return Document{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, item_code, item_name, management, po_number, po_entry, po_line, ordered_qty, received_qty, bin_location
FROM grn_lines WHERE document_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Document{}, nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		var line LineItem
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.ItemCode, &line.ItemName, &line.Management, &line.PONumber, &line.POEntry, &line.POLine, &line.OrderedQty, &line.ReceivedQty, &line.BinLocation); err != nil {
			return Document{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Document{}, nil, err
	}
	return doc, lines, nil
}

// ListDocuments returns a page of documents plus the total count.
func (r *Repository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, shared.Pagination, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM grn_documents
WHERE ($1='' OR status=$1) AND ($2='' OR doc_type=$2)`, string(filter.Status), string(filter.Type)).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, doc_type, supplier_code, warehouse_code, status, received_at, posted_doc_num, note, created_by, created_at
FROM grn_documents
WHERE ($1='' OR status=$1) AND ($2='' OR doc_type=$2)
ORDER BY id DESC LIMIT $3 OFFSET $4`, string(filter.Status), string(filter.Type), perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(page, perPage, total), nil
}

// GetLine loads one line item.
func (r *Repository) GetLine(ctx context.Context, id int64) (LineItem, error) {
	var line LineItem
	err := r.pool.QueryRow(ctx, `SELECT id, document_id, item_code, item_name, management, po_number, po_entry, po_line, ordered_qty, received_qty, bin_location
FROM grn_lines WHERE id=$1`, id).
		Scan(&line.ID, &line.DocumentID, &line.ItemCode, &line.ItemName, &line.Management, &line.PONumber, &line.POEntry, &line.POLine, &line.OrderedQty, &line.ReceivedQty, &line.BinLocation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LineItem{}, ErrNotFound
		}
		return LineItem{}, err
	}
	return line, nil
}

// GetDetail loads one detail record.
func (r *Repository) GetDetail(ctx context.Context, id int64) (Detail, error) {
	var detail Detail
	var expiry, mfg *time.Time
	err := r.pool.QueryRow(ctx, `SELECT id, line_id, seq, batch_number, total_qty, pack_count, expiry_date, mfg_date, status, created_at
FROM grn_details WHERE id=$1`, id).
		Scan(&detail.ID, &detail.LineID, &detail.Seq, &detail.BatchNumber, &detail.TotalQty, &detail.PackCount, &expiry, &mfg, &detail.Status, &detail.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, ErrNotFound
		}
		return Detail{}, err
	}
	if expiry != nil {
		detail.ExpiryDate = *expiry
	}
	if mfg != nil {
		detail.MfgDate = *mfg
	}
	return detail, nil
}

// ListDetailsByLine returns the detail records of one line item.
func (r *Repository) ListDetailsByLine(ctx context.Context, lineID int64) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, line_id, seq, batch_number, total_qty, pack_count, expiry_date, mfg_date, status, created_at
FROM grn_details WHERE line_id=$1 ORDER BY seq ASC`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []Detail
	for rows.Next() {
		var detail Detail
		var expiry, mfg *time.Time
		if err := rows.Scan(&detail.ID, &detail.LineID, &detail.Seq, &detail.BatchNumber, &detail.TotalQty, &detail.PackCount, &expiry, &mfg, &detail.Status, &detail.CreatedAt); err != nil {
			return nil, err
		}
		if expiry != nil {
			detail.ExpiryDate = *expiry
		}
		if mfg != nil {
			detail.MfgDate = *mfg
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return details, nil
}

// ListPacksByDetail returns the packs of one detail in sequence order.
func (r *Repository) ListPacksByDetail(ctx context.Context, detailID int64) ([]Pack, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, detail_id, seq, qty, pack_code, payload, image, status, printed, printed_at, verified_at
FROM grn_packs WHERE detail_id=$1 ORDER BY seq ASC`, detailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var packs []Pack
	for rows.Next() {
		var pack Pack
		var printedAt, verifiedAt *time.Time
		if err := rows.Scan(&pack.ID, &pack.DetailID, &pack.Seq, &pack.Qty, &pack.Code, &pack.Payload, &pack.Image, &pack.Status, &pack.Printed, &printedAt, &verifiedAt); err != nil {
			return nil, err
		}
		if printedAt != nil {
			pack.PrintedAt = *printedAt
		}
		if verifiedAt != nil {
			pack.VerifiedAt = *verifiedAt
		}
		packs = append(packs, pack)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packs, nil
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO grn_documents (number, doc_type, supplier_code, warehouse_code, status, received_at, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		doc.Number, string(doc.Type), doc.SupplierCode, doc.WarehouseCode, string(doc.Status), doc.ReceivedAt, doc.Note, doc.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) SetDocumentNumber(ctx context.Context, id int64, number string) error {
	_, err := r.tx.Exec(ctx, `UPDATE grn_documents SET number=$2 WHERE id=$1`, id, number)
	return err
}

func (r *txRepository) UpdateDocumentStatus(ctx context.Context, id int64, status DocumentStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE grn_documents SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetPostedResult(ctx context.Context, id int64, status DocumentStatus, postedDocNum string) error {
	_, err := r.tx.Exec(ctx, `UPDATE grn_documents SET status=$2, posted_doc_num=$3 WHERE id=$1`, id, string(status), postedDocNum)
	return err
}

func (r *txRepository) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO grn_lines (document_id, item_code, item_name, management, po_number, po_entry, po_line, ordered_qty, received_qty, bin_location)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		line.DocumentID, line.ItemCode, line.ItemName, string(line.Management), line.PONumber, line.POEntry, line.POLine, line.OrderedQty, line.ReceivedQty, line.BinLocation).Scan(&id)
	return id, err
}

func (r *txRepository) AddLineReceivedQty(ctx context.Context, lineID int64, qty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE grn_lines SET received_qty = received_qty + $2 WHERE id=$1`, lineID, qty)
	return err
}

func (r *txRepository) InsertDetail(ctx context.Context, detail Detail) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO grn_details (line_id, seq, batch_number, total_qty, pack_count, expiry_date, mfg_date, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		detail.LineID, detail.Seq, detail.BatchNumber, detail.TotalQty, detail.PackCount, nullTime(detail.ExpiryDate), nullTime(detail.MfgDate), string(detail.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPack(ctx context.Context, pack Pack) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO grn_packs (detail_id, seq, qty, pack_code, payload, image, status, printed)
VALUES ($1,$2,$3,$4,$5,$6,$7,false) RETURNING id`,
		pack.DetailID, pack.Seq, pack.Qty, pack.Code, pack.Payload, pack.Image, string(pack.Status)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicatePack
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) DeleteDetailWithPacks(ctx context.Context, detailID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM grn_packs WHERE detail_id=$1`, detailID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM grn_details WHERE id=$1`, detailID)
	return err
}

func (r *txRepository) NextDetailSeq(ctx context.Context, lineID int64) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM grn_details WHERE line_id=$1`, lineID).Scan(&seq)
	return seq, err
}

func (r *txRepository) HasVerifiedPacks(ctx context.Context, detailID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM grn_packs WHERE detail_id=$1 AND status='VERIFIED')`, detailID).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Number, &doc.Type, &doc.SupplierCode, &doc.WarehouseCode, &doc.Status, &doc.ReceivedAt, &doc.PostedDocNum, &doc.Note, &doc.CreatedBy, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
