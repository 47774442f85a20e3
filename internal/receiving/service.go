package receiving

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/packline-io/packline/internal/distribution"
	"github.com/packline-io/packline/internal/erp"
	"github.com/packline-io/packline/internal/grn"
	"github.com/packline-io/packline/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	GetDocumentWithLines(ctx context.Context, id int64) (Document, []LineItem, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, shared.Pagination, error)
	GetLine(ctx context.Context, id int64) (LineItem, error)
	GetDetail(ctx context.Context, id int64) (Detail, error)
	ListDetailsByLine(ctx context.Context, lineID int64) ([]Detail, error)
	ListPacksByDetail(ctx context.Context, detailID int64) ([]Pack, error)
}

// ERPPort exposes the ERP calls receiving depends on.
type ERPPort interface {
	ValidateItem(ctx context.Context, itemCode string) (erp.ItemInfo, error)
	PostGoodsReceipt(ctx context.Context, doc erp.GoodsReceipt) (erp.PostResult, error)
}

// VerificationPort gates QC approval on scan completion.
type VerificationPort interface {
	IsDocumentFullyVerified(ctx context.Context, documentID int64) (bool, error)
}

// LabelPort triggers label building after packs exist.
type LabelPort interface {
	GenerateLabels(ctx context.Context, detailID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the receiving workflow: documents, line items,
// detail records and their packs.
type Service struct {
	repo         RepositoryPort
	erp          ERPPort
	verification VerificationPort
	labels       LabelPort
	approvals    *shared.ApprovalRecorder
	audit        AuditPort
	idempotency  *shared.IdempotencyStore
}

// NewService constructs the receiving service.
func NewService(repo RepositoryPort, erpPort ERPPort, verification VerificationPort, labels LabelPort, approvals *shared.ApprovalRecorder, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, erp: erpPort, verification: verification, labels: labels, approvals: approvals, audit: audit, idempotency: idem}
}

// CreateDocumentInput describes a new GRPO document or multi-GRN batch.
type CreateDocumentInput struct {
	Type          DocumentType
	SupplierCode  string
	WarehouseCode string
	ReceivedAt    time.Time
	Note          string
	ActorID       int64
}

// AddLineInput describes one received item line.
type AddLineInput struct {
	DocumentID  int64
	ItemCode    string
	PONumber    string
	POEntry     int64
	POLine      int
	OrderedQty  float64
	BinLocation string
	ActorID     int64
}

// DetailInput describes a batch/serial group and its requested packs.
type DetailInput struct {
	LineID      int64
	BatchNumber string
	TotalQty    float64
	PackCount   int
	ExpiryDate  time.Time
	MfgDate     time.Time
	ActorID     int64
}

// CreateDocument persists a document header and assigns its number from
// the stable database id, so re-processing never collides.
func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (Document, error) {
	if input.Type != DocumentTypeGRPO && input.Type != DocumentTypeMultiGRN {
		return Document{}, fmt.Errorf("%w: unknown document type %q", ErrValidation, input.Type)
	}
	if input.SupplierCode == "" || input.WarehouseCode == "" {
		return Document{}, fmt.Errorf("%w: supplier and warehouse required", ErrValidation)
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	doc := Document{
		Type:          input.Type,
		SupplierCode:  input.SupplierCode,
		WarehouseCode: input.WarehouseCode,
		Status:        StatusDraft,
		ReceivedAt:    receivedAt,
		Note:          input.Note,
		CreatedBy:     input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		prefix := grn.PrefixGRPO
		if doc.Type == DocumentTypeMultiGRN {
			prefix = grn.PrefixMultiGRN
		}
		doc.ID = id
		doc.Number = grn.NewDocumentNumber(prefix, receivedAt, id).String()
		return tx.SetDocumentNumber(ctx, id, doc.Number)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, input.ActorID, "GRN_DOC_CREATE", doc.ID, map[string]any{"number": doc.Number, "type": doc.Type})
	return doc, nil
}

// AddLineItem validates the item code against the ERP once and stores
// the resulting management type on the line. Later label generation and
// scan verification read the stored type instead of re-deriving it.
func (s *Service) AddLineItem(ctx context.Context, input AddLineInput) (LineItem, error) {
	if input.ItemCode == "" {
		return LineItem{}, fmt.Errorf("%w: item code required", ErrValidation)
	}
	doc, err := s.repo.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return LineItem{}, err
	}
	if !doc.Status.CanEdit() {
		return LineItem{}, ErrInvalidState
	}
	if doc.Type == DocumentTypeGRPO && input.PONumber == "" {
		return LineItem{}, fmt.Errorf("%w: GRPO line requires a purchase order reference", ErrValidation)
	}
	info, err := s.erp.ValidateItem(ctx, input.ItemCode)
	if err != nil {
		return LineItem{}, err
	}
	line := LineItem{
		DocumentID:  input.DocumentID,
		ItemCode:    info.ItemCode,
		ItemName:    info.ItemName,
		Management:  info.Management,
		PONumber:    input.PONumber,
		POEntry:     input.POEntry,
		POLine:      input.POLine,
		OrderedQty:  input.OrderedQty,
		BinLocation: input.BinLocation,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLine(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		return nil
	})
	if err != nil {
		return LineItem{}, err
	}
	s.recordAudit(ctx, input.ActorID, "GRN_LINE_ADD", line.ID, map[string]any{"item": line.ItemCode, "management": line.Management})
	return line, nil
}

// AddDetail creates a detail record and its packs in one transaction.
// The received total is split across the declared pack count; a pack
// count of zero or less skips pack creation entirely so legacy
// single-label flows keep working.
func (s *Service) AddDetail(ctx context.Context, input DetailInput) (Detail, []Pack, error) {
	line, err := s.repo.GetLine(ctx, input.LineID)
	if err != nil {
		return Detail{}, nil, err
	}
	doc, err := s.repo.GetDocument(ctx, line.DocumentID)
	if err != nil {
		return Detail{}, nil, err
	}
	if !doc.Status.CanEdit() {
		return Detail{}, nil, ErrInvalidState
	}
	if input.TotalQty < 0 {
		return Detail{}, nil, fmt.Errorf("%w: total quantity must not be negative", ErrValidation)
	}

	quantities := distribution.Distribute(input.TotalQty, input.PackCount)
	detail := Detail{
		LineID:      line.ID,
		BatchNumber: input.BatchNumber,
		TotalQty:    input.TotalQty,
		PackCount:   len(quantities),
		ExpiryDate:  input.ExpiryDate,
		MfgDate:     input.MfgDate,
		Status:      VerifyPending,
	}
	var packs []Pack
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextDetailSeq(ctx, line.ID)
		if err != nil {
			return err
		}
		detail.Seq = seq
		if detail.BatchNumber == "" {
			detail.BatchNumber = defaultBatchNumber(line, seq)
		}
		detailID, err := tx.InsertDetail(ctx, detail)
		if err != nil {
			return err
		}
		detail.ID = detailID
		packs, err = insertPacks(ctx, tx, doc.ID, line.ID, detail, quantities)
		if err != nil {
			return err
		}
		return tx.AddLineReceivedQty(ctx, line.ID, float64(distribution.Sum(quantities)))
	})
	if err != nil {
		return Detail{}, nil, err
	}
	s.generateLabels(ctx, detail.ID)
	s.recordAudit(ctx, input.ActorID, "GRN_DETAIL_ADD", detail.ID, map[string]any{"batch": detail.BatchNumber, "packs": detail.PackCount})
	return detail, packs, nil
}

// EditDetail deletes and recreates the detail's packs with fresh
// quantities. Once any pack has been scanned the detail is locked; the
// source system silently discarded verification state here, which is
// unsafe on the floor, so the edit is rejected instead.
func (s *Service) EditDetail(ctx context.Context, detailID int64, input DetailInput) (Detail, []Pack, error) {
	existing, err := s.repo.GetDetail(ctx, detailID)
	if err != nil {
		return Detail{}, nil, err
	}
	line, err := s.repo.GetLine(ctx, existing.LineID)
	if err != nil {
		return Detail{}, nil, err
	}
	doc, err := s.repo.GetDocument(ctx, line.DocumentID)
	if err != nil {
		return Detail{}, nil, err
	}
	if !doc.Status.CanEdit() {
		return Detail{}, nil, ErrInvalidState
	}
	if input.TotalQty < 0 {
		return Detail{}, nil, fmt.Errorf("%w: total quantity must not be negative", ErrValidation)
	}

	quantities := distribution.Distribute(input.TotalQty, input.PackCount)
	detail := Detail{
		LineID:      line.ID,
		Seq:         existing.Seq,
		BatchNumber: input.BatchNumber,
		TotalQty:    input.TotalQty,
		PackCount:   len(quantities),
		ExpiryDate:  input.ExpiryDate,
		MfgDate:     input.MfgDate,
		Status:      VerifyPending,
	}
	if detail.BatchNumber == "" {
		detail.BatchNumber = existing.BatchNumber
	}
	var packs []Pack
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.HasVerifiedPacks(ctx, detailID)
		if err != nil {
			return err
		}
		if locked {
			return ErrDetailLocked
		}
		if err := tx.DeleteDetailWithPacks(ctx, detailID); err != nil {
			return err
		}
		newID, err := tx.InsertDetail(ctx, detail)
		if err != nil {
			return err
		}
		detail.ID = newID
		packs, err = insertPacks(ctx, tx, doc.ID, line.ID, detail, quantities)
		if err != nil {
			return err
		}
		// The line was credited with the rounded pack total, so the
		// reversal must use the same basis or a fractional original
		// total leaves a residue.
		previous := distribution.Sum(distribution.Distribute(existing.TotalQty, existing.PackCount))
		return tx.AddLineReceivedQty(ctx, line.ID, float64(distribution.Sum(quantities)-previous))
	})
	if err != nil {
		return Detail{}, nil, err
	}
	s.generateLabels(ctx, detail.ID)
	s.recordAudit(ctx, input.ActorID, "GRN_DETAIL_EDIT", detail.ID, map[string]any{"replaces": detailID, "packs": detail.PackCount})
	return detail, packs, nil
}

// Submit moves a draft document into the QC queue.
func (s *Service) Submit(ctx context.Context, documentID, actorID int64) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.CanSubmit() {
		return ErrInvalidState
	}
	refID := documentRef(documentID)
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateDocumentStatus(ctx, documentID, StatusSubmitted); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.EnsureSubmit(ctx, "GRN", refID, actorID, fmt.Sprintf("Document %s submitted", doc.Number))
		}
		return nil
	})
}

// QCApprove releases a submitted document for ERP posting. The gate is
// hard: every detail record under every line must have verified status
// before approval goes through. A document with no detail records at
// all is vacuously verified.
func (s *Service) QCApprove(ctx context.Context, documentID, actorID int64) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.CanQC() {
		return ErrInvalidState
	}
	verified, err := s.verification.IsDocumentFullyVerified(ctx, documentID)
	if err != nil {
		return err
	}
	if !verified {
		return ErrNotVerified
	}
	refID := documentRef(documentID)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateDocumentStatus(ctx, documentID, StatusQCApproved); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "GRN", RefID: refID, ActorID: actorID, Action: shared.ApprovalApprove, Note: fmt.Sprintf("Document %s QC approved", doc.Number)})
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRN_QC_APPROVE", documentID, map[string]any{"number": doc.Number})
	return nil
}

// QCReject sends a submitted document back with a reason.
func (s *Service) QCReject(ctx context.Context, documentID, actorID int64, reason string) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.CanQC() {
		return ErrInvalidState
	}
	refID := documentRef(documentID)
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateDocumentStatus(ctx, documentID, StatusQCRejected); err != nil {
			return err
		}
		if s.approvals != nil {
			_ = s.approvals.Record(ctx, shared.ApprovalLog{Module: "GRN", RefID: refID, ActorID: actorID, Action: shared.ApprovalReject, Note: reason})
		}
		return nil
	})
}

// PostDocument sends a QC-approved document to the ERP as a consolidated
// goods receipt. The idempotency key stops a double post when the
// request is retried while a previous attempt is still in flight.
func (s *Service) PostDocument(ctx context.Context, documentID, actorID int64) (Document, error) {
	doc, lines, err := s.repo.GetDocumentWithLines(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if !doc.Status.CanPost() {
		return Document{}, ErrInvalidState
	}

	key := fmt.Sprintf("grn-post:%d", documentID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "receiving"); err != nil {
			return Document{}, err
		}
		insertedKey = true
	}

	receipt, err := s.buildGoodsReceipt(ctx, doc, lines)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Document{}, err
	}

	result, postErr := s.erp.PostGoodsReceipt(ctx, receipt)
	if postErr != nil {
		_ = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.SetPostedResult(ctx, documentID, StatusFailed, "")
		})
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		doc.Status = StatusFailed
		s.recordAudit(ctx, actorID, "GRN_POST_FAIL", documentID, map[string]any{"error": postErr.Error()})
		return doc, postErr
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPostedResult(ctx, documentID, StatusPosted, result.DocNum)
	})
	if err != nil {
		return Document{}, err
	}
	doc.Status = StatusPosted
	doc.PostedDocNum = result.DocNum
	s.recordAudit(ctx, actorID, "GRN_POST", documentID, map[string]any{"erp_doc": result.DocNum})
	return doc, nil
}

// PostDocumentByID adapts PostDocument for the background worker, which
// only needs the error to drive its retry policy.
func (s *Service) PostDocumentByID(ctx context.Context, documentID, actorID int64) error {
	_, err := s.PostDocument(ctx, documentID, actorID)
	return err
}

// GetDocument returns the document with its line items.
func (s *Service) GetDocument(ctx context.Context, documentID int64) (Document, []LineItem, error) {
	return s.repo.GetDocumentWithLines(ctx, documentID)
}

// ListDocuments returns a filtered page of documents.
func (s *Service) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, shared.Pagination, error) {
	return s.repo.ListDocuments(ctx, filter)
}

// ListDetails returns the detail records of a line item.
func (s *Service) ListDetails(ctx context.Context, lineID int64) ([]Detail, error) {
	return s.repo.ListDetailsByLine(ctx, lineID)
}

// buildGoodsReceipt flattens document lines and their batch details into
// the ERP posting shape, grouping by purchase order reference.
func (s *Service) buildGoodsReceipt(ctx context.Context, doc Document, lines []LineItem) (erp.GoodsReceipt, error) {
	receipt := erp.GoodsReceipt{
		CardCode: doc.SupplierCode,
		DocDate:  doc.ReceivedAt.Format("2006-01-02"),
		Comments: fmt.Sprintf("%s via Packline (%s)", doc.Number, doc.Type),
	}
	for _, line := range lines {
		details, err := s.repo.ListDetailsByLine(ctx, line.ID)
		if err != nil {
			return erp.GoodsReceipt{}, err
		}
		posted := erp.GoodsReceiptLine{
			ItemCode:      line.ItemCode,
			Quantity:      line.ReceivedQty,
			WarehouseCode: doc.WarehouseCode,
			BaseEntry:     line.POEntry,
			BaseLine:      line.POLine,
		}
		for _, detail := range details {
			switch line.Management {
			case erp.BatchManaged:
				posted.BatchNumbers = append(posted.BatchNumbers, detail.BatchNumber)
			case erp.SerialManaged:
				posted.SerialNumbers = append(posted.SerialNumbers, detail.BatchNumber)
			}
		}
		receipt.Lines = append(receipt.Lines, posted)
	}
	return receipt, nil
}

// generateLabels is best-effort: packs without payloads are picked up by
// the label integrity sweep, so a failure here never rolls back the
// detail creation.
func (s *Service) generateLabels(ctx context.Context, detailID int64) {
	if s.labels == nil {
		return
	}
	_ = s.labels.GenerateLabels(ctx, detailID)
}

func insertPacks(ctx context.Context, tx TxRepository, documentID, lineID int64, detail Detail, quantities []int64) ([]Pack, error) {
	packs := make([]Pack, 0, len(quantities))
	for i, qty := range quantities {
		pack := Pack{
			DetailID: detail.ID,
			Seq:      i + 1,
			Qty:      qty,
			Code:     grn.NewPackCode(documentID, lineID, detail.Seq, i+1).String(),
			Status:   VerifyPending,
		}
		id, err := tx.InsertPack(ctx, pack)
		if err != nil {
			return nil, err
		}
		pack.ID = id
		packs = append(packs, pack)
	}
	return packs, nil
}

func defaultBatchNumber(line LineItem, seq int) string {
	switch line.Management {
	case erp.SerialManaged:
		return fmt.Sprintf("SER-%d-%d", line.ID, seq)
	case erp.BatchManaged:
		return fmt.Sprintf("BATCH-%d-%d", line.ID, seq)
	default:
		return "NOBATCH"
	}
}

func documentRef(documentID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("GRN:%d", documentID)))
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Device:   shared.DeviceFromContext(ctx),
		Action:   action,
		Entity:   "grn_document",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
