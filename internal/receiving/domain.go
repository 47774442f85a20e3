package receiving

import (
	"errors"
	"time"

	"github.com/packline-io/packline/internal/erp"
)

// DocumentType distinguishes a single-PO GRPO from a consolidated
// multi-PO GRN batch.
type DocumentType string

const (
	// DocumentTypeGRPO is a goods receipt against one purchase order.
	DocumentTypeGRPO DocumentType = "GRPO"
	// DocumentTypeMultiGRN consolidates receipts across several POs.
	DocumentTypeMultiGRN DocumentType = "MGRN"
)

// Document workflow statuses.
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "DRAFT"
	StatusSubmitted  DocumentStatus = "SUBMITTED"
	StatusQCApproved DocumentStatus = "QC_APPROVED"
	StatusQCRejected DocumentStatus = "QC_REJECTED"
	StatusPosted     DocumentStatus = "POSTED"
	StatusFailed     DocumentStatus = "FAILED"
)

// VerifyStatus is the two-state scan verification lifecycle shared by
// packs and detail records. The transition is one way; nothing moves a
// verified record back to pending.
type VerifyStatus string

const (
	VerifyPending  VerifyStatus = "PENDING"
	VerifyVerified VerifyStatus = "VERIFIED"
)

// Document is the header aggregate: a GRPO document or multi-GRN batch.
type Document struct {
	ID            int64
	Number        string
	Type          DocumentType
	SupplierCode  string
	WarehouseCode string
	Status        DocumentStatus
	ReceivedAt    time.Time
	PostedDocNum  string
	Note          string
	CreatedBy     int64
	CreatedAt     time.Time
}

// LineItem is one received item line. Management is decided once, when
// the item code is validated against the ERP, and never re-derived.
type LineItem struct {
	ID          int64
	DocumentID  int64
	ItemCode    string
	ItemName    string
	Management  erp.ManagementType
	PONumber    string
	POEntry     int64
	POLine      int
	OrderedQty  float64
	ReceivedQty float64
	BinLocation string
}

// Detail is one logical batch-or-serial group within a line item: a
// total quantity split across a declared number of physical packs.
// Status is a latched aggregation of its child packs and is never set
// independently.
type Detail struct {
	ID          int64
	LineID      int64
	Seq         int
	BatchNumber string
	TotalQty    float64
	PackCount   int
	ExpiryDate  time.Time
	MfgDate     time.Time
	Status      VerifyStatus
	CreatedAt   time.Time
}

// Pack is one physical bag or carton: the unit that carries a printed
// QR label and gets scanned. Qty is the integer slice of the detail's
// total assigned to this pack. Code is the rendered five-field pack
// identifier, unique across the whole system by storage constraint.
type Pack struct {
	ID         int64
	DetailID   int64
	Seq        int
	Qty        int64
	Code       string
	Payload    string
	Image      []byte
	Status     VerifyStatus
	Printed    bool
	PrintedAt  time.Time
	VerifiedAt time.Time
}

// Domain errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("receiving: not found")
	// ErrInvalidState indicates a workflow transition from the wrong status.
	ErrInvalidState = errors.New("receiving: invalid document state")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("receiving: validation failed")
	// ErrNotVerified blocks QC approval while any pack is still pending.
	ErrNotVerified = errors.New("receiving: packs not fully verified")
	// ErrDetailLocked blocks detail edits once any pack has been scanned.
	ErrDetailLocked = errors.New("receiving: detail has verified packs")
	// ErrDuplicatePack indicates a pack code uniqueness conflict.
	ErrDuplicatePack = errors.New("receiving: duplicate pack code")
)

// CanSubmit reports whether the document may move to SUBMITTED.
func (s DocumentStatus) CanSubmit() bool { return s == StatusDraft }

// CanQC reports whether QC may approve or reject.
func (s DocumentStatus) CanQC() bool { return s == StatusSubmitted }

// CanPost reports whether the document may be posted to the ERP. FAILED
// stays postable so a transient ERP outage can be retried.
func (s DocumentStatus) CanPost() bool {
	return s == StatusQCApproved || s == StatusFailed
}

// CanEdit reports whether lines and details may still be changed.
func (s DocumentStatus) CanEdit() bool { return s == StatusDraft }
