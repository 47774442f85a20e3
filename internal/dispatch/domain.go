package dispatch

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("dispatch: delivery order not found")
	ErrInvalidState   = errors.New("dispatch: operation not allowed in current status")
	ErrValidation     = errors.New("dispatch: validation failed")
	ErrDuplicateOrder = errors.New("dispatch: delivery order already exists for this reference")
)

// OrderStatus is the delivery-order lifecycle. Posting failures keep the
// order retryable.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderPosted    OrderStatus = "POSTED"
	OrderFailed    OrderStatus = "FAILED"
)

func (s OrderStatus) CanEdit() bool {
	return s == OrderDraft
}

func (s OrderStatus) CanSubmit() bool {
	return s == OrderDraft
}

func (s OrderStatus) CanPost() bool {
	return s == OrderSubmitted || s == OrderFailed
}

// Order is an outbound delivery built from picked quantities.
type Order struct {
	ID           int64       `json:"id"`
	Number       string      `json:"number"`
	CustomerCode string      `json:"customer_code"`
	Warehouse    string      `json:"warehouse"`
	Reference    string      `json:"reference"`
	Status       OrderStatus `json:"status"`
	DeliveryDate time.Time   `json:"delivery_date"`
	PostedDocNum string      `json:"posted_doc_num,omitempty"`
	CreatedBy    int64       `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
}

// OrderLine is one picked item on a delivery order.
type OrderLine struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ItemCode    string  `json:"item_code"`
	Quantity    float64 `json:"quantity"`
	Warehouse   string  `json:"warehouse"`
	BatchNumber string  `json:"batch_number,omitempty"`
}
