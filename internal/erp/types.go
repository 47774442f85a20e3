package erp

// ManagementType is the closed set of item tracking disciplines reported
// by the ERP item master. It is decided once per line item when the item
// code is validated and threaded explicitly through label generation and
// scan verification.
type ManagementType string

const (
	// Unmanaged items carry no batch or serial tracking.
	Unmanaged ManagementType = "UNMANAGED"
	// BatchManaged items are received against batch numbers.
	BatchManaged ManagementType = "BATCH"
	// SerialManaged items are received one serial number per unit.
	SerialManaged ManagementType = "SERIAL"
)

// ItemInfo is the subset of the ERP item master used by receiving.
type ItemInfo struct {
	ItemCode   string
	ItemName   string
	Management ManagementType
	InStock    float64
}

// GoodsReceiptLine is one line of a goods-receipt posting.
type GoodsReceiptLine struct {
	ItemCode      string   `json:"ItemCode"`
	Quantity      float64  `json:"Quantity"`
	WarehouseCode string   `json:"WarehouseCode"`
	BaseEntry     int64    `json:"BaseEntry,omitempty"`
	BaseLine      int      `json:"BaseLine,omitempty"`
	BatchNumbers  []string `json:"BatchNumbers,omitempty"`
	SerialNumbers []string `json:"SerialNumbers,omitempty"`
}

// GoodsReceipt is a consolidated GRPO posting, possibly spanning
// several purchase orders.
type GoodsReceipt struct {
	CardCode string             `json:"CardCode"`
	DocDate  string             `json:"DocDate"`
	Comments string             `json:"Comments,omitempty"`
	Lines    []GoodsReceiptLine `json:"DocumentLines"`
}

// DeliveryLine is one line of a sales-delivery posting.
type DeliveryLine struct {
	ItemCode      string  `json:"ItemCode"`
	Quantity      float64 `json:"Quantity"`
	WarehouseCode string  `json:"WarehouseCode"`
	BaseEntry     int64   `json:"BaseEntry,omitempty"`
	BaseLine      int     `json:"BaseLine,omitempty"`
}

// Delivery is a sales-delivery posting against a sales order.
type Delivery struct {
	CardCode string         `json:"CardCode"`
	DocDate  string         `json:"DocDate"`
	Comments string         `json:"Comments,omitempty"`
	Lines    []DeliveryLine `json:"DocumentLines"`
}

// PostResult reports the document the ERP created.
type PostResult struct {
	DocEntry int64  `json:"DocEntry"`
	DocNum   string `json:"DocNum"`
}
