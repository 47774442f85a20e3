package labeling

import (
	"encoding/json"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ExpiryNotApplicable marks items without expiry tracking on the label.
const ExpiryNotApplicable = "N/A"

const dateLayout = "2006-01-02"

var packPrinter = message.NewPrinter(language.English)

// Payload is the flat label content carried by the QR code. Field order
// is the canonical key order of the serialized form: scanners and the
// regeneration check both rely on it staying stable.
type Payload struct {
	ID          string `json:"id"`
	PONumber    string `json:"po_number"`
	ItemCode    string `json:"item_code"`
	BatchNumber string `json:"batch_number"`
	Qty         int64  `json:"qty"`
	Pack        string `json:"pack"`
	GRNDate     string `json:"grn_date"`
	ExpiryDate  string `json:"expiry_date"`
	BinLocation string `json:"bin_location"`
}

// requiredKeys are the fields a stored payload must carry to be usable
// on the floor. po_number and bin_location stay optional: multi-GRN
// batches have no single PO and bins are not always assigned yet.
var requiredKeys = []string{"id", "item_code", "batch_number", "qty", "pack", "grn_date", "expiry_date"}

// BuildPayload composes one pack's label from its receiving context.
func BuildPayload(row PackContext) Payload {
	expiry := ExpiryNotApplicable
	if !row.ExpiryDate.IsZero() {
		expiry = row.ExpiryDate.Format(dateLayout)
	}
	return Payload{
		ID:          row.Code,
		PONumber:    row.PONumber,
		ItemCode:    row.ItemCode,
		BatchNumber: row.BatchNumber,
		Qty:         row.Qty,
		Pack:        packPrinter.Sprintf("%d of %d", row.Seq, row.PackCount),
		GRNDate:     row.GRNDate.Format(dateLayout),
		ExpiryDate:  expiry,
		BinLocation: row.BinLocation,
	}
}

// Canonical serializes the payload in its stable key order.
func (p Payload) Canonical() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PayloadComplete reports whether a stored payload string is valid JSON
// carrying every required field with a usable value. Packs created
// before a label schema change fail this check and get regenerated.
func PayloadComplete(raw string) bool {
	if raw == "" {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return false
	}
	for _, key := range requiredKeys {
		value, ok := fields[key]
		if !ok {
			return false
		}
		if key == "qty" {
			var qty int64
			if err := json.Unmarshal(value, &qty); err != nil {
				return false
			}
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil || s == "" {
			return false
		}
	}
	return true
}

// PackContext is everything labeling needs about one pack, joined from
// the pack, its detail, line and document rows.
type PackContext struct {
	PackID      int64
	DetailID    int64
	Code        string
	Seq         int
	PackCount   int
	Qty         int64
	BatchNumber string
	ExpiryDate  time.Time
	GRNDate     time.Time
	PONumber    string
	ItemCode    string
	BinLocation string
	Payload     string
	Image       []byte
	HasImage    bool
	Printed     bool
	PrintedAt   *time.Time
}
