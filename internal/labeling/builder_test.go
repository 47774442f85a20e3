package labeling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContext() PackContext {
	return PackContext{
		PackID:      10,
		DetailID:    4,
		Code:        "BGRN-120-7-1-2",
		Seq:         2,
		PackCount:   3,
		Qty:         4,
		BatchNumber: "LOT-88",
		ExpiryDate:  time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC),
		GRNDate:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		PONumber:    "PO-7781",
		ItemCode:    "ITM-100",
		BinLocation: "A-03-2",
	}
}

func TestBuildPayloadCarriesBusinessFields(t *testing.T) {
	payload := BuildPayload(sampleContext())

	assert.Equal(t, "BGRN-120-7-1-2", payload.ID)
	assert.Equal(t, "PO-7781", payload.PONumber)
	assert.Equal(t, "ITM-100", payload.ItemCode)
	assert.Equal(t, "LOT-88", payload.BatchNumber)
	assert.Equal(t, int64(4), payload.Qty)
	assert.Equal(t, "2 of 3", payload.Pack)
	assert.Equal(t, "2026-03-14", payload.GRNDate)
	assert.Equal(t, "2027-01-31", payload.ExpiryDate)
	assert.Equal(t, "A-03-2", payload.BinLocation)
}

func TestBuildPayloadExpirySentinel(t *testing.T) {
	row := sampleContext()
	row.ExpiryDate = time.Time{}

	payload := BuildPayload(row)
	assert.Equal(t, ExpiryNotApplicable, payload.ExpiryDate)
}

func TestCanonicalKeyOrderIsStable(t *testing.T) {
	canonical, err := BuildPayload(sampleContext()).Canonical()
	require.NoError(t, err)

	// Key order is part of the label contract: scanners and the
	// regeneration check both read this exact shape.
	assert.Equal(t, `{"id":"BGRN-120-7-1-2","po_number":"PO-7781","item_code":"ITM-100","batch_number":"LOT-88","qty":4,"pack":"2 of 3","grn_date":"2026-03-14","expiry_date":"2027-01-31","bin_location":"A-03-2"}`, canonical)
}

func TestPayloadCompleteAcceptsFullPayload(t *testing.T) {
	canonical, err := BuildPayload(sampleContext()).Canonical()
	require.NoError(t, err)
	assert.True(t, PayloadComplete(canonical))
}

func TestPayloadCompleteOptionalFieldsMayBeEmpty(t *testing.T) {
	row := sampleContext()
	row.PONumber = ""
	row.BinLocation = ""
	canonical, err := BuildPayload(row).Canonical()
	require.NoError(t, err)
	assert.True(t, PayloadComplete(canonical))
}

func TestPayloadCompleteRejectsMissingRequiredField(t *testing.T) {
	canonical, err := BuildPayload(sampleContext()).Canonical()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(canonical), &fields))
	delete(fields, "grn_date")
	withoutDate, err := json.Marshal(fields)
	require.NoError(t, err)

	assert.False(t, PayloadComplete(string(withoutDate)))
}

func TestPayloadCompleteRejectsGarbage(t *testing.T) {
	assert.False(t, PayloadComplete(""))
	assert.False(t, PayloadComplete("not json"))
	assert.False(t, PayloadComplete(`{"id":""}`))
	assert.False(t, PayloadComplete(`{"id":"BGRN-1-1-1-1","qty":"four"}`))
}
