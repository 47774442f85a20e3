// Package grn builds and parses GRN document and pack identifiers.
//
// Identifiers are structured values; the delimited string form only exists
// at the system boundary (label payloads and scanned QR content). Internal
// code passes the typed forms around and never re-parses its own output.
package grn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document type prefixes.
const (
	PrefixGRPO     = "GRPO"
	PrefixMultiGRN = "MGRN"
	PrefixDelivery = "DLV"
)

// PackPrefix scopes pack codes to the GRN batch namespace.
const PackPrefix = "BGRN"

// packDelimiter separates the five pack code fields.
const packDelimiter = "-"

// packFieldCount is the full field chain: prefix, document, line, detail, pack.
const packFieldCount = 5

// ErrMalformedPackCode indicates a scanned string that cannot be parsed
// into the five-field pack chain.
var ErrMalformedPackCode = errors.New("grn: malformed pack code")

// DocumentNumber identifies a workflow document: type prefix, 2-digit
// year and a zero-padded sequential id, rendered as PREFIX/YY/0000000042.
type DocumentNumber struct {
	Prefix string
	Year   int
	Seq    int64
}

// NewDocumentNumber derives a document number from a stable numeric id.
func NewDocumentNumber(prefix string, at time.Time, seq int64) DocumentNumber {
	return DocumentNumber{Prefix: prefix, Year: at.Year() % 100, Seq: seq}
}

// String renders the slash-delimited document form.
func (n DocumentNumber) String() string {
	return fmt.Sprintf("%s/%02d/%010d", n.Prefix, n.Year, n.Seq)
}

// PackCode identifies one physical pack. The four leading fields name the
// owning detail record; only PackSeq varies between sibling packs.
type PackCode struct {
	Prefix     string
	DocumentID int64
	LineID     int64
	DetailSeq  int
	PackSeq    int
}

// NewPackCode builds the code for one pack under a detail record.
func NewPackCode(documentID, lineID int64, detailSeq, packSeq int) PackCode {
	return PackCode{
		Prefix:     PackPrefix,
		DocumentID: documentID,
		LineID:     lineID,
		DetailSeq:  detailSeq,
		PackSeq:    packSeq,
	}
}

// String renders the five-field delimited form, e.g. BGRN-120-7-1-3.
func (c PackCode) String() string {
	return strings.Join([]string{
		c.Prefix,
		strconv.FormatInt(c.DocumentID, 10),
		strconv.FormatInt(c.LineID, 10),
		strconv.Itoa(c.DetailSeq),
		strconv.Itoa(c.PackSeq),
	}, packDelimiter)
}

// ParentKey renders the four-field prefix shared by every sibling pack,
// which is how a scanner locates the owning detail record.
func (c PackCode) ParentKey() string {
	return strings.Join([]string{
		c.Prefix,
		strconv.FormatInt(c.DocumentID, 10),
		strconv.FormatInt(c.LineID, 10),
		strconv.Itoa(c.DetailSeq),
	}, packDelimiter)
}

// ParsePackCode splits a scanned string back into its five fields. Scanner
// software sometimes appends decoration after the pack sequence; extra
// trailing fields are dropped so the canonical chain still resolves.
func ParsePackCode(scanned string) (PackCode, error) {
	fields := strings.Split(strings.TrimSpace(scanned), packDelimiter)
	if len(fields) < packFieldCount {
		return PackCode{}, ErrMalformedPackCode
	}
	fields = fields[:packFieldCount]
	if fields[0] == "" {
		return PackCode{}, ErrMalformedPackCode
	}
	documentID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return PackCode{}, ErrMalformedPackCode
	}
	lineID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return PackCode{}, ErrMalformedPackCode
	}
	detailSeq, err := strconv.Atoi(fields[3])
	if err != nil {
		return PackCode{}, ErrMalformedPackCode
	}
	packSeq, err := strconv.Atoi(fields[4])
	if err != nil {
		return PackCode{}, ErrMalformedPackCode
	}
	return PackCode{
		Prefix:     fields[0],
		DocumentID: documentID,
		LineID:     lineID,
		DetailSeq:  detailSeq,
		PackSeq:    packSeq,
	}, nil
}
