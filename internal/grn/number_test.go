package grn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDocumentNumberFormat(t *testing.T) {
	at := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	number := NewDocumentNumber(PrefixGRPO, at, 12345)
	require.Equal(t, "GRPO/26/0000012345", number.String())

	batch := NewDocumentNumber(PrefixMultiGRN, at, 7)
	require.Equal(t, "MGRN/26/0000000007", batch.String())
}

func TestPackCodeRoundTrip(t *testing.T) {
	code := NewPackCode(120, 7, 1, 3)
	require.Equal(t, "BGRN-120-7-1-3", code.String())

	parsed, err := ParsePackCode(code.String())
	require.NoError(t, err)
	require.Equal(t, code, parsed)
}

func TestPackCodeParentKeySharedBySiblings(t *testing.T) {
	first := NewPackCode(120, 7, 1, 1)
	for seq := 2; seq <= 6; seq++ {
		sibling := NewPackCode(120, 7, 1, seq)
		require.Equal(t, first.ParentKey(), sibling.ParentKey())
		require.NotEqual(t, first.String(), sibling.String())
	}
	require.Equal(t, "BGRN-120-7-1", first.ParentKey())
}

func TestParsePackCodeToleratesTrailingDecoration(t *testing.T) {
	parsed, err := ParsePackCode("BGRN-120-7-1-3-CHK9")
	require.NoError(t, err)
	require.Equal(t, NewPackCode(120, 7, 1, 3), parsed)
}

func TestParsePackCodeRejectsMalformed(t *testing.T) {
	for _, scanned := range []string{"", "BGRN-120-7-1", "BGRN-x-7-1-3", "-120-7-1-3", "BGRN-120-7-one-3"} {
		_, err := ParsePackCode(scanned)
		require.ErrorIs(t, err, ErrMalformedPackCode, "scanned=%q", scanned)
	}
}
