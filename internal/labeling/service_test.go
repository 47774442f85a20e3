package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLabelRepo struct {
	rows map[int64]*PackContext
}

func newMemLabelRepo(rows ...PackContext) *memLabelRepo {
	repo := &memLabelRepo{rows: map[int64]*PackContext{}}
	for i := range rows {
		row := rows[i]
		repo.rows[row.PackID] = &row
	}
	return repo
}

func (m *memLabelRepo) ListPackContexts(_ context.Context, detailID int64) ([]PackContext, error) {
	var out []PackContext
	for _, row := range m.rows {
		if row.DetailID == detailID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memLabelRepo) GetPackContext(_ context.Context, packID int64) (PackContext, error) {
	row, ok := m.rows[packID]
	if !ok {
		return PackContext{}, ErrPackNotFound
	}
	return *row, nil
}

func (m *memLabelRepo) SaveLabel(_ context.Context, packID int64, payload string, image []byte) error {
	row, ok := m.rows[packID]
	if !ok {
		return ErrPackNotFound
	}
	row.Payload = payload
	row.Image = image
	row.HasImage = len(image) > 0
	return nil
}

func (m *memLabelRepo) MarkPrinted(_ context.Context, packID int64) error {
	row, ok := m.rows[packID]
	if !ok {
		return ErrPackNotFound
	}
	now := time.Now()
	row.Printed = true
	row.PrintedAt = &now
	return nil
}

func (m *memLabelRepo) ListStalePayloads(_ context.Context, limit int) ([]PackContext, error) {
	var out []PackContext
	for _, row := range m.rows {
		if len(out) == limit {
			break
		}
		if !row.HasImage || !PayloadComplete(row.Payload) {
			out = append(out, *row)
		}
	}
	return out, nil
}

type fakeEncoder struct {
	calls   int
	failFor map[string]error
}

func (f *fakeEncoder) Encode(payload string) ([]byte, error) {
	f.calls++
	if f.failFor != nil {
		var p Payload
		_ = json.Unmarshal([]byte(payload), &p)
		if err, ok := f.failFor[p.ID]; ok {
			return nil, err
		}
	}
	return []byte("png:" + payload), nil
}

func packRow(packID int64, seq int) PackContext {
	return PackContext{
		PackID:      packID,
		DetailID:    4,
		Code:        "BGRN-120-7-1-" + string(rune('0'+seq)),
		Seq:         seq,
		PackCount:   3,
		Qty:         4,
		BatchNumber: "LOT-88",
		GRNDate:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		PONumber:    "PO-7781",
		ItemCode:    "ITM-100",
	}
}

func newTestLabelService(repo *memLabelRepo, encoder Encoder) *Service {
	return NewService(slog.New(slog.DiscardHandler), repo, encoder, nil)
}

func TestGenerateLabelsWritesPayloadAndImage(t *testing.T) {
	repo := newMemLabelRepo(packRow(1, 1), packRow(2, 2), packRow(3, 3))
	encoder := &fakeEncoder{}
	svc := newTestLabelService(repo, encoder)

	require.NoError(t, svc.GenerateLabels(context.Background(), 4))

	assert.Equal(t, 3, encoder.calls)
	for _, row := range repo.rows {
		assert.True(t, PayloadComplete(row.Payload))
		assert.True(t, row.HasImage)
	}
}

func TestGenerateLabelsIsIdempotent(t *testing.T) {
	repo := newMemLabelRepo(packRow(1, 1), packRow(2, 2))
	encoder := &fakeEncoder{}
	svc := newTestLabelService(repo, encoder)

	require.NoError(t, svc.GenerateLabels(context.Background(), 4))
	firstImage := repo.rows[1].Image

	require.NoError(t, svc.GenerateLabels(context.Background(), 4))
	assert.Equal(t, 2, encoder.calls)
	assert.Equal(t, firstImage, repo.rows[1].Image)
}

func TestGenerateLabelsEncoderFailureDegradesToPayloadOnly(t *testing.T) {
	first := packRow(1, 1)
	second := packRow(2, 2)
	repo := newMemLabelRepo(first, second)
	encoder := &fakeEncoder{failFor: map[string]error{first.Code: errors.New("encoder down")}}
	svc := newTestLabelService(repo, encoder)

	require.NoError(t, svc.GenerateLabels(context.Background(), 4))

	assert.True(t, PayloadComplete(repo.rows[1].Payload))
	assert.False(t, repo.rows[1].HasImage)
	assert.True(t, repo.rows[2].HasImage)
}

func TestGenerateLabelsRepairsIncompletePayloadOnly(t *testing.T) {
	stale := packRow(1, 1)
	stale.Payload = `{"id":"BGRN-120-7-1-1","item_code":"ITM-100","batch_number":"LOT-88","qty":4,"pack":"1 of 3","expiry_date":"N/A"}`
	stale.Image = []byte("old-image")
	stale.HasImage = true

	complete := packRow(2, 2)
	var err error
	complete.Payload, err = BuildPayload(complete).Canonical()
	require.NoError(t, err)
	complete.Image = []byte("existing-image")
	complete.HasImage = true

	repo := newMemLabelRepo(stale, complete)
	encoder := &fakeEncoder{}
	svc := newTestLabelService(repo, encoder)

	require.NoError(t, svc.GenerateLabels(context.Background(), 4))

	// The payload missing grn_date is rebuilt with a fresh image.
	assert.Equal(t, 1, encoder.calls)
	assert.True(t, PayloadComplete(repo.rows[1].Payload))
	assert.Contains(t, repo.rows[1].Payload, `"grn_date":"2026-03-14"`)
	assert.NotEqual(t, []byte("old-image"), repo.rows[1].Image)

	// The already-complete sibling is untouched.
	assert.Equal(t, []byte("existing-image"), repo.rows[2].Image)
}

func TestRegeneratePackRebuildsInPlace(t *testing.T) {
	row := packRow(1, 1)
	row.Payload = "corrupt"
	repo := newMemLabelRepo(row)
	svc := newTestLabelService(repo, &fakeEncoder{})

	fresh, err := svc.RegeneratePack(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, PayloadComplete(fresh.Payload))
	assert.True(t, fresh.HasImage)
}

func TestRegeneratePackUnknownPack(t *testing.T) {
	svc := newTestLabelService(newMemLabelRepo(), &fakeEncoder{})

	_, err := svc.RegeneratePack(context.Background(), 99)
	assert.ErrorIs(t, err, ErrPackNotFound)
}

func TestSweepIncompleteCountsRepairs(t *testing.T) {
	broken := packRow(1, 1)
	healthy := packRow(2, 2)
	var err error
	healthy.Payload, err = BuildPayload(healthy).Canonical()
	require.NoError(t, err)
	healthy.Image = []byte("img")
	healthy.HasImage = true

	repo := newMemLabelRepo(broken, healthy)
	svc := newTestLabelService(repo, &fakeEncoder{})

	repaired, err := svc.SweepIncomplete(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.True(t, PayloadComplete(repo.rows[1].Payload))
}

func TestMarkPrinted(t *testing.T) {
	repo := newMemLabelRepo(packRow(1, 1))
	svc := newTestLabelService(repo, &fakeEncoder{})

	require.NoError(t, svc.MarkPrinted(context.Background(), 1))
	assert.True(t, repo.rows[1].Printed)
	require.NotNil(t, repo.rows[1].PrintedAt)
}
