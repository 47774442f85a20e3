package verification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memScanRepo struct {
	mu      sync.Mutex
	packs   map[string]*ScanPack
	details map[int64]*ScanDetail
	// detail -> document, used by the gating queries
	documents map[int64]int64
}

func newMemScanRepo() *memScanRepo {
	return &memScanRepo{
		packs:     map[string]*ScanPack{},
		details:   map[int64]*ScanDetail{},
		documents: map[int64]int64{},
	}
}

func (m *memScanRepo) addDetail(documentID int64, detail ScanDetail, packQtys ...int64) {
	m.details[detail.ID] = &detail
	m.documents[detail.ID] = documentID
	for i, qty := range packQtys {
		code := fmt.Sprintf("BGRN-%d-%d-%d-%d", documentID, detail.LineID, detail.Seq, i+1)
		m.packs[code] = &ScanPack{
			ID:       int64(len(m.packs) + 1),
			DetailID: detail.ID,
			Seq:      i + 1,
			Qty:      qty,
			Code:     code,
		}
	}
}

func (m *memScanRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func (m *memScanRepo) GetPackForUpdate(_ context.Context, code string) (ScanPack, error) {
	pack, ok := m.packs[code]
	if !ok {
		return ScanPack{}, ErrPackNotFound
	}
	return *pack, nil
}

func (m *memScanRepo) GetDetail(_ context.Context, detailID int64) (ScanDetail, error) {
	detail, ok := m.details[detailID]
	if !ok {
		return ScanDetail{}, ErrDetailNotFound
	}
	return *detail, nil
}

func (m *memScanRepo) MarkPackVerified(_ context.Context, packID int64) error {
	for _, pack := range m.packs {
		if pack.ID == packID {
			pack.Verified = true
			return nil
		}
	}
	return ErrPackNotFound
}

func (m *memScanRepo) CountPacks(_ context.Context, detailID int64) (PackCounts, error) {
	var counts PackCounts
	for _, pack := range m.packs {
		if pack.DetailID != detailID {
			continue
		}
		counts.Total++
		if pack.Verified {
			counts.Verified++
		}
	}
	return counts, nil
}

func (m *memScanRepo) LatchDetailVerified(_ context.Context, detailID int64) error {
	detail, ok := m.details[detailID]
	if !ok {
		return ErrDetailNotFound
	}
	detail.Verified = true
	return nil
}

func (m *memScanRepo) IsDocumentFullyVerified(_ context.Context, documentID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for detailID, docID := range m.documents {
		if docID == documentID && !m.details[detailID].Verified {
			return false, nil
		}
	}
	return true, nil
}

func (m *memScanRepo) Progress(_ context.Context, documentID int64) (DocumentProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	progress := DocumentProgress{DocumentID: documentID}
	for detailID, docID := range m.documents {
		if docID != documentID {
			continue
		}
		progress.TotalDetails++
		if m.details[detailID].Verified {
			progress.VerifiedDetails++
		}
		for _, pack := range m.packs {
			if pack.DetailID != detailID {
				continue
			}
			progress.TotalPacks++
			if pack.Verified {
				progress.VerifiedPacks++
			}
		}
	}
	progress.FullyVerified = progress.TotalDetails == progress.VerifiedDetails
	return progress, nil
}

type scanCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *scanCounter) ObserveScan(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func newTestEngine(repo *memScanRepo) (*Engine, *scanCounter) {
	counter := &scanCounter{}
	return NewEngine(slog.New(slog.DiscardHandler), repo, counter), counter
}

func scan(id string, qty float64) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"qty":%v}`, id, qty))
}

func seedRepo() *memScanRepo {
	repo := newMemScanRepo()
	repo.addDetail(120, ScanDetail{ID: 40, LineID: 7, Seq: 1, BatchNumber: "LOT-88"}, 4, 4, 3)
	return repo
}

func TestAcceptScanVerifiesMatchingPack(t *testing.T) {
	repo := seedRepo()
	engine, counter := newTestEngine(repo)

	outcome, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
	require.NoError(t, err)

	assert.False(t, outcome.AlreadyVerified)
	assert.Equal(t, "BGRN-120-7-1-1", outcome.PackCode)
	assert.Equal(t, int64(4), outcome.PackQty)
	assert.Equal(t, "LOT-88", outcome.BatchNumber)
	assert.Equal(t, 3, outcome.TotalPacks)
	assert.Equal(t, 1, outcome.VerifiedPacks)
	assert.Equal(t, 2, outcome.PendingPacks)
	assert.False(t, outcome.DetailVerified)
	assert.Equal(t, 1, counter.outcomes["verified"])
}

func TestAcceptScanIdempotentOnRepeat(t *testing.T) {
	repo := seedRepo()
	engine, counter := newTestEngine(repo)

	_, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
	require.NoError(t, err)

	repeat, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyVerified)
	assert.Equal(t, 1, repeat.VerifiedPacks)
	assert.Equal(t, 1, counter.outcomes["already_verified"])
}

func TestAcceptScanRepeatSkipsQuantityCheck(t *testing.T) {
	repo := seedRepo()
	engine, _ := newTestEngine(repo)

	_, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
	require.NoError(t, err)

	// A repeat scan of a verified label succeeds even with a bogus
	// quantity; the label already did its job.
	repeat, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 999))
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyVerified)
}

func TestAcceptScanQuantityMismatchIsHardStop(t *testing.T) {
	repo := seedRepo()
	engine, counter := newTestEngine(repo)

	_, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 3))
	assert.ErrorIs(t, err, ErrQuantityMismatch)

	pack := repo.packs["BGRN-120-7-1-1"]
	assert.False(t, pack.Verified)
	assert.Equal(t, 1, counter.outcomes["mismatch"])

	// After the operator re-checks, the correct quantity still works.
	outcome, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.VerifiedPacks)
}

func TestAcceptScanRoundsFractionalQuantity(t *testing.T) {
	repo := seedRepo()
	engine, _ := newTestEngine(repo)

	outcome, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 3.5))
	require.NoError(t, err)
	assert.Equal(t, int64(4), outcome.PackQty)
}

func TestAcceptScanLastPackLatchesDetail(t *testing.T) {
	repo := seedRepo()
	engine, _ := newTestEngine(repo)

	for i, qty := range []int64{4, 4} {
		_, err := engine.AcceptScan(context.Background(), scan(fmt.Sprintf("BGRN-120-7-1-%d", i+1), float64(qty)))
		require.NoError(t, err)
	}
	assert.False(t, repo.details[40].Verified)

	final, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-3", 3))
	require.NoError(t, err)
	assert.True(t, final.DetailVerified)
	assert.Equal(t, 0, final.PendingPacks)
	assert.True(t, repo.details[40].Verified)
}

func TestAcceptScanUnknownPack(t *testing.T) {
	repo := seedRepo()
	engine, counter := newTestEngine(repo)

	_, err := engine.AcceptScan(context.Background(), scan("BGRN-999-9-9-9", 1))
	assert.ErrorIs(t, err, ErrPackNotFound)
	assert.Equal(t, 1, counter.outcomes["not_found"])
}

func TestAcceptScanTruncatesScannerDecoration(t *testing.T) {
	repo := seedRepo()
	engine, _ := newTestEngine(repo)

	outcome, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-3-CHK9", 3))
	require.NoError(t, err)
	assert.Equal(t, "BGRN-120-7-1-3", outcome.PackCode)
}

func TestAcceptScanOrphanPack(t *testing.T) {
	repo := seedRepo()
	delete(repo.details, 40)
	engine, _ := newTestEngine(repo)

	_, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
	assert.ErrorIs(t, err, ErrDetailNotFound)
}

func TestAcceptScanRejectsUnreadablePayload(t *testing.T) {
	engine, _ := newTestEngine(seedRepo())

	_, err := engine.AcceptScan(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = engine.AcceptScan(context.Background(), []byte(`{"qty":4}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestAcceptScanIgnoresExtraPayloadFields(t *testing.T) {
	engine, _ := newTestEngine(seedRepo())

	payload := []byte(`{"id":"BGRN-120-7-1-1","qty":4,"device":"scanner-7","operator":"amir"}`)
	_, err := engine.AcceptScan(context.Background(), payload)
	assert.NoError(t, err)
}

func TestConcurrentScansOfSamePack(t *testing.T) {
	repo := seedRepo()
	engine, _ := newTestEngine(repo)

	const attempts = 8
	outcomes := make([]Outcome, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 4))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	winners := 0
	for _, outcome := range outcomes {
		if !outcome.AlreadyVerified {
			winners++
		}
		assert.Equal(t, 1, outcome.VerifiedPacks)
	}
	// Exactly one scan performs the transition; the rest observe the
	// already-verified state.
	assert.Equal(t, 1, winners)
}

func TestDocumentGatingVacuousWithoutDetails(t *testing.T) {
	repo := newMemScanRepo()
	engine, _ := newTestEngine(repo)

	verified, err := engine.IsDocumentFullyVerified(context.Background(), 500)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestDocumentGatingRequiresEveryDetail(t *testing.T) {
	repo := newMemScanRepo()
	repo.addDetail(120, ScanDetail{ID: 40, LineID: 7, Seq: 1, BatchNumber: "LOT-88"}, 5)
	repo.addDetail(120, ScanDetail{ID: 41, LineID: 7, Seq: 2, BatchNumber: "LOT-89"}, 5)
	engine, _ := newTestEngine(repo)

	_, err := engine.AcceptScan(context.Background(), scan("BGRN-120-7-1-1", 5))
	require.NoError(t, err)

	verified, err := engine.IsDocumentFullyVerified(context.Background(), 120)
	require.NoError(t, err)
	assert.False(t, verified)

	_, err = engine.AcceptScan(context.Background(), scan("BGRN-120-7-2-1", 5))
	require.NoError(t, err)

	verified, err = engine.IsDocumentFullyVerified(context.Background(), 120)
	require.NoError(t, err)
	assert.True(t, verified)

	progress, err := engine.Progress(context.Background(), 120)
	require.NoError(t, err)
	assert.True(t, progress.FullyVerified)
	assert.Equal(t, 2, progress.VerifiedPacks)
}
