package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"promo-code-bot/internal/model"
)

func newIngestion(codes *fakeCodeStore, winners *fakeWinnerStore, catalog *fakeCatalog) *IngestionService {
	return NewIngestionService(codes, winners, catalog, 2) // small batches to exercise chunking
}

func TestIngest_AcceptsThenDeduplicates(t *testing.T) {
	codes := newFakeCodeStore()
	svc := newIngestion(codes, newFakeWinnerStore(), newFakeCatalog())

	values := []string{"ABCDEF-1234", "GHIJKL-5678", "MNOPQR-9012"}

	sum, err := svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Accepted)
	assert.Equal(t, int64(0), sum.Duplicates)
	assert.Equal(t, int64(3), sum.TotalAfter)

	// The same set again is all duplicates.
	sum, err = svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Accepted)
	assert.Equal(t, int64(3), sum.Duplicates)
	assert.Equal(t, int64(3), sum.TotalAfter)
}

func TestIngest_IntraBatchDuplicatesCollapse(t *testing.T) {
	codes := newFakeCodeStore()
	svc := newIngestion(codes, newFakeWinnerStore(), newFakeCatalog())

	sum, err := svc.Ingest(context.Background(), []string{"ABCDEF-1234", "abcdef1234"}, model.PopulationCode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Accepted)
	assert.Equal(t, int64(1), sum.TotalAfter)
}

func TestIngest_FiltersNoiseTokens(t *testing.T) {
	codes := newFakeCodeStore()
	svc := newIngestion(codes, newFakeWinnerStore(), newFakeCatalog())

	values := []string{
		"code",       // header label
		"Kodlar",     // header label
		"123",        // too short before normalization
		"AB-12-34",   // too short after normalization
		"ABCDEF-1234",
	}

	sum, err := svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Accepted)
	assert.Equal(t, int64(0), sum.Duplicates)
}

func TestIngest_SequentialIDsContinueAfterClear(t *testing.T) {
	codes := newFakeCodeStore()
	svc := newIngestion(codes, newFakeWinnerStore(), newFakeCatalog())

	_, err := svc.Ingest(context.Background(), []string{"ABCDEF-1234", "GHIJKL-5678"}, model.PopulationCode, "", "")
	require.NoError(t, err)

	// Soft-deleting everything must not recycle sequential ids.
	n, err := svc.Clear(context.Background(), model.PopulationCode)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = svc.Ingest(context.Background(), []string{"MNOPQR-9012"}, model.PopulationCode, "", "")
	require.NoError(t, err)

	fresh, err := codes.FindByKey(context.Background(), "MNOPQR9012")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fresh.SeqID)
}

func TestIngest_FailedBatchDoesNotAbortLaterBatches(t *testing.T) {
	codes := newFakeCodeStore()
	flaky := &flakyCodeStore{fakeCodeStore: codes, failures: 1}
	svc := NewIngestionService(flaky, newFakeWinnerStore(), newFakeCatalog(), 2)

	values := []string{"ABCDEF-1234", "GHIJKL-5678", "MNOPQR-9012", "STUVWX-3456"}

	sum, err := svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
	require.NoError(t, err)

	// The first batch of two is lost, the second still lands, and the
	// summary reflects only what was written.
	assert.Equal(t, int64(2), sum.Accepted)
	assert.Equal(t, int64(0), sum.Duplicates)
	assert.Equal(t, int64(2), sum.TotalAfter)

	_, err = codes.FindByKey(context.Background(), "ABCDEF1234")
	assert.Error(t, err)
	for _, key := range []string{"MNOPQR9012", "STUVWX3456"} {
		_, err = codes.FindByKey(context.Background(), key)
		assert.NoError(t, err, "key %s", key)
	}

	// A retry of the same upload backfills the lost rows without touching
	// the ones that landed.
	sum, err = svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Accepted)
	assert.Equal(t, int64(2), sum.Duplicates)
	assert.Equal(t, int64(4), sum.TotalAfter)
}

func TestIngest_StoresDisplayForm(t *testing.T) {
	codes := newFakeCodeStore()
	svc := newIngestion(codes, newFakeWinnerStore(), newFakeCatalog())

	_, err := svc.Ingest(context.Background(), []string{"abcdef1234", "STUVWX12"}, model.PopulationCode, "", "")
	require.NoError(t, err)

	full, err := codes.FindByKey(context.Background(), "ABCDEF1234")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF-1234", full.Value)

	// Tokens below the hyphenation length are stored as-is.
	short, err := codes.FindByKey(context.Background(), "STUVWX12")
	require.NoError(t, err)
	assert.Equal(t, "STUVWX12", short.Value)
}

func TestIngest_WinnerCreatesPrizeAndCountsIssued(t *testing.T) {
	winners := newFakeWinnerStore()
	catalog := newFakeCatalog()
	svc := newIngestion(newFakeCodeStore(), winners, catalog)

	sum, err := svc.Ingest(context.Background(), []string{"GHIJKL-5678", "MNOPQR-9012"}, model.PopulationWinner, model.TierPremium, "yanvar")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Accepted)

	prize, err := catalog.GetOrCreate(context.Background(), model.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, int64(2), prize.TotalIssued)

	w, err := winners.FindByKey(context.Background(), "GHIJKL5678")
	require.NoError(t, err)
	assert.Equal(t, model.TierPremium, w.Tier)
	assert.Equal(t, prize.ID, w.PrizeID)
	require.NotNil(t, w.Month)
	assert.Equal(t, "yanvar", *w.Month)
}

func TestIngest_WinnerRequiresTier(t *testing.T) {
	svc := newIngestion(newFakeCodeStore(), newFakeWinnerStore(), newFakeCatalog())

	_, err := svc.Ingest(context.Background(), []string{"GHIJKL-5678"}, model.PopulationWinner, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTierRequired))
}

func TestIngest_EmptyInput(t *testing.T) {
	svc := newIngestion(newFakeCodeStore(), newFakeWinnerStore(), newFakeCatalog())

	sum, err := svc.Ingest(context.Background(), nil, model.PopulationCode, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Accepted)
	assert.Equal(t, int64(0), sum.Duplicates)
}

func TestExtractTokens(t *testing.T) {
	content := "code,owner\n\"ABCDEF-1234\",alice\nGHIJKL-5678;MNOPQR-9012\n\n  STUVWX-3456  \n"

	tokens, err := ExtractTokens(strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "owner", "ABCDEF-1234", "alice", "GHIJKL-5678", "MNOPQR-9012", "STUVWX-3456"}, tokens)
}

// Re-ingesting any generated code set accepts nothing the second time, and
// accepted+duplicates always equals the number of unique canonical keys.
func TestIngestIdempotentProperty(t *testing.T) {
	codeGen := rapid.StringMatching(`[A-Z]{6}-?[0-9]{4}`)
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(codeGen, 0, 20).Draw(t, "values")

		codes := newFakeCodeStore()
		svc := newIngestion(codes, newFakeWinnerStore(), newFakeCatalog())

		first, err := svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
		if err != nil {
			t.Fatalf("first ingest: %v", err)
		}
		if first.Accepted+first.Duplicates != int64(len(candidates(values))) {
			t.Fatalf("accepted %d + duplicates %d != candidates %d", first.Accepted, first.Duplicates, len(candidates(values)))
		}
		if first.Duplicates != 0 {
			t.Fatalf("fresh store reported %d duplicates", first.Duplicates)
		}

		second, err := svc.Ingest(context.Background(), values, model.PopulationCode, "", "")
		if err != nil {
			t.Fatalf("second ingest: %v", err)
		}
		if second.Accepted != 0 {
			t.Fatalf("second ingest accepted %d rows", second.Accepted)
		}
		if second.Duplicates != first.Accepted {
			t.Fatalf("second ingest duplicates %d != first accepted %d", second.Duplicates, first.Accepted)
		}
	})
}
