package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-code-bot/internal/model"
)

func newRedemption(codes *fakeCodeStore, winners *fakeWinnerStore, catalog *fakeCatalog, ledger *fakeLedger, limit int) *RedemptionService {
	return NewRedemptionService(codes, winners, catalog, ledger, limit)
}

func TestRedeem_InvalidFormat(t *testing.T) {
	codes := newFakeCodeStore()
	winners := newFakeWinnerStore()
	ledger := &fakeLedger{}
	svc := newRedemption(codes, winners, newFakeCatalog(), ledger, 0)

	for _, raw := range []string{"HELLO", "12345678901234", "ABCDE-F1234", ""} {
		outcome, err := svc.Redeem(context.Background(), raw, 100)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeInvalidFormat, outcome.Kind, "input %q", raw)
	}

	// Malformed input never reaches the stores or the ledger.
	assert.Equal(t, int32(0), atomic.LoadInt32(&codes.lookups))
	assert.Equal(t, int32(0), atomic.LoadInt32(&winners.lookups))
	assert.Equal(t, 0, ledger.count())
}

func TestRedeem_NotFound(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newRedemption(newFakeCodeStore(), newFakeWinnerStore(), newFakeCatalog(), ledger, 0)

	outcome, err := svc.Redeem(context.Background(), "ABCDEF-1234", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotFound, outcome.Kind)

	// Unknown submissions are still recorded, without a matched code.
	require.Equal(t, 1, ledger.count())
	assert.Nil(t, ledger.entries[0].CodeID)
	assert.Nil(t, ledger.entries[0].WinnerCodeID)
	assert.Equal(t, "ABCDEF-1234", ledger.entries[0].SubmittedText)
}

func TestRedeem_PlainSuccessThenAlreadyClaimed(t *testing.T) {
	codes := newFakeCodeStore()
	codes.seed("ABCDEF1234", nil)
	ledger := &fakeLedger{}
	svc := newRedemption(codes, newFakeWinnerStore(), newFakeCatalog(), ledger, 0)

	outcome, err := svc.Redeem(context.Background(), "abcdef-1234", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlainSuccess, outcome.Kind)

	// Any later submission gets AlreadyClaimed, the claimant included.
	for _, userID := range []int64{200, 100} {
		outcome, err = svc.Redeem(context.Background(), "ABCDEF1234", userID)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeAlreadyClaimed, outcome.Kind)
	}

	// Each matched submission got a ledger entry referencing the code.
	require.Equal(t, 3, ledger.count())
	for _, e := range ledger.entries {
		assert.NotNil(t, e.CodeID)
	}
}

func TestRedeem_WinnerCheckedFirst(t *testing.T) {
	codes := newFakeCodeStore()
	winners := newFakeWinnerStore()
	catalog := newFakeCatalog()
	prize, err := catalog.GetOrCreate(context.Background(), model.TierPremium)
	require.NoError(t, err)

	// The same value lives in both populations; the winner row wins.
	codes.seed("GHIJKL5678", nil)
	winners.seed("GHIJKL5678", model.TierPremium, prize.ID)

	svc := newRedemption(codes, winners, catalog, &fakeLedger{}, 0)

	outcome, err := svc.Redeem(context.Background(), "GHIJKL5678", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePrizeSuccess, outcome.Kind)
	assert.Equal(t, model.TierPremium, outcome.Tier)
	require.NotNil(t, outcome.Prize)
	assert.Equal(t, int64(1), prize.TotalClaimed)

	// The plain row was never touched.
	plain, err := codes.FindByKey(context.Background(), "GHIJKL5678")
	require.NoError(t, err)
	assert.False(t, plain.Claimed)
}

func TestRedeem_LimitReachedBeforeLookup(t *testing.T) {
	codes := newFakeCodeStore()
	winners := newFakeWinnerStore()
	first := codes.seed("AAAAAA1111", nil)

	svc := newRedemption(codes, winners, newFakeCatalog(), &fakeLedger{}, 1)

	outcome, err := svc.Redeem(context.Background(), "AAAAAA-1111", 100)
	require.NoError(t, err)
	require.Equal(t, model.OutcomePlainSuccess, outcome.Kind)
	require.NotNil(t, first)

	codes.seed("BBBBBB2222", nil)
	before := atomic.LoadInt32(&codes.lookups) + atomic.LoadInt32(&winners.lookups)

	outcome, err = svc.Redeem(context.Background(), "BBBBBB-2222", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeLimitReached, outcome.Kind)

	// The cap gate fires before any store lookup.
	after := atomic.LoadInt32(&codes.lookups) + atomic.LoadInt32(&winners.lookups)
	assert.Equal(t, before, after)

	// A different user is unaffected.
	outcome, err = svc.Redeem(context.Background(), "BBBBBB-2222", 200)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlainSuccess, outcome.Kind)
}

func TestRedeem_ConcurrentClaimExactlyOnce(t *testing.T) {
	codes := newFakeCodeStore()
	codes.seed("ABCDEF1234", nil)
	svc := newRedemption(codes, newFakeWinnerStore(), newFakeCatalog(), &fakeLedger{}, 0)

	const callers = 32
	outcomes := make([]model.OutcomeKind, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := svc.Redeem(context.Background(), "ABCDEF-1234", int64(1000+i))
			if err != nil {
				errs[i] = err
				return
			}
			outcomes[i] = outcome.Kind
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	var successes, already int
	for _, kind := range outcomes {
		switch kind {
		case model.OutcomePlainSuccess:
			successes++
		case model.OutcomeAlreadyClaimed:
			already++
		default:
			t.Fatalf("unexpected outcome %s", kind)
		}
	}
	assert.Equal(t, 1, successes, "exactly one caller wins the claim")
	assert.Equal(t, callers-1, already)
}

func TestRedeem_ConsistencyViolation(t *testing.T) {
	winners := newFakeWinnerStore()
	winners.seed("ABCDEF1234", model.TierStandard, 1)
	winners.stuckClaim = true

	svc := newRedemption(newFakeCodeStore(), winners, newFakeCatalog(), &fakeLedger{}, 0)

	_, err := svc.Redeem(context.Background(), "ABCDEF-1234", 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConsistency))
}

func TestRedeem_LedgerFailureIsNonFatal(t *testing.T) {
	codes := newFakeCodeStore()
	codes.seed("ABCDEF1234", nil)
	ledger := &fakeLedger{failErr: errors.New("ledger down")}

	svc := newRedemption(codes, newFakeWinnerStore(), newFakeCatalog(), ledger, 0)

	outcome, err := svc.Redeem(context.Background(), "ABCDEF-1234", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlainSuccess, outcome.Kind)
}

func TestRedeem_PrizeResolutionDegrades(t *testing.T) {
	winners := newFakeWinnerStore()
	winners.seed("ABCDEF1234", model.TierPremium, 1)
	catalog := newFakeCatalog()
	catalog.failAll = true

	svc := newRedemption(newFakeCodeStore(), winners, catalog, &fakeLedger{}, 0)

	// The claim stands even though the prize cannot be resolved.
	outcome, err := svc.Redeem(context.Background(), "ABCDEF-1234", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePlainSuccess, outcome.Kind)

	fresh, err := winners.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, fresh.Claimed)
}

func TestRedeem_PlainCodeWithPrizeReference(t *testing.T) {
	catalog := newFakeCatalog()
	prize, err := catalog.GetOrCreate(context.Background(), model.TierEconomy)
	require.NoError(t, err)

	codes := newFakeCodeStore()
	codes.seed("ABCDEF1234", &prize.ID)

	svc := newRedemption(codes, newFakeWinnerStore(), catalog, &fakeLedger{}, 0)

	outcome, err := svc.Redeem(context.Background(), "ABCDEF-1234", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePrizeSuccess, outcome.Kind)
	assert.Equal(t, model.TierEconomy, outcome.Tier)
	assert.Equal(t, int64(1), prize.TotalClaimed)
}

func TestRedeem_ShortCodeNeverMatches(t *testing.T) {
	codes := newFakeCodeStore()
	codes.seed("ABCD123", nil) // shorter than any well-formed submission

	svc := newRedemption(codes, newFakeWinnerStore(), newFakeCatalog(), &fakeLedger{}, 0)

	outcome, err := svc.Redeem(context.Background(), "ABCD123", 100)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInvalidFormat, outcome.Kind)
	assert.Equal(t, int32(0), atomic.LoadInt32(&codes.lookups))
}
