package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"promo-code-bot/internal/model"
	"promo-code-bot/internal/repository"
)

// In-memory stores mirroring the repository contracts, including the
// conditional-claim semantics of the SQL layer.

type fakeCodeStore struct {
	mu      sync.Mutex
	rows    map[int64]*model.Code
	nextID  int64
	lookups int32 // FindByKey calls, atomic
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{rows: make(map[int64]*model.Code)}
}

func (f *fakeCodeStore) seed(key string, prizeID *int64) *model.Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c := &model.Code{ID: f.nextID, SeqID: f.nextID, CanonicalKey: key, Value: key, PrizeID: prizeID}
	f.rows[c.ID] = c
	return c
}

func (f *fakeCodeStore) FindByKey(_ context.Context, key string) (*model.Code, error) {
	atomic.AddInt32(&f.lookups, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.CanonicalKey == key && c.DeletedAt == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCodeNotFound
}

func (f *fakeCodeStore) GetByID(_ context.Context, id int64) (*model.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCodeStore) Claim(_ context.Context, id int64, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok || c.Claimed || c.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	c.Claimed = true
	c.ClaimedAt = &now
	c.ClaimedBy = &userID
	return true, nil
}

func (f *fakeCodeStore) CountClaimedBy(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.rows {
		if c.DeletedAt == nil && c.ClaimedBy != nil && *c.ClaimedBy == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeStore) ActiveKeys(context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make(map[string]struct{})
	for _, c := range f.rows {
		if c.DeletedAt == nil {
			keys[c.CanonicalKey] = struct{}{}
		}
	}
	return keys, nil
}

func (f *fakeCodeStore) MaxSeqID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for _, c := range f.rows {
		if c.SeqID > max {
			max = c.SeqID
		}
	}
	return max, nil
}

func (f *fakeCodeStore) InsertBatch(_ context.Context, codes []*model.Code) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := make(map[string]struct{})
	for _, c := range f.rows {
		if c.DeletedAt == nil {
			live[c.CanonicalKey] = struct{}{}
		}
	}
	var inserted int64
	for _, c := range codes {
		if _, dup := live[c.CanonicalKey]; dup {
			continue
		}
		f.nextID++
		cp := *c
		cp.ID = f.nextID
		f.rows[cp.ID] = &cp
		live[cp.CanonicalKey] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (f *fakeCodeStore) CountActive(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.rows {
		if c.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeStore) SoftDeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var n int64
	for _, c := range f.rows {
		if c.DeletedAt == nil {
			c.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

// flakyCodeStore fails a configured number of leading InsertBatch calls,
// then delegates. Everything else passes straight through.
type flakyCodeStore struct {
	*fakeCodeStore
	failures int
	calls    int32
}

func (f *flakyCodeStore) InsertBatch(ctx context.Context, codes []*model.Code) (int64, error) {
	if int(atomic.AddInt32(&f.calls, 1)) <= f.failures {
		return 0, errors.New("insert batch failed")
	}
	return f.fakeCodeStore.InsertBatch(ctx, codes)
}

type fakeWinnerStore struct {
	mu      sync.Mutex
	rows    map[int64]*model.WinnerCode
	nextID  int64
	lookups int32
	// stuckClaim simulates a broken conditional update: Claim reports no
	// rows modified while the row stays unclaimed.
	stuckClaim bool
}

func newFakeWinnerStore() *fakeWinnerStore {
	return &fakeWinnerStore{rows: make(map[int64]*model.WinnerCode)}
}

func (f *fakeWinnerStore) seed(key string, tier model.Tier, prizeID int64) *model.WinnerCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	w := &model.WinnerCode{ID: f.nextID, SeqID: f.nextID, CanonicalKey: key, Value: key, Tier: tier, PrizeID: prizeID}
	f.rows[w.ID] = w
	return w
}

func (f *fakeWinnerStore) FindByKey(_ context.Context, key string) (*model.WinnerCode, error) {
	atomic.AddInt32(&f.lookups, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.rows {
		if w.CanonicalKey == key && w.DeletedAt == nil {
			cp := *w
			return &cp, nil
		}
	}
	return nil, repository.ErrWinnerNotFound
}

func (f *fakeWinnerStore) GetByID(_ context.Context, id int64) (*model.WinnerCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrWinnerNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWinnerStore) Claim(_ context.Context, id int64, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stuckClaim {
		return false, nil
	}
	w, ok := f.rows[id]
	if !ok || w.Claimed || w.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	w.Claimed = true
	w.ClaimedAt = &now
	w.ClaimedBy = &userID
	return true, nil
}

func (f *fakeWinnerStore) CountClaimedBy(_ context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, w := range f.rows {
		if w.DeletedAt == nil && w.ClaimedBy != nil && *w.ClaimedBy == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeWinnerStore) ActiveKeys(context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make(map[string]struct{})
	for _, w := range f.rows {
		if w.DeletedAt == nil {
			keys[w.CanonicalKey] = struct{}{}
		}
	}
	return keys, nil
}

func (f *fakeWinnerStore) MaxSeqID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for _, w := range f.rows {
		if w.SeqID > max {
			max = w.SeqID
		}
	}
	return max, nil
}

func (f *fakeWinnerStore) InsertBatch(_ context.Context, winners []*model.WinnerCode) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := make(map[string]struct{})
	for _, w := range f.rows {
		if w.DeletedAt == nil {
			live[w.CanonicalKey] = struct{}{}
		}
	}
	var inserted int64
	for _, w := range winners {
		if _, dup := live[w.CanonicalKey]; dup {
			continue
		}
		f.nextID++
		cp := *w
		cp.ID = f.nextID
		f.rows[cp.ID] = &cp
		live[cp.CanonicalKey] = struct{}{}
		inserted++
	}
	return inserted, nil
}

func (f *fakeWinnerStore) CountActive(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, w := range f.rows {
		if w.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeWinnerStore) SoftDeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var n int64
	for _, w := range f.rows {
		if w.DeletedAt == nil {
			w.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

type fakeCatalog struct {
	mu      sync.Mutex
	byTier  map[model.Tier]*model.Prize
	byID    map[int64]*model.Prize
	nextID  int64
	failAll bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		byTier: make(map[model.Tier]*model.Prize),
		byID:   make(map[int64]*model.Prize),
	}
}

func (f *fakeCatalog) GetOrCreate(_ context.Context, tier model.Tier) (*model.Prize, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, repository.ErrPrizeNotFound
	}
	if p, ok := f.byTier[tier]; ok {
		return p, nil
	}
	f.nextID++
	p := &model.Prize{ID: f.nextID, SeqID: f.nextID, Tier: tier, Name: string(tier)}
	f.byTier[tier] = p
	f.byID[p.ID] = p
	return p, nil
}

func (f *fakeCatalog) GetByID(_ context.Context, id int64) (*model.Prize, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, repository.ErrPrizeNotFound
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrPrizeNotFound
	}
	return p, nil
}

func (f *fakeCatalog) IncrementClaimed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return repository.ErrPrizeNotFound
	}
	p.TotalClaimed++
	return nil
}

func (f *fakeCatalog) AddIssued(_ context.Context, id int64, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return repository.ErrPrizeNotFound
	}
	p.TotalIssued += n
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*model.UsageLogEntry
	failErr error
}

func (f *fakeLedger) Append(_ context.Context, entry *model.UsageLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
