package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"promo-code-bot/internal/model"
	"promo-code-bot/internal/pkg/codeword"
)

// ErrTierRequired is returned when a winner upload arrives without a tier.
var ErrTierRequired = errors.New("winner ingestion requires a tier")

// minRawTokenLength filters obvious non-code cells before normalization.
const minRawTokenLength = 6

// CodeIngestStore is the plain-code access the ingestion pipeline needs.
type CodeIngestStore interface {
	ActiveKeys(ctx context.Context) (map[string]struct{}, error)
	MaxSeqID(ctx context.Context) (int64, error)
	InsertBatch(ctx context.Context, codes []*model.Code) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	SoftDeleteAll(ctx context.Context) (int64, error)
}

// WinnerIngestStore is the winner-code access the ingestion pipeline needs.
type WinnerIngestStore interface {
	ActiveKeys(ctx context.Context) (map[string]struct{}, error)
	MaxSeqID(ctx context.Context) (int64, error)
	InsertBatch(ctx context.Context, winners []*model.WinnerCode) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	SoftDeleteAll(ctx context.Context) (int64, error)
}

// PrizeIssuer creates tier prizes ahead of winner inserts and tracks how
// many winner codes each prize backs.
type PrizeIssuer interface {
	GetOrCreate(ctx context.Context, tier model.Tier) (*model.Prize, error)
	AddIssued(ctx context.Context, id int64, n int64) error
}

// IngestionService loads admin-uploaded code batches: it extracts and
// normalizes candidates, drops duplicates against the target store,
// assigns dense sequential ids and bulk-inserts in fixed-size batches.
type IngestionService struct {
	codes     CodeIngestStore
	winners   WinnerIngestStore
	prizes    PrizeIssuer
	batchSize int
}

// NewIngestionService creates a new IngestionService instance.
func NewIngestionService(codes CodeIngestStore, winners WinnerIngestStore, prizes PrizeIssuer, batchSize int) *IngestionService {
	if batchSize < 1 {
		batchSize = 5000
	}
	return &IngestionService{
		codes:     codes,
		winners:   winners,
		prizes:    prizes,
		batchSize: batchSize,
	}
}

// ExtractTokens splits uploaded text content (CSV or plain lines) into raw
// cell tokens. Filtering and normalization happen in Ingest.
func ExtractTokens(r io.Reader) ([]string, error) {
	var tokens []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.FieldsFunc(scanner.Text(), func(c rune) bool {
			return c == ',' || c == ';' || c == '\t'
		})
		for _, f := range fields {
			f = strings.Trim(strings.TrimSpace(f), `"'`)
			if f != "" {
				tokens = append(tokens, f)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return tokens, nil
}

// candidates reduces raw values to an ordered set of canonical keys:
// short tokens and header-row labels are dropped,
// intra-batch duplicates collapse.
func candidates(rawValues []string) []string {
	seen := make(map[string]struct{}, len(rawValues))
	var keys []string
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if len(raw) < minRawTokenLength || codeword.IsHeaderToken(raw) {
			continue
		}
		key := codeword.Normalize(raw)
		if len(key) < codeword.MinKeyLength {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Ingest loads rawValues into the target population. For winner uploads
// the tier's prize is created before any row lands. Per-batch insert
// failures are logged and skipped; earlier batches are never rolled back.
func (s *IngestionService) Ingest(ctx context.Context, rawValues []string, target model.Population, tier model.Tier, month string) (*model.IngestSummary, error) {
	keys := candidates(rawValues)

	if target == model.PopulationWinner {
		return s.ingestWinners(ctx, keys, tier, month)
	}
	return s.ingestCodes(ctx, keys, month)
}

func (s *IngestionService) ingestCodes(ctx context.Context, keys []string, month string) (*model.IngestSummary, error) {
	existing, err := s.codes.ActiveKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing codes: %w", err)
	}
	seq, err := s.codes.MaxSeqID(ctx)
	if err != nil {
		return nil, err
	}

	var rows []*model.Code
	for _, key := range keys {
		if _, dup := existing[key]; dup {
			continue
		}
		seq++
		rows = append(rows, &model.Code{
			SeqID:        seq,
			CanonicalKey: key,
			Value:        codeword.Prettify(key),
			Month:        monthTag(month),
		})
	}

	var accepted int64
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		n, err := s.codes.InsertBatch(ctx, rows[start:end])
		accepted += n
		if err != nil {
			log.Error().Err(err).Int("batch_start", start).Msg("Code batch insert failed, continuing")
		}
	}

	return s.summary(ctx, s.codes.CountActive, int64(len(keys)-len(rows)), accepted)
}

func (s *IngestionService) ingestWinners(ctx context.Context, keys []string, tier model.Tier, month string) (*model.IngestSummary, error) {
	if tier == "" {
		return nil, ErrTierRequired
	}

	// The tier's prize must exist before the first winner row referencing
	// it is written.
	prize, err := s.prizes.GetOrCreate(ctx, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prize for tier %s: %w", tier, err)
	}

	existing, err := s.winners.ActiveKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing winner codes: %w", err)
	}
	seq, err := s.winners.MaxSeqID(ctx)
	if err != nil {
		return nil, err
	}

	var rows []*model.WinnerCode
	for _, key := range keys {
		if _, dup := existing[key]; dup {
			continue
		}
		seq++
		rows = append(rows, &model.WinnerCode{
			SeqID:        seq,
			CanonicalKey: key,
			Value:        codeword.Prettify(key),
			Tier:         tier,
			PrizeID:      prize.ID,
			Month:        monthTag(month),
		})
	}

	var accepted int64
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		n, err := s.winners.InsertBatch(ctx, rows[start:end])
		accepted += n
		if err != nil {
			log.Error().Err(err).Int("batch_start", start).Msg("Winner batch insert failed, continuing")
		}
	}

	if accepted > 0 {
		if err := s.prizes.AddIssued(ctx, prize.ID, accepted); err != nil {
			log.Warn().Err(err).Int64("prize_id", prize.ID).Msg("Failed to update issued counter")
		}
	}

	return s.summary(ctx, s.winners.CountActive, int64(len(keys)-len(rows)), accepted)
}

// Clear retires every live row of the target population. Rows are soft
// deleted, so their sequential ids stay burned and future uploads keep
// counting upward.
func (s *IngestionService) Clear(ctx context.Context, target model.Population) (int64, error) {
	if target == model.PopulationWinner {
		n, err := s.winners.SoftDeleteAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to clear winner codes: %w", err)
		}
		return n, nil
	}
	n, err := s.codes.SoftDeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear codes: %w", err)
	}
	return n, nil
}

func (s *IngestionService) summary(ctx context.Context, countActive func(context.Context) (int64, error), duplicates, accepted int64) (*model.IngestSummary, error) {
	after, err := countActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count store after ingest: %w", err)
	}
	return &model.IngestSummary{
		Accepted:   accepted,
		Duplicates: duplicates,
		TotalAfter: after,
	}, nil
}

func monthTag(month string) *string {
	if month == "" {
		return nil
	}
	return &month
}
