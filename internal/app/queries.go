package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bank_reviews/internal/domain"
)

// QueryService is the cached read path over persisted reviews.
type QueryService struct {
	store    domain.ReviewStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(s domain.ReviewStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: ttl}
}

func (s *QueryService) Summary(ctx context.Context, bank domain.Bank) (domain.BankSummary, error) {
	key := fmt.Sprintf("summary:%s", bank)
	var sum domain.BankSummary
	if ok, _ := s.cache.Get(ctx, key, &sum); ok {
		return sum, nil
	}
	sum, err := s.store.Summary(ctx, bank)
	if err != nil {
		return domain.BankSummary{}, err
	}
	_ = s.cache.Set(ctx, key, sum, int(s.cacheTTL.Seconds()))
	return sum, nil
}

// ListVersionKey holds a bank's write version. The ingestor bumps it after
// every write; list cache keys fold it in, so stale pages are simply never
// read again instead of being enumerated and deleted.
func ListVersionKey(bank domain.Bank) string {
	return fmt.Sprintf("reviews_ver:%s", bank)
}

func (s *QueryService) ListReviews(ctx context.Context, bank domain.Bank, pg domain.PageQuery) (domain.ReviewsPage, error) {
	var ver int64
	_, _ = s.cache.Get(ctx, ListVersionKey(bank), &ver)
	key := fmt.Sprintf("reviews:%s:%d:%d:%s", bank, ver, pg.Limit, pg.Sort)
	var out domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rs, err := s.store.ListReviews(ctx, bank, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy the slice to avoid aliasing the store's backing array
	cp := deepCopyReviewsPage(rs)

	// size guard: don't cache oversized pages
	if b, _ := json.Marshal(cp); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	}
	return cp, nil
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	var out domain.ReviewsPage
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
