package app_test

import (
	"context"
	"testing"
	"time"

	"bank_reviews/internal/app"
	"bank_reviews/internal/domain"
)

// ---- fakes ----

type fakeStore struct {
	page domain.ReviewsPage
	sum  domain.BankSummary
}

func (f *fakeStore) ListReviews(ctx context.Context, bank domain.Bank, pg domain.PageQuery) (domain.ReviewsPage, error) {
	return f.page, nil
}
func (f *fakeStore) Summary(ctx context.Context, bank domain.Bank) (domain.BankSummary, error) {
	return f.sum, nil
}

type fakeCache struct {
	store map[string]any
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.ReviewsPage:
		*d = v.(domain.ReviewsPage)
	case *domain.BankSummary:
		*d = v.(domain.BankSummary)
	case *int64:
		*d = v.(int64)
	}
	return true, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	return nil
}

// ---- tests ----

func TestSummary_CacheMissThenHit(t *testing.T) {
	store := &fakeStore{sum: domain.BankSummary{Bank: domain.BankCBE, Count: 500, AvgRating: 3.8}}
	cache := &fakeCache{}
	q := app.NewQueryService(store, cache, 10*time.Minute)

	// miss (first time, populates cache)
	s, err := q.Summary(context.Background(), domain.BankCBE)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if s.Count != 500 || s.AvgRating != 3.8 {
		t.Fatalf("unexpected summary: %+v", s)
	}

	// mutate the store to prove the second read comes from cache
	store.sum.Count = 9999

	s2, err := q.Summary(context.Background(), domain.BankCBE)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if s2.Count != 500 {
		t.Fatalf("expected cached summary, got %+v", s2)
	}
}

func TestListReviews_Cache(t *testing.T) {
	store := &fakeStore{page: domain.ReviewsPage{Items: []domain.Review{
		{Bank: domain.BankBOA, Text: "smooth login", Rating: 5},
	}}}
	cache := &fakeCache{}
	q := app.NewQueryService(store, cache, 10*time.Minute)

	out, err := q.ListReviews(context.Background(), domain.BankBOA, domain.PageQuery{Limit: 10})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Text != "smooth login" {
		t.Fatalf("unexpected reviews: %+v", out.Items)
	}

	// change the store, call again -> should come from cache
	store.page.Items[0].Text = "changed"
	out2, _ := q.ListReviews(context.Background(), domain.BankBOA, domain.PageQuery{Limit: 10})
	if out2.Items[0].Text != "smooth login" {
		t.Fatalf("expected cached text, got %q", out2.Items[0].Text)
	}
}

// A write-version bump must orphan cached pages at every limit, including
// ones the ingestor could never enumerate.
func TestListReviews_InvalidatedByVersionBump(t *testing.T) {
	store := &fakeStore{page: domain.ReviewsPage{Items: []domain.Review{
		{Bank: domain.BankBOA, Text: "smooth login", Rating: 5},
	}}}
	cache := &fakeCache{}
	q := app.NewQueryService(store, cache, 10*time.Minute)

	if _, err := q.ListReviews(context.Background(), domain.BankBOA, domain.PageQuery{Limit: 73}); err != nil {
		t.Fatalf("err: %v", err)
	}
	store.page.Items[0].Text = "changed"

	// same limit, same version -> cached
	out, _ := q.ListReviews(context.Background(), domain.BankBOA, domain.PageQuery{Limit: 73})
	if out.Items[0].Text != "smooth login" {
		t.Fatalf("expected cached text, got %q", out.Items[0].Text)
	}

	// bump the version the way a write does
	if err := cache.Set(context.Background(), app.ListVersionKey(domain.BankBOA), int64(1), 0); err != nil {
		t.Fatalf("set version: %v", err)
	}
	out2, _ := q.ListReviews(context.Background(), domain.BankBOA, domain.PageQuery{Limit: 73})
	if out2.Items[0].Text != "changed" {
		t.Fatalf("expected fresh text after bump, got %q", out2.Items[0].Text)
	}
}
