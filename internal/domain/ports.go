package domain

import "context"

// ReviewSource fetches raw review pages for an app. Network I/O only,
// no persistence. A page's Next cursor restarts iteration mid-stream.
type ReviewSource interface {
	AppInfo(ctx context.Context, appID string) (AppInfo, error)
	Reviews(ctx context.Context, appID string, cursor string, size int) (ReviewPage, error)
}

// ReviewPage is one paginated slice of raw records. Next is empty on the
// last page.
type ReviewPage struct {
	Records []RawRecord
	Next    string
}

// ReviewSink persists canonical reviews. Write is atomic per batch and
// idempotent on the identity key (insert-or-skip); it reports how many rows
// were genuinely new. Keys preloads the existing identity keys for a bank so
// re-runs dedup against prior batches.
type ReviewSink interface {
	Write(ctx context.Context, rs []Review) (int, error)
	Keys(ctx context.Context, bank Bank) (map[string]struct{}, error)
}

// ReviewStore is the read side over durable storage.
type ReviewStore interface {
	ListReviews(ctx context.Context, bank Bank, pg PageQuery) (ReviewsPage, error)
	Summary(ctx context.Context, bank Bank) (BankSummary, error)
}

// RunLogger records batch-level diagnostics for operators.
type RunLogger interface {
	LogRun(ctx context.Context, rep RunReport) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

type PageQuery struct {
	Limit int
	Sort  string
}

type ReviewsPage struct {
	Items []Review
}
