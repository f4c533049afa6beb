package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bank_reviews/internal/app"
	"bank_reviews/internal/domain"
)

// ---- fakes ----

type fakeSource struct {
	records []domain.RawRecord
	infoErr error
	revErr  error
}

func (f *fakeSource) AppInfo(ctx context.Context, appID string) (domain.AppInfo, error) {
	if f.infoErr != nil {
		return domain.AppInfo{}, f.infoErr
	}
	return domain.AppInfo{AppID: appID, Title: "Mobile Banking", Score: 4.1}, nil
}

func (f *fakeSource) Reviews(ctx context.Context, appID, cursor string, size int) (domain.ReviewPage, error) {
	if f.revErr != nil {
		return domain.ReviewPage{}, f.revErr
	}
	start := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &start)
	}
	end := start + size
	if end > len(f.records) {
		end = len(f.records)
	}
	page := domain.ReviewPage{Records: f.records[start:end]}
	if end < len(f.records) {
		page.Next = fmt.Sprintf("%d", end)
	}
	return page, nil
}

type fakeSink struct {
	rows     map[string]domain.Review
	writeErr error
	writes   int
}

func newFakeSink() *fakeSink { return &fakeSink{rows: map[string]domain.Review{}} }

func (f *fakeSink) Write(ctx context.Context, rs []domain.Review) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes++
	n := 0
	for _, r := range rs {
		k := r.IdentityKey()
		if _, ok := f.rows[k]; ok {
			continue
		}
		f.rows[k] = r
		n++
	}
	return n, nil
}

func (f *fakeSink) Keys(ctx context.Context, bank domain.Bank) (map[string]struct{}, error) {
	keys := make(map[string]struct{}, len(f.rows))
	for k, r := range f.rows {
		if r.Bank == bank {
			keys[k] = struct{}{}
		}
	}
	return keys, nil
}

// raw420 builds a 420-record batch: 380 unique valid records, 30 exact
// duplicates of the first 30, and 10 with missing ratings.
func raw420() []domain.RawRecord {
	unique := func(i int) domain.RawRecord {
		return domain.RawRecord{
			"reviewId": fmt.Sprintf("gp:%d", i),
			"content":  fmt.Sprintf("review number %d", i),
			"score":    float64(i%5 + 1),
			"at":       fmt.Sprintf("2024-06-%02d", i%28+1),
		}
	}
	var out []domain.RawRecord
	for i := 0; i < 380; i++ {
		out = append(out, unique(i))
	}
	for i := 0; i < 30; i++ {
		out = append(out, unique(i))
	}
	for i := 0; i < 10; i++ {
		out = append(out, domain.RawRecord{
			"reviewId": fmt.Sprintf("gp:nr:%d", i),
			"content":  fmt.Sprintf("unrated review %d", i),
			"at":       "2024-06-01",
		})
	}
	return out
}

// ---- tests ----

func TestIngestBank_GateFailsAt380Of400(t *testing.T) {
	src := &fakeSource{records: raw420()}
	sink := newFakeSink()
	ing := app.NewIngestionService(src, sink, nil, nil, app.Options{MinCount: 400})

	rep, err := ing.IngestBank(context.Background(), domain.BankCBE, "com.cbe.app", 420, false)
	if !errors.Is(err, domain.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if rep.State != domain.StateQualityFailed {
		t.Fatalf("state: %s", rep.State)
	}
	if rep.Fetched != 420 || rep.Rejected != 10 || rep.Duplicates != 30 {
		t.Fatalf("counts: %+v", rep)
	}
	// 380 accepted < 400 minimum: nothing written, fail closed
	if rep.Written != 0 || len(sink.rows) != 0 {
		t.Fatalf("gate failure must not write: %+v", rep)
	}
	if rep.Gate.Pass {
		t.Fatalf("gate must fail at 380 accepted")
	}
}

func TestIngestBank_ForcedWriteAndIdempotentRerun(t *testing.T) {
	src := &fakeSource{records: raw420()}
	sink := newFakeSink()
	ing := app.NewIngestionService(src, sink, nil, nil, app.Options{MinCount: 400})
	ctx := context.Background()

	rep, err := ing.IngestBank(ctx, domain.BankCBE, "com.cbe.app", 420, true)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if rep.State != domain.StateWritten || rep.Written != 380 || len(sink.rows) != 380 {
		t.Fatalf("forced write: %+v rows=%d", rep, len(sink.rows))
	}

	// re-run with overlapping data: everything dedups against the sink
	rep2, err := ing.IngestBank(ctx, domain.BankCBE, "com.cbe.app", 420, true)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep2.Duplicates != 410 || rep2.Written != 0 {
		t.Fatalf("second run counts: %+v", rep2)
	}
	if len(sink.rows) != 380 {
		t.Fatalf("row count changed on re-run: %d", len(sink.rows))
	}
}

func TestIngestBank_GatePassesWhenEnough(t *testing.T) {
	src := &fakeSource{records: raw420()}
	sink := newFakeSink()
	ing := app.NewIngestionService(src, sink, nil, nil, app.Options{MinCount: 350, MaxMissingRatio: 0.05})

	rep, err := ing.IngestBank(context.Background(), domain.BankBOA, "com.boa.app", 420, false)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// 10/420 rejected ≈ 2.4%, 380 ≥ 350
	if rep.State != domain.StateWritten || !rep.Gate.Pass || rep.Written != 380 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestIngestBank_WriteInvalidatesReadCaches(t *testing.T) {
	src := &fakeSource{records: raw420()}
	sink := newFakeSink()
	cache := &fakeCache{}
	_ = cache.Set(context.Background(), "summary:BOA", domain.BankSummary{Bank: domain.BankBOA, Count: 1}, 0)
	ing := app.NewIngestionService(src, sink, nil, cache, app.Options{MinCount: 350, MaxMissingRatio: 0.05})

	if _, err := ing.IngestBank(context.Background(), domain.BankBOA, "com.boa.app", 420, false); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, ok := cache.store["summary:BOA"]; ok {
		t.Fatal("stale summary survived the write")
	}
	var ver int64
	if ok, _ := cache.Get(context.Background(), app.ListVersionKey(domain.BankBOA), &ver); !ok || ver == 0 {
		t.Fatalf("expected bumped write version, got ok=%v ver=%d", ok, ver)
	}
}

func TestIngestBank_SourceUnavailable(t *testing.T) {
	src := &fakeSource{revErr: fmt.Errorf("fetch reviews: %w", domain.ErrSourceUnavailable)}
	sink := newFakeSink()
	ing := app.NewIngestionService(src, sink, nil, nil, app.Options{})

	rep, err := ing.IngestBank(context.Background(), domain.BankDashen, "com.dashen.app", 100, false)
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if rep.State != domain.StateFetching || len(sink.rows) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestIngestBank_CancelledBetweenPages(t *testing.T) {
	src := &fakeSource{records: raw420()}
	sink := newFakeSink()
	ing := app.NewIngestionService(src, sink, nil, nil, app.Options{PageSize: 50})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ing.IngestBank(ctx, domain.BankCBE, "com.cbe.app", 420, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.writes != 0 {
		t.Fatalf("cancelled run must not write")
	}
}
