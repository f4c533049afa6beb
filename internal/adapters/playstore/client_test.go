package playstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bank_reviews/internal/adapters/playstore"
	"bank_reviews/internal/domain"
)

func TestClient_Reviews_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"reviewId": "r1", "content": "ok", "score": 5.0}},
			})
		}
	}))
	defer ts.Close()

	cl, err := playstore.New(ts.URL, "en", "et", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := cl.Reviews(ctx, "com.cbe.app", "", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(page.Records) != 1 || page.Next != "" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_Reviews_Pagination(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next := r.URL.Query().Get("next")
		w.WriteHeader(200)
		if next == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":                []map[string]any{{"reviewId": "r1"}, {"reviewId": "r2"}},
				"nextPaginationToken": "tok-2",
			})
			return
		}
		if next != "tok-2" {
			t.Errorf("unexpected cursor %q", next)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"reviewId": "r3"}},
		})
	}))
	defer ts.Close()

	cl, _ := playstore.New(ts.URL, "en", "et", 100)
	ctx := context.Background()

	p1, err := cl.Reviews(ctx, "com.boa.app", "", 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(p1.Records) != 2 || p1.Next != "tok-2" {
		t.Fatalf("page 1: %+v", p1)
	}
	p2, err := cl.Reviews(ctx, "com.boa.app", p1.Next, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(p2.Records) != 1 || p2.Next != "" {
		t.Fatalf("page 2: %+v", p2)
	}
}

func TestClient_Reviews_ResultsEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"data":                []map[string]any{{"reviewId": "r1"}},
				"nextPaginationToken": "tok",
			},
		})
	}))
	defer ts.Close()

	cl, _ := playstore.New(ts.URL, "en", "et", 100)
	page, err := cl.Reviews(context.Background(), "com.dashen.app", "", 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(page.Records) != 1 || page.Next != "tok" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestClient_Reviews_ExhaustedRetries(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	cl, _ := playstore.New(ts.URL, "en", "et", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := cl.Reviews(ctx, "com.cbe.app", "", 10)
	if !errors.Is(err, domain.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Fatalf("expected 4 bounded attempts, got %d", got)
	}
}

func TestClient_AppInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		fmt.Fprint(w, `{"title":"CBE Mobile","score":4.2,"ratings":120000,"reviews":35000}`)
	}))
	defer ts.Close()

	cl, _ := playstore.New(ts.URL, "en", "et", 100)
	info, err := cl.AppInfo(context.Background(), "com.cbe.app")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if info.Title != "CBE Mobile" || info.Score != 4.2 || info.Ratings != 120000 {
		t.Fatalf("unexpected info: %+v", info)
	}
}
