// internal/adapters/playstore/client.go
package playstore

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bank_reviews/internal/adapters/observability"
	"bank_reviews/internal/domain"
)

// Client talks to a google-play-scraper proxy API (the usual self-hosted
// front for the Play Store's internal endpoints). Rate-limited client-side,
// bounded retries on transient failures.
type Client struct {
	base    string
	hc      *http.Client
	lang    string
	country string
	rl      *rate.Limiter
}

func New(base, lang, country string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if rps <= 0 {
		rps = 2
	}
	if lang == "" {
		lang = "en"
	}
	if country == "" {
		country = "et"
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		hc:      &http.Client{Timeout: 20 * time.Second},
		lang:    lang,
		country: country,
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) AppInfo(ctx context.Context, appID string) (domain.AppInfo, error) {
	var raw map[string]any
	u := fmt.Sprintf("%s/apps/%s?lang=%s&country=%s", c.base, url.PathEscape(appID), c.lang, c.country)
	if err := c.get(ctx, u, "app", &raw); err != nil {
		return domain.AppInfo{}, err
	}
	info := domain.AppInfo{AppID: appID}
	if s, ok := raw["title"].(string); ok {
		info.Title = s
	}
	if f, ok := raw["score"].(float64); ok {
		info.Score = f
	}
	if f, ok := raw["ratings"].(float64); ok {
		info.Ratings = int64(f)
	}
	if f, ok := raw["reviews"].(float64); ok {
		info.Reviews = int64(f)
	}
	return info, nil
}

// reviewsEnvelope accepts both the flat and the results-wrapped response
// shapes proxies emit.
type reviewsEnvelope struct {
	Data    []domain.RawRecord `json:"data"`
	Next    string             `json:"nextPaginationToken"`
	Results *struct {
		Data []domain.RawRecord `json:"data"`
		Next string             `json:"nextPaginationToken"`
	} `json:"results"`
}

// Reviews fetches one page, newest first. cursor restarts pagination; empty
// means the first page. The returned page's Next is empty on the last page.
func (c *Client) Reviews(ctx context.Context, appID string, cursor string, size int) (domain.ReviewPage, error) {
	if size <= 0 {
		size = 150
	}
	q := url.Values{}
	q.Set("lang", c.lang)
	q.Set("country", c.country)
	q.Set("sort", "newest")
	q.Set("num", strconv.Itoa(size))
	if cursor != "" {
		q.Set("next", cursor)
	}
	u := fmt.Sprintf("%s/apps/%s/reviews?%s", c.base, url.PathEscape(appID), q.Encode())

	var env reviewsEnvelope
	if err := c.get(ctx, u, "reviews", &env); err != nil {
		return domain.ReviewPage{}, err
	}
	page := domain.ReviewPage{Records: env.Data, Next: env.Next}
	if env.Results != nil {
		page = domain.ReviewPage{Records: env.Results.Data, Next: env.Results.Next}
	}
	return page, nil
}

// ---- Internals ----

var errNotFound = errors.New("playstore: not found")

// get performs a GET with client-side rate limiting, retries, and JSON decode
// into out. Retries on 429 and transient 5xx, honoring Retry-After when
// provided. Exhausted retries surface as domain.ErrSourceUnavailable.
func (c *Client) get(ctx context.Context, u, endpoint string, out any) error {
	// client-side rate limiting
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "bank-reviews/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			// network error or context canceled
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveSource(endpoint, 0, time.Since(start))
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, lastErr)
		}
		observability.ObserveSource(endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return errNotFound

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, lastErr)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	// seconds form
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	// HTTP-date form
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
