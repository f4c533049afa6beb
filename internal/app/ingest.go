package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"bank_reviews/internal/adapters/observability"
	"bank_reviews/internal/domain"
)

// Options tune one pipeline run. Zero values fall back to the defaults below.
type Options struct {
	PageSize        int     // records per source page
	MinCount        int     // quality gate minimum accepted count
	MaxMissingRatio float64 // quality gate rejected/fetched ceiling
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 150
	}
	if o.MinCount <= 0 {
		o.MinCount = 400
	}
	if o.MaxMissingRatio <= 0 {
		o.MaxMissingRatio = DefaultMaxMissingRatio
	}
	return o
}

// IngestionService drives one bank's batch through the pipeline:
// fetch → normalize → dedup → gate → write. Runs for different banks share
// nothing but the sink, whose identity-key conflict target makes concurrent
// writes safe.
type IngestionService struct {
	source domain.ReviewSource
	sink   domain.ReviewSink
	runs   domain.RunLogger // optional
	cache  domain.Cache     // optional, invalidated after writes
	opts   Options
}

func NewIngestionService(src domain.ReviewSource, sink domain.ReviewSink, runs domain.RunLogger, cache domain.Cache, opts Options) *IngestionService {
	return &IngestionService{source: src, sink: sink, runs: runs, cache: cache, opts: opts.withDefaults()}
}

// IngestBank runs the full pipeline for one bank. force writes the batch even
// when the quality gate fails (the operator override for Incomplete batches).
// The returned report is populated on every path, including failures.
func (s *IngestionService) IngestBank(ctx context.Context, bank domain.Bank, appID string, target int, force bool) (domain.RunReport, error) {
	start := time.Now()
	rep := domain.RunReport{Bank: bank, State: domain.StatePending, Forced: force}
	finish := func(err error) (domain.RunReport, error) {
		rep.Elapsed = time.Since(start)
		observability.ObserveRun(string(bank), string(rep.State))
		if s.runs != nil {
			if lerr := s.runs.LogRun(ctx, rep); lerr != nil {
				log.Warn().Err(lerr).Str("bank", string(bank)).Msg("run log failed")
			}
		}
		return rep, err
	}

	// App metadata is diagnostics only; a miss never fails the run.
	if info, err := s.source.AppInfo(ctx, appID); err != nil {
		log.Warn().Err(err).Str("bank", string(bank)).Msg("app info unavailable")
	} else {
		log.Info().Str("bank", string(bank)).Str("title", info.Title).
			Float64("score", info.Score).Int64("ratings", info.Ratings).
			Msg("app info")
	}

	// Fetching. Cancellation is honored between pages, never mid-write.
	rep.State = domain.StateFetching
	raws, err := s.fetch(ctx, appID, target)
	rep.Fetched = len(raws)
	observability.ObserveStage(string(bank), "fetched", rep.Fetched)
	if err != nil {
		return finish(fmt.Errorf("fetch %s: %w", bank, err))
	}

	// Normalizing: record-level failures are absorbed into the report.
	rep.State = domain.StateNormalizing
	accepted := make([]domain.Review, 0, len(raws))
	for _, raw := range raws {
		rv, rej := Normalize(raw, bank)
		if rej != nil {
			rep.Rejected++
			log.Debug().Str("bank", string(bank)).Str("reason", rej.Reason).Msg("record rejected")
			continue
		}
		accepted = append(accepted, rv)
	}
	observability.ObserveStage(string(bank), "rejected", rep.Rejected)
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	// Deduplicating against this batch and everything already persisted.
	rep.State = domain.StateDeduplicating
	seen, err := s.sink.Keys(ctx, bank)
	if err != nil {
		return finish(fmt.Errorf("load keys %s: %w", bank, err))
	}
	fresh, dropped := Dedup(accepted, seen)
	rep.Duplicates = dropped
	observability.ObserveStage(string(bank), "duplicate", dropped)
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	// Quality gate, fail closed.
	rep.Gate = Gate(len(fresh), rep.Rejected, rep.Fetched, s.opts.MinCount, s.opts.MaxMissingRatio)
	if !rep.Gate.Pass {
		rep.State = domain.StateQualityFailed
		log.Warn().Str("bank", string(bank)).Strs("reasons", rep.Gate.Reasons).
			Int("accepted", rep.Gate.Accepted).Msg("quality gate failed")
		if !force {
			return finish(fmt.Errorf("%s: %w", bank, domain.ErrIncomplete))
		}
		log.Warn().Str("bank", string(bank)).Msg("forced write despite failed gate")
	} else {
		rep.State = domain.StateQualityPassed
	}

	written, err := s.sink.Write(ctx, fresh)
	rep.Written = written
	observability.ObserveStage(string(bank), "written", written)
	if err != nil {
		return finish(fmt.Errorf("write %s: %w", bank, err))
	}
	rep.State = domain.StateWritten
	s.invalidate(ctx, bank)

	log.Info().Str("bank", string(bank)).
		Int("fetched", rep.Fetched).Int("rejected", rep.Rejected).
		Int("duplicates", rep.Duplicates).Int("written", rep.Written).
		Dur("elapsed", time.Since(start)).Msg("bank ingested")
	return finish(nil)
}

// fetch pulls pages until target records or the cursor runs out. A truncated
// result is not an error here; the quality gate judges sufficiency.
func (s *IngestionService) fetch(ctx context.Context, appID string, target int) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	cursor := ""
	for len(out) < target {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		size := s.opts.PageSize
		if rest := target - len(out); rest < size {
			size = rest
		}
		page, err := s.source.Reviews(ctx, appID, cursor, size)
		if err != nil {
			return out, err
		}
		out = append(out, page.Records...)
		if page.Next == "" || len(page.Records) == 0 {
			break
		}
		cursor = page.Next
	}
	return out, nil
}

// invalidate drops the read caches a write makes stale: the bank summary,
// plus a bump of the bank's write version, which orphans every cached list
// page whatever limit or sort it was stored under.
func (s *IngestionService) invalidate(ctx context.Context, bank domain.Bank) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, fmt.Sprintf("summary:%s", bank))
	_ = s.cache.Set(ctx, ListVersionKey(bank), time.Now().UnixNano(), 0)
}
