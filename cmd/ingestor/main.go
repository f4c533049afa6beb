package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"bank_reviews/internal/adapters/observability"
	"bank_reviews/internal/adapters/playstore"
	redisad "bank_reviews/internal/adapters/redis"
	"bank_reviews/internal/app"
	"bank_reviews/internal/domain"
	"bank_reviews/internal/shared"
	"bank_reviews/internal/storage/csvfile"
	mysqlrepo "bank_reviews/internal/storage/mysql"
)

// Exit codes: 0 all banks Written, 2 at least one Incomplete, 1 anything
// fatal (source or storage unavailable, bad flags).
const (
	exitFatal      = 1
	exitIncomplete = 2
)

var flags struct {
	bank     string
	out      string
	count    int
	minCount int
	force    bool
}

func main() {
	root := &cobra.Command{
		Use:           "ingestor",
		Short:         "Scrape, normalize, deduplicate and persist bank app reviews",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVar(&flags.bank, "bank", "", "single bank to ingest (CBE|BOA|Dashen); default all")
	root.Flags().StringVar(&flags.out, "out", "", "sink: CSV path (*.csv) or MySQL DSN; default MYSQL_DSN")
	root.Flags().IntVar(&flags.count, "count", 0, "target review count to fetch per bank")
	root.Flags().IntVar(&flags.minCount, "min-count", 0, "quality gate minimum accepted count")
	root.Flags().BoolVar(&flags.force, "force", false, "write the batch even when the quality gate fails")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("ingestion failed")
		if errors.Is(err, domain.ErrIncomplete) {
			os.Exit(exitIncomplete)
		}
		os.Exit(exitFatal)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "ingestor")
	observability.Serve(cfg.MetricsAddr)

	if flags.count <= 0 {
		flags.count = cfg.ReviewTarget
	}
	if flags.minCount <= 0 {
		flags.minCount = cfg.MinCount
	}

	banks := shared.BankApps()
	if flags.bank != "" {
		b, err := domain.ParseBank(flags.bank)
		if err != nil {
			return err
		}
		var sel []shared.BankApp
		for _, ba := range banks {
			if ba.Bank == string(b) {
				sel = append(sel, ba)
			}
		}
		if len(sel) == 0 {
			return fmt.Errorf("%w: no app id configured for %s", domain.ErrUnknownBank, b)
		}
		banks = sel
	}

	sink, runs, closeSink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	client, err := playstore.New(cfg.PlayBase, cfg.PlayLang, cfg.PlayCountry, cfg.PlayRPS)
	if err != nil {
		return err
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	ing := app.NewIngestionService(client, sink, runs, cache, app.Options{
		MinCount:        flags.minCount,
		MaxMissingRatio: cfg.MaxMissingRatio,
	})

	log.Info().Str("base", cfg.PlayBase).Int("banks", len(banks)).
		Int("target", flags.count).Int("min_count", flags.minCount).
		Msg("ingestor starting")

	return ingestAll(ctx, ing, banks, cfg.Workers)
}

type bankIngester interface {
	IngestBank(ctx context.Context, bank domain.Bank, appID string, target int, force bool) (domain.RunReport, error)
}

// ingestAll fans out one run per bank, bounded by workers. It always waits
// for in-flight runs before returning, even when a cancelled context aborts
// the fan-out, so callers can safely close the sink afterwards.
func ingestAll(ctx context.Context, ing bankIngester, banks []shared.BankApp, workers int) error {
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var incomplete, fatal []string
	var acquireErr error

	for _, ba := range banks {
		ba := ba

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			acquireErr = err
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			rep, err := ing.IngestBank(ctx, domain.Bank(ba.Bank), ba.AppID, flags.count, flags.force)
			logReport(rep, ba.DisplayName)
			if err == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, domain.ErrIncomplete) {
				incomplete = append(incomplete, ba.Bank)
			} else {
				log.Error().Err(err).Str("bank", ba.Bank).Msg("bank run failed")
				fatal = append(fatal, ba.Bank)
			}
		}()
	}
	wg.Wait()

	if acquireErr != nil {
		return acquireErr
	}
	if len(fatal) > 0 {
		return fmt.Errorf("ingestion failed for %s", strings.Join(fatal, ", "))
	}
	if len(incomplete) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrIncomplete, strings.Join(incomplete, ", "))
	}
	log.Info().Msg("ingestion completed")
	return nil
}

// openSink picks the sink from --out: a *.csv path writes CSV, anything else
// is a MySQL DSN. The MySQL sink also records run reports; CSV runs don't.
func openSink(cfg shared.Config) (domain.ReviewSink, domain.RunLogger, func(), error) {
	out := flags.out
	if out == "" {
		out = cfg.MySQLDSN
	}
	if strings.HasSuffix(strings.ToLower(out), ".csv") {
		return csvfile.New(out), nil, func() {}, nil
	}

	db, err := sql.Open("mysql", out)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: sql.Open: %v", domain.ErrStorageUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("%w: ping: %v", domain.ErrStorageUnavailable, err)
	}
	log.Info().Msg("db ping ok")
	repo := mysqlrepo.New(db)
	return repo, repo, func() { _ = db.Close() }, nil
}

func logReport(rep domain.RunReport, display string) {
	log.Info().
		Str("bank", string(rep.Bank)).
		Str("name", display).
		Str("state", string(rep.State)).
		Int("fetched", rep.Fetched).
		Int("rejected", rep.Rejected).
		Int("duplicates", rep.Duplicates).
		Int("written", rep.Written).
		Bool("gate_pass", rep.Gate.Pass).
		Float64("missing_ratio", rep.Gate.MissingRatio).
		Dur("elapsed", rep.Elapsed).
		Msg("run report")
}
