package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bank_reviews/internal/domain"
)

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Repo is the durable sink and read store. Writes are one transaction per
// batch: all new rows become visible together or not at all.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Write inserts the batch inside a single transaction with insert-or-skip
// semantics on the identity key, and reports how many rows were new. Rows
// already present (WriteConflict) are skipped silently, never an error.
func (r *Repo) Write(ctx context.Context, rs []domain.Review) (int, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*10)
	for _, rv := range rs {
		values = append(values, insertReviewsRow)
		args = append(args,
			rv.IdentityKey(),
			nullStr(rv.SourceID),
			string(rv.Bank),
			rv.Text,
			rv.Rating,
			rv.Date.Format("2006-01-02"),
			nullStr(rv.Author),
			nullStr(rv.AppVersion),
			rv.ThumbsUp,
			rv.Source,
		)
	}
	res, err := tx.ExecContext(ctx, insertReviewsPrefix+strings.Join(values, ","), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: insert reviews: %v", domain.ErrStorageUnavailable, err)
	}
	written, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", domain.ErrStorageUnavailable, err)
	}
	return int(written), nil
}

// Keys loads every persisted identity key for a bank, for idempotent re-runs.
func (r *Repo) Keys(ctx context.Context, bank domain.Bank) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, loadKeysSQL, string(bank))
	if err != nil {
		return nil, fmt.Errorf("%w: load keys: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func (r *Repo) LogRun(ctx context.Context, rep domain.RunReport) error {
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		string(rep.Bank),
		string(rep.State),
		rep.Fetched,
		rep.Rejected,
		rep.Duplicates,
		rep.Written,
		rep.Forced,
		rep.Gate.Pass,
		strings.Join(rep.Gate.Reasons, "; "),
		rep.Elapsed.Milliseconds(),
	)
	return err
}

func (r *Repo) ListReviews(ctx context.Context, bank domain.Bank, pg domain.PageQuery) (domain.ReviewsPage, error) {
	limit := pg.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, string(bank), limit)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		var sourceID, author, version sql.NullString
		var bankCol string
		if err := rows.Scan(&sourceID, &bankCol, &rv.Text, &rv.Rating, &rv.Date,
			&author, &version, &rv.ThumbsUp, &rv.Source); err != nil {
			return domain.ReviewsPage{}, err
		}
		rv.Bank = domain.Bank(bankCol)
		rv.SourceID = sourceID.String
		rv.Author = author.String
		rv.AppVersion = version.String
		out = append(out, rv)
	}
	return domain.ReviewsPage{Items: out}, rows.Err()
}

// Summary aggregates counts and the ratings histogram for one bank.
func (r *Repo) Summary(ctx context.Context, bank domain.Bank) (domain.BankSummary, error) {
	rows, err := r.db.QueryContext(ctx, summarySQL, string(bank))
	if err != nil {
		return domain.BankSummary{}, err
	}
	defer rows.Close()

	sum := domain.BankSummary{Bank: bank}
	var weighted int64
	for rows.Next() {
		var rating int
		var n int64
		if err := rows.Scan(&rating, &n); err != nil {
			return domain.BankSummary{}, err
		}
		if rating >= 1 && rating <= 5 {
			sum.Histogram[rating-1] = n
		}
		sum.Count += n
		weighted += int64(rating) * n
	}
	if err := rows.Err(); err != nil {
		return domain.BankSummary{}, err
	}
	if sum.Count == 0 {
		return domain.BankSummary{}, domain.ErrNotFound
	}
	sum.AvgRating = float64(weighted) / float64(sum.Count)
	return sum, nil
}
