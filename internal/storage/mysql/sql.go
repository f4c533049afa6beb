package mysql

// Note: `text` is reserved; keep it quoted everywhere.
// INSERT IGNORE + the unique key on identity_key gives insert-or-skip
// semantics: re-running a batch affects zero rows.
const insertReviewsPrefix = "INSERT IGNORE INTO reviews\n" +
	"  (identity_key, source_id, bank, `text`, rating, review_date, author, app_version, thumbs_up, source)\nVALUES "

const insertReviewsRow = "(?,?,?,?,?,?,?,?,?,?)"

const loadKeysSQL = `
SELECT identity_key FROM reviews WHERE bank = ?
`

const insertRunSQL = `
INSERT INTO ingest_runs
  (bank, state, fetched, rejected, duplicates, written, forced, gate_pass, gate_reasons, elapsed_ms)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const listReviewsSQL = "SELECT source_id, bank, `text`, rating, review_date, author, app_version, thumbs_up, source\n" +
	"FROM reviews\nWHERE bank = ?\nORDER BY review_date DESC, id DESC\nLIMIT ?"

const summarySQL = `
SELECT rating, COUNT(*)
FROM reviews
WHERE bank = ?
GROUP BY rating
`
