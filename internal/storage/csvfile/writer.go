// internal/storage/csvfile/writer.go
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bank_reviews/internal/domain"
)

var header = []string{"review", "rating", "date", "bank", "source"}

// Writer is the file-based sink: one CSV, header row, quoting per RFC 4180,
// no index column. A batch write is atomic: rows land via a temp file renamed
// over the target, and re-writing an overlapping batch adds no duplicate rows.
type Writer struct{ path string }

func New(path string) *Writer { return &Writer{path: path} }

func (w *Writer) Write(ctx context.Context, rs []domain.Review) (int, error) {
	existing, err := w.readAll()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.IdentityKey()] = struct{}{}
	}

	rows := existing
	written := 0
	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		k := r.IdentityKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, r)
		written++
	}
	if written == 0 {
		return 0, nil
	}
	if err := w.replace(rows); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return written, nil
}

func (w *Writer) Keys(_ context.Context, bank domain.Bank) (map[string]struct{}, error) {
	rows, err := w.readAll()
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.Bank == bank {
			keys[r.IdentityKey()] = struct{}{}
		}
	}
	return keys, nil
}

// ReadAll returns every persisted review in file order.
func (w *Writer) ReadAll() ([]domain.Review, error) { return w.readAll() }

func (w *Writer) readAll() ([]domain.Review, error) {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(header)
	if _, err := cr.Read(); err != nil { // header
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var out []domain.Review
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rating, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad rating %q", len(out)+2, rec[1])
		}
		date, err := time.Parse("2006-01-02", rec[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad date %q", len(out)+2, rec[2])
		}
		out = append(out, domain.Review{
			Text:   rec[0],
			Rating: rating,
			Date:   date,
			Bank:   domain.Bank(rec[3]),
			Source: rec[4],
		})
	}
	return out, nil
}

// replace writes all rows to a temp file in the target directory and renames
// it into place, so readers never see a half-written batch.
func (w *Writer) replace(rows []domain.Review) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Text,
			strconv.Itoa(r.Rating),
			r.Date.Format("2006-01-02"),
			string(r.Bank),
			r.Source,
		}
		if err := cw.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}
