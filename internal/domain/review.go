package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceGooglePlay is the store every review in this pipeline comes from.
const SourceGooglePlay = "Google Play"

// Bank identifies one of the tracked banking apps.
type Bank string

const (
	BankCBE    Bank = "CBE"
	BankBOA    Bank = "BOA"
	BankDashen Bank = "Dashen"
)

func ParseBank(s string) (Bank, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cbe":
		return BankCBE, nil
	case "boa":
		return BankBOA, nil
	case "dashen":
		return BankDashen, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBank, s)
}

// RawRecord is the connector's output before normalization: the decoded
// source payload, field names untouched. Discarded after normalization.
type RawRecord map[string]any

// RejectedRecord is a RawRecord the normalizer refused, with the reason.
// Rejections are counted into the quality gate's missing-data ratio.
type RejectedRecord struct {
	Reason string
	Raw    RawRecord
}

// Rejection reasons.
const (
	RejectMissingRating = "missing_rating"
	RejectRatingRange   = "rating_out_of_range"
	RejectBadDate       = "bad_date"
)

// Review is the canonical entity persisted by the sinks. Immutable once
// written; re-runs skip rows whose identity key already exists.
type Review struct {
	SourceID   string    // source-assigned review id, provenance only
	Bank       Bank
	Text       string    // original casing preserved
	Rating     int       // 1..5
	Date       time.Time // UTC calendar date (midnight)
	Author     string
	AppVersion string
	ThumbsUp   int
	Source     string
}

// IdentityKey derives the dedup key: sha1 over bank, whitespace-collapsed
// lowercased text, calendar date and rating. Source ids are deliberately
// excluded; re-scrapes of edited reviews re-issue them.
func (r Review) IdentityKey() string {
	sig := strings.Join([]string{
		string(r.Bank),
		NormalizeText(r.Text),
		r.Date.Format("2006-01-02"),
		strconv.Itoa(r.Rating),
	}, "|")
	sum := sha1.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

// NormalizeText trims, lowercases and collapses runs of whitespace. Used for
// the identity key's text component only; stored text keeps original casing.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AppInfo is store-level metadata about one bank's app, logged at the start
// of a run for diagnostics.
type AppInfo struct {
	AppID   string
	Title   string
	Score   float64
	Ratings int64
	Reviews int64
}

// BankSummary aggregates the persisted reviews of one bank.
type BankSummary struct {
	Bank      Bank
	Count     int64
	AvgRating float64
	Histogram [5]int64 // index 0 = 1-star
}
