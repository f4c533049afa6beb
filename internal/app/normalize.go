package app

import (
	"math"
	"strconv"
	"strings"
	"time"

	"bank_reviews/internal/domain"
)

/********** alias registries (single source of truth) **********/

// Raw payload field names drift between proxy versions; resolve each logical
// field through an alias list, first non-empty wins.
var rawAliases = map[string][]string{
	"id":       {"reviewId", "id", "review_id"},
	"text":     {"content", "text", "review_text", "review", "comment", "body"},
	"rating":   {"score", "rating", "rate", "stars"},
	"date":     {"at", "date", "review_date", "created", "createdAt", "timestamp"},
	"author":   {"userName", "author", "user_name", "reviewer", "user.name"},
	"version":  {"reviewCreatedVersion", "version", "app_version", "appVersion"},
	"thumbsUp": {"thumbsUpCount", "thumbs_up", "thumbsUp", "likes"},
}

// dateLayouts the source is known to emit, most common first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize maps one raw record into the canonical Review, or rejects it.
// Pure: rejects are returned, never thrown, and feed the quality gate's
// missing-data ratio.
func Normalize(raw domain.RawRecord, bank domain.Bank) (domain.Review, *domain.RejectedRecord) {
	reject := func(reason string) (domain.Review, *domain.RejectedRecord) {
		return domain.Review{}, &domain.RejectedRecord{Reason: reason, Raw: raw}
	}

	f := getFloatFlexible(raw, rawAliases["rating"]...)
	if f == nil {
		return reject(domain.RejectMissingRating)
	}
	if *f < 1 || *f > 5 || *f != math.Trunc(*f) {
		return reject(domain.RejectRatingRange)
	}
	rating := int(*f)

	date, ok := parseDate(raw, rawAliases["date"]...)
	if !ok {
		return reject(domain.RejectBadDate)
	}

	return domain.Review{
		SourceID:   deref(firstNonEmptyAlias(raw, rawAliases, "id")),
		Bank:       bank,
		Text:       collapseWS(deref(firstNonEmptyAlias(raw, rawAliases, "text"))),
		Rating:     rating,
		Date:       date,
		Author:     deref(firstNonEmptyAlias(raw, rawAliases, "author")),
		AppVersion: deref(firstNonEmptyAlias(raw, rawAliases, "version")),
		ThumbsUp:   intFlexible(raw, rawAliases["thumbsUp"]...),
		Source:     domain.SourceGooglePlay,
	}, nil
}

// parseDate accepts RFC3339 timestamps, "YYYY-MM-DD HH:MM:SS", bare calendar
// dates, or epoch seconds, and normalizes to the UTC calendar date.
func parseDate(m domain.RawRecord, paths ...string) (time.Time, bool) {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return toDate(t), true
				}
			}
		case float64:
			if v > 0 {
				return toDate(time.Unix(int64(v), 0)), true
			}
		case time.Time:
			return toDate(v), true
		}
	}
	return time.Time{}, false
}

func toDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// collapseWS squeezes runs of whitespace to single spaces, preserving casing.
func collapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m domain.RawRecord, path string) any {
	cur := any(map[string]any(m))
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m domain.RawRecord, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m domain.RawRecord, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// getFloatFlexible: number from several paths (float64/int/string like "4,0").
func getFloatFlexible(m domain.RawRecord, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func intFlexible(m domain.RawRecord, paths ...string) int {
	if f := getFloatFlexible(m, paths...); f != nil {
		return int(*f)
	}
	return 0
}
