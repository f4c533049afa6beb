package app

import "bank_reviews/internal/domain"

// Dedup returns the genuinely new reviews from rs, in input order, and the
// number dropped. seen carries identity keys already persisted (may be nil);
// keys of kept reviews are added to it, so exact and near duplicates
// (whitespace/casing variants hash to the same key) inside the batch fold too.
func Dedup(rs []domain.Review, seen map[string]struct{}) ([]domain.Review, int) {
	if seen == nil {
		seen = make(map[string]struct{}, len(rs))
	}
	fresh := make([]domain.Review, 0, len(rs))
	dropped := 0
	for _, r := range rs {
		k := r.IdentityKey()
		if _, dup := seen[k]; dup {
			dropped++
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, r)
	}
	return fresh, dropped
}
