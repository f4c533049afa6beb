package app

import (
	"fmt"

	"bank_reviews/internal/domain"
)

// DefaultMaxMissingRatio is the rejected/fetched ceiling a batch may carry.
const DefaultMaxMissingRatio = 0.05

// Gate decides whether a batch is fit to persist. Fails closed: accepted must
// reach minCount (strictly: 399 accepted against a 400 minimum fails) and the
// missing-data ratio must not exceed maxMissingRatio.
func Gate(accepted, rejected, fetched, minCount int, maxMissingRatio float64) domain.GateReport {
	rep := domain.GateReport{
		Accepted:        accepted,
		Rejected:        rejected,
		Fetched:         fetched,
		MinCount:        minCount,
		MaxMissingRatio: maxMissingRatio,
	}
	if fetched > 0 {
		rep.MissingRatio = float64(rejected) / float64(fetched)
	}

	if accepted < minCount {
		rep.Reasons = append(rep.Reasons,
			fmt.Sprintf("accepted %d below minimum %d", accepted, minCount))
	}
	if rep.MissingRatio > maxMissingRatio {
		rep.Reasons = append(rep.Reasons,
			fmt.Sprintf("missing-data ratio %.3f above %.3f", rep.MissingRatio, maxMissingRatio))
	}
	rep.Pass = len(rep.Reasons) == 0
	return rep
}
