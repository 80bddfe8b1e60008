package browser

import (
	"context"
	"time"

	"teklif/internal/logger"
	"teklif/internal/types"
)

// minCandidateBudget is the floor for the per-candidate share of the total
// wait. Markup that takes longer than this to render is handled by putting
// the slow selector earlier in the candidate list.
const minCandidateBudget = 300 * time.Millisecond

// Resolve walks the ordered candidate list and returns the first
// descriptor that becomes visible within its share of wait. The order is
// authored per field by whoever configures the provider driver; first
// match wins, the resolver never guesses.
func Resolve(ctx context.Context, page Page, candidates []Descriptor, wait time.Duration) (Descriptor, error) {
	if len(candidates) == 0 {
		return Descriptor{}, &types.ElementNotFoundError{}
	}
	budget := wait / time.Duration(len(candidates))
	if budget < minCandidateBudget {
		budget = minCandidateBudget
	}

	tried := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return Descriptor{}, err
		}
		attemptCtx, cancel := context.WithTimeout(ctx, budget)
		err := page.WaitVisible(attemptCtx, cand)
		cancel()
		if err == nil {
			return cand, nil
		}
		logger.Debugf("locator candidate missed: %s (%v)", cand, err)
		tried = append(tried, cand.String())
	}
	return Descriptor{}, &types.ElementNotFoundError{Tried: tried}
}
