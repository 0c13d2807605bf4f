package scrape

import (
	"math"
	"strconv"
	"strings"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

// DedupeKey returns the identity of a result: its trimmed magnet when one is
// known, else the lowercase title with the size rounded to 10 MB.
func DedupeKey(r types.RawResult) string {
	if r.Magnet != "" {
		return types.TrimMagnet(r.Magnet)
	}
	if hash := types.NormalizeInfoHash(r.InfoHash); hash != "" {
		return "magnet:?xt=urn:btih:" + hash
	}
	size := math.Round(r.SizeGB*100) / 100
	return strings.ToLower(strings.TrimSpace(r.Title)) + "|" + strconv.FormatFloat(size, 'f', 2, 64)
}

// Dedupe collapses results sharing a key. The result with more populated
// fields wins, then the one with more seeders. First-seen order is kept.
func Dedupe(results []types.RawResult) []types.RawResult {
	if len(results) == 0 {
		return results
	}

	seen := make(map[string]int, len(results))
	out := make([]types.RawResult, 0, len(results))
	for _, r := range results {
		key := DedupeKey(r)
		idx, exists := seen[key]
		if !exists {
			seen[key] = len(out)
			out = append(out, r)
			continue
		}
		if better(r, out[idx]) {
			out[idx] = r
		}
	}
	return out
}

func better(candidate, existing types.RawResult) bool {
	cr, er := candidate.Richness(), existing.Richness()
	if cr != er {
		return cr > er
	}
	return candidate.SeederCount() > existing.SeederCount()
}
