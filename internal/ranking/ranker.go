package ranking

import (
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/filter"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/parser"
	"github.com/reelscout/reelscout/internal/profile"
	"github.com/reelscout/reelscout/internal/titlematch"
)

// translatedMatch is the similarity above which a release counts as carrying
// the translated title.
const translatedMatch = 0.90

// Ranker calculates composite scores for filtered releases.
type Ranker struct {
	config Config
	logger zerolog.Logger
}

// NewRanker creates a ranker with the given config.
func NewRanker(config Config, logger zerolog.Logger) *Ranker {
	return &Ranker{
		config: config,
		logger: logger.With().Str("component", "ranker").Logger(),
	}
}

// NewDefaultRanker creates a ranker with default points.
func NewDefaultRanker(logger zerolog.Logger) *Ranker {
	return NewRanker(DefaultConfig(), logger)
}

// Score computes the breakdown for one candidate.
func (r *Ranker) Score(c filter.Candidate, q types.Query, prof *profile.Compiled) Breakdown {
	w := prof.Weights
	p := c.Parsed
	b := Breakdown{}

	b.Similarity = w.Similarity * c.Similarity * r.config.SimilarityPoints
	b.Resolution = w.Resolution * float64(p.ResolutionRank) * r.config.ResolutionPoints
	if p.IsHDR && prof.EnableHDR {
		b.HDR = w.HDR * r.config.HDRPoints
	}
	b.Size = w.Size * r.sizeScore(c, q, prof)
	b.Bitrate = w.Bitrate * r.bitrateScore(c, p, prof)
	b.Country = w.Country * r.countryScore(p, q)
	b.Language = w.Language * (r.translatedScore(c, q) + c.CodeAdjustment)
	b.Year = w.YearMatch * r.yearScore(p, q)

	if q.IsEpisode() {
		b.SeasonMatch, b.EpisodeMatch = r.matchScores(p, q)
		b.Pack = r.packScore(p, q)
	}
	b.Content = r.contentScore(p, q)
	b.Preferred = preferredScore(c, prof)

	b.Total = b.sum()
	return b
}

// Rank scores the candidates and sorts them by the tie-break chain: total
// score, year, season and episode match, then title.
func (r *Ranker) Rank(cands []filter.Candidate, q types.Query, prof *profile.Compiled) []Result {
	out := make([]Result, len(cands))
	for i, c := range cands {
		b := r.Score(c, q, prof)
		out[i] = Result{Candidate: c, Score: b.Total, Breakdown: b}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Breakdown.Year != b.Breakdown.Year {
		return a.Breakdown.Year > b.Breakdown.Year
	}
	if a.Breakdown.SeasonMatch != b.Breakdown.SeasonMatch {
		return a.Breakdown.SeasonMatch > b.Breakdown.SeasonMatch
	}
	if a.Breakdown.EpisodeMatch != b.Breakdown.EpisodeMatch {
		return a.Breakdown.EpisodeMatch > b.Breakdown.EpisodeMatch
	}
	return a.Title < b.Title
}

// Finalize ranks a filter outcome and applies the global ordering modes. When
// nothing passed and soft max size is on, the size-rejected survivors are
// returned instead, ordered by score and then by size ascending; fellBack
// reports that case.
func (r *Ranker) Finalize(out *filter.Outcome, q types.Query, prof *profile.Compiled, opts Options) (results []Result, fellBack bool) {
	if len(out.Passing) == 0 && opts.SoftMaxSize && len(out.PreSize) > 0 {
		results = r.Rank(out.PreSize, q, prof)
		sort.SliceStable(results, func(i, j int) bool {
			a, b := results[i], results[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if a.SizeGBPerItem != b.SizeGBPerItem {
				return a.SizeGBPerItem < b.SizeGBPerItem
			}
			return less(a, b)
		})
		r.logger.Info().
			Str("imdbId", q.IMDbID).
			Int("results", len(results)).
			Msg("No results within size limits, falling back to size-rejected releases")
		return results, true
	}

	results = r.Rank(out.Passing, q, prof)
	switch opts.UltimateSort {
	case profile.UltimateSortSizeDesc:
		sort.SliceStable(results, func(i, j int) bool { return totalSize(results[i]) > totalSize(results[j]) })
	case profile.UltimateSortSizeAsc:
		sort.SliceStable(results, func(i, j int) bool { return totalSize(results[i]) < totalSize(results[j]) })
	}
	return results, false
}

func totalSize(r Result) float64 {
	if r.TotalSizeGB > 0 {
		return r.TotalSizeGB
	}
	return r.SizeGB
}

// curve maps value onto [0,1] between floor and ref, raised to the exponent.
func (r *Ranker) curve(value, floor, ref float64) float64 {
	if ref <= floor || value <= floor {
		return 0
	}
	x := (value - floor) / (ref - floor)
	if x > 1 {
		x = 1
	}
	return math.Pow(x, r.config.CurveExponent)
}

func (r *Ranker) sizeScore(c filter.Candidate, q types.Query, prof *profile.Compiled) float64 {
	ref := prof.MaxSizeGB
	if ref <= 0 {
		ref = r.config.MovieSizeCap
		if q.IsEpisode() {
			ref = r.config.EpisodeSizeCap
		}
	}
	return r.curve(c.SizeGBPerItem, prof.MinSizeGB, ref) * r.config.SizePoints
}

func (r *Ranker) bitrateScore(c filter.Candidate, p *parser.ParsedInfo, prof *profile.Compiled) float64 {
	ref := prof.MaxBitrateMbps
	if ref <= 0 {
		ref = bitrateCap(p.ResolutionRank)
	}
	return r.curve(c.BitrateKbps/1000, prof.MinBitrateMbps, ref) * r.config.BitratePoints
}

// bitrateCap is the reference Mbps per resolution.
func bitrateCap(rank int) float64 {
	switch rank {
	case 4:
		return 25
	case 3:
		return 12
	case 2:
		return 6
	default:
		return 3
	}
}

func (r *Ranker) countryScore(p *parser.ParsedInfo, q types.Query) float64 {
	want := canonicalCountry(q.Country)
	switch {
	case p.Country != "" && want != "" && p.Country == want:
		return r.config.CountryMatchPoints
	case p.Country == "" && want == "US":
		return r.config.CountryMatchPoints
	case p.Country != "" && want != "" && p.Country != want:
		return r.config.CountryMismatchPenalty
	}
	return 0
}

func canonicalCountry(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "GB" {
		return "UK"
	}
	return c
}

func (r *Ranker) translatedScore(c filter.Candidate, q types.Query) float64 {
	if strings.TrimSpace(q.TranslatedTitle) == "" {
		return 0
	}
	if titlematch.Score(c.Title, c.Parsed.Title, q.TranslatedTitle) > translatedMatch {
		return r.config.TranslatedBonus
	}
	return r.config.TranslatedMiss
}

func (r *Ranker) yearScore(p *parser.ParsedInfo, q types.Query) float64 {
	year := q.Year
	if q.IsEpisode() && q.SeasonYear > 0 {
		year = q.SeasonYear
	}
	switch {
	case year == 0 || len(p.Years) == 0:
		return 0
	case p.HasYear(year, 0):
		return r.config.YearExactPoints
	case p.HasYear(year, 1):
		return r.config.YearNearPoints
	}
	return r.config.YearMismatchPenalty
}

func (r *Ranker) matchScores(p *parser.ParsedInfo, q types.Query) (season, episode float64) {
	se := p.SeasonEpisode
	if q.IsAnime || slices.Contains(se.Seasons, q.Season) {
		season = r.config.SeasonMatchPoints
	}
	if q.Episode > 0 && slices.Contains(se.Episodes, q.Episode) {
		episode = r.config.EpisodeMatchPoints
	} else if q.IsAnime && matchesAbsolute(se.Episodes, q) {
		episode = r.config.EpisodeMatchPoints
	}
	return season, episode
}

func matchesAbsolute(episodes []int, q types.Query) bool {
	for _, n := range filter.AbsoluteNumbers(q) {
		if slices.Contains(episodes, n) {
			return true
		}
	}
	return false
}

func (r *Ranker) packScore(p *parser.ParsedInfo, q types.Query) float64 {
	if !p.IsPack() {
		return 0
	}
	if !q.Multi {
		return r.config.PackPenalty
	}
	if p.IsCompletePack() || slices.Contains(p.SeasonEpisode.Seasons, q.Season) {
		return r.config.PackBonus
	}
	return 0
}

func (r *Ranker) contentScore(p *parser.ParsedInfo, q types.Query) float64 {
	if !q.IsEpisode() {
		if p.HasTVMarkers() {
			return r.config.ContentPenalty
		}
		return 0
	}

	score := 0.0
	// A spanning year range marks a collection.
	if !p.HasTVMarkers() && len(p.Years) < 2 {
		score += r.config.ContentPenalty
	}
	if q.IsAnime && !q.Multi {
		eps := p.SeasonEpisode.Episodes
		switch {
		case len(eps) == 1 && (eps[0] == q.Episode || matchesAbsolute(eps, q)):
			score += r.config.AnimeExactBonus
		case len(eps) > 1 && !slices.Contains(eps, q.Episode) && !matchesAbsolute(eps, q):
			score += r.config.AnimeBatchPenalty
		}
	}
	return score
}

// preferredScore adds the weight of every matching preferred pattern. Patterns
// that normalise to the same key count once.
func preferredScore(c filter.Candidate, prof *profile.Compiled) float64 {
	texts := []string{c.Title, c.Filename}
	score := 0.0

	seen := make(map[string]bool)
	for _, wp := range prof.PreferredIn {
		if seen[wp.Key] || !wp.Match(texts...) {
			continue
		}
		seen[wp.Key] = true
		score += wp.Weight
	}

	seen = make(map[string]bool)
	for _, wp := range prof.PreferredOut {
		if seen[wp.Key] || !wp.Match(texts...) {
			continue
		}
		seen[wp.Key] = true
		score -= wp.Weight
	}
	return score
}
