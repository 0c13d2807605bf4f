// Package ranking scores filtered releases and orders them best first.
package ranking

import (
	"github.com/reelscout/reelscout/internal/filter"
	"github.com/reelscout/reelscout/internal/profile"
)

// Config holds the base points of each signal before profile weights apply.
type Config struct {
	// Title similarity
	SimilarityPoints float64 // default: 100 (per unit of similarity)

	// Quality
	ResolutionPoints float64 // default: 50 per resolution rank
	HDRPoints        float64 // default: 10

	// Size and bitrate curves
	SizePoints      float64 // default: 20
	BitratePoints   float64 // default: 20
	CurveExponent   float64 // default: 1.5
	EpisodeSizeCap  float64 // default: 3 GB, used when the profile has no max
	MovieSizeCap    float64 // default: 30 GB, used when the profile has no max
	TranslatedBonus float64 // default: 100
	TranslatedMiss  float64 // default: -25

	// Country
	CountryMatchPoints     float64 // default: 10
	CountryMismatchPenalty float64 // default: -5

	// Year
	YearExactPoints     float64 // default: 5
	YearNearPoints      float64 // default: 2.5
	YearMismatchPenalty float64 // default: -5

	// TV coordinates
	SeasonMatchPoints  float64 // default: 25
	EpisodeMatchPoints float64 // default: 25
	PackBonus          float64 // default: 30, multi mode only
	PackPenalty        float64 // default: -500, single-episode mode
	ContentPenalty     float64 // default: -500
	AnimeExactBonus    float64 // default: 10
	AnimeBatchPenalty  float64 // default: -50
}

// DefaultConfig returns the standard point values.
func DefaultConfig() Config {
	return Config{
		SimilarityPoints: 100,

		ResolutionPoints: 50,
		HDRPoints:        10,

		SizePoints:      20,
		BitratePoints:   20,
		CurveExponent:   1.5,
		EpisodeSizeCap:  3,
		MovieSizeCap:    30,
		TranslatedBonus: 100,
		TranslatedMiss:  -25,

		CountryMatchPoints:     10,
		CountryMismatchPenalty: -5,

		YearExactPoints:     5,
		YearNearPoints:      2.5,
		YearMismatchPenalty: -5,

		SeasonMatchPoints:  25,
		EpisodeMatchPoints: 25,
		PackBonus:          30,
		PackPenalty:        -500,
		ContentPenalty:     -500,
		AnimeExactBonus:    10,
		AnimeBatchPenalty:  -50,
	}
}

// Breakdown is the weighted contribution of every signal.
type Breakdown struct {
	Similarity   float64 `json:"similarity_score"`
	Resolution   float64 `json:"resolution_score"`
	HDR          float64 `json:"hdr_score"`
	Size         float64 `json:"size_score"`
	Bitrate      float64 `json:"bitrate_score"`
	Country      float64 `json:"country_score"`
	Language     float64 `json:"language_score"`
	Year         float64 `json:"year_score"`
	SeasonMatch  float64 `json:"season_match_score"`
	EpisodeMatch float64 `json:"episode_match_score"`
	Pack         float64 `json:"pack_score"`
	Content      float64 `json:"content_score"`
	Preferred    float64 `json:"preferred_score"`
	Total        float64 `json:"total_score"`
}

func (b *Breakdown) sum() float64 {
	return b.Similarity + b.Resolution + b.HDR + b.Size + b.Bitrate + b.Country +
		b.Language + b.Year + b.SeasonMatch + b.EpisodeMatch + b.Pack + b.Content + b.Preferred
}

// Result is a ranked candidate.
type Result struct {
	filter.Candidate
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"score_breakdown"`
}

// Options are process-wide ordering modes.
type Options struct {
	UltimateSort profile.UltimateSort
	SoftMaxSize  bool
}
