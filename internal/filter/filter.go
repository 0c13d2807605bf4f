// Package filter decides which scraped releases satisfy a query and a version
// profile. Every check returns a Verdict; the first rejection wins and its
// reason is stored on the candidate.
package filter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/parser"
	"github.com/reelscout/reelscout/internal/profile"
	"github.com/reelscout/reelscout/internal/state"
)

// Verdict is the outcome of a single check.
type Verdict struct {
	Passed bool
	Reason string
}

var passed = Verdict{Passed: true}

func reject(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Candidate is a scraped release with the fields the filter derives for it.
type Candidate struct {
	types.RawResult
	Parsed *parser.ParsedInfo `json:"parsed,omitempty"`

	Similarity   float64 `json:"similarity"`
	MatchedTitle string  `json:"matched_title,omitempty"`

	SizeGBPerItem float64 `json:"size_gb_per_item"`
	TotalSizeGB   float64 `json:"total_size_gb"`
	BitrateKbps   float64 `json:"bitrate_kbps"`
	NumItems      int     `json:"num_items_in_pack"`

	// CodeAdjustment is the language-code gate's deranking, zero or negative.
	CodeAdjustment float64 `json:"code_adjustment,omitempty"`
	FilterReason   string  `json:"filter_reason,omitempty"`
}

// Options are process-wide filter switches.
type Options struct {
	FilterTrash  bool
	DisableAdult bool
	// States answers pack wantedness. Nil disables the check.
	States state.Provider
}

// Outcome splits a scrape's results.
type Outcome struct {
	Passing []Candidate
	// PreSize holds every candidate that passed all checks except size and
	// bitrate. It is a superset of Passing.
	PreSize  []Candidate
	Rejected []Candidate
}

// Filter applies the check pipeline.
type Filter struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a filter.
func New(opts Options, logger zerolog.Logger) *Filter {
	return &Filter{
		opts:   opts,
		logger: logger.With().Str("component", "filter").Logger(),
	}
}

type check struct {
	name string
	run  func(*evaluation) Verdict
	// size checks do not exclude a candidate from Outcome.PreSize.
	size bool
}

// evaluation carries one candidate through the pipeline.
type evaluation struct {
	ctx   context.Context
	f     *Filter
	query types.Query
	prof  *profile.Compiled
	gate  codeGate
	cand  *Candidate
}

func (e *evaluation) parsed() *parser.ParsedInfo { return e.cand.Parsed }

func (f *Filter) checks() []check {
	return []check{
		{name: "parse", run: checkParsed},
		{name: "language_code", run: checkLanguageCode},
		{name: "similarity", run: checkSimilarity},
		{name: "resolution", run: checkResolution},
		{name: "hdr", run: checkHDR},
		{name: "movie_year", run: checkMovieYear},
		{name: "episode_year", run: checkEpisodeYear},
		{name: "season_episode", run: checkSeasonEpisode},
		{name: "pack_wanted", run: checkPackWanted},
		{name: "size", run: checkSize, size: true},
		{name: "patterns", run: checkPatterns},
		{name: "adult", run: checkAdult},
		{name: "special", run: checkSpecialCases},
	}
}

// Apply evaluates every result against the query and profile.
func (f *Filter) Apply(ctx context.Context, results []types.RawResult, query types.Query, prof *profile.Compiled) *Outcome {
	out := &Outcome{}
	gate := newCodeGate(query)
	checks := f.checks()

	for _, r := range results {
		cand := Candidate{RawResult: r, Parsed: parser.Parse(r.Title)}
		e := &evaluation{ctx: ctx, f: f, query: query, prof: prof, gate: gate, cand: &cand}

		reason, sizeOnly := f.evaluate(e, checks)
		switch {
		case reason == "":
			out.Passing = append(out.Passing, cand)
			out.PreSize = append(out.PreSize, cand)
		case sizeOnly:
			cand.FilterReason = reason
			out.PreSize = append(out.PreSize, cand)
			out.Rejected = append(out.Rejected, cand)
		default:
			cand.FilterReason = reason
			out.Rejected = append(out.Rejected, cand)
		}
	}

	f.logger.Debug().
		Str("imdbId", query.IMDbID).
		Str("version", prof.Name).
		Int("input", len(results)).
		Int("passing", len(out.Passing)).
		Int("preSize", len(out.PreSize)).
		Msg("Filtered results")
	return out
}

// evaluate folds the checks. A failing size check is remembered while the
// remaining checks decide whether the candidate still belongs to PreSize.
func (f *Filter) evaluate(e *evaluation, checks []check) (reason string, sizeOnly bool) {
	for _, c := range checks {
		v := c.run(e)
		if v.Passed {
			continue
		}
		if c.size && reason == "" {
			reason = v.Reason
			sizeOnly = true
			continue
		}
		if reason == "" {
			reason = v.Reason
		}
		return reason, false
	}
	return reason, sizeOnly
}
