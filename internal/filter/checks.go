package filter

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/parser"
	"github.com/reelscout/reelscout/internal/state"
	"github.com/reelscout/reelscout/internal/titlematch"
)

// Language-code gate adjustments handed to the ranker.
const (
	MissingCodePenalty    = -10.0
	UnexpectedCodePenalty = -5.0
)

// f1MovieIMDb is the 2025 F1 film, whose title collides with race-weekend releases.
const f1MovieIMDb = "tt16311594"

var (
	adultPattern = regexp.MustCompile(`(?i)\b(xxx|porn|porno|brazzers|bangbros|onlyfans|realitykings|naughtyamerica|hentai|jav)\b`)

	raceWeekendPattern = regexp.MustCompile(`(?i)\b(grand[ ._-]?prix|gp|fp[123]|practice|qualifying|sprint|pre[ ._-]?race|post[ ._-]?race|race|weekend|round[ ._-]?\d{1,2})\b`)
	movieTokenPattern  = regexp.MustCompile(`(?i)\b(movie|film|imax|brad[ ._-]?pitt)\b`)

	formula1Pattern = regexp.MustCompile(`^(formula 1|formula one|f1)( |$)`)
)

func checkParsed(e *evaluation) Verdict {
	p := e.parsed()
	switch {
	case p == nil || strings.TrimSpace(p.Title) == "":
		return reject("unparseable title")
	case p.InvalidSeasonRange:
		return reject("unreasonable season range")
	case p.Trash && e.f.opts.FilterTrash:
		return reject("trash release")
	}
	return passed
}

// codeGate holds the explicit country codes carried by the query's titles.
type codeGate struct {
	expected map[string]bool
}

func newCodeGate(q types.Query) codeGate {
	g := codeGate{expected: make(map[string]bool)}
	for _, t := range append([]string{q.Title}, q.Aliases...) {
		if p := parser.Parse(t); p != nil && p.Country != "" {
			g.expected[p.Country] = true
		}
	}
	return g
}

func (g codeGate) codes() []string {
	out := make([]string, 0, len(g.expected))
	for c := range g.expected {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func checkLanguageCode(e *evaluation) Verdict {
	code := e.parsed().Country
	expected := e.gate.expected
	switch {
	case len(expected) > 0 && code == "":
		e.cand.CodeAdjustment = MissingCodePenalty
	case len(expected) > 0 && !expected[code]:
		return reject("country code %s does not match %s", code, strings.Join(e.gate.codes(), ","))
	case len(expected) == 0 && code != "":
		e.cand.CodeAdjustment = UnexpectedCodePenalty
	}
	return passed
}

// TitleCandidates lists the titles a release may match: the query title,
// every alias and the translated title, without duplicates.
func TitleCandidates(q types.Query) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range append(append([]string{q.Title}, q.Aliases...), q.TranslatedTitle) {
		key := titlematch.Normalize(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func checkSimilarity(e *evaluation) Verdict {
	q, p := e.query, e.parsed()
	score, matched := titlematch.Best(e.cand.Title, p.Title, TitleCandidates(q)...)
	e.cand.Similarity = score
	e.cand.MatchedTitle = matched

	threshold := e.prof.SimilarityThreshold
	if q.IsAnime {
		threshold = titlematch.AnimeThreshold(e.prof.SimilarityThresholdAnime)
	}
	if matched == "" {
		matched = q.Title
	}
	threshold = titlematch.Threshold(threshold, matched)

	if score < threshold {
		return reject("title similarity %.2f below %.2f", score, threshold)
	}
	if q.IsAnime && !titlematch.AnimeSanity(p.Title, matched) {
		return reject("anime title %q shares too little with %q", p.Title, matched)
	}
	return passed
}

func checkResolution(e *evaluation) Verdict {
	p := e.parsed()
	if !e.prof.ResolutionAllowed(p.ResolutionRank) {
		return reject("resolution %s not %s %s", p.Resolution, e.prof.ResolutionWanted, e.prof.MaxResolution)
	}
	return passed
}

func checkHDR(e *evaluation) Verdict {
	if e.parsed().IsHDR && !e.prof.EnableHDR {
		return reject("HDR disabled")
	}
	return passed
}

func checkMovieYear(e *evaluation) Verdict {
	q, p := e.query, e.parsed()
	if q.IsEpisode() {
		return passed
	}
	if p.HasTVMarkers() {
		return reject("movie query matched a TV release")
	}
	if q.Year > 0 && len(p.Years) > 0 && !p.HasYear(q.Year, 1) {
		return reject("year %v not within 1 of %d", p.Years, q.Year)
	}
	return passed
}

func checkEpisodeYear(e *evaluation) Verdict {
	q, p := e.query, e.parsed()
	if !q.IsEpisode() {
		return passed
	}

	if year, ok := formula1EventYear(q); ok {
		if len(p.Years) > 0 && !p.HasYear(year, 0) {
			return reject("event year %v is not %d", p.Years, year)
		}
		if s := p.SeasonEpisode.Seasons; len(s) > 1 || (len(s) == 1 && s[0] != 1) {
			return reject("event release names season %v", s)
		}
		return passed
	}

	target := q.SeasonYear
	if target == 0 {
		target = q.Year
	}
	if len(p.Years) == 0 || target == 0 || p.HasYear(target, 1) {
		return passed
	}
	// Releases often carry the show's premiere year on later seasons.
	if q.Year > 0 && target != q.Year && p.HasYear(q.Year, 0) && abs(target-q.Year) <= 5 {
		return passed
	}
	return reject("year %v not within 1 of season year %d", p.Years, target)
}

// formula1EventYear returns the event year for Formula 1 queries, whose
// season number is the championship year.
func formula1EventYear(q types.Query) (int, bool) {
	if !formula1Pattern.MatchString(titlematch.Normalize(q.Title)) {
		return 0, false
	}
	for _, y := range []int{q.Season, q.SeasonYear, q.Year} {
		if y >= 1950 && y <= 2100 {
			return y, true
		}
	}
	return 0, false
}

func checkSeasonEpisode(e *evaluation) Verdict {
	q, p := e.query, e.parsed()
	if !q.IsEpisode() {
		return passed
	}
	if _, ok := formula1EventYear(q); ok {
		return passed
	}

	se := p.SeasonEpisode
	lenient := false
	switch {
	case slices.Contains(se.Seasons, q.Season):
	case len(se.Seasons) == 0 && q.Season <= 1:
	case len(se.Seasons) == 0 && p.IsCompletePack():
	case len(se.Seasons) == 0 && se.Date != "" && q.AirDate != "":
	case len(se.Seasons) == 0 && q.IsAnime && len(se.Episodes) > 0:
		lenient = true
	case len(se.Seasons) == 0:
		return reject("no season marker for season %d", q.Season)
	default:
		return reject("seasons %v do not include %d", se.Seasons, q.Season)
	}

	if q.Multi {
		if !p.IsPack() && !se.MultiEpisode {
			return reject("single episode in multi mode")
		}
		return passed
	}
	if len(se.Episodes) > 1 {
		return reject("release spans %d episodes", len(se.Episodes))
	}
	if q.Episode <= 0 {
		return passed
	}

	switch {
	case len(se.Episodes) > 0:
		if slices.Contains(se.Episodes, q.Episode) {
			return passed
		}
		if q.IsAnime {
			for _, n := range AbsoluteNumbers(q) {
				if slices.Contains(se.Episodes, n) {
					return passed
				}
			}
		}
		return reject("episodes %v do not include %d", se.Episodes, q.Episode)
	case se.Date != "" && q.AirDate != "":
		if se.Date == q.AirDate {
			return passed
		}
		return reject("air date %s is not %s", se.Date, q.AirDate)
	case p.IsPack():
		return passed
	case !lenient && titlematch.ContainsNumber(e.cand.Title, q.Episode):
		return passed
	}
	return reject("no marker for episode %d", q.Episode)
}

// AbsoluteNumbers returns the absolute numbers the target episode may carry:
// the sum of earlier seasons' episode counts plus the episode, then any
// numbers supplied with the query.
func AbsoluteNumbers(q types.Query) []int {
	var out []int
	add := func(n int) {
		if n > 0 && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}

	if q.Episode > 0 && len(q.EpisodeCounts) > 0 {
		sum := 0
		for s := 1; s < q.Season; s++ {
			sum += q.EpisodeCounts[s]
		}
		if q.Season <= 1 || sum > 0 {
			add(sum + q.Episode)
		}
	}
	add(q.AbsoluteEpisode)
	for _, n := range q.AbsoluteNumbers {
		add(n)
	}
	return out
}

func checkPackWanted(e *evaluation) Verdict {
	q, p := e.query, e.parsed()
	provider := e.f.opts.States
	if provider == nil || !q.IsEpisode() || !p.IsPack() || q.IMDbID == "" {
		return passed
	}

	keys := packKeys(q, p)
	key, st, found, err := state.FirstUnwanted(e.ctx, provider, keys)
	if err != nil {
		e.f.logger.Warn().Err(err).Str("imdbId", q.IMDbID).Msg("Pack wantedness lookup failed")
		return passed
	}
	if found {
		return reject("pack includes S%02dE%02d which is %s, not wanted", key.Season, key.Episode, st)
	}
	return passed
}

// packKeys lists every episode a pack covers according to the episode counts.
func packKeys(q types.Query, p *parser.ParsedInfo) []state.Key {
	seasons := p.SeasonEpisode.Seasons
	if len(seasons) == 0 && p.IsCompletePack() {
		for s := range q.EpisodeCounts {
			if s > 0 {
				seasons = append(seasons, s)
			}
		}
		sort.Ints(seasons)
	}

	var keys []state.Key
	for _, s := range seasons {
		for ep := 1; ep <= q.EpisodeCounts[s]; ep++ {
			keys = append(keys, state.Key{IMDbID: q.IMDbID, Season: s, Episode: ep, Version: q.Version})
		}
	}
	return keys
}

// checkPatterns runs filter_in and filter_out over the raw title and filename,
// then over their normalised forms. Binge groups are never matched.
func checkPatterns(e *evaluation) Verdict {
	c := e.cand
	raw := []string{c.Title, c.Filename}
	normalised := []string{titlematch.Normalize(c.Title), titlematch.Normalize(c.Filename)}

	if len(e.prof.FilterInPatterns) > 0 {
		matched := false
		for _, pat := range e.prof.FilterInPatterns {
			if pat.Match(raw...) || pat.Match(normalised...) {
				matched = true
				break
			}
		}
		if !matched {
			return reject("no filter_in pattern matched")
		}
	}
	for _, pat := range e.prof.FilterOutPatterns {
		if pat.Match(raw...) || pat.Match(normalised...) {
			return reject("matched filter_out %s", pat)
		}
	}
	return passed
}

func checkAdult(e *evaluation) Verdict {
	if !e.f.opts.DisableAdult {
		return passed
	}
	if adultPattern.MatchString(e.cand.Title) || adultPattern.MatchString(e.cand.Filename) {
		return reject("adult content")
	}
	return passed
}

func checkSpecialCases(e *evaluation) Verdict {
	if e.query.IMDbID != f1MovieIMDb {
		return passed
	}
	title := e.cand.Title
	if raceWeekendPattern.MatchString(title) && !movieTokenPattern.MatchString(title) {
		return reject("race weekend release for the F1 film")
	}
	return passed
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
