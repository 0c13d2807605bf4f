// Package parser turns release names into structured metadata.
package parser

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/moistari/rls"
)

// Resolution labels.
const (
	Resolution2160p   = "2160p"
	Resolution1080p   = "1080p"
	Resolution720p    = "720p"
	Resolution480p    = "480p"
	ResolutionSD      = "sd"
	ResolutionUnknown = "unknown"
)

// Season pack labels. Specific packs use the season numbers joined by commas.
const (
	PackComplete = "Complete"
	PackNone     = "N/A"
	PackUnknown  = "Unknown"
)

// maxSeasonRange is the widest season range accepted before the release is
// flagged invalid.
const maxSeasonRange = 50

// SeasonEpisodeInfo describes the TV coordinates found in a release name.
type SeasonEpisodeInfo struct {
	SeasonPack   string `json:"season_pack"`
	MultiEpisode bool   `json:"multi_episode"`
	Seasons      []int  `json:"seasons"`
	Episodes     []int  `json:"episodes"`
	Date         string `json:"date,omitempty"`
}

// ParsedInfo is the structured form of a release name.
type ParsedInfo struct {
	Title              string            `json:"title"`
	OriginalTitle      string            `json:"original_title"`
	Year               int               `json:"year,omitempty"`
	Years              []int             `json:"years,omitempty"`
	Resolution         string            `json:"resolution"`
	ResolutionRank     int               `json:"resolution_rank"`
	IsHDR              bool              `json:"is_hdr"`
	HDR                []string          `json:"hdr,omitempty"`
	Codec              string            `json:"codec,omitempty"`
	Source             string            `json:"source,omitempty"`
	Group              string            `json:"group,omitempty"`
	Country            string            `json:"country,omitempty"`
	Languages          []string          `json:"languages,omitempty"`
	Other              []string          `json:"other,omitempty"`
	Trash              bool              `json:"trash"`
	Documentary        bool              `json:"documentary"`
	EpisodeTitle       string            `json:"episode_title,omitempty"`
	InvalidSeasonRange bool              `json:"invalid_season_range,omitempty"`
	SeasonEpisode      SeasonEpisodeInfo `json:"season_episode_info"`
}

// IsPack reports whether the release covers whole seasons.
func (p *ParsedInfo) IsPack() bool {
	switch p.SeasonEpisode.SeasonPack {
	case PackNone, PackUnknown, "":
		return false
	}
	return true
}

// IsCompletePack reports whether the release claims every season.
func (p *ParsedInfo) IsCompletePack() bool {
	return p.SeasonEpisode.SeasonPack == PackComplete
}

// HasTVMarkers reports whether any season, episode, pack or date marker was found.
func (p *ParsedInfo) HasTVMarkers() bool {
	return p.SeasonEpisode.SeasonPack != PackUnknown ||
		len(p.SeasonEpisode.Seasons) > 0 ||
		len(p.SeasonEpisode.Episodes) > 0
}

// HasYear reports whether y matches any detected year within tolerance.
func (p *ParsedInfo) HasYear(y, tolerance int) bool {
	for _, year := range p.Years {
		if abs(year-y) <= tolerance {
			return true
		}
	}
	return false
}

// ResolutionRank maps a resolution label to its coarse rank (4..1, 0 unknown).
func ResolutionRank(resolution string) int {
	switch strings.ToLower(strings.TrimSpace(resolution)) {
	case "2160p", "4k", "uhd":
		return 4
	case "1080p", "1080i":
		return 3
	case "720p":
		return 2
	case "480p", "576p", "sd", "360p":
		return 1
	default:
		return 0
	}
}

// Parse parses a release name. It returns nil when no title can be extracted.
func Parse(title string) *ParsedInfo {
	info := parse(title)
	if info == nil {
		return nil
	}

	// DOC in the episode-title slot is a documentary tag
	if strings.EqualFold(info.EpisodeTitle, "doc") {
		reparsed := parse(docPattern.ReplaceAllString(title, " "))
		if reparsed == nil {
			return nil
		}
		reparsed.Documentary = true
		reparsed.OriginalTitle = info.OriginalTitle
		return reparsed
	}

	return info
}

type span struct {
	start int
	end   int
}

func parse(raw string) *ParsedInfo {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	info := &ParsedInfo{
		OriginalTitle: raw,
		Resolution:    ResolutionUnknown,
	}

	name := extensionPattern.ReplaceAllString(raw, "")
	if m := leadingGroupPattern.FindStringSubmatch(name); m != nil {
		info.Group = strings.TrimSpace(m[1])
		name = name[len(m[0]):]
	}
	s := spaced(name)

	var markers []span
	mark := func(loc []int) {
		if loc != nil {
			markers = append(markers, span{loc[0], loc[1]})
		}
	}

	episodeEnd := detectSeasonEpisode(s, info, mark)
	detectYears(s, info, mark)
	detectQuality(s, info, mark)

	if loc := tagPattern.FindStringIndex(s); loc != nil {
		mark(loc)
	}
	if loc := trashLoc(s); loc != nil {
		info.Trash = true
		mark(loc)
	}

	sort.Slice(markers, func(i, j int) bool { return markers[i].start < markers[j].start })

	info.Title = extractTitle(s, markers)
	if episodeEnd >= 0 {
		info.EpisodeTitle = extractEpisodeTitle(s, episodeEnd, markers)
	}

	detectCountry(info)
	applyRelease(rls.ParseString(name), info)

	if info.Title == "" {
		return nil
	}
	return info
}

// spaced replaces dot and underscore separators with spaces. Dots between a
// digit and a single trailing digit are kept so "5.1" and "2.0" survive.
func spaced(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range rs {
		switch r {
		case '_':
			b.WriteRune(' ')
		case '.':
			if i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) &&
				(i+2 >= len(rs) || !unicode.IsDigit(rs[i+2])) {
				b.WriteRune('.')
			} else {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(b.String(), " "))
}

// detectSeasonEpisode fills SeasonEpisode and returns the end offset of an
// explicit episode marker, or -1.
func detectSeasonEpisode(s string, info *ParsedInfo, mark func([]int)) int {
	se := &info.SeasonEpisode
	episodeEnd := -1
	complete := false

	switch {
	case seRangePattern.MatchString(s):
		m := seRangePattern.FindStringSubmatchIndex(s)
		season := atoi(s[m[2]:m[3]])
		from, to := atoi(s[m[4]:m[5]]), atoi(s[m[6]:m[7]])
		se.Seasons = []int{season}
		if to > from {
			se.Episodes = intRange(from, to)
		} else {
			se.Episodes = []int{from}
		}
		mark(m[:2])
		episodeEnd = m[1]
	case seChainPattern.MatchString(s):
		m := seChainPattern.FindStringSubmatchIndex(s)
		se.Seasons = []int{atoi(s[m[2]:m[3]])}
		for _, ep := range chainEpisode.FindAllStringSubmatch(s[m[4]:m[5]], -1) {
			se.Episodes = appendUnique(se.Episodes, atoi(ep[1]))
		}
		mark(m[:2])
		episodeEnd = m[1]
	case sePattern.MatchString(s):
		m := sePattern.FindStringSubmatchIndex(s)
		se.Seasons = []int{atoi(s[m[2]:m[3]])}
		se.Episodes = []int{atoi(s[m[4]:m[5]])}
		mark(m[:2])
		episodeEnd = m[1]
	case xPattern.MatchString(s):
		m := xPattern.FindStringSubmatchIndex(s)
		se.Seasons = []int{atoi(s[m[2]:m[3]])}
		se.Episodes = []int{atoi(s[m[4]:m[5]])}
		mark(m[:2])
		episodeEnd = m[1]
	}

	if len(se.Seasons) == 0 {
		detectSeasons(s, info, mark)
	}

	if loc := completePattern.FindStringIndex(s); loc != nil {
		complete = true
		mark(loc)
	}

	if len(se.Episodes) == 0 && !info.InvalidSeasonRange {
		detectAbsolute(s, se, mark)
	}

	if len(se.Seasons) == 0 && len(se.Episodes) == 0 && !complete {
		if m := datePattern.FindStringSubmatchIndex(s); m != nil {
			se.Date = s[m[2]:m[3]] + "-" + s[m[4]:m[5]] + "-" + s[m[6]:m[7]]
			mark(m[:2])
		}
	}

	se.MultiEpisode = len(se.Episodes) > 1

	switch {
	case len(se.Episodes) > 0:
		se.SeasonPack = PackNone
	case len(se.Seasons) > 1:
		parts := make([]string, len(se.Seasons))
		for i, n := range se.Seasons {
			parts[i] = strconv.Itoa(n)
		}
		se.SeasonPack = strings.Join(parts, ",")
	case len(se.Seasons) == 1:
		se.SeasonPack = strconv.Itoa(se.Seasons[0])
	case complete:
		se.SeasonPack = PackComplete
	case se.Date != "":
		se.SeasonPack = PackNone
	default:
		se.SeasonPack = PackUnknown
	}

	return episodeEnd
}

func detectSeasons(s string, info *ParsedInfo, mark func([]int)) {
	se := &info.SeasonEpisode

	for _, p := range []*regexp.Regexp{seasonRangePattern, seasonSpelledRangePattern} {
		m := p.FindStringSubmatchIndex(s)
		if m == nil {
			continue
		}
		from, to := atoi(s[m[2]:m[3]]), atoi(s[m[4]:m[5]])
		if to < from {
			continue
		}
		mark(m[:2])
		if to-from+1 > maxSeasonRange {
			info.InvalidSeasonRange = true
			return
		}
		se.Seasons = intRange(from, to)
		return
	}

	if loc := seasonListPattern.FindStringIndex(s); loc != nil {
		for _, n := range numberPattern.FindAllString(s[loc[0]:loc[1]], -1) {
			se.Seasons = appendUnique(se.Seasons, atoi(n))
		}
		sort.Ints(se.Seasons)
		mark(loc)
		return
	}

	if m := seasonPattern.FindStringSubmatchIndex(s); m != nil {
		se.Seasons = []int{atoi(s[m[2]:m[3]])}
		mark(m[:2])
	}
}

func detectAbsolute(s string, se *SeasonEpisodeInfo, mark func([]int)) {
	if m := animeBatchPattern.FindStringSubmatchIndex(s); m != nil {
		from, to := atoi(s[m[2]:m[3]]), atoi(s[m[4]:m[5]])
		if !isYear(from) && !isYear(to) && to > from && to-from < 2000 {
			se.Episodes = intRange(from, to)
			mark(m[:2])
			return
		}
	}

	if m := absolutePattern.FindStringSubmatchIndex(s); m != nil {
		if n := atoi(s[m[2]:m[3]]); !isYear(n) {
			se.Episodes = []int{n}
			mark(m[:2])
			return
		}
	}

	for _, p := range []*regexp.Regexp{episodeWordPattern, bareEpisodePattern} {
		if m := p.FindStringSubmatchIndex(s); m != nil {
			se.Episodes = []int{atoi(s[m[2]:m[3]])}
			mark(m[:2])
			return
		}
	}
}

// trashLoc returns the location of a trash quality tag, or nil.
func trashLoc(s string) []int {
	if loc := trashPattern.FindStringIndex(s); loc != nil {
		return loc
	}
	for _, loc := range bareTrashPattern.FindAllStringIndex(s, -1) {
		if qualityBefore.MatchString(s[:loc[0]]) || codecAfter.MatchString(s[loc[1]:]) {
			return loc
		}
	}
	return nil
}

func detectYears(s string, info *ParsedInfo, mark func([]int)) {
	if m := yearRangePattern.FindStringSubmatchIndex(s); m != nil && m[0] > 0 {
		from, to := atoi(s[m[2]:m[3]]), atoi(s[m[4]:m[5]])
		if to > from && to-from <= 100 {
			info.Years = intRange(from, to)
			info.Year = from
			mark(m[:2])
			return
		}
	}

	locs := yearPattern.FindAllStringIndex(s, -1)
	for i, loc := range locs {
		// a leading year, or a year directly followed by another, is part of the title
		if loc[0] == 0 {
			continue
		}
		if i+1 < len(locs) && strings.Trim(s[loc[1]:locs[i+1][0]], " ([") == "" {
			continue
		}
		info.Years = appendUnique(info.Years, atoi(s[loc[0]:loc[1]]))
		mark(loc)
	}
	if len(info.Years) > 0 {
		info.Year = info.Years[0]
	}
}

func detectQuality(s string, info *ParsedInfo, mark func([]int)) {
	for _, p := range resolutionPatterns {
		if loc := p.pattern.FindStringIndex(s); loc != nil {
			info.Resolution = p.name
			mark(loc)
			break
		}
	}
	info.ResolutionRank = ResolutionRank(info.Resolution)

	for _, p := range sourcePatterns {
		if loc := p.pattern.FindStringIndex(s); loc != nil {
			info.Source = p.name
			mark(loc)
			break
		}
	}

	for _, p := range codecPatterns {
		if loc := p.pattern.FindStringIndex(s); loc != nil {
			info.Codec = p.name
			mark(loc)
			break
		}
	}

	for _, p := range hdrPatterns {
		if loc := p.pattern.FindStringIndex(s); loc != nil {
			info.HDR = append(info.HDR, p.name)
			mark(loc)
		}
	}
	info.IsHDR = len(info.HDR) > 0
}

func extractTitle(s string, markers []span) string {
	for i, m := range markers {
		if m.start > 0 {
			if title := cleanTitle(s[:m.start]); title != "" {
				return title
			}
		}
		// title sits after a leading marker
		if m.start == 0 {
			end := len(s)
			if i+1 < len(markers) {
				end = markers[i+1].start
			}
			if end > m.end {
				if title := cleanTitle(s[m.end:end]); title != "" {
					return title
				}
			}
		}
	}
	if len(markers) > 0 {
		return ""
	}
	return cleanTitle(trailingGroupPattern.ReplaceAllString(s, ""))
}

func extractEpisodeTitle(s string, from int, markers []span) string {
	end := len(s)
	for _, m := range markers {
		if m.start >= from && m.start < end {
			end = m.start
		}
	}
	segment := s[from:end]
	if end == len(s) {
		segment = trailingGroupPattern.ReplaceAllString(segment, "")
	}
	title := cleanTitle(segment)
	if formatTags[strings.ToLower(title)] {
		return ""
	}
	return title
}

func detectCountry(info *ParsedInfo) {
	m := countryPattern.FindStringSubmatch(info.Title)
	if m == nil {
		return
	}
	code := m[1]
	if code == "" {
		code = m[2]
	}
	canonical, ok := countryCodes[strings.ToLower(code)]
	if !ok {
		return
	}
	rest := cleanTitle(strings.TrimSuffix(info.Title, m[0]))
	if rest == "" {
		return
	}
	info.Country = canonical
	info.Title = rest
}

// applyRelease fills gaps from the rls tokenizer.
func applyRelease(r rls.Release, info *ParsedInfo) {
	if info.Group == "" {
		info.Group = r.Group
	}
	if len(r.Language) > 0 {
		info.Languages = append([]string(nil), r.Language...)
	}
	if info.Source == "" && r.Source != "" {
		info.Source = canonicalSource(r.Source)
	}
	if info.Resolution == ResolutionUnknown && r.Resolution != "" {
		if rank := ResolutionRank(r.Resolution); rank > 0 {
			info.Resolution = strings.ToLower(r.Resolution)
			info.ResolutionRank = rank
		}
	}
	if info.Codec == "" && len(r.Codec) > 0 {
		info.Codec = r.Codec[0]
	}
	info.Other = append(info.Other, r.Other...)
	info.Other = append(info.Other, r.Edition...)
	info.Other = append(info.Other, r.Cut...)
}

func canonicalSource(source string) string {
	lower := strings.ToLower(source)
	switch {
	case strings.Contains(lower, "remux"):
		return "remux"
	case strings.Contains(lower, "blu"), strings.Contains(lower, "bd"):
		return "bluray"
	case strings.Contains(lower, "webrip"):
		return "webrip"
	case strings.Contains(lower, "web"):
		return "webdl"
	case strings.Contains(lower, "hdtv"):
		return "hdtv"
	case strings.Contains(lower, "dvd"):
		return "dvdrip"
	default:
		return lower
	}
}

func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.TrimRight(title, " -([.,:+~")
	title = strings.TrimLeft(title, " -)].,:")
	return strings.TrimSpace(spacePattern.ReplaceAllString(title, " "))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func isYear(n int) bool {
	return n >= 1900 && n <= 2099
}

func intRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
