// Package titlematch normalises titles and scores release titles against
// query titles and aliases.
package titlematch

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	apostropheRegex    = regexp.MustCompile(`['\x60\x{2018}\x{2019}\x{02BC}]`)
	ampersandRegex     = regexp.MustCompile(`\s*&\s*`)
	specialCharsRegex  = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	multipleSpaceRegex = regexp.MustCompile(`\s+`)
	nonAlnumRegex      = regexp.MustCompile(`[^\p{L}\p{N}]`)
)

const (
	// acronymThreshold is the score under which the punctuation-stripped ratio is tried.
	acronymThreshold = 0.80
	acronymCap       = 0.95

	lengthPenaltyRatio = 1.5
	lengthPenaltyFloor = 0.3

	// AnimeMinThreshold is the lowest similarity threshold accepted for anime.
	AnimeMinThreshold = 0.80

	animeCharOverlap  = 0.40
	animeWordMatch    = 0.50
	animeLongWordSize = 4
)

// Normalize converts a title to a normalized form for comparison.
// It lowercases, folds diacritics, strips apostrophes (within-word
// punctuation), spells out "&", replaces remaining punctuation with spaces and
// collapses whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(title string) string {
	normalized := strings.ToLower(title)
	normalized = foldDiacritics(normalized)
	normalized = apostropheRegex.ReplaceAllString(normalized, "")
	normalized = ampersandRegex.ReplaceAllString(normalized, " and ")
	normalized = specialCharsRegex.ReplaceAllString(normalized, " ")
	normalized = multipleSpaceRegex.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Strip removes every non-alphanumeric rune after normalization, so
// "S.W.A.T." and "SWAT" compare equal.
func Strip(title string) string {
	return nonAlnumRegex.ReplaceAllString(Normalize(title), "")
}

// TitlesMatch performs strict matching of two titles after normalization.
func TitlesMatch(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Ratio is the normalized indel similarity of two strings in [0, 1].
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	return float64(2*lcsLength(ra, rb)) / float64(total)
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// TokenSortRatio compares the sorted token sequences of both titles.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(Normalize(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSetRatio compares the shared tokens of both titles against each side's
// remainder. A title whose tokens are a subset of the other's scores 1.
func TokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range setA {
		if setB[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sect := strings.Join(common, " ")
	withA := strings.TrimSpace(sect + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(sect + " " + strings.Join(onlyB, " "))

	best := Ratio(withA, withB)
	if sect != "" {
		best = math.Max(best, Ratio(sect, withA))
		best = math.Max(best, Ratio(sect, withB))
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(Normalize(s)) {
		set[t] = true
	}
	return set
}

// LengthPenalty scales down comparisons against strings much longer than the query.
func LengthPenalty(query, comparison string) float64 {
	q := len([]rune(Normalize(query)))
	c := len([]rune(Normalize(comparison)))
	if q == 0 || c == 0 {
		return 1
	}
	if float64(c) > lengthPenaltyRatio*float64(q) {
		return math.Max(lengthPenaltyFloor, float64(q)/float64(c))
	}
	return 1
}

// Score compares one release against one query title: the average of the
// token-set ratio over the full release title and the token-sort ratio over
// the parsed title, after the length penalty and acronym rescue.
func Score(releaseTitle, parsedTitle, query string) float64 {
	if parsedTitle == "" {
		parsedTitle = releaseTitle
	}
	if Normalize(query) == "" {
		return 0
	}
	if TitlesMatch(parsedTitle, query) {
		return 1
	}

	score := (TokenSetRatio(releaseTitle, query) + TokenSortRatio(parsedTitle, query)) / 2
	score *= LengthPenalty(query, parsedTitle)

	if score < acronymThreshold {
		if stripped := Ratio(Strip(parsedTitle), Strip(query)); stripped > score {
			score = math.Min(stripped, acronymCap)
		}
	}
	return score
}

// Best returns the highest Score across candidate query titles and the
// candidate that produced it. Empty candidates are skipped.
func Best(releaseTitle, parsedTitle string, candidates ...string) (float64, string) {
	best, matched := 0.0, ""
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		if s := Score(releaseTitle, parsedTitle, c); s > best {
			best, matched = s, c
		}
	}
	return best, matched
}

// Threshold raises the configured threshold for short queries, where a single
// differing character swings the ratio.
func Threshold(base float64, query string) float64 {
	n := len([]rune(Normalize(query)))
	dynamic := 0.0
	switch {
	case n <= 4:
		dynamic = 1.00
	case n < 6:
		dynamic = 0.95
	case n < 8:
		dynamic = 0.90
	case n < 10:
		dynamic = 0.85
	}
	return math.Max(base, dynamic)
}

// AnimeThreshold enforces the anime floor on a configured threshold.
func AnimeThreshold(base float64) float64 {
	return math.Max(base, AnimeMinThreshold)
}

// AnimeSanity requires a release title to share enough characters or long
// words with the query to rule out coincidental fuzzy matches.
func AnimeSanity(releaseTitle, query string) bool {
	q := Normalize(query)
	r := Normalize(releaseTitle)
	if q == "" || r == "" {
		return false
	}

	queryChars := make(map[rune]bool)
	for _, c := range q {
		if c != ' ' {
			queryChars[c] = true
		}
	}
	releaseChars := make(map[rune]bool)
	for _, c := range r {
		releaseChars[c] = true
	}
	shared := 0
	for c := range queryChars {
		if releaseChars[c] {
			shared++
		}
	}
	if len(queryChars) > 0 && float64(shared)/float64(len(queryChars)) >= animeCharOverlap {
		return true
	}

	releaseWords := tokenSet(r)
	long, matched := 0, 0
	for _, w := range strings.Fields(q) {
		if len([]rune(w)) < animeLongWordSize {
			continue
		}
		long++
		if releaseWords[w] {
			matched++
		}
	}
	return long > 0 && float64(matched)/float64(long) >= animeWordMatch
}

// ContainsNumber reports whether n appears as a standalone number in title.
// Leading zeros are accepted ("07" matches 7).
func ContainsNumber(title string, n int) bool {
	if n < 0 {
		return false
	}
	want := strconv.Itoa(n)
	for i := 0; i < len(title); {
		if !isDigit(title[i]) {
			i++
			continue
		}
		j := i
		for j < len(title) && isDigit(title[j]) {
			j++
		}
		run := strings.TrimLeft(title[i:j], "0")
		if run == "" {
			run = "0"
		}
		if run == want {
			return true
		}
		i = j
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
