package titlematch

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "dots to spaces",
			input:    "The.Dark.Knight.2008",
			expected: "the dark knight 2008",
		},
		{
			name:     "apostrophes stripped",
			input:    "Schitt's Creek",
			expected: "schitts creek",
		},
		{
			name:     "curly apostrophe",
			input:    "Bob’s Burgers",
			expected: "bobs burgers",
		},
		{
			name:     "ampersand spelled out",
			input:    "Law & Order",
			expected: "law and order",
		},
		{
			name:     "diacritics folded",
			input:    "Amélie Poulain",
			expected: "amelie poulain",
		},
		{
			name:     "special characters",
			input:    "Spider-Man: Into the Spider-Verse",
			expected: "spider man into the spider verse",
		},
		{
			name:     "non-latin letters preserved",
			input:    "進撃の巨人",
			expected: "進撃の巨人",
		},
		{
			name:     "multiple spaces",
			input:    "  Multiple   Spaces  ",
			expected: "multiple spaces",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
			if again := Normalize(got); again != got {
				t.Errorf("Normalize(%q) = %q, not idempotent", got, again)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Pokémon: The Movie",
		"Marvel's Agents of S.H.I.E.L.D.",
		"İstanbul & Ankara",
		"Ça va? — “Quoted”",
		"Øresund",
		"  tabs\tand\nnewlines ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize(%q): %q then %q", in, once, twice)
		}
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"abc", "abc", 1},
		{"abc", "abd", 0.6667},
		{"foo", "bar", 0},
	}
	for _, tt := range tests {
		if got := Ratio(tt.a, tt.b); math.Abs(got-tt.want) > 0.001 {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTokenRatios(t *testing.T) {
	if got := TokenSortRatio("new york mets", "mets new york"); got != 1 {
		t.Errorf("TokenSortRatio() = %v, want 1", got)
	}
	if got := TokenSetRatio("Oppenheimer.2023.2160p.BluRay", "Oppenheimer"); got != 1 {
		t.Errorf("TokenSetRatio(release, title) = %v, want 1", got)
	}
	if got := TokenSetRatio("", "Oppenheimer"); got != 0 {
		t.Errorf("TokenSetRatio(empty) = %v, want 0", got)
	}
	if got := TokenSetRatio("Barbie 2023", "Oppenheimer"); got >= 0.5 {
		t.Errorf("TokenSetRatio(unrelated) = %v, want < 0.5", got)
	}
}

func TestLengthPenalty(t *testing.T) {
	tests := []struct {
		query, comparison string
		want              float64
	}{
		{"abc", "abcd", 1},
		{"abcd", "abcdefghij", 0.4},
		{"ab", "abcdefghijklmnopqrst", 0.3},
	}
	for _, tt := range tests {
		if got := LengthPenalty(tt.query, tt.comparison); math.Abs(got-tt.want) > 0.0001 {
			t.Errorf("LengthPenalty(%q, %q) = %v, want %v", tt.query, tt.comparison, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		release string
		parsed  string
		query   string
		min     float64
		max     float64
	}{
		{"exact", "Oppenheimer.2023.2160p", "Oppenheimer", "Oppenheimer", 1, 1},
		{"acronym rescue", "S.W.A.T.2017.S01E01.720p", "S.W.A.T.", "SWAT", 0.95, 0.95},
		{"unrelated", "Barbie.2023.1080p", "Barbie", "Oppenheimer", 0, 0.5},
		{"long comparison penalised", "Dune.Part.Two.Behind.The.Scenes.Special.2024", "Dune Part Two Behind The Scenes Special", "Dune", 0, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.release, tt.parsed, tt.query)
			if got < tt.min || got > tt.max {
				t.Errorf("Score() = %v, want within [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}

func TestBest(t *testing.T) {
	score, matched := Best("La.Casa.de.Papel.S01E01.1080p", "La Casa de Papel", "Money Heist", "", "La Casa de Papel")
	if score != 1 || matched != "La Casa de Papel" {
		t.Errorf("Best() = %v, %q, want 1, %q", score, matched, "La Casa de Papel")
	}

	score, matched = Best("Anything", "Anything")
	if score != 0 || matched != "" {
		t.Errorf("Best() without candidates = %v, %q, want 0, empty", score, matched)
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		query string
		base  float64
		want  float64
	}{
		{"Up", 0.85, 1.00},
		{"Fargo", 0.85, 0.95},
		{"Dexter", 0.85, 0.90},
		{"Succession", 0.80, 0.80},
		{"Oppenheimer", 0.90, 0.90},
		{"Lost Boy", 0.80, 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := Threshold(tt.base, tt.query); got != tt.want {
				t.Errorf("Threshold(%v, %q) = %v, want %v", tt.base, tt.query, got, tt.want)
			}
		})
	}
}

func TestAnimeThreshold(t *testing.T) {
	if got := AnimeThreshold(0.5); got != 0.80 {
		t.Errorf("AnimeThreshold(0.5) = %v, want 0.8", got)
	}
	if got := AnimeThreshold(0.9); got != 0.9 {
		t.Errorf("AnimeThreshold(0.9) = %v, want 0.9", got)
	}
}

func TestAnimeSanity(t *testing.T) {
	tests := []struct {
		release, query string
		want           bool
	}{
		{"Dandadan", "Dandadan", true},
		{"Frieren Beyond Journeys End", "Sousou no Frieren", true},
		{"xyz", "Dandadan", false},
		{"", "Dandadan", false},
	}
	for _, tt := range tests {
		if got := AnimeSanity(tt.release, tt.query); got != tt.want {
			t.Errorf("AnimeSanity(%q, %q) = %v, want %v", tt.release, tt.query, got, tt.want)
		}
	}
}

func TestContainsNumber(t *testing.T) {
	tests := []struct {
		title string
		n     int
		want  bool
	}{
		{"Dandadan - 07 [1080p]", 7, true},
		{"Dandadan - 20", 20, true},
		{"Dandadan - 17", 7, false},
		{"Show 1080p", 80, false},
		{"Show 1080p", 1080, true},
		{"One Piece - 1071", 1071, true},
		{"Dandadan S2 - 007", 7, true},
		{"Episode 00", 0, true},
		{"Episode 10", 0, false},
		{"no digits here", 1, false},
		{"Show - 05", -5, false},
	}
	for _, tt := range tests {
		if got := ContainsNumber(tt.title, tt.n); got != tt.want {
			t.Errorf("ContainsNumber(%q, %d) = %v, want %v", tt.title, tt.n, got, tt.want)
		}
	}
}

func BenchmarkContainsNumber(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ContainsNumber("[SubsPlease] Dandadan - 07 (1080p) [A1B2C3D4].mkv", 7)
	}
}
