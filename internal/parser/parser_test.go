package parser

import (
	"slices"
	"testing"
)

func TestParse_Movies(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantTitle      string
		wantYear       int
		wantResolution string
		wantRank       int
		wantHDR        bool
		wantCodec      string
		wantSource     string
	}{
		{
			name:           "uhd hdr release",
			input:          "Oppenheimer.2023.2160p.UHD.BluRay.HDR.DV.x265-GROUP",
			wantTitle:      "Oppenheimer",
			wantYear:       2023,
			wantResolution: Resolution2160p,
			wantRank:       4,
			wantHDR:        true,
			wantCodec:      "x265",
			wantSource:     "bluray",
		},
		{
			name:           "web-dl 1080p",
			input:          "The.Matrix.1999.1080p.WEB-DL.x264-GROUP",
			wantTitle:      "The Matrix",
			wantYear:       1999,
			wantResolution: Resolution1080p,
			wantRank:       3,
			wantCodec:      "x264",
			wantSource:     "webdl",
		},
		{
			name:           "parenthesised year",
			input:          "Inception (2010) 720p BluRay",
			wantTitle:      "Inception",
			wantYear:       2010,
			wantResolution: Resolution720p,
			wantRank:       2,
			wantSource:     "bluray",
		},
		{
			name:           "dvdrip is not dolby vision",
			input:          "Old.Movie.1985.DVDRip.XviD",
			wantTitle:      "Old Movie",
			wantYear:       1985,
			wantResolution: ResolutionUnknown,
			wantRank:       0,
			wantCodec:      "XviD",
			wantSource:     "dvdrip",
		},
		{
			name:           "leading year belongs to title",
			input:          "1917.2019.1080p.BluRay",
			wantTitle:      "1917",
			wantYear:       2019,
			wantResolution: Resolution1080p,
			wantRank:       3,
			wantSource:     "bluray",
		},
		{
			name:           "year followed by year",
			input:          "Blade.Runner.2049.2017.2160p.WEB-DL",
			wantTitle:      "Blade Runner 2049",
			wantYear:       2017,
			wantResolution: Resolution2160p,
			wantRank:       4,
			wantSource:     "webdl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if got == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Year != tt.wantYear {
				t.Errorf("Year = %d, want %d", got.Year, tt.wantYear)
			}
			if got.Resolution != tt.wantResolution {
				t.Errorf("Resolution = %q, want %q", got.Resolution, tt.wantResolution)
			}
			if got.ResolutionRank != tt.wantRank {
				t.Errorf("ResolutionRank = %d, want %d", got.ResolutionRank, tt.wantRank)
			}
			if got.IsHDR != tt.wantHDR {
				t.Errorf("IsHDR = %v, want %v", got.IsHDR, tt.wantHDR)
			}
			if tt.wantCodec != "" && got.Codec != tt.wantCodec {
				t.Errorf("Codec = %q, want %q", got.Codec, tt.wantCodec)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if got.SeasonEpisode.SeasonPack != PackUnknown {
				t.Errorf("SeasonPack = %q, want %q", got.SeasonEpisode.SeasonPack, PackUnknown)
			}
			if got.HasTVMarkers() {
				t.Error("movie release reports TV markers")
			}
		})
	}
}

func TestParse_HDRTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Movie.2020.2160p.WEB-DL.DV.HDR10.H265", []string{"DV", "HDR10"}},
		{"Movie.2020.2160p.HDR10+.HEVC", []string{"HDR10+"}},
		{"Movie.2020.2160p.DoVi.HEVC", []string{"DV"}},
		{"Movie.2020.2160p.HLG.HEVC", []string{"HLG"}},
		{"Movie.2020.DVDRIP.x264", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Parse(tt.input)
			if got == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			if !slices.Equal(got.HDR, tt.want) {
				t.Errorf("HDR = %v, want %v", got.HDR, tt.want)
			}
			if got.IsHDR != (len(tt.want) > 0) {
				t.Errorf("IsHDR = %v, want %v", got.IsHDR, len(tt.want) > 0)
			}
		})
	}
}

func TestParse_SeasonsAndEpisodes(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantTitle    string
		wantPack     string
		wantSeasons  []int
		wantEpisodes []int
		wantMulti    bool
	}{
		{
			name:         "single episode",
			input:        "Breaking.Bad.S01E02.720p.HDTV.x264",
			wantTitle:    "Breaking Bad",
			wantPack:     PackNone,
			wantSeasons:  []int{1},
			wantEpisodes: []int{2},
		},
		{
			name:         "episode range",
			input:        "Show.S02E01-E04.1080p.WEB",
			wantTitle:    "Show",
			wantPack:     PackNone,
			wantSeasons:  []int{2},
			wantEpisodes: []int{1, 2, 3, 4},
			wantMulti:    true,
		},
		{
			name:         "chained episodes",
			input:        "Show.S01E01E02.1080p",
			wantTitle:    "Show",
			wantPack:     PackNone,
			wantSeasons:  []int{1},
			wantEpisodes: []int{1, 2},
			wantMulti:    true,
		},
		{
			name:         "x notation",
			input:        "Show 3x07 HDTV",
			wantTitle:    "Show",
			wantPack:     PackNone,
			wantSeasons:  []int{3},
			wantEpisodes: []int{7},
		},
		{
			name:        "season pack",
			input:       "Show.X.S03.1080p.BluRay",
			wantTitle:   "Show X",
			wantPack:    "3",
			wantSeasons: []int{3},
		},
		{
			name:        "season pack marked complete",
			input:       "Show.X.S03.COMPLETE.1080p",
			wantTitle:   "Show X",
			wantPack:    "3",
			wantSeasons: []int{3},
		},
		{
			name:        "spelled season",
			input:       "Show Season 2 1080p",
			wantTitle:   "Show",
			wantPack:    "2",
			wantSeasons: []int{2},
		},
		{
			name:        "season range",
			input:       "Show.S01-S03.1080p",
			wantTitle:   "Show",
			wantPack:    "1,2,3",
			wantSeasons: []int{1, 2, 3},
		},
		{
			name:        "spaced season range",
			input:       "Show S01 - S03 1080p",
			wantTitle:   "Show",
			wantPack:    "1,2,3",
			wantSeasons: []int{1, 2, 3},
		},
		{
			name:        "compact season range",
			input:       "Show.S01-03.1080p",
			wantTitle:   "Show",
			wantPack:    "1,2,3",
			wantSeasons: []int{1, 2, 3},
		},
		{
			name:        "season list",
			input:       "Show S01,S02 720p",
			wantTitle:   "Show",
			wantPack:    "1,2",
			wantSeasons: []int{1, 2},
		},
		{
			name:      "complete series",
			input:     "Show.Complete.Series.1080p.BluRay",
			wantTitle: "Show",
			wantPack:  PackComplete,
		},
		{
			name:      "all seasons",
			input:     "Show All Seasons 720p",
			wantTitle: "Show",
			wantPack:  PackComplete,
		},
		{
			name:         "anime absolute",
			input:        "[SubsPlease] Dandadan - 20 (1080p) [ABCD1234].mkv",
			wantTitle:    "Dandadan",
			wantPack:     PackNone,
			wantEpisodes: []int{20},
		},
		{
			name:         "anime season then episode",
			input:        "[SubsPlease] Dandadan S2 - 07 (1080p) [A1B2C3D4].mkv",
			wantTitle:    "Dandadan",
			wantPack:     PackNone,
			wantSeasons:  []int{2},
			wantEpisodes: []int{7},
		},
		{
			name:         "anime batch",
			input:        "[Group] Show - 01-12 [1080p]",
			wantTitle:    "Show",
			wantPack:     PackNone,
			wantEpisodes: intRange(1, 12),
			wantMulti:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if got == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			se := got.SeasonEpisode
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if se.SeasonPack != tt.wantPack {
				t.Errorf("SeasonPack = %q, want %q", se.SeasonPack, tt.wantPack)
			}
			if !slices.Equal(se.Seasons, tt.wantSeasons) {
				t.Errorf("Seasons = %v, want %v", se.Seasons, tt.wantSeasons)
			}
			if !slices.Equal(se.Episodes, tt.wantEpisodes) {
				t.Errorf("Episodes = %v, want %v", se.Episodes, tt.wantEpisodes)
			}
			if se.MultiEpisode != tt.wantMulti {
				t.Errorf("MultiEpisode = %v, want %v", se.MultiEpisode, tt.wantMulti)
			}
			if !got.HasTVMarkers() {
				t.Error("HasTVMarkers() = false, want true")
			}
		})
	}
}

func TestParse_AnimeSeasonDashEpisode(t *testing.T) {
	tests := []struct {
		input   string
		season  int
		episode int
	}{
		{"[SubsPlease] Dandadan S2 - 07 (1080p) [A1B2C3D4].mkv", 2, 7},
		{"[Erai-raws] Kaiju No. 8 S2 - 03 [1080p]", 2, 3},
		{"[SubsPlease] Sousou no Frieren S2 - 10v2 (720p)", 2, 10},
		{"[Erai-raws] Blue Lock S2 - 14 [1080p][Multiple Subtitle]", 2, 14},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Parse(tt.input)
			if got == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			se := got.SeasonEpisode
			if !slices.Equal(se.Seasons, []int{tt.season}) {
				t.Errorf("Seasons = %v, want [%d]", se.Seasons, tt.season)
			}
			if !slices.Equal(se.Episodes, []int{tt.episode}) {
				t.Errorf("Episodes = %v, want [%d]", se.Episodes, tt.episode)
			}
			if got.IsPack() {
				t.Error("single episode parsed as a pack")
			}
		})
	}
}

func TestParse_Packs(t *testing.T) {
	if !Parse("Show.S03.1080p").IsPack() {
		t.Error("season pack not reported as pack")
	}
	if !Parse("Show.Complete.1080p").IsCompletePack() {
		t.Error("complete release not reported as complete pack")
	}
	if Parse("Show.S03E01.1080p").IsPack() {
		t.Error("single episode reported as pack")
	}
	if Parse("Movie.2020.1080p").IsPack() {
		t.Error("movie reported as pack")
	}
}

func TestParse_InvalidSeasonRange(t *testing.T) {
	got := Parse("Show.S01-S60.1080p")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if !got.InvalidSeasonRange {
		t.Error("S01-S60 not flagged as invalid range")
	}
	if len(got.SeasonEpisode.Seasons) != 0 {
		t.Errorf("Seasons = %v, want none", got.SeasonEpisode.Seasons)
	}

	got = Parse("Show.S01-S50.1080p")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.InvalidSeasonRange {
		t.Error("S01-S50 flagged as invalid range")
	}
	if len(got.SeasonEpisode.Seasons) != 50 {
		t.Errorf("len(Seasons) = %d, want 50", len(got.SeasonEpisode.Seasons))
	}
}

func TestParse_Date(t *testing.T) {
	got := Parse("Late.Show.2024.03.15.720p.WEB")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.SeasonEpisode.Date != "2024-03-15" {
		t.Errorf("Date = %q, want 2024-03-15", got.SeasonEpisode.Date)
	}
	if got.SeasonEpisode.SeasonPack != PackNone {
		t.Errorf("SeasonPack = %q, want %q", got.SeasonEpisode.SeasonPack, PackNone)
	}
	if got.Title != "Late Show" {
		t.Errorf("Title = %q, want Late Show", got.Title)
	}

	// explicit markers win over dates
	got = Parse("Show.S01E01.2024.03.15.720p")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.SeasonEpisode.Date != "" {
		t.Errorf("Date = %q, want empty", got.SeasonEpisode.Date)
	}
}

func TestParse_YearRange(t *testing.T) {
	got := Parse("Show.2010-2013.Complete.1080p")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if want := []int{2010, 2011, 2012, 2013}; !slices.Equal(got.Years, want) {
		t.Errorf("Years = %v, want %v", got.Years, want)
	}
	if !got.HasYear(2012, 0) {
		t.Error("HasYear(2012, 0) = false")
	}
	if got.HasYear(2015, 1) {
		t.Error("HasYear(2015, 1) = true")
	}
}

func TestParse_ResolutionNeverYear(t *testing.T) {
	got := Parse("Movie.1080p.WEB")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.Year != 0 || len(got.Years) != 0 {
		t.Errorf("Year = %d, Years = %v, want none", got.Year, got.Years)
	}
}

func TestParse_Country(t *testing.T) {
	tests := []struct {
		input       string
		wantTitle   string
		wantCountry string
	}{
		{"The.Office.US.S01E01.720p", "The Office", "US"},
		{"Shameless (US) S02E03 1080p", "Shameless", "US"},
		{"Utopia.GB.S01E01.1080p", "Utopia", "UK"},
		{"Among.us.2021.1080p", "Among us", ""},
		{"US.S01E01.1080p", "US", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Parse(tt.input)
			if got == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Country != tt.wantCountry {
				t.Errorf("Country = %q, want %q", got.Country, tt.wantCountry)
			}
		})
	}
}

func TestParse_Trash(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Movie.2023.CAM.x264", true},
		{"Movie.2023.HDTS.x264", true},
		{"Movie.2023.TELESYNC", true},
		{"Movie.2023.WORKPRINT", true},
		{"Movie.2023.720p.TS.XviD", true},
		{"Movie.TC.XviD", true},
		{"Movie.2023.1080p.WEB-DL.x264", false},
		{"Cam.2018.1080p.WEB-DL.x264", false},
		{"TS.Eliot.Documentary.2009.720p", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Parse(tt.input)
			if got == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			if got.Trash != tt.want {
				t.Errorf("Trash = %v, want %v", got.Trash, tt.want)
			}
		})
	}
}

func TestParse_TrashTagStaysOutOfTitle(t *testing.T) {
	got := Parse("Cam.2018.1080p.WEB-DL.x264")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.Title != "Cam" {
		t.Errorf("Title = %q, want Cam", got.Title)
	}
	if got.Year != 2018 {
		t.Errorf("Year = %d, want 2018", got.Year)
	}
}

func TestParse_Documentary(t *testing.T) {
	got := Parse("Planet.S01E03.DOC.1080p.WEB")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if !got.Documentary {
		t.Error("Documentary = false")
	}
	if got.EpisodeTitle != "" {
		t.Errorf("EpisodeTitle = %q, want empty", got.EpisodeTitle)
	}
	if got.Title != "Planet" {
		t.Errorf("Title = %q, want Planet", got.Title)
	}
	if !slices.Equal(got.SeasonEpisode.Episodes, []int{3}) {
		t.Errorf("Episodes = %v, want [3]", got.SeasonEpisode.Episodes)
	}
	if got.OriginalTitle != "Planet.S01E03.DOC.1080p.WEB" {
		t.Errorf("OriginalTitle = %q", got.OriginalTitle)
	}
}

func TestParse_EpisodeTitle(t *testing.T) {
	got := Parse("Show.S01E01.Pilot.1080p.WEB")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.EpisodeTitle != "Pilot" {
		t.Errorf("EpisodeTitle = %q, want Pilot", got.EpisodeTitle)
	}

	got = Parse("Show.S01E01.FINAL.1080p")
	if got == nil {
		t.Fatal("Parse returned nil")
	}
	if got.EpisodeTitle != "" {
		t.Errorf("EpisodeTitle = %q, want empty", got.EpisodeTitle)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, in := range []string{"", "   "} {
		if got := Parse(in); got != nil {
			t.Errorf("Parse(%q) = %+v, want nil", in, got)
		}
	}
}

func TestResolutionRank(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2160p", 4},
		{"4K", 4},
		{"1080p", 3},
		{"720p", 2},
		{"480p", 1},
		{"sd", 1},
		{"unknown", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := ResolutionRank(tt.in); got != tt.want {
			t.Errorf("ResolutionRank(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
