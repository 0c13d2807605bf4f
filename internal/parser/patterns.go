package parser

import "regexp"

type namedPattern struct {
	name    string
	pattern *regexp.Regexp
}

// Regex patterns for parsing. Slices are ordered: the first match wins.
var (
	// Episode patterns: Show S01E02, Show S01E01-E05, Show S01E01E02, Show 1x02
	seRangePattern = regexp.MustCompile(`(?i)\bS(\d{1,2})\s?E(\d{1,3})\s?-\s?E?(\d{1,3})\b`)
	seChainPattern = regexp.MustCompile(`(?i)\bS(\d{1,2})((?:\s?E\d{1,3}){2,})\b`)
	sePattern      = regexp.MustCompile(`(?i)\bS(\d{1,2})\s?E(\d{1,3})\b`)
	xPattern       = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	chainEpisode   = regexp.MustCompile(`(?i)E(\d{1,3})`)

	// Season patterns: S01-S03, Season 1-3, S01 S02, S01,S02, S03, Season 3
	seasonRangePattern        = regexp.MustCompile(`(?i)\bS(\d{1,2})(?:\s?-\s?S|-)(\d{1,2})\b`)
	seasonSpelledRangePattern = regexp.MustCompile(`(?i)\bseasons?\s?(\d{1,2})\s?(?:-|to)\s?(\d{1,2})\b`)
	seasonListPattern         = regexp.MustCompile(`(?i)\bS\d{1,2}(?:\s?[,+&]\s?S?\d{1,2}|\s+S\d{1,2})+\b`)
	seasonPattern             = regexp.MustCompile(`(?i)\b(?:S|seasons?\s?)(\d{1,2})\b`)
	numberPattern             = regexp.MustCompile(`\d{1,2}`)

	completePattern = regexp.MustCompile(`(?i)\b(?:the\s)?(?:complete(?:\s(?:series|season|collection))?|collection|all\s+seasons|box\s?set|integrale)\b`)

	// Anime: "Show - 20 [1080p]", "Show - 01-12", "Show Episode 7", "Show E20"
	animeBatchPattern    = regexp.MustCompile(`(?:\s-\s|\s\()(\d{1,4})\s?[-~]\s?(\d{1,4})\)?(?:\s|$|\[|\()`)
	absolutePattern      = regexp.MustCompile(`(?:^|\s)-\s(\d{1,4})(?:v\d)?(?:\s|$|\[|\()`)
	episodeWordPattern   = regexp.MustCompile(`(?i)\b(?:episode|ep)\s?(\d{1,4})\b`)
	bareEpisodePattern   = regexp.MustCompile(`(?i)\bE(\d{1,4})\b`)
	leadingGroupPattern  = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*`)
	trailingGroupPattern = regexp.MustCompile(`-([A-Za-z0-9]+)$`)

	yearPattern      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	yearRangePattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\s?-\s?(19\d{2}|20\d{2})\b`)
	datePattern      = regexp.MustCompile(`\b((?:19|20)\d{2})[.\-\s](0[1-9]|1[0-2])[.\-\s](0[1-9]|[12]\d|3[01])\b`)

	extensionPattern = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|m4v|ts|wmv|mov|webm)$`)
	spacePattern     = regexp.MustCompile(`\s+`)

	docPattern = regexp.MustCompile(`(?i)\bDOC\b`)

	// Trash: cam, workprint, telesync heuristics. The bare short tags are also
	// ordinary words ("Cam", "TS"), so they only count after a year or
	// resolution, or right before a codec.
	trashPattern     = regexp.MustCompile(`(?i)\b(camrip|hdcam|hd\s?cam|hdts|hd\s?ts|telesync|hdtc|telecine|workprint|pdvd|predvd|dvdscr|screener)\b`)
	bareTrashPattern = regexp.MustCompile(`(?i)\b(cam|ts|tc|scr)\b`)
	qualityBefore    = regexp.MustCompile(`(?i)\b(19\d{2}|20\d{2}|\d{3,4}p|4k|uhd)\b`)
	codecAfter       = regexp.MustCompile(`(?i)^\s*(x26[45]|h\s?\.?26[45]|xvid|divx|hevc|avc|aac|ac3|mp3)\b`)

	resolutionPatterns = []namedPattern{
		{Resolution2160p, regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`)},
		{Resolution1080p, regexp.MustCompile(`(?i)\b1080[pi]\b`)},
		{Resolution720p, regexp.MustCompile(`(?i)\b720p\b`)},
		{Resolution480p, regexp.MustCompile(`(?i)\b(480p|576p)\b`)},
		{ResolutionSD, regexp.MustCompile(`(?i)\b(sd|sdtv|360p)\b`)},
	}

	sourcePatterns = []namedPattern{
		{"remux", regexp.MustCompile(`(?i)\b(bd)?remux\b`)},
		{"bluray", regexp.MustCompile(`(?i)\b(blu-?ray|bdrip|brrip|bd25|bd50)\b`)},
		{"webdl", regexp.MustCompile(`(?i)\b(web-?dl|webdl|web)\b`)},
		{"webrip", regexp.MustCompile(`(?i)\bweb-?rip\b`)},
		{"hdtv", regexp.MustCompile(`(?i)\bhdtv\b`)},
		{"dvdrip", regexp.MustCompile(`(?i)\b(dvd-?rip|dvd-?r|dvd5|dvd9)\b`)},
		{"sdtv", regexp.MustCompile(`(?i)\b(sdtv|pdtv|dsr)\b`)},
	}

	codecPatterns = []namedPattern{
		{"x265", regexp.MustCompile(`(?i)\b(x265|h\s?\.?265|hevc)\b`)},
		{"x264", regexp.MustCompile(`(?i)\b(x264|h\s?\.?264|avc)\b`)},
		{"AV1", regexp.MustCompile(`(?i)\bav1\b`)},
		{"VP9", regexp.MustCompile(`(?i)\bvp9\b`)},
		{"XviD", regexp.MustCompile(`(?i)\bxvid\b`)},
		{"DivX", regexp.MustCompile(`(?i)\bdivx\b`)},
		{"MPEG2", regexp.MustCompile(`(?i)\bmpeg-?2\b`)},
	}

	// HDR tokens are bounded by non-alphanumerics so DV never matches inside DVDRIP.
	hdrPatterns = []namedPattern{
		{"DV", regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(?:dv|dovi|dolby\s?vision)(?:$|[^a-z0-9])`)},
		{"HDR10+", regexp.MustCompile(`(?i)(?:^|[^a-z0-9])hdr10(?:\+|plus)`)},
		{"HDR10", regexp.MustCompile(`(?i)(?:^|[^a-z0-9])hdr10(?:$|[^a-z0-9+])`)},
		{"HDR", regexp.MustCompile(`(?i)(?:^|[^a-z0-9])hdr(?:$|[^a-z0-9])`)},
		{"HLG", regexp.MustCompile(`(?i)(?:^|[^a-z0-9])hlg(?:$|[^a-z0-9])`)},
	}

	// Release tags that end a title without carrying season or quality data.
	tagPattern = regexp.MustCompile(`(?i)\b(repack|proper|internal|multi|dubbed|subbed|extended|uncut|remastered|limited|imax|10bit|dual\saudio|vostfr|truefrench|french|german|ita|hindi|x26[45])\b`)

	countryPattern = regexp.MustCompile(`(?:\(([A-Za-z]{2})\)|\b([A-Z]{2}))$`)
)

// Country codes recognised at the end of a title, mapped to canonical form.
var countryCodes = map[string]string{
	"gb": "UK",
	"uk": "UK",
	"us": "US",
	"au": "AU",
	"ca": "CA",
	"nz": "NZ",
}

// Episode titles equal to these tags are dropped.
var formatTags = map[string]bool{
	"web":      true,
	"dl":       true,
	"hd":       true,
	"sd":       true,
	"uhd":      true,
	"rip":      true,
	"multi":    true,
	"dual":     true,
	"complete": true,
	"final":    true,
	"repack":   true,
	"proper":   true,
	"internal": true,
	"vostfr":   true,
	"french":   true,
	"german":   true,
	"eng":      true,
	"ita":      true,
}
