package filter

import (
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/parser"
)

// Runtimes assumed when the metadata cache has none.
const (
	defaultMovieRuntime   = 120
	defaultEpisodeRuntime = 45
)

const bitsPerGB = 1024 * 1024 * 1024 * 8

func checkSize(e *evaluation) Verdict {
	c, q, p := e.cand, e.query, e.parsed()

	items, known := ItemCount(q, p)
	switch {
	case !known:
		e.f.logger.Warn().
			Str("title", c.Title).
			Msg("Episode count unknown for pack, using total size")
		c.NumItems = 1
		c.SizeGBPerItem = c.SizeGB
		c.TotalSizeGB = c.SizeGB
	case c.PerItemSize:
		c.NumItems = items
		c.SizeGBPerItem = c.SizeGB
		c.TotalSizeGB = c.SizeGB * float64(items)
	default:
		c.NumItems = items
		c.SizeGBPerItem = c.SizeGB / float64(items)
		c.TotalSizeGB = c.SizeGB
	}
	c.BitrateKbps = BitrateKbps(c.SizeGBPerItem, runtimeMinutes(q))

	if c.SizeGBPerItem <= 0 {
		return reject("unknown size")
	}
	if c.SizeGBPerItem < e.prof.MinSizeGB {
		return reject("size %.2f GB below minimum %.2f GB", c.SizeGBPerItem, e.prof.MinSizeGB)
	}
	if c.SizeGBPerItem > e.prof.MaxSize() {
		return reject("size %.2f GB above maximum %.2f GB", c.SizeGBPerItem, e.prof.MaxSizeGB)
	}

	mbps := c.BitrateKbps / 1000
	if mbps < e.prof.MinBitrateMbps {
		return reject("bitrate %.1f Mbps below minimum %.1f Mbps", mbps, e.prof.MinBitrateMbps)
	}
	if mbps > e.prof.MaxBitrate() {
		return reject("bitrate %.1f Mbps above maximum %.1f Mbps", mbps, e.prof.MaxBitrateMbps)
	}
	return passed
}

// ItemCount returns how many items a release holds. Packs are counted from
// the parsed seasons and the query's episode counts; known is false when a
// pack's seasons have no counts.
func ItemCount(q types.Query, p *parser.ParsedInfo) (n int, known bool) {
	if !q.IsEpisode() || p == nil {
		return 1, true
	}
	se := p.SeasonEpisode
	if !p.IsPack() {
		if len(se.Episodes) > 1 {
			return len(se.Episodes), true
		}
		return 1, true
	}

	seasons := se.Seasons
	if len(seasons) == 0 {
		for s := range q.EpisodeCounts {
			if s > 0 {
				seasons = append(seasons, s)
			}
		}
	}
	for _, s := range seasons {
		n += q.EpisodeCounts[s]
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}

// BitrateKbps converts a file size and runtime into an average bitrate.
func BitrateKbps(sizeGB float64, runtime int) float64 {
	if sizeGB <= 0 || runtime <= 0 {
		return 0
	}
	return sizeGB * bitsPerGB / 1000 / float64(runtime*60)
}

func runtimeMinutes(q types.Query) int {
	switch {
	case q.RuntimeMinutes > 0:
		return q.RuntimeMinutes
	case q.IsEpisode():
		return defaultEpisodeRuntime
	default:
		return defaultMovieRuntime
	}
}
