package scrape

import (
	"strings"

	"github.com/reelscout/reelscout/internal/indexer/types"
)

// titleDecoration starts the trailer some aggregators append to titles.
const titleDecoration = "┈➤"

// Finish post-processes and deduplicates a merged result list.
func Finish(results []types.RawResult) []types.RawResult {
	PostProcess(results)
	return Dedupe(results)
}

// PostProcess trims decorated titles and lifts adapter fields into each
// result's additional metadata.
func PostProcess(results []types.RawResult) {
	for i := range results {
		r := &results[i]
		r.Title = TrimDecoration(r.Title)

		meta := make(map[string]string, len(r.AdditionalMetadata)+4)
		for k, v := range r.AdditionalMetadata {
			meta[k] = v
		}
		setIf(meta, "filename", r.Filename)
		setIf(meta, "binge_group", r.BingeGroup)
		setIf(meta, "source_site", r.SourceSite)
		setIf(meta, "languages", strings.Join(r.Languages, ","))
		if len(meta) > 0 {
			r.AdditionalMetadata = meta
		}
	}
}

// TrimDecoration drops a trailing "┈➤ ..." decoration from a title.
func TrimDecoration(title string) string {
	idx := strings.Index(title, titleDecoration)
	if idx < 0 {
		return strings.TrimSpace(title)
	}
	if trimmed := strings.TrimSpace(title[:idx]); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(title[idx+len(titleDecoration):])
}

func setIf(meta map[string]string, key, value string) {
	if value != "" {
		meta[key] = value
	}
}
