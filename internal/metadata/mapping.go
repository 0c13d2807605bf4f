package metadata

import (
	"context"
	"errors"
	"strings"

	"github.com/reelscout/reelscout/internal/trakt"
)

// MapTMDBToIMDb converts a TMDB id. mediaType ("movie" or "show") narrows
// the upstream lookup and may be empty. An unknown id returns "".
func (s *Service) MapTMDBToIMDb(ctx context.Context, tmdbID, mediaType string) (string, error) {
	return s.mapToIMDb(ctx, tmdbMappings, "tmdb", tmdbID, mediaType)
}

// MapTVDBToIMDb converts a TVDB show id.
func (s *Service) MapTVDBToIMDb(ctx context.Context, tvdbID string) (string, error) {
	return s.mapToIMDb(ctx, tvdbMappings, "tvdb", tvdbID, "show")
}

// mapToIMDb reads the local mapping first and records upstream answers.
// Mappings never go stale.
func (s *Service) mapToIMDb(ctx context.Context, table mappingTable, source, foreignID, mediaType string) (string, error) {
	foreignID = strings.TrimSpace(foreignID)
	if foreignID == "" {
		return "", nil
	}
	imdbID, _, err := s.repo.getMapping(ctx, table, foreignID)
	if err != nil {
		return "", err
	}
	if imdbID != "" {
		return imdbID, nil
	}

	imdbID, foundType, err := s.upstream.ConvertToIMDb(ctx, source, foreignID, mediaType)
	if errors.Is(err, trakt.ErrNotFound) {
		s.logger.Debug().Str("source", source).Str("id", foreignID).Msg("no imdb mapping upstream")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if foundType == "" {
		foundType = mediaType
	}
	if err := s.repo.saveMapping(ctx, table, foreignID, imdbID, foundType); err != nil {
		s.logger.Warn().Err(err).Str("source", source).Str("id", foreignID).Msg("failed to store id mapping")
	}
	return imdbID, nil
}
