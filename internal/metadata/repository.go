package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reelscout/reelscout/internal/database"
)

const dbTimeLayout = "2006-01-02 15:04:05"

var dbTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	dbTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

// parseDBTime reads a stored timestamp. Values without a zone are UTC.
func parseDBTime(s string) (time.Time, error) {
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid stored time %q", s)
}

// repository persists cached items. Every write runs in one transaction
// under lock retry; no network I/O happens inside it.
type repository struct {
	db *database.DB
}

const itemColumns = `imdb_id, type, title, original_title, year, country, language, network,
	timezone, status, runtime, genres, slug, trakt_id, tmdb_id, tvdb_id, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var (
		item      Item
		year      sql.NullInt64
		genres    string
		createdAt sql.NullString
		updatedAt sql.NullString
	)
	err := row.Scan(&item.IMDbID, &item.Type, &item.Title, &item.OriginalTitle, &year, &item.Country,
		&item.Language, &item.Network, &item.Timezone, &item.Status, &item.Runtime, &genres,
		&item.Slug, &item.TraktID, &item.TMDBID, &item.TVDBID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	item.Year = int(year.Int64)
	if genres != "" {
		if err := json.Unmarshal([]byte(genres), &item.Genres); err != nil {
			return nil, fmt.Errorf("failed to decode genres: %w", err)
		}
	}
	if createdAt.Valid {
		item.CreatedAt, _ = parseDBTime(createdAt.String)
	}
	if updatedAt.Valid {
		if item.UpdatedAt, err = parseDBTime(updatedAt.String); err != nil {
			return nil, err
		}
	}
	return &item, nil
}

// getItem returns nil when the item is not cached.
func (r *repository) getItem(ctx context.Context, imdbID string) (*Item, error) {
	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media_items WHERE imdb_id = ?`, imdbID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", imdbID, err)
	}
	return item, nil
}

func (r *repository) getRecords(ctx context.Context, imdbID string) (map[string]json.RawMessage, error) {
	rows, err := r.db.Conn().QueryContext(ctx,
		`SELECT key, value FROM metadata WHERE item_id = ? AND provider = ?`, imdbID, providerTrakt)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata for %s: %w", imdbID, err)
	}
	defer rows.Close()

	records := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		records[key] = json.RawMessage(value)
	}
	return records, rows.Err()
}

func (r *repository) getSeasons(ctx context.Context, imdbID string) (map[int]*Season, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT s.season_number, s.episode_count,
			e.episode_number, e.title, e.overview, e.runtime, e.first_aired, e.imdb_id, e.tvdb_id, e.absolute_number
		FROM seasons s
		LEFT JOIN episodes e ON e.season_id = s.id
		WHERE s.item_id = ?
		ORDER BY s.season_number, e.episode_number`, imdbID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seasons for %s: %w", imdbID, err)
	}
	defer rows.Close()

	seasons := make(map[int]*Season)
	for rows.Next() {
		var (
			number, count int
			epNumber      sql.NullInt64
			title         sql.NullString
			overview      sql.NullString
			runtime       sql.NullInt64
			firstAired    sql.NullString
			epIMDb        sql.NullString
			tvdbID        sql.NullInt64
			absolute      sql.NullInt64
		)
		if err := rows.Scan(&number, &count, &epNumber, &title, &overview, &runtime, &firstAired,
			&epIMDb, &tvdbID, &absolute); err != nil {
			return nil, err
		}
		season, ok := seasons[number]
		if !ok {
			season = &Season{Number: number, EpisodeCount: count, Episodes: make(map[int]*Episode)}
			seasons[number] = season
		}
		if !epNumber.Valid {
			continue
		}
		ep := &Episode{
			Season:   number,
			Number:   int(epNumber.Int64),
			Title:    title.String,
			Overview: overview.String,
			Runtime:  int(runtime.Int64),
			IMDbID:   epIMDb.String,
			TVDBID:   int(tvdbID.Int64),
		}
		if firstAired.Valid && firstAired.String != "" {
			if at, err := parseDBTime(firstAired.String); err == nil {
				ep.FirstAired = &at
			}
		}
		if absolute.Valid {
			abs := int(absolute.Int64)
			ep.AbsoluteNumber = &abs
		}
		season.Episodes[ep.Number] = ep
	}
	return seasons, rows.Err()
}

// findEpisode looks up an episode by its own IMDb id.
func (r *repository) findEpisode(ctx context.Context, episodeIMDb string) (*EpisodeLookup, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT s.item_id, s.season_number, e.episode_number
		FROM episodes e JOIN seasons s ON s.id = e.season_id
		WHERE e.imdb_id = ? LIMIT 1`, episodeIMDb)
	var showID string
	var season, episode int
	if err := row.Scan(&showID, &season, &episode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find episode %s: %w", episodeIMDb, err)
	}
	seasons, err := r.getSeasons(ctx, showID)
	if err != nil {
		return nil, err
	}
	sn, ok := seasons[season]
	if !ok {
		return nil, nil
	}
	return &EpisodeLookup{ShowIMDbID: showID, Episode: sn.Episodes[episode]}, nil
}

// save upserts the item and its records, replacing seasons when given.
func (r *repository) save(ctx context.Context, item *Item, records map[string]any, seasons map[int]*Season) error {
	genres, err := json.Marshal(item.Genres)
	if err != nil {
		return err
	}
	encoded := make(map[string]string, len(records))
	for key, value := range records {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		encoded[key] = string(data)
	}

	now := formatDBTime(item.UpdatedAt)
	var year any
	if item.Year > 0 {
		year = item.Year
	}

	return r.db.WithTx(ctx, "save metadata "+item.IMDbID, false, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO media_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(imdb_id) DO UPDATE SET
				type = excluded.type, title = excluded.title, original_title = excluded.original_title,
				year = excluded.year, country = excluded.country, language = excluded.language,
				network = excluded.network, timezone = excluded.timezone, status = excluded.status,
				runtime = excluded.runtime, genres = excluded.genres, slug = excluded.slug,
				trakt_id = excluded.trakt_id, tmdb_id = excluded.tmdb_id, tvdb_id = excluded.tvdb_id,
				updated_at = MAX(media_items.updated_at, excluded.updated_at)`,
			item.IMDbID, item.Type, item.Title, item.OriginalTitle, year, item.Country, item.Language,
			item.Network, item.Timezone, item.Status, item.Runtime, string(genres), item.Slug,
			item.TraktID, item.TMDBID, item.TVDBID, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert item: %w", err)
		}

		for key, value := range encoded {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO metadata (item_id, key, provider, value, last_updated)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(item_id, key, provider) DO UPDATE SET
					value = excluded.value, last_updated = excluded.last_updated`,
				item.IMDbID, key, providerTrakt, value, now)
			if err != nil {
				return fmt.Errorf("failed to upsert %s: %w", key, err)
			}
		}

		if seasons == nil {
			return nil
		}
		return replaceSeasons(ctx, tx, item.IMDbID, seasons)
	})
}

func replaceSeasons(ctx context.Context, tx *sql.Tx, imdbID string, seasons map[int]*Season) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM seasons WHERE item_id = ?`, imdbID); err != nil {
		return fmt.Errorf("failed to clear seasons: %w", err)
	}
	for number, season := range seasons {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO seasons (item_id, season_number, episode_count) VALUES (?, ?, ?)`,
			imdbID, number, season.EpisodeCount)
		if err != nil {
			return fmt.Errorf("failed to insert season %d: %w", number, err)
		}
		seasonID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, ep := range season.Episodes {
			var firstAired, absolute any
			if ep.FirstAired != nil {
				firstAired = formatDBTime(*ep.FirstAired)
			}
			if ep.AbsoluteNumber != nil {
				absolute = *ep.AbsoluteNumber
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO episodes (season_id, episode_number, title, overview, runtime, first_aired,
					imdb_id, tvdb_id, absolute_number)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				seasonID, ep.Number, ep.Title, ep.Overview, ep.Runtime, firstAired, ep.IMDbID, ep.TVDBID, absolute)
			if err != nil {
				return fmt.Errorf("failed to insert S%02dE%02d: %w", number, ep.Number, err)
			}
		}
	}
	return nil
}

// deleteRecords removes every metadata record and season of an item. The
// item row stays; reads treat it as incomplete and refresh it.
func (r *repository) deleteRecords(ctx context.Context, imdbID string) (int64, error) {
	var removed int64
	err := r.db.WithTx(ctx, "remove metadata "+imdbID, true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE item_id = ?`, imdbID)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx, `DELETE FROM seasons WHERE item_id = ?`, imdbID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove metadata for %s: %w", imdbID, err)
	}
	return removed, nil
}

// mappingTable names one of the foreign id tables.
type mappingTable string

const (
	tmdbMappings mappingTable = "tmdb_to_imdb"
	tvdbMappings mappingTable = "tvdb_to_imdb"
)

func (t mappingTable) column() string {
	if t == tmdbMappings {
		return "tmdb_id"
	}
	return "tvdb_id"
}

// getMapping returns the IMDb id for a foreign id, or "" when unknown.
func (r *repository) getMapping(ctx context.Context, table mappingTable, foreignID string) (string, string, error) {
	var imdbID, mediaType string
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT imdb_id, media_type FROM `+string(table)+` WHERE `+table.column()+` = ?`, foreignID).
		Scan(&imdbID, &mediaType)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s mapping: %w", table, err)
	}
	return imdbID, mediaType, nil
}

func (r *repository) saveMapping(ctx context.Context, table mappingTable, foreignID, imdbID, mediaType string) error {
	return r.db.WithLockRetry(ctx, "save "+string(table), false, func() error {
		_, err := r.db.Conn().ExecContext(ctx,
			`INSERT INTO `+string(table)+` (`+table.column()+`, imdb_id, media_type) VALUES (?, ?, ?)
			ON CONFLICT(`+table.column()+`) DO NOTHING`, foreignID, imdbID, mediaType)
		return err
	})
}

// cachedIDs returns the subset of ids present in the cache with the given type.
func (r *repository) cachedIDs(ctx context.Context, mediaType MediaType, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for start := 0; start < len(ids); start += 500 {
		end := min(start+500, len(ids))
		chunk := ids[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, mediaType)
		placeholders := make([]byte, 0, len(chunk)*2)
		for i, id := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, id)
		}
		rows, err := r.db.Conn().QueryContext(ctx,
			`SELECT imdb_id FROM media_items WHERE type = ? AND imdb_id IN (`+string(placeholders)+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query cached ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
