package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reelscout/reelscout/internal/database"
)

// SQLite stores states in the media_states table.
type SQLite struct {
	db *database.DB
}

// NewSQLite creates a store on db.
func NewSQLite(db *database.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Set(ctx context.Context, key Key, st State) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, st)
	}
	return s.db.WithLockRetry(ctx, "set state", false, func() error {
		_, err := s.db.Conn().ExecContext(ctx, `
			INSERT INTO media_states (imdb_id, season, episode, version, state, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(imdb_id, season, episode, version) DO UPDATE SET
				state = excluded.state, updated_at = excluded.updated_at`,
			key.IMDbID, key.Season, key.Episode, key.Version, string(st),
			time.Now().UTC().Format("2006-01-02 15:04:05"))
		return err
	})
}

// States loads the states of keys, grouped per item and version.
func (s *SQLite) States(ctx context.Context, keys []Key) (map[Key]State, error) {
	out := make(map[Key]State, len(keys))
	groups := make(map[[2]string]bool)
	for _, k := range keys {
		out[k] = Unknown
		groups[[2]string{k.IMDbID, k.Version}] = true
	}

	for g := range groups {
		rows, err := s.db.Conn().QueryContext(ctx,
			`SELECT season, episode, state FROM media_states WHERE imdb_id = ? AND version = ?`, g[0], g[1])
		if err != nil {
			return nil, fmt.Errorf("failed to load states for %s: %w", g[0], err)
		}
		for rows.Next() {
			var season, episode int
			var st string
			if err := rows.Scan(&season, &episode, &st); err != nil {
				rows.Close()
				return nil, err
			}
			k := Key{IMDbID: g[0], Season: season, Episode: episode, Version: g[1]}
			if _, want := out[k]; want {
				out[k] = State(st)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParseState converts user input to a State, ignoring case.
func ParseState(s string) (State, error) {
	for _, st := range []State{Wanted, Scraping, Downloading, Collected, Unreleased, Ignored, Failed} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
}
