// Package state tracks per-version acquisition state of movies and episodes.
// Pack filtering asks it whether every episode a pack covers is still wanted.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the acquisition state of one movie or episode for one version.
type State string

const (
	Wanted      State = "Wanted"
	Scraping    State = "Scraping"
	Downloading State = "Downloading"
	Collected   State = "Collected"
	Unreleased  State = "Unreleased"
	Ignored     State = "Ignored"
	Failed      State = "Failed"

	// Unknown is reported for coordinates the provider has never seen.
	Unknown State = "Unknown"
)

// ErrInvalidState is returned when storing a state outside the enum.
var ErrInvalidState = errors.New("invalid state")

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case Wanted, Scraping, Downloading, Collected, Unreleased, Ignored, Failed:
		return true
	}
	return false
}

// Fulfillable reports whether a release may still fulfil an item in this state.
func (s State) Fulfillable() bool {
	return s == Wanted || s == Scraping
}

// Key identifies one item. Movies use season and episode zero.
type Key struct {
	IMDbID  string `json:"imdb_id"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	Version string `json:"version"`
}

func (k Key) String() string {
	if k.Season == 0 && k.Episode == 0 {
		return fmt.Sprintf("%s [%s]", k.IMDbID, k.Version)
	}
	return fmt.Sprintf("%s S%02dE%02d [%s]", k.IMDbID, k.Season, k.Episode, k.Version)
}

// Provider answers state lookups for the filter.
type Provider interface {
	// States returns the state of every key; missing keys map to Unknown.
	States(ctx context.Context, keys []Key) (map[Key]State, error)
}

// Store is a Provider that can also record states.
type Store interface {
	Provider
	Set(ctx context.Context, key Key, s State) error
}

// FirstUnwanted returns the first key whose state cannot be fulfilled, in
// the order given, or false when all are wanted.
func FirstUnwanted(ctx context.Context, p Provider, keys []Key) (Key, State, bool, error) {
	if len(keys) == 0 {
		return Key{}, "", false, nil
	}
	states, err := p.States(ctx, keys)
	if err != nil {
		return Key{}, "", false, err
	}
	for _, k := range keys {
		s, ok := states[k]
		if !ok {
			s = Unknown
		}
		if !s.Fulfillable() {
			return k, s, true, nil
		}
	}
	return Key{}, "", false, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	states map[Key]State
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{states: make(map[Key]State)}
}

func (m *Memory) States(_ context.Context, keys []Key) (map[Key]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Key]State, len(keys))
	for _, k := range keys {
		if s, ok := m.states[k]; ok {
			out[k] = s
		} else {
			out[k] = Unknown
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, key Key, s State) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = s
	return nil
}
