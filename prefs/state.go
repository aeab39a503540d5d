// Package prefs holds application preferences shared across requests.
package prefs

import (
	"sync"

	"github.com/rs/zerolog"

	storefront "github.com/nftmarket/storefront"
)

// Theme is the UI colour scheme
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"

	DefaultTheme = ThemeDark
)

// ParseTheme validates a theme value
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	}
	return "", storefront.NewError(storefront.ErrCodeInvalidTheme, "theme must be light or dark", map[string]interface{}{
		"theme": s,
	})
}

// State is the application state container. It is created once and passed
// explicitly to whatever needs it.
type State struct {
	mu      sync.RWMutex
	store   Store
	theme   Theme
	subs    map[int]func(Theme)
	nextSub int
	log     zerolog.Logger
}

// Option configures State
type Option func(*State)

// WithLogger sets the state's logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *State) {
		s.log = log
	}
}

// NewState loads the persisted theme from store. A missing or unreadable
// value falls back to DefaultTheme.
func NewState(store Store, opts ...Option) *State {
	s := &State{
		store: store,
		theme: DefaultTheme,
		subs:  make(map[int]func(Theme)),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	value, ok, err := store.Get(ThemeKey)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Msg("could not load theme, using default")
	case ok:
		if theme, err := ParseTheme(value); err == nil {
			s.theme = theme
		} else {
			s.log.Warn().Str("theme", value).Msg("ignoring stored theme")
		}
	}
	return s
}

// Theme returns the current theme
func (s *State) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// SetTheme persists theme and notifies subscribers
func (s *State) SetTheme(theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	_, err := s.update(func(Theme) Theme { return theme })
	return err
}

// Toggle switches between light and dark and returns the new theme
func (s *State) Toggle() (Theme, error) {
	return s.update(func(current Theme) Theme {
		if current == ThemeLight {
			return ThemeDark
		}
		return ThemeLight
	})
}

// update derives, persists and stores the next theme under one lock, then
// notifies subscribers if it changed. On a store error the theme is unchanged.
func (s *State) update(next func(Theme) Theme) (Theme, error) {
	s.mu.Lock()
	theme := next(s.theme)
	if err := s.store.Set(ThemeKey, string(theme)); err != nil {
		current := s.theme
		s.mu.Unlock()
		return current, err
	}
	changed := s.theme != theme
	s.theme = theme
	subs := make([]func(Theme), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(theme)
		}
	}
	return theme, nil
}

// Subscribe calls fn whenever the theme changes. The returned function unsubscribes.
func (s *State) Subscribe(fn func(Theme)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
