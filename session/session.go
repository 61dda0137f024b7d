// Package session wires a format registry, a loader and a playback
// controller together into the operations an application needs: creating,
// loading and saving songs, and controlling their playback.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/playback"
	"github.com/vsariola/kappale/songio"
)

type (
	Session struct {
		mu         sync.Mutex
		loader     *songio.Loader
		controller *playback.Controller
		logger     *slog.Logger
		debounce   time.Duration
		path       string // where the song was last loaded from or saved to
	}

	Option func(*options)

	options struct {
		logger   *slog.Logger
		broker   *playback.Broker
		debounce time.Duration
	}
)

const defaultDebounce = 100 * time.Millisecond

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBroker makes the controller publish its status and alerts to b.
func WithBroker(b *playback.Broker) Option {
	return func(o *options) { o.broker = b }
}

// WithDebounce sets how long Watch waits for a file to settle before
// reloading it.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// New returns a session playing on engine, holding a new song.
func New(registry *songio.Registry, engine kappale.Engine, opts ...Option) *Session {
	o := options{logger: slog.Default(), debounce: defaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}
	popts := []playback.Option{playback.WithLogger(o.logger)}
	if o.broker != nil {
		popts = append(popts, playback.WithBroker(o.broker))
	}
	return &Session{
		loader:     songio.NewLoader(registry, songio.WithLogger(o.logger)),
		controller: playback.New(starterSong(), engine, popts...),
		logger:     o.logger,
		debounce:   o.debounce,
	}
}

// starterSong is an empty song with only a master output.
func starterSong() *kappale.Song {
	s := kappale.NewSong()
	master, err := kappale.NewMachine("master", "master")
	if err == nil {
		err = s.AddMachine(master)
	}
	if err != nil {
		panic(fmt.Sprintf("starter song: %v", err))
	}
	return s
}

// NewSong stops playback and replaces the song with a new one.
func (s *Session) NewSong() *kappale.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	song := starterSong()
	s.replace(song)
	s.path = ""
	return song
}

// LoadSong loads the song at path and makes it the current song, stopping
// playback first. If loading fails, the current song is kept.
func (s *Session) LoadSong(ctx context.Context, path, hint string) (*songio.Result, error) {
	res, err := s.loader.Load(ctx, path, hint)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(res.Song)
	s.path = path
	s.logger.Info("song loaded", "path", path, "format", res.Format, "name", res.Song.Meta().Name)
	return res, nil
}

// SaveSong saves the current song to path, or where it was last loaded
// from or saved to if path is empty.
func (s *Session) SaveSong(ctx context.Context, path, hint string) error {
	s.mu.Lock()
	if path == "" {
		path = s.path
	}
	s.mu.Unlock()
	if path == "" {
		return fmt.Errorf("the song has no file yet")
	}
	if err := s.loader.Save(ctx, s.Song(), path, hint); err != nil {
		return err
	}
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	return nil
}

func (s *Session) Song() *kappale.Song              { return s.controller.Song() }
func (s *Session) Controller() *playback.Controller { return s.controller }
func (s *Session) Loader() *songio.Loader           { return s.loader }

// Path returns where the current song was last loaded from or saved to.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) Play() error             { return s.controller.Play() }
func (s *Session) PlayFrom(tick int) error { return s.controller.PlayFrom(tick) }
func (s *Session) Pause() error            { return s.controller.Pause() }
func (s *Session) Resume() error           { return s.controller.Resume() }
func (s *Session) Stop() error             { return s.controller.Stop() }
func (s *Session) Seek(tick int) error     { return s.controller.Seek(tick) }
func (s *Session) Status() playback.Status { return s.controller.Status() }

// Close stops playback and releases the engine nodes.
func (s *Session) Close() error {
	return s.controller.Close()
}

func (s *Session) replace(song *kappale.Song) {
	s.controller.Stop()
	if err := s.controller.SetSong(song); err != nil {
		// the engine could not destroy the old nodes; the song is replaced
		// regardless
		s.logger.Warn("replacing song", "error", err)
	}
}

// Watch reloads the song at path whenever the file changes, until ctx is
// done. A reload keeps the transport state and position. onReload, if not
// nil, is called after every reload attempt; failed reloads keep the
// current song.
func (s *Session) Watch(ctx context.Context, path, hint string, onReload func(*songio.Result, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("filepath.Abs failed: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	// the directory is watched since editors often replace the file
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(s.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "path", path, "error", err)
		case <-pending:
			pending = nil
			res, err := s.reload(ctx, path, hint)
			if err != nil {
				s.logger.Warn("reload failed", "path", path, "error", err)
			}
			if onReload != nil {
				onReload(res, err)
			}
		}
	}
}

func (s *Session) reload(ctx context.Context, path, hint string) (*songio.Result, error) {
	res, err := s.loader.Load(ctx, path, hint)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, tick := s.controller.State(), s.controller.Position().Tick
	s.replace(res.Song)
	s.path = path
	switch state {
	case playback.Playing:
		err = s.controller.PlayFrom(tick)
	case playback.Paused:
		if err = s.controller.PlayFrom(tick); err == nil {
			err = s.controller.Pause()
		}
	}
	s.logger.Info("song reloaded", "path", path, "state", state, "tick", tick)
	return res, err
}
