package config

import (
	"log/slog"
	"sync/atomic"
)

// Snapshot holds the current Engine config and supports hot reload.
// Readers call Current() and get an immutable snapshot; Reload swaps the
// whole config atomically, so a reader observes either the old or the new
// config, never a mix.
type Snapshot struct {
	cur atomic.Pointer[Engine]
}

// NewSnapshot creates a snapshot holder seeded with cfg.
func NewSnapshot(cfg Engine) *Snapshot {
	s := &Snapshot{}
	s.cur.Store(&cfg)
	return s
}

// Current returns the current config snapshot.
func (s *Snapshot) Current() *Engine {
	return s.cur.Load()
}

// Reload re-reads the config file at path and swaps in the new snapshot.
// On read/parse failure the previous snapshot stays in place.
func (s *Snapshot) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	s.cur.Store(&cfg)
	slog.Info("config reloaded", "path", path)
	return nil
}
