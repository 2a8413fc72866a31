package ops

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

// Runtime holds the active configuration. Every Update bumps the version.
type Runtime struct {
	v       atomic.Value
	version atomic.Uint64
}

// NewRuntime stores loaded as version 1.
func NewRuntime(loaded Loaded) *Runtime {
	var r Runtime
	r.Update(loaded)
	return &r
}

// Load returns the active configuration.
func (r *Runtime) Load() Loaded {
	return r.v.Load().(Loaded)
}

// Version returns the active version.
func (r *Runtime) Version() uint64 {
	return r.version.Load()
}

// Update swaps in loaded under a new version.
func (r *Runtime) Update(loaded Loaded) {
	loaded.Version = r.version.Load() + 1
	r.v.Store(loaded)
	r.version.Store(loaded.Version)
}

// Watch reloads path on every modification until ctx is done.
// Failed reloads keep the active configuration.
func Watch(ctx context.Context, path string, interval time.Duration, update func(Loaded)) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()
			loaded, err := Load(path)
			if err != nil {
				logs.Errorf("config reload failed, err: %+v", err)
				continue
			}
			update(loaded)
			logs.Infof("config reloaded: %s", path)
		}
	}
}
