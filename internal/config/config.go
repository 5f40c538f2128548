// Package config loads the plugin's settings from a small JSON file and,
// optionally, watches it for changes so the subset of fields that are safe
// to change live (the connection admission cap and log verbosity) can be
// hot-swapped without touching the read-only-during-Run() route table or
// the listening socket (spec.md §3: the route table is read-only during
// run()). Watch applies both of those fields for real: max_connections
// feeds a Live view the listener's admission path reads on every accept,
// and log_level is applied directly to the running *logging.Logger.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/fly-zero/docker-network-plugin-demo/internal/logging"
)

// Config is the plugin's static configuration. Listen and MinProtocolVersion are
// fixed for the process lifetime; MaxConnections and LogLevel may be
// hot-reloaded via Watch.
type Config struct {
	// Listen is either a UNIX socket path or "tcp://host:port".
	Listen string `json:"listen"`
	// StackBytes is the per-connection scratch-buffer size handed to the
	// arena allocator (spec.md §4.4 default: 256 KiB).
	StackBytes int `json:"stack_bytes"`
	// MaxConnections bounds concurrently in-flight connections.
	MaxConnections int64 `json:"max_connections"`
	// MinProtocolVersion is the lowest libnetwork plugin API version this
	// process will activate for, e.g. "1.0.0".
	MinProtocolVersion string `json:"min_protocol_version"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `json:"log_level"`
}

// Default returns the reference configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:             "/run/docker/plugins/demo.sock",
		StackBytes:         256 * 1024,
		MaxConnections:     1024,
		MinProtocolVersion: "1.0.0",
		LogLevel:           "info",
	}
}

// Load reads and parses path as a Config, falling back to defaults for any
// field the file omits. A field present in the file with a zero value
// replaces the default.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if _, err := semver.NewVersion(cfg.MinProtocolVersion); err != nil {
		return Config{}, fmt.Errorf("config: invalid min_protocol_version %q: %w", cfg.MinProtocolVersion, err)
	}
	return cfg, nil
}

// MeetsProtocolVersion reports whether candidate satisfies cfg's
// MinProtocolVersion floor.
func (c Config) MeetsProtocolVersion(candidate string) (bool, error) {
	min, err := semver.NewVersion(c.MinProtocolVersion)
	if err != nil {
		return false, fmt.Errorf("config: invalid min_protocol_version %q: %w", c.MinProtocolVersion, err)
	}
	got, err := semver.NewVersion(candidate)
	if err != nil {
		return false, fmt.Errorf("config: invalid candidate version %q: %w", candidate, err)
	}
	return !got.LessThan(min), nil
}

// Live holds the subset of configuration safe to change after startup.
// MaxConnections is read with atomic.Int64 so the listener's admission path
// never takes a lock for it.
type Live struct {
	MaxConnections atomic.Int64
}

// NewLive seeds a Live view from the static config.
func NewLive(cfg Config) *Live {
	l := &Live{}
	l.MaxConnections.Store(cfg.MaxConnections)
	return l
}

// Watch watches path for writes and, on each change, applies the two fields
// that are safe to change live: live.MaxConnections is updated in place (the
// listener's admission path reads it on every accept, see
// internal/listener's syncAdmissionCap) and log.SetLevel is called directly
// with the reparsed log_level. Everything else logs a notice that it
// requires a restart. Watch runs until stop is closed or the watcher
// errors, and is meant to be started in its own goroutine by the caller —
// it never touches the reactor's single-threaded data plane.
func Watch(path string, live *Live, log *logging.Logger, stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warnf("config: reload %s failed, keeping previous values: %v", path, err)
				continue
			}
			if got := live.MaxConnections.Swap(cfg.MaxConnections); got != cfg.MaxConnections {
				log.Infof("config: max_connections changed %d -> %d", got, cfg.MaxConnections)
			}
			if newLevel, err := logging.ParseLevel(cfg.LogLevel); err != nil {
				log.Warnf("config: invalid log_level %q, keeping previous: %v", cfg.LogLevel, err)
			} else if old := log.Level(); old != newLevel {
				log.SetLevel(newLevel)
				log.Infof("config: log_level changed %s -> %s", old, newLevel)
			}
			log.Infof("config: listen/stack_bytes/min_protocol_version changes require a restart; keeping running values")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Errorf("config: watcher error: %v", err)
		}
	}
}
