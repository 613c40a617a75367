package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 500 * time.Millisecond

// Status describes the configuration currently in effect.
type Status struct {
	Path        string
	Checksum    string
	LoadedAt    time.Time
	ReloadCount int64
	LastError   string
}

type snapshot struct {
	cfg      *Config
	checksum string
	loadedAt time.Time
}

// Manager handles configuration loading and hot-reload.
// Readers always see a complete Config through an atomic pointer swap.
type Manager struct {
	current     atomic.Pointer[snapshot]
	reloadCount atomic.Int64
	lastError   atomic.Value // string

	path   string
	logger *slog.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
}

// NewManager loads path and returns a manager for it.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		path:   path,
		logger: logger,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the current configuration.
// This is safe to call concurrently from multiple goroutines.
func (m *Manager) Get() *Config {
	return m.current.Load().cfg
}

// Status reports the path, checksum and load time of the active config.
func (m *Manager) Status() Status {
	snap := m.current.Load()
	st := Status{
		Path:        m.path,
		Checksum:    snap.checksum,
		LoadedAt:    snap.loadedAt,
		ReloadCount: m.reloadCount.Load(),
	}
	if v, ok := m.lastError.Load().(string); ok {
		st.LastError = v
	}
	return st
}

// OnChange registers a callback invoked after each successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the file. On error the current configuration is kept.
func (m *Manager) Reload() error {
	if err := m.load(); err != nil {
		m.lastError.Store(err.Error())
		return err
	}
	m.lastError.Store("")

	cfg := m.Get()
	m.mu.Lock()
	listeners := append([]func(*Config){}, m.onChange...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(data)
	m.current.Store(&snapshot{
		cfg:      cfg,
		checksum: hex.EncodeToString(sum[:]),
		loadedAt: time.Now(),
	})
	m.reloadCount.Add(1)
	return nil
}

// Watch starts watching the configuration file for changes until ctx is
// done. The parent directory is watched so editors that replace the file
// by rename are picked up.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	target := filepath.Clean(m.path)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := m.Reload(); err != nil {
					m.logger.Error("failed to reload config, keeping current", "path", m.path, "error", err)
					return
				}
				m.logger.Info("configuration reloaded", "path", m.path, "checksum", m.Status().Checksum)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

// Close stops the configuration watcher.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		err := m.watcher.Close()
		m.watcher = nil
		return err
	}
	return nil
}
