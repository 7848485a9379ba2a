package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/quillpad/quilldict/internal/logging"
)

// Manager holds the current configuration and reloads it when the file changes.
// A reload that fails to parse or validate keeps the previous configuration.
type Manager struct {
	mu       sync.RWMutex
	path     string
	config   *Config
	onReload []func(*Config)
	watcher  *fsnotify.Watcher
	wg       sync.WaitGroup
	log      zerolog.Logger
}

func NewManager() (*Manager, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveDefaultConfig(); err != nil {
			return nil, err
		}
	}
	return NewManagerForFile(configPath)
}

// NewManagerForFile manages an explicit config file.
func NewManagerForFile(path string) (*Manager, error) {
	log := logging.WithComponent("config")

	config, err := LoadFile(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to load initial configuration")
		return nil, err
	}

	if err := config.Validate(); err != nil {
		log.Warn().Err(err).Msg("configuration has problems, dictation may fail to start")
	}

	return &Manager{
		path:   path,
		config: config,
		log:    log,
	}, nil
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	return &configCopy
}

// OnReload registers fn to run with each successfully reloaded configuration.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	m.onReload = append(m.onReload, fn)
	m.mu.Unlock()
}

func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	m.watcher = watcher

	// watch the directory: editors replace the file rather than writing it
	configDir := filepath.Dir(m.path)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return err
	}

	m.wg.Add(1)
	go m.watchLoop(ctx)

	m.log.Info().Str("path", m.path).Msg("watching config for changes")
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	configFileName := filepath.Base(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFileName {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				m.log.Debug().Str("file", event.Name).Msg("config change detected")
				m.Reload()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn().Err(err).Msg("config watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// Reload reads the file again. It returns false when the previous
// configuration was kept.
func (m *Manager) Reload() bool {
	newConfig, err := LoadFile(m.path)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to reload config")
		return false
	}

	if err := newConfig.Validate(); err != nil {
		m.log.Warn().Err(err).Msg("invalid config after reload, keeping previous")
		return false
	}

	m.mu.Lock()
	m.config = newConfig
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		c := *newConfig
		fn(&c)
	}

	m.log.Info().Msg("configuration reloaded")
	return true
}
