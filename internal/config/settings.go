package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"

	"captiond/pkg/types"
)

// Built-in launch defaults, applied when the settings file is missing or unreadable.
const (
	DefaultPort    = "11434"
	DefaultContext = "8192"
	DefaultBatch   = "512"
	DefaultGPU     = "99"

	// DefaultPrompt is used whenever a folder's prompt is empty.
	DefaultPrompt = "Describe this image in detail for an AI training dataset. Focus on clothing, background, textures, and lighting."
)

// DefaultSettings returns the baseline persisted configuration.
func DefaultSettings() types.Settings {
	return types.Settings{
		ServerBinary: "./build/bin/llama-server",
		Port:         DefaultPort,
		Context:      DefaultContext,
		GPULayers:    DefaultGPU,
		LastPrompt:   DefaultPrompt,
	}
}

// DefaultSettingsPath is the conventional on-disk location of the settings file.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "captiond", "settings.json")
}

// Store persists Settings as a single JSON file, written on every change.
// Read/write failures are logged and fall back to defaults; they are never fatal.
type Store struct {
	mu       sync.Mutex
	path     string
	settings types.Settings
}

// OpenStore loads the settings file at path, falling back to defaults when it
// is missing or unreadable.
func OpenStore(path string) *Store {
	s := &Store{path: path, settings: DefaultSettings()}
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("config: load %s: %v (using defaults)", path, err)
		}
		return s
	}
	var loaded types.Settings
	if err := json.Unmarshal(b, &loaded); err != nil {
		log.Printf("config: parse %s: %v (using defaults)", path, err)
		return s
	}
	s.settings = loaded
	return s
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update applies fn to the settings and persists the result immediately.
func (s *Store) Update(fn func(*types.Settings)) types.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
	s.saveLocked()
	return s.settings
}

func (s *Store) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Printf("config: mkdir for %s: %v", s.path, err)
		return
	}
	b, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		log.Printf("config: marshal settings: %v", err)
		return
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		log.Printf("config: save %s: %v", s.path, err)
	}
}
