// Package registry discovers GGUF model files and the llama-server binary so
// pickers can offer real choices instead of free-form paths.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"captiond/internal/common/fsutil"
	"captiond/pkg/types"
)

// GGUFScanner lists *.gguf files in a directory.
type GGUFScanner struct{}

// NewGGUFScanner constructs a scanner.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan reads dir (supporting a leading ~) and returns every GGUF file found.
// ID is the full filename; Path is absolute.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.Model{ID: name, Path: filepath.Join(abs, name)}
		if fi, err := e.Info(); err == nil {
			m.SizeBytes = fi.Size()
		}
		models = append(models, m)
	}
	return models, nil
}

// LoadDir scans dir with a default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// conventional llama-server locations relative to the working directory
var binaryCandidates = []string{
	"./build/bin/llama-server",
	"./llama-server",
	"../llama.cpp/build/bin/llama-server",
}

// DetectBinary probes the conventional llama-server build locations and
// returns the first that exists, or "" when none do.
func DetectBinary() string {
	for _, p := range binaryCandidates {
		if fsutil.FileExists(p) {
			return p
		}
	}
	return ""
}
