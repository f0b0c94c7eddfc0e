// Package presets manages the official and custom game presets and keeps the official list in
// sync with the published release.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	OfficialFile = "presets.json"
	CustomFile   = "presets_custom.json"
	MetadataFile = "presets_metadata.json"
)

var (
	// ErrDuplicate is returned when a custom preset name is already taken
	ErrDuplicate = errors.New("a preset with this name already exists")
	// ErrNotFound is returned when a custom preset does not exist
	ErrNotFound = errors.New("preset not found")
)

// Preset describes one game that can be impersonated
type Preset struct {
	Name       string `json:"name"`
	Executable string `json:"executable"`
	Path       string `json:"path"`
	IsCustom   bool   `json:"is_custom,omitempty"`
}

// Validate checks the fields a start needs
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Executable) == "" {
		return errors.New("preset name and executable are required")
	}
	return nil
}

// Store reads and writes preset files in one directory
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

// Dir returns the directory holding the preset files
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the official presets followed by the custom ones. Missing or unreadable files
// contribute nothing.
func (s *Store) Load() []Preset {
	s.mu.Lock()
	defer s.mu.Unlock()

	official := readList(filepath.Join(s.dir, OfficialFile))
	for i := range official {
		official[i].IsCustom = false
	}
	custom := readList(filepath.Join(s.dir, CustomFile))
	for i := range custom {
		custom[i].IsCustom = true
	}
	return append(official, custom...)
}

// AddCustom appends p to the custom presets; names are unique ignoring case
func (s *Store) AddCustom(p Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	custom := readList(filepath.Join(s.dir, CustomFile))
	for _, existing := range custom {
		if strings.EqualFold(existing.Name, p.Name) {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
		}
	}
	p.IsCustom = true
	return s.writeCustom(append(custom, p))
}

// EditCustom replaces the custom preset named oldName
func (s *Store) EditCustom(oldName string, p Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	custom := readList(filepath.Join(s.dir, CustomFile))
	idx := -1
	for i, existing := range custom {
		if existing.Name == oldName {
			idx = i
		} else if strings.EqualFold(existing.Name, p.Name) {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}

	p.IsCustom = true
	custom[idx] = p
	return s.writeCustom(custom)
}

// DeleteCustom removes the custom preset named name
func (s *Store) DeleteCustom(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	custom := readList(filepath.Join(s.dir, CustomFile))
	kept := custom[:0]
	for _, existing := range custom {
		if existing.Name != name {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(custom) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.writeCustom(kept)
}

// Filter returns the presets whose name or executable contains query, ignoring case
func Filter(list []Preset, query string) []Preset {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	var out []Preset
	for _, p := range list {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Executable), q) {
			out = append(out, p)
		}
	}
	return out
}

// FindByExecutable returns the first preset launching exe
func FindByExecutable(list []Preset, exe string) (Preset, bool) {
	for _, p := range list {
		if p.Executable == exe {
			return p, true
		}
	}
	return Preset{}, false
}

func (s *Store) writeCustom(list []Preset) error {
	if list == nil {
		list = []Preset{}
	}
	return writeJSON(filepath.Join(s.dir, CustomFile), list)
}

func readList(path string) []Preset {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var list []Preset
	if err := json.Unmarshal(data, &list); err != nil {
		return nil
	}
	return list
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
