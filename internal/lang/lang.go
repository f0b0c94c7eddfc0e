// Package lang loads translation tables from lang/<code>.json.
package lang

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Languages offered to the user, keyed by display name
var Languages = map[string]string{
	"Español": "es",
	"English": "en",
}

// Code maps a language display name to its file code; unknown names fall back to Spanish
func Code(language string) string {
	if code, ok := Languages[language]; ok {
		return code
	}
	return "es"
}

// Names returns the language display names in a stable order
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog translates keys for the selected language
type Catalog struct {
	dir string

	mu       sync.RWMutex
	language string
	table    map[string]string
}

// Load reads the table for language from dir. A missing or broken file leaves the catalog
// empty, so T returns keys unchanged.
func Load(dir, language string) (*Catalog, error) {
	c := &Catalog{dir: dir}
	return c, c.SetLanguage(language)
}

// SetLanguage switches the catalog to language
func (c *Catalog) SetLanguage(language string) error {
	table, err := readTable(filepath.Join(c.dir, Code(language)+".json"))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = language
	c.table = table
	return err
}

// Language returns the selected language display name
func (c *Catalog) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// T returns the translation of key, or key itself when there is none
func (c *Catalog) T(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.table[key]; ok {
		return v
	}
	return key
}

// Tf translates key and substitutes {placeholder} values
func (c *Catalog) Tf(key string, values map[string]string) string {
	text := c.T(key)
	if len(values) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func readTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return map[string]string{}, fmt.Errorf("read translations: %w", err)
	}
	table := map[string]string{}
	if err := json.Unmarshal(data, &table); err != nil {
		return map[string]string{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return table, nil
}
