// Package layout holds the starting-position catalog. Positions are a
// comma-separated list of piece notations snapshotted into each new game,
// keyed by ruleset. Defaults are embedded; an override directory can add
// or replace rulesets without a rebuild.
package layout

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed layouts.yaml
var defaultFiles embed.FS

// DefaultRuleset is the classic Thud layout used when a game names none.
const DefaultRuleset = "classic"

type layoutFile struct {
	Rulesets map[string]entry `yaml:"rulesets"`
}

type entry struct {
	Positions string `yaml:"positions"`
}

type Catalog struct {
	mu   sync.RWMutex
	data map[string]string // ruleset -> positions
}

// New loads the embedded defaults and then applies overrides from dir
// when provided.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]string)}

	raw, err := fs.ReadFile(defaultFiles, "layouts.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded layouts: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	if _, ok := c.data[DefaultRuleset]; !ok {
		return nil, fmt.Errorf("layout catalog missing %q ruleset", DefaultRuleset)
	}
	return c, nil
}

// Positions returns the starting-position string for a ruleset. The empty
// ruleset resolves to the default.
func (c *Catalog) Positions(ruleset string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(ruleset))
	if name == "" {
		name = DefaultRuleset
	}
	c.mu.RLock()
	pos, ok := c.data[name]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown ruleset %q", ruleset)
	}
	return pos, nil
}

// Rulesets lists the known ruleset names, sorted.
func (c *Catalog) Rulesets() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.data))
	for k := range c.data {
		names = append(names, k)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read layout dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.applyYAML(b); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) applyYAML(b []byte) error {
	var f layoutFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, e := range f.Rulesets {
		pos := strings.TrimSpace(e.Positions)
		if pos == "" {
			return fmt.Errorf("ruleset %q has no positions", name)
		}
		c.data[strings.ToLower(strings.TrimSpace(name))] = pos
	}
	return nil
}
