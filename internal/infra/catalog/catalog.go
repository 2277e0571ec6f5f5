package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// File is the prompts.yaml document
type File struct {
	Prompts []output.PromptInfo `yaml:"prompts"`
}

// Catalog is a YAML-backed prompt catalog that can be reloaded in place
type Catalog struct {
	fs     afero.Fs
	path   string
	logger logging.Logger

	mu      sync.RWMutex
	prompts []output.PromptInfo
	byKey   map[string]int
}

var _ output.PromptCatalog = (*Catalog)(nil)

// New creates a catalog for path. Call Reload to read it.
func New(fsys afero.Fs, path string, logger logging.Logger) *Catalog {
	return &Catalog{fs: fsys, path: path, logger: logging.OrGlobal(logger), byKey: map[string]int{}}
}

// FromPrompts builds a catalog from an in-memory list
func FromPrompts(prompts []output.PromptInfo) *Catalog {
	c := &Catalog{logger: logging.GetLogger(), byKey: map[string]int{}}
	c.set(prompts)
	return c
}

// Path returns the backing file
func (c *Catalog) Path() string { return c.path }

// Reload re-reads the file. A missing file yields an empty catalog; a
// malformed file is an error and the previous contents stay in place.
func (c *Catalog) Reload() error {
	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		exists, statErr := afero.Exists(c.fs, c.path)
		if statErr == nil && !exists {
			c.logger.Debugw("prompt catalog not found; starting empty", "path", c.path)
			c.set(nil)
			return nil
		}
		return fmt.Errorf("read catalog %s: %w", c.path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog %s: %w", c.path, err)
	}
	for i, p := range file.Prompts {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("parse catalog %s: prompt %d has no id", c.path, i)
		}
	}
	c.set(file.Prompts)
	c.logger.Infow("prompt catalog loaded", "path", c.path, "prompts", len(file.Prompts))
	return nil
}

func (c *Catalog) set(prompts []output.PromptInfo) {
	byKey := make(map[string]int, len(prompts)*2)
	for i, p := range prompts {
		if name := strings.ToLower(strings.TrimSpace(p.Name)); name != "" {
			if _, taken := byKey[name]; !taken {
				byKey[name] = i
			}
		}
	}
	// IDs win over display names
	for i, p := range prompts {
		byKey[strings.ToLower(strings.TrimSpace(p.ID))] = i
	}

	c.mu.Lock()
	c.prompts = append([]output.PromptInfo(nil), prompts...)
	c.byKey = byKey
	c.mu.Unlock()
}

// FindByID looks a prompt up case-insensitively by ID or display name
func (c *Catalog) FindByID(id string) (*output.PromptInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byKey[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, false
	}
	p := c.prompts[i]
	return &p, true
}

// List returns every prompt ordered by ID
func (c *Catalog) List() []output.PromptInfo {
	c.mu.RLock()
	out := append([]output.PromptInfo(nil), c.prompts...)
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
