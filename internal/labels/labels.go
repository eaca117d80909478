// Package labels manages the JSON label map that ties gesture names to class indices.
package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Unknown is returned by Name for indices not present in the map.
const Unknown = "Unknown"

// Map associates a normalized gesture name with its class index.
type Map map[string]int

// Normalize trims and lower-cases a gesture name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Load reads the label map at path. A missing file yields an empty map.
func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Map{}, nil
		}
		return nil, fmt.Errorf("read label map: %w", err)
	}

	m := Map{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse label map %s: %w", path, err)
	}
	return m, nil
}

// Save writes the map as indented JSON, creating parent directories.
func (m Map) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create label map directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal label map: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write label map: %w", err)
	}
	return nil
}

// Ensure returns the index for name, assigning the next index len(m) when
// the name is new. added reports whether the map changed.
func (m Map) Ensure(name string) (index int, added bool) {
	name = Normalize(name)
	if idx, ok := m[name]; ok {
		return idx, false
	}
	idx := len(m)
	m[name] = idx
	return idx, true
}

// Names returns the gesture names ordered by class index.
func (m Map) Names() []string {
	type entry struct {
		name  string
		index int
	}
	entries := make([]entry, 0, len(m))
	for name, idx := range m {
		entries = append(entries, entry{name, idx})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].index != entries[j].index {
			return entries[i].index < entries[j].index
		}
		return entries[i].name < entries[j].name
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Inverse maps class indices back to names.
func (m Map) Inverse() map[int]string {
	inv := make(map[int]string, len(m))
	for name, idx := range m {
		inv[idx] = name
	}
	return inv
}

// Name returns the gesture name for index, or Unknown.
func (m Map) Name(index int) string {
	for name, idx := range m {
		if idx == index {
			return name
		}
	}
	return Unknown
}

// Validate checks that indices are exactly 0..len(m)-1 so they can be used
// as softmax output positions.
func (m Map) Validate() error {
	seen := make([]bool, len(m))
	for name, idx := range m {
		if idx < 0 || idx >= len(m) {
			return fmt.Errorf("label %q has index %d outside [0,%d)", name, idx, len(m))
		}
		if seen[idx] {
			return fmt.Errorf("label index %d is assigned twice", idx)
		}
		seen[idx] = true
	}
	return nil
}
