package form

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/matzehuels/backdrop/pkg/config"
)

// StorageKey names the persisted form file.
const StorageKey = "mtg-background-form-data"

// Store persists one form as a JSON file in the config directory.
type Store struct {
	mu   sync.RWMutex
	path string
}

// NewStore creates a store under dir. If dir is empty, defaults to
// ~/.config/backdrop/.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("get config dir: %w", err)
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create form dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, StorageKey+".json")}, nil
}

// Load returns the saved form merged over empty defaults. A missing or
// unreadable file yields the defaults; Load only fails on I/O errors other
// than not-exist.
func (s *Store) Load(ctx context.Context) (Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Data
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, fmt.Errorf("read form file: %w", err)
	}

	// Decode field by field so one malformed value does not discard the rest.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return d, nil
	}
	for key, val := range raw {
		one, err := json.Marshal(map[string]json.RawMessage{key: val})
		if err != nil {
			continue
		}
		var part Data
		if json.Unmarshal(one, &part) == nil {
			merge(&d, part, key)
		}
	}
	return d, nil
}

func merge(dst *Data, src Data, key string) {
	switch key {
	case FieldLastNameJP:
		dst.LastNameJP = src.LastNameJP
	case FieldFirstNameJP:
		dst.FirstNameJP = src.FirstNameJP
	case FieldLastNameEN:
		dst.LastNameEN = src.LastNameEN
	case FieldFirstNameEN:
		dst.FirstNameEN = src.FirstNameEN
	case FieldDepartment1:
		dst.Department1 = src.Department1
	case FieldDepartment2:
		dst.Department2 = src.Department2
	case FieldGroup:
		dst.Group = src.Group
	case FieldRole:
		dst.Role = src.Role
	case "custom_affiliation":
		dst.Affiliation = src.Affiliation
	case "selected_templates":
		dst.SelectedTemplates = src.SelectedTemplates
	}
}

// Save writes d, replacing the previous form.
func (s *Store) Save(ctx context.Context, d Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write form file: %w", err)
	}
	return nil
}

// Reset deletes the saved form.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove form file: %w", err)
	}
	return nil
}

// Path returns the form file location.
func (s *Store) Path() string {
	return s.path
}
