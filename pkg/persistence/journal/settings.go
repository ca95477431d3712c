package journal

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Settings struct {
	Backend string `yaml:"backend"`
	// DSN is the SQLite file path or DSN. Only used by the sqlite backend.
	DSN string `yaml:"dsn"`
	// MaxEntries caps transitions kept per run by the memory backend.
	MaxEntries int `yaml:"max-entries"`
}

func DefaultSettings() Settings {
	return Settings{Backend: BackendMemory, MaxEntries: DefaultMaxEntriesPerRun}
}

func (s Settings) Validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "", BackendNone, BackendMemory:
		return nil
	case BackendSQLite:
		if strings.TrimSpace(s.DSN) == "" {
			return errors.New("journal: sqlite backend needs a dsn")
		}
		return nil
	default:
		return errors.Errorf("journal: unknown backend %q", s.Backend)
	}
}

// Open returns the configured journal, or nil for the none backend.
func Open(s Settings) (Journal, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case BackendNone:
		return nil, nil
	case BackendSQLite:
		j, err := NewSQLiteJournal(s.DSN)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return NewInMemoryJournal(s.MaxEntries), nil
	}
}
