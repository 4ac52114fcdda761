// Package persist stores runtime display overrides on disk. Busy and idle
// state is never written anywhere; it is rebuilt from live traffic after a
// restart.
package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/busyline/schema"
	"pkt.systems/pslog"
)

const (
	displayFileName = "display.json"
	docVersion      = 1
)

// displayDoc is the stored shape of the display overrides.
type displayDoc struct {
	Version     int                   `json:"version"`
	Busy        string                `json:"busy_color"`
	CurrentIdle string                `json:"current_idle_color"`
	OtherIdle   string                `json:"other_idle_color"`
	CurrentMark string                `json:"current_mark_color"`
	Separator   string                `json:"separator"`
	Mnemonics   []schema.MnemonicRule `json:"mnemonics"`
}

// Store persists small state documents under one directory.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// LoadDisplay reads the saved display overrides. The second return is false
// when nothing has been saved yet or the document is from another version.
func (s *Store) LoadDisplay() (schema.DisplayConfig, bool, error) {
	path := filepath.Join(s.dir, displayFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("display load miss")
			}
			return schema.DisplayConfig{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("display load failed", "err", err)
		}
		return schema.DisplayConfig{}, false, err
	}
	var doc displayDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		if s.log != nil {
			s.log.Warn("display load failed", "err", err)
		}
		return schema.DisplayConfig{}, false, err
	}
	if doc.Version != docVersion {
		if s.log != nil {
			s.log.Warn("display load skipped", "version", doc.Version)
		}
		return schema.DisplayConfig{}, false, nil
	}
	cfg := schema.DisplayConfig{
		BusyColor:        schema.HexColor(doc.Busy),
		CurrentIdleColor: schema.HexColor(doc.CurrentIdle),
		OtherIdleColor:   schema.HexColor(doc.OtherIdle),
		CurrentMarkColor: schema.HexColor(doc.CurrentMark),
		Separator:        doc.Separator,
		Mnemonics:        doc.Mnemonics,
	}
	if s.log != nil {
		s.log.Debug("display load ok")
	}
	return cfg, true, nil
}

// SaveDisplay writes the display overrides atomically.
func (s *Store) SaveDisplay(cfg schema.DisplayConfig) error {
	doc := displayDoc{
		Version:     docVersion,
		Busy:        string(cfg.BusyColor),
		CurrentIdle: string(cfg.CurrentIdleColor),
		OtherIdle:   string(cfg.OtherIdleColor),
		CurrentMark: string(cfg.CurrentMarkColor),
		Separator:   cfg.Separator,
		Mnemonics:   cfg.Mnemonics,
	}
	if err := s.saveJSON(displayFileName, doc); err != nil {
		if s.log != nil {
			s.log.Warn("display save failed", "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("display save ok")
	}
	return nil
}

// saveJSON writes doc to name through a temp file and rename so readers
// never see a torn document.
func (s *Store) saveJSON(name string, doc any) error {
	path := filepath.Join(s.dir, name)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
