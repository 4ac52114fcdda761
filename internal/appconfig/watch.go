package appconfig

import (
	"context"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// Watcher re-reads the config file when it changes on disk and hands each
// distinct, valid config to the callback. Reload failures keep the last
// good config and are logged.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	log      pslog.Logger
	onChange func(Config)
	last     Config
}

// NewWatcher builds a Watcher for path. If path is empty, uses
// DefaultConfigPath. The callback runs on the watcher goroutine.
func NewWatcher(path string, logger pslog.Logger, onChange func(Config)) (*Watcher, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file, so editor rename-over saves are seen.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		fsw:      fsw,
		log:      logger.With("config", path),
		onChange: onChange,
		last:     cfg,
	}, nil
}

// Run delivers reloads until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watch error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed", "err", err)
		return
	}
	if reflect.DeepEqual(cfg, w.last) {
		return
	}
	w.last = cfg
	w.log.Info("config reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
