package inference

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher calls reload when any of the watched artifact files is written,
// created or renamed into place. Bursts of events are coalesced.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	reload   func() error
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending time.Time
	reloads int
}

// NewWatcher watches the directories holding files. Watching the directory
// rather than the file survives editors and trainers that replace by rename.
func NewWatcher(files []string, debounce time.Duration, reload func() error, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		files:    make(map[string]bool, len(files)),
		reload:   reload,
		logger:   logger,
		debounce: debounce,
	}
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	tick := w.debounce / 5
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))

		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

// Reloads returns how many reloads have been attempted.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || !w.files[abs] {
		return
	}
	w.logger.Debug("artifact changed", zap.String("path", abs), zap.String("op", event.Op.String()))
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	if w.pending.IsZero() || now.Sub(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.reloads++
	w.mu.Unlock()

	if err := w.reload(); err != nil {
		w.logger.Error("artifact reload failed, keeping current model", zap.Error(err))
	}
}

// WatchPaths returns the artifact files to watch. Before any artifacts exist
// they are placed in the first search directory, which is created so it can
// be watched.
func WatchPaths(cfg ArtifactConfig) ([]string, error) {
	if modelPath, featuresPath, err := cfg.Resolve(); err == nil {
		return []string{modelPath, featuresPath}, nil
	}
	dir := ""
	if len(cfg.SearchDirs) > 0 {
		dir = cfg.SearchDirs[0]
	}
	paths := []string{joinUnlessAbs(dir, cfg.ModelFile), joinUnlessAbs(dir, cfg.FeaturesFile)}
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// WatchArtifacts reloads the service returned by current whenever the
// artifacts of cfg change. onReload, when set, sees every reload outcome.
func WatchArtifacts(
	cfg ArtifactConfig,
	current func() (*Service, error),
	debounce time.Duration,
	onReload func(*Artifacts, error),
	logger *zap.Logger,
) (*Watcher, error) {
	paths, err := WatchPaths(cfg)
	if err != nil {
		return nil, err
	}
	reload := func() error {
		artifacts, err := reloadArtifacts(cfg, current)
		if onReload != nil {
			onReload(artifacts, err)
		}
		return err
	}
	return NewWatcher(paths, debounce, reload, logger)
}

func reloadArtifacts(cfg ArtifactConfig, current func() (*Service, error)) (*Artifacts, error) {
	svc, err := current()
	if err != nil {
		return nil, err
	}
	artifacts, err := LoadArtifacts(cfg)
	if err != nil {
		return nil, err
	}
	if err := svc.Reload(artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}
