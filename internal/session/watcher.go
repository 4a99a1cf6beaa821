package session

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codeintel/server/internal/models"
)

// debounce is how long the watcher waits after the last filesystem event
// before enqueuing an incremental build, so a save-all burst becomes one
// rebuild.
const debounce = 2 * time.Second

// skipDirs are never watched: they churn constantly and hold no source.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "__pycache__": true, ".venv": true,
}

// Watcher observes a workspace root recursively and triggers a debounced
// incremental build when source files change.
type Watcher struct {
	pc      models.ProjectContext
	trigger TriggerFunc
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher creates a watcher over pc's source root. Directories are
// registered up front; newly created subdirectories are added as their
// create events arrive.
func NewWatcher(pc models.ProjectContext, trigger TriggerFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		pc:      pc,
		trigger: trigger,
		fsw:     fsw,
		logger:  logger,
		done:    make(chan struct{}),
	}

	root := pc.SourceRoot()
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if skipDirs[name] || (strings.HasPrefix(name, ".") && p != root) {
			return filepath.SkipDir
		}
		if addErr := fsw.Add(p); addErr != nil {
			logger.Debug("watch add failed", "path", p, "error", addErr)
		}
		return nil
	})
	if walkErr != nil {
		fsw.Close()
		return nil, walkErr
	}
	return w, nil
}

// Start runs the event loop until Stop.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop shuts the watcher down. Safe to call once per watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				// A new directory needs its own watch registration.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watch error", "project_id", w.pc.ProjectID, "error", err)
		case <-fire:
			timer = nil
			fire = nil
			w.trigger(w.pc)
			w.logger.Info("watcher triggered rebuild", "project_id", w.pc.ProjectID)
		}
	}
}

// relevant filters out noise: chmod-only events and paths inside skipped
// directories.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel := filepath.ToSlash(event.Name)
	for seg := range skipDirs {
		if strings.Contains(rel, "/"+seg+"/") {
			return false
		}
	}
	return true
}
