package local

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// plotWatcher records files written into a plot directory while a code
// execution is in flight. It complements the before/after directory snapshot:
// the snapshot is the ground truth, the watcher catches files that were
// created and meanwhile overwritten in place.
type plotWatcher struct {
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	seen map[string]struct{}
	mu   sync.Mutex
	done chan struct{}
}

func newPlotWatcher(dir string, logger zerolog.Logger) (*plotWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	pw := &plotWatcher{
		watcher: w,
		logger:  logger,
		seen:    make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	go pw.run()
	return pw, nil
}

func (pw *plotWatcher) run() {
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				pw.mu.Lock()
				pw.seen[event.Name] = struct{}{}
				pw.mu.Unlock()
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn().Err(err).Msg("Plot watcher error")
		case <-pw.done:
			return
		}
	}
}

// Stop closes the watcher and returns every path it observed.
func (pw *plotWatcher) Stop() []string {
	close(pw.done)
	pw.watcher.Close()

	pw.mu.Lock()
	defer pw.mu.Unlock()
	paths := make([]string, 0, len(pw.seen))
	for p := range pw.seen {
		paths = append(paths, p)
	}
	return paths
}

// snapshotDir lists the file names currently present in dir.
func snapshotDir(dir string) map[string]struct{} {
	snapshot := make(map[string]struct{})
	entries, err := os.ReadDir(dir)
	if err != nil {
		return snapshot
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			snapshot[entry.Name()] = struct{}{}
		}
	}
	return snapshot
}

// diffDir returns paths present now that were absent from the snapshot,
// merged with the watcher's observations.
func diffDir(dir string, before map[string]struct{}, watched []string) []string {
	newFiles := make(map[string]struct{})
	for name := range snapshotDir(dir) {
		if _, ok := before[name]; !ok {
			newFiles[filepath.Join(dir, name)] = struct{}{}
		}
	}
	for _, p := range watched {
		if filepath.Dir(p) == dir {
			newFiles[p] = struct{}{}
		}
	}

	paths := make([]string, 0, len(newFiles))
	for p := range newFiles {
		paths = append(paths, p)
	}
	return paths
}
