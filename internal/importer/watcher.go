package importer

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/glimmerhq/glimpse/internal/data"
)

// Watcher watches a drop directory and imports any JSON task file written
// into it. It uses fsnotify for cross-platform file system event monitoring.
type Watcher struct {
	watcher *fsnotify.Watcher
	backend data.Backend
	logger  *log.Logger

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher importing through the given backend. The
// watcher must be started with Start before it does anything. If logger is
// nil, a default logger writing to stderr is used.
func NewWatcher(backend data.Backend, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[importer] ", log.LstdFlags)
	}

	return &Watcher{
		watcher: fsw,
		backend: backend,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir for *.json files.
func (w *Watcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Printf("Watching %s for task files", dir)
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()
	return nil
}

// IsRunning reports whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !shouldImport(event) {
				continue
			}
			w.importOne(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watch error: %v", err)
		}
	}
}

// shouldImport filters events down to finished JSON writes. Create events
// are skipped; the write that fills the file follows and triggers the
// import. Imports are idempotent, so a create+write pair firing twice only
// costs a re-parse.
func shouldImport(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".json") {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func (w *Watcher) importOne(path string) {
	imported, err := ImportFile(context.Background(), w.backend, path, w.logger)
	if err != nil {
		w.logger.Printf("Failed to import %s: %v", path, err)
		return
	}
	if imported > 0 {
		w.logger.Printf("Imported %d task(s) from %s", imported, path)
	}
}
