// Package watch ingests text documents dropped into a directory.
package watch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	DefaultConcurrency = 4
	DefaultDebounce    = 250 * time.Millisecond
)

var DefaultExtensions = []string{".txt", ".md"}

// Ingester stores the chunks of one document.
type Ingester interface {
	Ingest(ctx context.Context, filename, text string) (int, error)
}

type Config struct {
	Concurrency int
	Extensions  []string
	Debounce    time.Duration
	Logger      *zap.Logger
}

// DirWatcher ingests every matching file in a directory once at startup
// and again whenever its content changes. Removing a file does not remove
// its fragments.
type DirWatcher struct {
	dir      string
	ingester Ingester
	cfg      Config
	logger   *zap.Logger

	mu     sync.Mutex
	seen   map[string][sha256.Size]byte
	timers map[string]*time.Timer
	// busy serialises ingests of the same path.
	busy map[string]*sync.Mutex
}

func New(dir string, ingester Ingester, cfg Config) *DirWatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &DirWatcher{
		dir:      dir,
		ingester: ingester,
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("dir", dir)),
		seen:     make(map[string][sha256.Size]byte),
		timers:   make(map[string]*time.Timer),
		busy:     make(map[string]*sync.Mutex),
	}
}

// Scan ingests every matching file in the directory, at most
// cfg.Concurrency at a time, and returns how many were ingested. Failures
// are logged and joined into the returned error; they do not stop the scan.
func (w *DirWatcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read watch dir: %w", err)
	}

	var mu sync.Mutex
	ingested := 0

	p := pool.New().WithContext(ctx).WithMaxGoroutines(w.cfg.Concurrency)
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.IsDir() || !w.matches(path) {
			continue
		}
		p.Go(func(ctx context.Context) error {
			ok, err := w.ingestFile(ctx, path)
			if ok {
				mu.Lock()
				ingested++
				mu.Unlock()
			}
			return err
		})
	}

	err = p.Wait()
	w.logger.Info("watch dir scanned", zap.Int("ingested", ingested), zap.Error(err))
	return ingested, err
}

// Run scans the directory and then follows create and write events until
// ctx is done.
func (w *DirWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before scanning so files written during the scan are not missed.
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if _, err := w.Scan(ctx); err != nil {
		w.logger.Warn("initial scan incomplete", zap.Error(err))
	}

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule ingests path once events for it have been quiet for the
// debounce interval. Editors often write a file in several steps.
func (w *DirWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if _, err := w.ingestFile(ctx, path); err != nil {
			w.logger.Warn("ingest failed", zap.String("file", path), zap.Error(err))
		}
	})
}

func (w *DirWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// ingestFile ingests path unless it is empty or unchanged since the last
// successful ingest. It reports whether anything was ingested.
func (w *DirWatcher) ingestFile(ctx context.Context, path string) (bool, error) {
	lock := w.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}

	sum := sha256.Sum256(data)
	w.mu.Lock()
	prev, seen := w.seen[path]
	w.mu.Unlock()
	if seen && prev == sum {
		return false, nil
	}

	added, err := w.ingester.Ingest(ctx, filepath.Base(path), string(data))
	if err != nil {
		return false, fmt.Errorf("ingest %s: %w", path, err)
	}

	w.mu.Lock()
	w.seen[path] = sum
	w.mu.Unlock()

	w.logger.Info("file ingested", zap.String("file", path), zap.Int("chunks", added))
	return true, nil
}

func (w *DirWatcher) pathLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.busy[path]
	if !ok {
		l = &sync.Mutex{}
		w.busy[path] = l
	}
	return l
}

func (w *DirWatcher) matches(path string) bool {
	return slices.Contains(w.cfg.Extensions, strings.ToLower(filepath.Ext(path)))
}
