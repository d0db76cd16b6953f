package git

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// HeadWatcher
// ///////////////////////////////////////////////

// HeadWatcher reports changes to a repository's HEAD file using fsnotify with
// a polling fallback.
//
// git replaces HEAD by renaming HEAD.lock over it, so the watcher observes the
// git directory rather than the file and filters on the name.
type HeadWatcher struct {
	// head is the absolute path of the HEAD file.
	head string
	// events is buffered to 1 so back-to-back checkouts coalesce.
	events chan struct{}
	// done is closed by [HeadWatcher.Close].
	done chan struct{}
	// mu guards fsw, which is swapped to nil on the fallback path.
	mu  sync.Mutex
	fsw *fsnotify.Watcher
	// once makes Close idempotent.
	once         sync.Once
	polling      atomic.Bool
	pollInterval time.Duration
	// wg tracks the active watch or poll goroutine.
	wg sync.WaitGroup
}

// NewHeadWatcher watches gitDir/HEAD. It only fails when gitDir does not
// exist; an unusable fsnotify backend falls back to polling.
func NewHeadWatcher(gitDir string) (*HeadWatcher, error) {
	return newHeadWatcher(gitDir, 2*time.Second, false)
}

func newHeadWatcher(gitDir string, pollInterval time.Duration, forcePoll bool) (*HeadWatcher, error) {
	info, err := os.Stat(gitDir)
	if err != nil {
		return nil, fmt.Errorf("watch HEAD: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch HEAD: %s is not a directory", gitDir)
	}

	w := &HeadWatcher{
		head:         filepath.Join(gitDir, "HEAD"),
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	if forcePoll {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(gitDir); err != nil {
		slog.Info("cannot watch git directory, falling back to polling", "path", gitDir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	w.wg.Add(1)
	go w.watch(fsw)
	return w, nil
}

// Path returns the HEAD file being watched.
func (w *HeadWatcher) Path() string { return w.head }

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *HeadWatcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when HEAD changes.
func (w *HeadWatcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *HeadWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
		w.mu.Unlock()
		w.wg.Wait()
	})
	return err
}

func (w *HeadWatcher) watch(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.head {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw != nil {
				w.fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *HeadWatcher) startPolling() {
	select {
	case <-w.done:
		return
	default:
	}
	w.polling.Store(true)
	// The baseline is read before returning so a checkout right after the
	// watcher is created still differs from it.
	last, _ := os.ReadFile(w.head)
	w.wg.Add(1)
	go w.poll(last)
}

// poll compares HEAD's content rather than its mtime so a checkout within the
// filesystem's timestamp granularity is still seen.
func (w *HeadWatcher) poll(last []byte) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			cur, err := os.ReadFile(w.head)
			if err != nil {
				continue
			}
			if string(cur) != string(last) {
				last = cur
				w.notify()
			}
		}
	}
}

// notify coalesces: a pending signal makes the send a no-op.
func (w *HeadWatcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
