package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notionvault/internal/apperr"
	"github.com/starford/notionvault/internal/storage"
)

// EventCallback is called after a watcher-driven ledger change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

const (
	defaultSettle  = 150 * time.Millisecond
	reconcileDelay = 200 * time.Millisecond
)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.logger = l }
}

// WithOnChange registers the callback run after each ledger change.
func WithOnChange(cb EventCallback) WatchOption {
	return func(w *Watcher) { w.onChange = cb }
}

// WithSettle sets how long a note must stay quiet before its content is
// read. Editors and atomic writers touch a file several times per save.
func WithSettle(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithIgnoredDirs skips directories whose base name matches the last
// element of any of dirs, such as the attachments folder.
func WithIgnoredDirs(dirs ...string) WatchOption {
	return func(w *Watcher) {
		for _, d := range dirs {
			if d != "" {
				w.ignored = append(w.ignored, filepath.Base(filepath.FromSlash(d)))
			}
		}
	}
}

// Watcher keeps the ledger in step with imported notes that are moved, edited
// or deleted outside the importer.
type Watcher struct {
	db       *DB
	store    storage.Provider
	root     string
	logger   *slog.Logger
	onChange EventCallback
	settle   time.Duration
	ignored  []string
}

// NewWatcher returns a watcher for the vault at root.
func NewWatcher(db *DB, store storage.Provider, root string, opts ...WatchOption) *Watcher {
	w := &Watcher{
		db:     db,
		store:  store,
		root:   root,
		logger: slog.Default(),
		settle: defaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run follows file changes under the vault root until ctx is cancelled.
//
// Writes are coalesced per note and applied once the note has been quiet for
// the settle delay. Directories created at runtime are added to the watch
// list. A rename only reports the old name, so it schedules a full
// reconciliation pass that picks up the new one.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	var (
		dirty     = make(map[string]struct{})
		settle    = newDebounce(w.settle)
		reconcile = newDebounce(reconcileDelay)
	)
	defer settle.stop()
	defer reconcile.stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case <-settle.C():
			for rel := range dirty {
				w.apply(rel)
			}
			clear(dirty)

		case <-reconcile.C():
			w.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if w.skipDir(info.Name()) {
						continue
					}
					if addErr := w.addDirs(fw, ev.Name); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may land before the directory is watched.
					reconcile.reset()
					continue
				}
			}

			rel, isNote := w.notePath(ev.Name)
			if !isNote {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				dirty[rel] = struct{}{}
				settle.reset()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(dirty, rel)
				w.forget(rel)
				if ev.Op&fsnotify.Rename != 0 {
					reconcile.reset()
				}
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// apply re-reads one settled note and updates its ledger row.
func (w *Watcher) apply(rel string) {
	data, err := w.store.Read(rel)
	if errors.Is(err, apperr.ErrNotFound) {
		w.forget(rel)
		return
	}
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind, err := syncFile(w.db, rel, data)
	if err != nil {
		w.logger.Warn("watcher: ledger update failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: synced", slog.String("path", rel), slog.String("op", kind))
	w.notify(kind, rel)
}

// forget drops the ledger row of a note that left its path.
func (w *Watcher) forget(rel string) {
	if _, err := w.db.PageByPath(rel); err != nil {
		return
	}
	if err := w.db.DeleteByPath(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.notify("deleted", rel)
}

// reconcile drops ledger rows without a file and adopts notes whose content
// the ledger has not seen.
func (w *Watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			w.forget(p)
		}
	}
	for p, cs := range disk {
		if known, ok := checksums[p]; ok && known == cs {
			continue
		}
		w.apply(p)
	}
}

func (w *Watcher) notify(kind, rel string) {
	if kind != "" && w.onChange != nil {
		w.onChange(kind, rel)
	}
}

// notePath maps an absolute event path to its vault-relative slash form and
// reports whether it names a watched note.
func (w *Watcher) notePath(abs string) (string, bool) {
	if !strings.HasSuffix(abs, ".md") {
		return "", false
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addDirs adds root and its visible, non-ignored subdirectories.
func (w *Watcher) addDirs(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

func (w *Watcher) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || slices.Contains(w.ignored, name)
}

// debounce is a resettable one-shot timer whose channel stays nil until the
// first reset, so it can sit in a select from the start.
type debounce struct {
	d time.Duration
	t *time.Timer
}

func newDebounce(d time.Duration) *debounce { return &debounce{d: d} }

func (b *debounce) reset() {
	if b.t == nil {
		b.t = time.NewTimer(b.d)
		return
	}
	b.t.Reset(b.d)
}

func (b *debounce) C() <-chan time.Time {
	if b.t == nil {
		return nil
	}
	return b.t.C
}

func (b *debounce) stop() {
	if b.t != nil {
		b.t.Stop()
	}
}
