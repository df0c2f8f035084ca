// internal/workspace/local.go
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "scribe/internal/errors"
	"scribe/internal/safe"
	"scribe/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
)

// MarkerDir identifies a workspace root.
const MarkerDir = ".scribe"

const tempPrefix = ".scribe-save-"

// FindRoot searches startDir and its parents for the MarkerDir directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, MarkerDir)); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("workspace root not found")
}

// Initialize creates the marker directory under root.
func Initialize(root string) error {
	marker := filepath.Join(root, MarkerDir)
	if _, err := os.Stat(marker); err == nil {
		return fmt.Errorf("workspace already initialized in %s", root)
	}
	if err := os.MkdirAll(marker, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", marker, err)
	}
	return nil
}

// Workspace is the file-system service: it tracks files under a root and
// persists new content for them. Writes to the same path are serialized.
type Workspace struct {
	FS          billy.Filesystem
	ContentSafe *safe.Safe
	Logger      *zap.Logger

	index     *storage.BadgerStore
	revisions *storage.BadgerStore

	mu    sync.RWMutex
	files map[string]*File

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a workspace over fsys and loads the persisted file index.
func New(fsys billy.Filesystem, db *badger.DB, contentSafe *safe.Safe, logger *zap.Logger) (*Workspace, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if contentSafe == nil {
		return nil, fmt.Errorf("contentSafe cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Workspace{
		FS:          fsys,
		ContentSafe: contentSafe,
		Logger:      logger,
		index:       storage.NewBadgerStore(db, "file"),
		revisions:   storage.NewBadgerStore(db, "revision"),
		files:       make(map[string]*File),
		locks:       make(map[string]*sync.Mutex),
	}

	if err := w.LoadIndex(); err != nil {
		return nil, fmt.Errorf("loading file index: %w", err)
	}
	return w, nil
}

// NewLocalWorkspace creates a workspace rooted at a directory on disk.
func NewLocalWorkspace(root string, db *badger.DB, contentSafe *safe.Safe, logger *zap.Logger) (*Workspace, error) {
	return New(osfs.New(root), db, contentSafe, logger)
}

// LoadIndex replaces the in-memory index with the persisted one.
func (w *Workspace) LoadIndex() error {
	files := make(map[string]*File)
	err := w.index.Each("", func(id string, raw []byte) error {
		var f File
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("decoding %s: %w", id, err)
		}
		files[f.Path] = &f
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return nil
}

// FindFile resolves path to its tracked file. The result is a copy.
func (w *Workspace) FindFile(p string) (*File, bool) {
	key := Normalize(p)

	w.mu.RLock()
	defer w.mu.RUnlock()

	f, ok := w.files[key]
	if !ok {
		return nil, false
	}
	c := *f
	return &c, true
}

// Files lists tracked files ordered by path.
func (w *Workspace) Files() []File {
	w.mu.RLock()
	defer w.mu.RUnlock()

	files := make([]File, 0, len(w.files))
	for _, f := range w.files {
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// SaveFile replaces the content of a tracked file. The previous content is kept
// in the safe and the write goes through a temp file renamed over the target.
// On success file is updated to the new index entry.
func (w *Workspace) SaveFile(ctx context.Context, file *File, contents string) error {
	if file == nil {
		return apperrors.ValidationError("file cannot be nil", nil)
	}
	key := Normalize(file.Path)

	unlock := w.lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.RLock()
	current, ok := w.files[key]
	w.mu.RUnlock()
	if !ok {
		return apperrors.NotFound(fmt.Sprintf("file not tracked: %s", key))
	}

	prevHash, prevSize, err := w.snapshot(key)
	if err != nil {
		return err
	}

	data := []byte(contents)
	if err := w.writeAtomic(key, data); err != nil {
		return apperrors.WriteError(fmt.Sprintf("writing %s", key), err)
	}

	updated := *current
	updated.Hash = safe.HashContent(data)
	updated.PrevHash = prevHash
	updated.Size = int64(len(data))
	updated.ModTime = time.Now()
	updated.Revision++
	if info, err := w.FS.Stat(key); err == nil {
		updated.ModTime = info.ModTime()
	}

	if err := w.index.Put(&updated); err != nil {
		return apperrors.Internal(fmt.Sprintf("indexing %s", key), err)
	}
	if prevHash != "" {
		rev := &Revision{
			Path:     key,
			Revision: current.Revision,
			Hash:     prevHash,
			Size:     prevSize,
			SavedAt:  updated.ModTime,
		}
		if err := w.revisions.Put(rev); err != nil {
			w.Logger.Warn("Failed to record revision", zap.String("path", key), zap.Error(err))
		}
	}

	w.mu.Lock()
	w.files[key] = &updated
	w.mu.Unlock()

	*file = updated
	w.Logger.Debug("File written",
		zap.String("path", key),
		zap.Int("revision", updated.Revision),
		zap.Int64("size", updated.Size))
	return nil
}

// snapshot stores the on-disk content of key in the safe. A file removed
// behind our back has no previous revision.
func (w *Workspace) snapshot(key string) (string, int64, error) {
	prev, err := util.ReadFile(w.FS, key)
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, apperrors.WriteError(fmt.Sprintf("reading %s", key), err)
	}

	hash, err := w.ContentSafe.Store(prev)
	if err != nil {
		return "", 0, apperrors.WriteError(fmt.Sprintf("storing previous revision of %s", key), err)
	}
	return hash, int64(len(prev)), nil
}

func (w *Workspace) writeAtomic(name string, data []byte) error {
	dir := path.Dir(name)
	if err := w.FS.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := w.FS.TempFile(dir, tempPrefix)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		w.FS.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		w.FS.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := w.FS.Rename(tmp.Name(), name); err != nil {
		w.FS.Remove(tmp.Name())
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (w *Workspace) lock(key string) func() {
	w.locksMu.Lock()
	m, ok := w.locks[key]
	if !ok {
		m = &sync.Mutex{}
		w.locks[key] = m
	}
	w.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Track adds existing files to the index. Directories are walked; ignored
// paths are skipped.
func (w *Workspace) Track(paths ...string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths specified")
	}

	for _, p := range paths {
		key := Normalize(p)
		root := key
		if root == "" {
			root = "."
		}

		info, err := w.FS.Stat(root)
		if err != nil {
			return fmt.Errorf("stat %s: %w", root, err)
		}

		if !info.IsDir() {
			if w.shouldIgnore(key) {
				continue
			}
			if err := w.trackFile(key); err != nil {
				return err
			}
			continue
		}

		err = util.Walk(w.FS, root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel := Normalize(p)
			if rel != key && w.shouldIgnore(rel) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if err := w.trackFile(rel); err != nil {
				w.Logger.Warn("Failed to track file", zap.String("path", rel), zap.Error(err))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return nil
}

// Scan tracks every eligible file under the root.
func (w *Workspace) Scan() error {
	return w.Track(".")
}

func (w *Workspace) trackFile(key string) error {
	unlock := w.lock(key)
	defer unlock()

	data, err := util.ReadFile(w.FS, key)
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	info, err := w.FS.Stat(key)
	if err != nil {
		return fmt.Errorf("stat %s: %w", key, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[key]
	if !ok {
		f = &File{Path: key, Name: path.Base(key)}
	}
	updated := *f
	updated.Hash = safe.HashContent(data)
	updated.Size = info.Size()
	updated.ModTime = info.ModTime()

	if err := w.index.Put(&updated); err != nil {
		return fmt.Errorf("indexing %s: %w", key, err)
	}
	w.files[key] = &updated
	return nil
}

// Untrack removes paths from the index and drops their kept revisions, releasing
// the safe's references to them. Files on disk are left alone.
func (w *Workspace) Untrack(paths ...string) error {
	for _, p := range paths {
		if err := w.untrack(Normalize(p)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workspace) untrack(key string) error {
	unlock := w.lock(key)
	defer unlock()

	w.mu.RLock()
	_, ok := w.files[key]
	w.mu.RUnlock()
	if !ok {
		return nil
	}

	revs, err := w.History(key)
	if err != nil {
		return fmt.Errorf("reading history of %s: %w", key, err)
	}
	for i := range revs {
		rev := &revs[i]
		if err := w.revisions.Delete(rev.GetID()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("dropping revision %d of %s: %w", rev.Revision, key, err)
		}
		if err := w.ContentSafe.Delete(rev.Hash); err != nil && !errors.Is(err, safe.ErrContentNotFound) {
			w.Logger.Warn("Failed to release revision content",
				zap.String("path", key),
				zap.Int("revision", rev.Revision),
				zap.Error(err))
		}
	}

	if err := w.index.Delete(key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("untracking %s: %w", key, err)
	}

	w.mu.Lock()
	delete(w.files, key)
	w.mu.Unlock()
	return nil
}

// History lists the kept revisions of a file, oldest first.
func (w *Workspace) History(p string) ([]Revision, error) {
	key := Normalize(p)
	var revs []Revision
	err := w.revisions.Each(key+"@", func(id string, raw []byte) error {
		var r Revision
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decoding %s: %w", id, err)
		}
		revs = append(revs, r)
		return nil
	})
	return revs, err
}

// RevisionContent returns the content of a kept revision.
func (w *Workspace) RevisionContent(hash string) ([]byte, error) {
	return w.ContentSafe.Get(hash)
}

// shouldIgnore checks if a path should be ignored
func (w *Workspace) shouldIgnore(p string) bool {
	if p == "" {
		return true
	}

	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}

		// Hidden files and directories, including the marker and temp files
		if strings.HasPrefix(part, ".") {
			return true
		}

		switch part {
		case "node_modules", "vendor", "dist", "build":
			return true
		}
	}

	return false
}
