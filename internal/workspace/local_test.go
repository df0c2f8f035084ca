package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"scribe/internal/errors"
	"scribe/internal/safe"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupWorkspace(t *testing.T, files map[string]string) (*Workspace, billy.Filesystem, *badger.DB) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0644))
	}

	s, err := safe.New(db, safe.Options{FS: fs, Root: ".scribe/revisions", CacheSize: 8})
	require.NoError(t, err)

	w, err := New(fs, db, s, zap.NewNop())
	require.NoError(t, err)
	return w, fs, db
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/a.md", "a.md"},
		{"a.md", "a.md"},
		{"notes//b.md", "notes/b.md"},
		{"notes/../a.md", "a.md"},
		{"../../etc/passwd", "etc/passwd"},
		{"/", ""},
		{".", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestWorkspace_TrackAndFind(t *testing.T) {
	w, _, _ := setupWorkspace(t, map[string]string{
		"a.md":                "hello",
		"notes/b.md":          "one two",
		".hidden/c.md":        "secret",
		"node_modules/x/y.js": "ignored",
		"notes/.draft.md":     "hidden file",
	})

	require.NoError(t, w.Scan())

	f, ok := w.FindFile("/a.md")
	require.True(t, ok)
	assert.Equal(t, "a.md", f.Name)
	assert.Equal(t, "a.md", f.Path)
	assert.Equal(t, safe.HashContent([]byte("hello")), f.Hash)
	assert.Equal(t, int64(5), f.Size)

	_, ok = w.FindFile("notes/b.md")
	assert.True(t, ok)

	for _, p := range []string{".hidden/c.md", "node_modules/x/y.js", "notes/.draft.md", "missing.md"} {
		_, ok := w.FindFile(p)
		assert.False(t, ok, p)
	}

	paths := []string{}
	for _, f := range w.Files() {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"a.md", "notes/b.md"}, paths)

	t.Run("FindFile returns a copy", func(t *testing.T) {
		f, _ := w.FindFile("a.md")
		f.Name = "changed"
		again, _ := w.FindFile("a.md")
		assert.Equal(t, "a.md", again.Name)
	})

	t.Run("missing path", func(t *testing.T) {
		assert.Error(t, w.Track("nope.md"))
		assert.Error(t, w.Track())
	})
}

func TestWorkspace_IndexPersists(t *testing.T) {
	w, fs, db := setupWorkspace(t, map[string]string{"a.md": "hello"})
	require.NoError(t, w.Track("a.md"))

	reopened, err := New(fs, db, w.ContentSafe, nil)
	require.NoError(t, err)

	_, ok := reopened.FindFile("a.md")
	assert.True(t, ok)
}

func TestWorkspace_SaveFile(t *testing.T) {
	w, fs, _ := setupWorkspace(t, map[string]string{"notes/a.md": "hello"})
	require.NoError(t, w.Scan())

	f, ok := w.FindFile("/notes/a.md")
	require.True(t, ok)

	require.NoError(t, w.SaveFile(context.Background(), f, "hello brave new world"))

	data, err := util.ReadFile(fs, "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "hello brave new world", string(data))

	assert.Equal(t, 1, f.Revision)
	assert.Equal(t, safe.HashContent([]byte("hello")), f.PrevHash)
	assert.Equal(t, int64(len("hello brave new world")), f.Size)

	indexed, _ := w.FindFile("notes/a.md")
	assert.Equal(t, *f, *indexed)

	prev, err := w.RevisionContent(f.PrevHash)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(prev))

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := fs.ReadDir("notes")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "a.md", entries[0].Name())
	})

	t.Run("history", func(t *testing.T) {
		require.NoError(t, w.SaveFile(context.Background(), f, "final"))

		revs, err := w.History("notes/a.md")
		require.NoError(t, err)
		require.Len(t, revs, 2)
		assert.Equal(t, 0, revs[0].Revision)
		assert.Equal(t, safe.HashContent([]byte("hello")), revs[0].Hash)
		assert.Equal(t, 1, revs[1].Revision)
		assert.Equal(t, safe.HashContent([]byte("hello brave new world")), revs[1].Hash)
	})
}

func TestWorkspace_SaveFileErrors(t *testing.T) {
	w, fs, _ := setupWorkspace(t, map[string]string{"a.md": "hello"})
	require.NoError(t, w.Scan())

	t.Run("untracked", func(t *testing.T) {
		err := w.SaveFile(context.Background(), &File{Path: "other.md"}, "x")
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("nil file", func(t *testing.T) {
		err := w.SaveFile(context.Background(), nil, "x")
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("cancelled before write", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		f, _ := w.FindFile("a.md")
		err := w.SaveFile(ctx, f, "changed")
		assert.ErrorIs(t, err, context.Canceled)

		data, _ := util.ReadFile(fs, "a.md")
		assert.Equal(t, "hello", string(data))
	})

	t.Run("removed on disk is recreated", func(t *testing.T) {
		require.NoError(t, fs.Remove("a.md"))
		f, _ := w.FindFile("a.md")

		require.NoError(t, w.SaveFile(context.Background(), f, "back"))
		assert.Empty(t, f.PrevHash)

		data, err := util.ReadFile(fs, "a.md")
		require.NoError(t, err)
		assert.Equal(t, "back", string(data))
	})
}

func TestWorkspace_ConcurrentSavesSerialize(t *testing.T) {
	w, _, _ := setupWorkspace(t, map[string]string{"a.md": ""})
	require.NoError(t, w.Scan())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, _ := w.FindFile("a.md")
			assert.NoError(t, w.SaveFile(context.Background(), f, fmt.Sprintf("v%d", i)))
		}(i)
	}
	wg.Wait()

	f, _ := w.FindFile("a.md")
	assert.Equal(t, 10, f.Revision)
}

func TestWorkspace_Untrack(t *testing.T) {
	w, fs, _ := setupWorkspace(t, map[string]string{"a.md": "x", "b.md": "y"})
	require.NoError(t, w.Scan())

	require.NoError(t, w.Untrack("/a.md", "never-tracked.md"))

	_, ok := w.FindFile("a.md")
	assert.False(t, ok)
	_, err := fs.Stat("a.md")
	assert.NoError(t, err)

	require.NoError(t, w.LoadIndex())
	_, ok = w.FindFile("a.md")
	assert.False(t, ok)
	_, ok = w.FindFile("b.md")
	assert.True(t, ok)
}

func TestFindRootAndInitialize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Initialize(root))
	assert.Error(t, Initialize(root))

	nested := filepath.Join(root, "notes", "drafts")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, found)

	_, err = FindRoot(t.TempDir())
	assert.Error(t, err)
}

func TestNewLocalWorkspace(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("on disk"), 0644))

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	s, err := safe.New(db, safe.Options{FS: osfs.New(root), Root: ".scribe/revisions"})
	require.NoError(t, err)

	w, err := NewLocalWorkspace(root, db, s, nil)
	require.NoError(t, err)
	require.NoError(t, w.Scan())

	f, ok := w.FindFile("a.md")
	require.True(t, ok)
	require.NoError(t, w.SaveFile(context.Background(), f, "saved"))

	data, err := os.ReadFile(filepath.Join(root, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, "saved", string(data))

	prev, err := w.RevisionContent(f.PrevHash)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(prev))
}

func TestWorkspace_UntrackDropsRevisions(t *testing.T) {
	w, _, _ := setupWorkspace(t, map[string]string{"a.md": "one", "b.md": "one"})
	require.NoError(t, w.Scan())
	ctx := context.Background()
	oneHash := safe.HashContent([]byte("one"))

	for _, p := range []string{"a.md", "b.md"} {
		f, _ := w.FindFile(p)
		require.NoError(t, w.SaveFile(ctx, f, "two"))
	}

	require.NoError(t, w.Untrack("a.md"))

	revs, err := w.History("a.md")
	require.NoError(t, err)
	assert.Empty(t, revs)

	t.Run("shared content survives", func(t *testing.T) {
		content, err := w.RevisionContent(oneHash)
		require.NoError(t, err)
		assert.Equal(t, "one", string(content))
	})

	t.Run("track again keeps numbering consistent", func(t *testing.T) {
		require.NoError(t, w.Track("a.md"))
		f, ok := w.FindFile("a.md")
		require.True(t, ok)
		assert.Equal(t, 0, f.Revision)

		require.NoError(t, w.SaveFile(ctx, f, "three"))

		revs, err := w.History("a.md")
		require.NoError(t, err)
		require.Len(t, revs, 1)
		assert.Equal(t, 0, revs[0].Revision)
		content, err := w.RevisionContent(revs[0].Hash)
		require.NoError(t, err)
		assert.Equal(t, "two", string(content))
	})

	t.Run("last reference releases content", func(t *testing.T) {
		require.NoError(t, w.Untrack("b.md"))
		_, err := w.RevisionContent(oneHash)
		assert.ErrorIs(t, err, safe.ErrContentNotFound)
	})
}

func TestWorkspace_UntrackDuringSaves(t *testing.T) {
	w, _, _ := setupWorkspace(t, map[string]string{"a.md": ""})
	require.NoError(t, w.Scan())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f, ok := w.FindFile("a.md"); ok {
				w.SaveFile(context.Background(), f, fmt.Sprintf("v%d", i))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, w.Untrack("a.md"))
	}()
	wg.Wait()

	_, inMemory := w.FindFile("a.md")
	require.NoError(t, w.LoadIndex())
	_, persisted := w.FindFile("a.md")
	assert.False(t, inMemory)
	assert.False(t, persisted)
}
