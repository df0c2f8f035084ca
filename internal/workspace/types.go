package workspace

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// File is the workspace's record of a tracked file.
type File struct {
	Path     string    `json:"path"` // slash separated, relative to the workspace root
	Name     string    `json:"name"`
	Hash     string    `json:"hash"`
	PrevHash string    `json:"prev_hash,omitempty"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Revision int       `json:"revision"`
}

func (f *File) GetID() string { return f.Path }

// Revision is a previous version of a file kept in the safe.
type Revision struct {
	Path     string    `json:"path"`
	Revision int       `json:"revision"`
	Hash     string    `json:"hash"`
	Size     int64     `json:"size"`
	SavedAt  time.Time `json:"saved_at"`
}

func (r *Revision) GetID() string { return revisionID(r.Path, r.Revision) }

// Revision numbers are zero padded so badger's byte order is numeric order.
func revisionID(p string, rev int) string {
	return fmt.Sprintf("%s@%010d", p, rev)
}

// Normalize maps a caller supplied path ("/a.md", "notes\\b.md", "x/../a.md")
// to the index key form. Paths cannot escape the root; the root itself is "".
func Normalize(p string) string {
	p = filepath.ToSlash(p)
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
