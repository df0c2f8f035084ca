// internal/safe/safe.go
package safe

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"scribe/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
)

// ContentMeta stores metadata about stored content
type ContentMeta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
	AccessedAt time.Time `json:"accessed_at"`
}

func (m *ContentMeta) GetID() string { return m.Hash }

// Safe keeps deduplicated file revisions addressed by their sha256.
type Safe struct {
	fs          billy.Filesystem
	root        string
	meta        *storage.BadgerStore
	cache       *lru.Cache[string, []byte]
	zstd        *compressor
	compressMin int
	mu          sync.Mutex // serializes ref count updates
}

// Options configures Safe behavior
type Options struct {
	FS          billy.Filesystem // where content blobs live
	Root        string           // directory inside FS
	CacheSize   int              // number of revisions kept in memory
	CompressMin int              // contents of at least this many bytes are zstd compressed; 0 disables
}

// New creates a new Safe instance
func New(db *badger.DB, opts Options) (*Safe, error) {
	if opts.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}

	if err := opts.FS.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	c, err := newCompressor(zstd.SpeedDefault)
	if err != nil {
		return nil, err
	}

	return &Safe{
		fs:          opts.FS,
		root:        opts.Root,
		meta:        storage.NewBadgerStore(db, "content"),
		cache:       cache,
		zstd:        c,
		compressMin: opts.CompressMin,
	}, nil
}

// Store saves content and returns its hash. Storing known content bumps its ref count.
func (s *Safe) Store(content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}
	hash := HashContent(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getMeta(hash)
	switch {
	case err == nil:
		meta.RefCount++
		if err := s.meta.Put(&meta); err != nil {
			return "", fmt.Errorf("incrementing ref count: %w", err)
		}
		return hash, nil
	case !errors.Is(err, ErrContentNotFound):
		return "", fmt.Errorf("checking existence: %w", err)
	}

	stored := content
	compressed := false
	if s.compressMin > 0 && len(content) >= s.compressMin {
		if packed := s.zstd.compress(content); len(packed) < len(content) {
			stored, compressed = packed, true
		}
	}

	contentPath := s.contentPath(hash)
	if err := util.WriteFile(s.fs, contentPath, stored, 0644); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	now := time.Now()
	meta = ContentMeta{
		Hash:       hash,
		Size:       int64(len(content)),
		StoredSize: int64(len(stored)),
		RefCount:   1,
		Compressed: compressed,
		CreatedAt:  now,
		AccessedAt: now,
	}
	if err := s.meta.Put(&meta); err != nil {
		s.fs.Remove(contentPath)
		return "", fmt.Errorf("storing metadata: %w", err)
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash
func (s *Safe) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}

	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := s.getMeta(hash)
	if err != nil {
		return nil, err
	}

	content, err := util.ReadFile(s.fs, s.contentPath(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if meta.Compressed {
		content, err = s.zstd.decompress(content)
		if err != nil {
			return nil, err
		}
	}

	if HashContent(content) != hash {
		return nil, fmt.Errorf("content hash mismatch for %s", hash)
	}

	s.cache.Add(hash, content)
	meta.AccessedAt = time.Now()
	if err := s.meta.Put(&meta); err != nil {
		return nil, fmt.Errorf("updating metadata: %w", err)
	}

	return content, nil
}

// Meta returns the stored metadata for hash.
func (s *Safe) Meta(hash string) (ContentMeta, error) {
	if !isValidHash(hash) {
		return ContentMeta{}, ErrInvalidHash
	}
	return s.getMeta(hash)
}

// Delete drops one reference to hash and removes the content once none remain.
func (s *Safe) Delete(hash string) error {
	if !isValidHash(hash) {
		return ErrInvalidHash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.getMeta(hash)
	if err != nil {
		return err
	}

	meta.RefCount--
	if meta.RefCount > 0 {
		if err := s.meta.Put(&meta); err != nil {
			return fmt.Errorf("updating metadata: %w", err)
		}
		return nil
	}

	if err := s.fs.Remove(s.contentPath(hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing content file: %w", err)
	}
	if err := s.meta.Delete(hash); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	s.cache.Remove(hash)
	return nil
}

// HashContent returns the hex sha256 of content.
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func (s *Safe) contentPath(hash string) string {
	return path.Join(s.root, hash[:2], hash[2:])
}

func isValidHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *Safe) getMeta(hash string) (ContentMeta, error) {
	var meta ContentMeta
	err := s.meta.Get(hash, &meta)
	if errors.Is(err, storage.ErrNotFound) {
		return meta, ErrContentNotFound
	}
	return meta, err
}
