// Package app wires the workspace, statistics and command registry for one root.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"scribe/internal/command"
	"scribe/internal/config"
	"scribe/internal/safe"
	"scribe/internal/stats"
	"scribe/internal/textstat"
	"scribe/internal/workspace"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
)

type App struct {
	Root      string
	DB        *badger.DB
	Workspace *workspace.Workspace
	Stats     *stats.Tracker
	Commands  *command.Registry
	Logger    *zap.Logger

	save *command.SaveFile
}

// Open opens the database under cfg and assembles the services.
func Open(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", cfg.Workspace.Root, err)
	}

	policy, err := command.ParseStatsPolicy(cfg.Stats.Policy)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Database.Path)
	opts.Logger = nil // Disable logging noise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	fsys := osfs.New(root)
	contentSafe, err := safe.New(db, safe.Options{
		FS:          fsys,
		Root:        filepath.ToSlash(filepath.Join(config.Dir, "revisions")),
		CacheSize:   cfg.Safe.CacheSize,
		CompressMin: cfg.Safe.CompressMin,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing content safe: %w", err)
	}

	ws, err := workspace.New(fsys, db, contentSafe, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	tracker := stats.NewTracker(db, logger)
	save, err := command.NewSaveFile(ws, tracker, logger, command.WithStatsPolicy(policy))
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := command.NewRegistry(logger)
	if err := registry.Register(save); err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		Root:      root,
		DB:        db,
		Workspace: ws,
		Stats:     tracker,
		Commands:  registry,
		Logger:    logger,
		save:      save,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// SaveText runs the save command for path with contents. When offset is nil
// the word count change is computed against the file's current content.
func (a *App) SaveText(ctx context.Context, path, contents string, offset *int) command.Result {
	delta := 0
	if offset != nil {
		delta = *offset
	} else {
		before, err := util.ReadFile(a.Workspace.FS, workspace.Normalize(path))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			a.Logger.Warn("Failed to read current content for word count", zap.String("path", path), zap.Error(err))
		}
		delta = textstat.Offset(string(before), contents)
	}

	return a.save.Run(ctx, command.SaveFileName, command.NewSaveRequest(path, contents, delta))
}
