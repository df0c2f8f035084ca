package command

import (
	"context"
	"encoding/json"
	"fmt"

	"scribe/internal/config"
	apperrors "scribe/internal/errors"
	"scribe/internal/logging"
	"scribe/internal/workspace"

	"go.uber.org/zap"
)

// SaveFileName is the event name the save command answers to.
const SaveFileName = "file-save"

// FileSystem resolves and persists files.
type FileSystem interface {
	FindFile(path string) (*workspace.File, bool)
	SaveFile(ctx context.Context, file *workspace.File, contents string) error
}

// WordCounter receives word count changes.
type WordCounter interface {
	IncreaseWordCount(delta int)
}

// StatsPolicy decides whether a failed write still counts toward statistics.
type StatsPolicy int

const (
	// StatsAlways applies the offset once the write returns, whatever its outcome.
	StatsAlways StatsPolicy = iota
	// StatsOnSuccess applies the offset only after a successful write.
	StatsOnSuccess
)

// ParseStatsPolicy maps the config spelling to a policy.
func ParseStatsPolicy(s string) (StatsPolicy, error) {
	switch s {
	case "", config.StatsAlways:
		return StatsAlways, nil
	case config.StatsOnSuccess:
		return StatsOnSuccess, nil
	}
	return StatsAlways, fmt.Errorf("unknown stats policy %q", s)
}

type SaveOption func(*SaveFile)

func WithStatsPolicy(p StatsPolicy) SaveOption {
	return func(c *SaveFile) { c.policy = p }
}

// SaveFile writes an edited document back through the file system and
// records its word count change. It holds no mutable state; concurrent
// invocations are independent.
type SaveFile struct {
	fs     FileSystem
	words  WordCounter
	logger *zap.Logger
	policy StatsPolicy
}

// NewSaveFile builds the file-save command over its collaborators.
func NewSaveFile(fs FileSystem, words WordCounter, logger *zap.Logger, opts ...SaveOption) (*SaveFile, error) {
	if fs == nil {
		return nil, fmt.Errorf("file system cannot be nil")
	}
	if words == nil {
		return nil, fmt.Errorf("word counter cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &SaveFile{
		fs:     fs,
		words:  words,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *SaveFile) Name() string { return SaveFileName }

// Execute decodes payload and runs the command. An undecodable payload is
// rejected like a missing one.
func (c *SaveFile) Execute(ctx context.Context, event string, payload json.RawMessage) Result {
	req, err := DecodeSaveRequest(payload)
	if err != nil {
		logging.With(ctx, c.logger).Error("could not decode save request",
			zap.String("event", event),
			zap.Error(err))
		return Result{Command: c.Name(), Status: StatusRejected, Err: err}
	}
	return c.Run(ctx, event, req)
}

// Run saves req. It never returns an error: every failure after validation is
// logged and reported through the result's Status and Err, and Completed is
// false only when req is absent or has no content. The invocation is not
// cancelable; ctx only carries values for log correlation.
func (c *SaveFile) Run(ctx context.Context, event string, req *SaveRequest) Result {
	ctx = context.WithoutCancel(ctx)
	log := logging.With(ctx, c.logger).With(zap.String("event", event))
	res := Result{Command: c.Name()}

	if !req.HasContent() {
		log.Error("could not save file, it is either null or has no content", zap.Any("request", req))
		res.Status = StatusRejected
		return res
	}

	file, ok := c.fs.FindFile(req.Path)
	if !ok {
		res.Status = StatusNotFound
		res.Err = apperrors.NotFound(fmt.Sprintf("file to save not found: %s", req.Path))
		log.Error("error saving file", zap.String("path", req.Path), zap.Error(res.Err))
		return res
	}
	res.File = file.Name

	log.Info("saving file", zap.String("file", file.Name))
	err := c.persist(ctx, file, *req.NewContents)

	if err == nil || c.policy == StatsAlways {
		c.words.IncreaseWordCount(req.OffsetWordCount)
	}

	if err != nil {
		res.Status = StatusWriteFailed
		res.Err = err
		log.Error("error saving file", zap.String("file", file.Name), zap.Error(err))
		return res
	}

	log.Info("file saved", zap.String("file", file.Name))
	res.Status = StatusSaved
	return res
}

// persist turns a panicking file system into a write failure.
func (c *SaveFile) persist(ctx context.Context, file *workspace.File, contents string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.WriteError(fmt.Sprintf("saving %s", file.Path), fmt.Errorf("panic: %v", r))
		}
	}()
	return c.fs.SaveFile(ctx, file, contents)
}
