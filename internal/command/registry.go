package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"scribe/internal/logging"

	"go.uber.org/zap"
)

var ErrUnknownCommand = errors.New("command is not registered")

// Command is a named operation triggered by an application event.
type Command interface {
	Name() string
	Execute(ctx context.Context, event string, payload json.RawMessage) Result
}

// Registry dispatches events to commands by name.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		commands: make(map[string]Command),
		logger:   logger,
	}
}

func (r *Registry) Register(cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cmd := range cmds {
		name := cmd.Name()
		if name == "" {
			return fmt.Errorf("command name is required")
		}
		if _, exists := r.commands[name]; exists {
			return fmt.Errorf("command already registered: %s", name)
		}
		r.commands[name] = cmd
	}
	return nil
}

// Dispatch runs the command registered under name with payload.
func (r *Registry) Dispatch(ctx context.Context, name string, payload json.RawMessage) (Result, error) {
	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	logging.With(ctx, r.logger).Debug("dispatching command", zap.String("command", name))
	return cmd.Execute(ctx, name, payload), nil
}

// Names lists registered command names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
