package block

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/mattjoyce/barline/internal/config"
)

// Definition describes one block type.
type Definition struct {
	// Description is shown by `barline blocks`.
	Description string

	// New builds the block.
	New func(ctx context.Context, env Env, params config.Params) (Block, error)

	// Check decodes and validates params without side effects.
	Check func(params config.Params) error

	// OverridesClick is set when blocks of this type implement ClickOverrider
	// and always take on_click for themselves.
	OverridesClick bool
}

// Registry maps block type tags to definitions. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a block type. It returns an error if the tag is taken.
func (r *Registry) Register(tag string, def Definition) error {
	if def.New == nil {
		return fmt.Errorf("block %q: New is required", tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[tag]; exists {
		return fmt.Errorf("block %q already registered", tag)
	}
	r.defs[tag] = def
	return nil
}

// Lookup returns the definition for tag.
func (r *Registry) Lookup(tag string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[tag]
	return d, ok
}

// Types returns the registered tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.defs))
	for tag := range r.defs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Check validates a block entry without constructing it.
func (r *Registry) Check(bc config.BlockConfig) error {
	def, ok := r.Lookup(bc.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, bc.Type)
	}
	if def.Check == nil {
		return nil
	}
	return def.Check(bc.Params)
}

// Construct builds one block and its handlers. It returns ErrSkipped when the
// entry's if_command exits non-zero.
func (r *Registry) Construct(ctx context.Context, env Env, bc config.BlockConfig) (Block, Handlers, error) {
	handlers := Handlers{Signal: bc.Signal, OnClick: bc.OnClick}

	def, ok := r.Lookup(bc.Type)
	if !ok {
		return nil, handlers, fmt.Errorf("%w: %q", ErrUnknownType, bc.Type)
	}

	if bc.IfCommand != "" {
		err := exec.CommandContext(ctx, "sh", "-c", bc.IfCommand).Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, handlers, ErrSkipped
		}
		if err != nil {
			return nil, handlers, fmt.Errorf("if_command: %w", err)
		}
	}

	b, err := def.New(ctx, env, bc.Params)
	if err != nil {
		return nil, handlers, err
	}

	if handlers.OnClick != "" {
		if o, ok := b.(ClickOverrider); ok && o.OverrideClick(handlers.OnClick) {
			handlers.OnClick = ""
		}
	}
	return b, handlers, nil
}
