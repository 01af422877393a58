package ctxgate

import (
	"github.com/rs/zerolog"

	"github.com/ctxgate/ctxgate/compaction"
	"github.com/ctxgate/ctxgate/events"
	"github.com/ctxgate/ctxgate/registry"
	"github.com/ctxgate/ctxgate/storage"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEmitter sets the event sink for compaction and masking notifications.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithStore sets the persistence backend for auto-compaction flags and the
// compaction audit trail. The default keeps everything in memory.
func WithStore(store storage.Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithRegistry replaces the built-in model registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithTokenWorkers sets the size of the background token-counting pool.
func WithTokenWorkers(n int) Option {
	return func(e *Engine) { e.tokenWorkers = n }
}

// WithSummaryBuilder replaces the heuristic compaction summary builder.
func WithSummaryBuilder(builder compaction.SummaryBuilder) Option {
	return func(e *Engine) { e.summaryBuilder = builder }
}
