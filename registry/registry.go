// Package registry maps model names to context-window sizes and tokenizer
// encodings. Lookups are longest-prefix matches so versioned model names
// resolve without per-version entries.
package registry

import (
	"sort"
	"strings"
	"sync"
)

// DefaultMaxContext is the context window assumed for unknown models.
const DefaultMaxContext = 128000

// Model describes what the engine needs to know about one model family.
type Model struct {
	// MaxContext is the context window in tokens.
	MaxContext int

	// Encoding is the tiktoken encoding name. Empty means no exact
	// tokenizer is available and counts fall back to estimation.
	Encoding string
}

// Registry resolves model names to Model entries.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// Default returns a registry preloaded with common model families.
func Default() *Registry {
	return &Registry{models: map[string]Model{
		"claude-3":       {MaxContext: 200000},
		"claude-sonnet":  {MaxContext: 200000},
		"claude-opus":    {MaxContext: 200000},
		"claude-haiku":   {MaxContext: 200000},
		"gpt-4o":         {MaxContext: 128000, Encoding: "o200k_base"},
		"gpt-4-turbo":    {MaxContext: 128000, Encoding: "cl100k_base"},
		"gpt-4":          {MaxContext: 8192, Encoding: "cl100k_base"},
		"gpt-3.5-turbo":  {MaxContext: 16385, Encoding: "cl100k_base"},
		"gemini-1.5-pro": {MaxContext: 1000000},
		"gemini-2.0":     {MaxContext: 1000000},
		"deepseek":       {MaxContext: 64000},
	}}
}

// Register adds or replaces a model-family entry.
func (r *Registry) Register(prefix string, model Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[prefix] = model
}

// Lookup resolves a model name to its entry by longest matching prefix.
// Unknown models get DefaultMaxContext and no encoding.
func (r *Registry) Lookup(name string) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	for prefix := range r.models {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Model{MaxContext: DefaultMaxContext}
	}
	return r.models[best]
}

// MaxContext returns the context window for a model name.
func (r *Registry) MaxContext(name string) int {
	return r.Lookup(name).MaxContext
}

// Encoding returns the tokenizer encoding for a model name. Empty when no
// exact tokenizer applies.
func (r *Registry) Encoding(name string) string {
	return r.Lookup(name).Encoding
}

// Known returns the registered prefixes, sorted. Intended for diagnostics.
func (r *Registry) Known() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.models))
	for prefix := range r.models {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
