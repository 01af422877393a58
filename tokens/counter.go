// Package tokens provides token counting for conversation histories.
//
// Counting uses the model's exact BPE encoding (via tiktoken) when the
// encoding is known, and falls back to a character-based approximation
// (~4 characters per token) otherwise. The fallback is flagged on the result
// so downstream threshold decisions know they are working with an estimate.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ctxgate/ctxgate/types"
)

const (
	// messageOverheadTokens accounts for role markers and separators
	// (~4 tokens per message).
	messageOverheadTokens = 4

	// toolCallOverheadTokens accounts for tool call/result framing
	// (name, ID, structure).
	toolCallOverheadTokens = 10
)

// Result contains the outcome of a token count operation.
type Result struct {
	// PerMessage is the token count per message, index-aligned with the input.
	PerMessage []int

	// Total is the token count for all messages.
	Total int

	// IsEstimated is true when the character-based approximation was used
	// instead of an exact encoding.
	IsEstimated bool
}

// Counter counts tokens for message lists. It caches one encoder per
// encoding name and is safe for concurrent use.
type Counter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
	failed   map[string]bool
}

// NewCounter creates a Counter with an empty encoder cache.
func NewCounter() *Counter {
	return &Counter{
		encoders: make(map[string]*tiktoken.Tiktoken),
		failed:   make(map[string]bool),
	}
}

// Count counts tokens in messages using the named encoding. An empty or
// unknown encoding selects the approximation fallback. Count never fails:
// malformed or non-text content is counted by its serialized length.
func (c *Counter) Count(messages []types.Message, encoding string) Result {
	enc := c.encoder(encoding)

	counted := func(text string) int {
		if enc != nil {
			return len(enc.Encode(text, nil, nil))
		}
		return Approximate(text)
	}

	perMessage := make([]int, len(messages))
	total := 0
	for i, msg := range messages {
		n := messageTokens(msg, counted)
		perMessage[i] = n
		total += n
	}

	return Result{
		PerMessage:  perMessage,
		Total:       total,
		IsEstimated: enc == nil,
	}
}

// encoder returns the cached encoder for the named encoding, or nil when the
// encoding is unknown. A failed lookup is remembered so the fallback is
// selected without retrying on every call.
func (c *Counter) encoder(encoding string) *tiktoken.Tiktoken {
	if encoding == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[encoding]; ok {
		return enc
	}
	if c.failed[encoding] {
		return nil
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		c.failed[encoding] = true
		return nil
	}
	c.encoders[encoding] = enc
	return enc
}

// messageTokens counts one message: content plus per-message and tool
// call/result overhead.
func messageTokens(msg types.Message, counted func(string) int) int {
	total := messageOverheadTokens

	if msg.Content != "" {
		total += counted(msg.Content)
	}

	for _, tc := range msg.ToolCalls {
		total += toolCallOverheadTokens
		total += counted(tc.Name)
		if len(tc.Arguments) > 0 {
			total += counted(string(tc.Arguments))
		}
	}

	if msg.ToolCallID != "" {
		total += toolCallOverheadTokens
	}

	return total
}

// Approximate estimates token count from character count, using ~4 characters
// per token with a minimum of 1 token for non-empty text.
func Approximate(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := (len(text) + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
