package compaction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ctxgate/ctxgate/masking"
	"github.com/ctxgate/ctxgate/types"
)

// HeuristicBuilder summarizes removed history without calling a model: it
// extracts the opening and latest user intents, tool usage counts, files
// touched, and error observations from the span it is given.
type HeuristicBuilder struct{}

// Build implements SummaryBuilder.
func (HeuristicBuilder) Build(messages []types.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: empty span", ErrSummaryFailed)
	}

	var b strings.Builder

	first, last := userIntents(messages)
	if first != "" {
		b.WriteString("Initial request: " + first + "\n")
	}
	if last != "" && last != first {
		b.WriteString("Most recent request: " + last + "\n")
	}

	if usage := toolUsage(messages); usage != "" {
		b.WriteString("Tools used: " + usage + "\n")
	}
	if files := filesTouched(messages); len(files) > 0 {
		b.WriteString("Files touched: " + strings.Join(files, ", ") + "\n")
	}
	if errs := errorSamples(messages); len(errs) > 0 {
		b.WriteString("Errors encountered:\n")
		for _, e := range errs {
			b.WriteString("  - " + e + "\n")
		}
	}

	b.WriteString(fmt.Sprintf("(%d earlier messages summarized)", len(messages)))
	return b.String(), nil
}

const intentChars = 200

// userIntents returns the first and last user messages of the span,
// truncated and flattened to single lines.
func userIntents(messages []types.Message) (first, last string) {
	for _, m := range messages {
		if m.Role != types.RoleUser || m.Content == "" {
			continue
		}
		flat := flatten(m.Content, intentChars)
		if first == "" {
			first = flat
		}
		last = flat
	}
	return first, last
}

// toolUsage formats per-tool call counts, most frequent first.
func toolUsage(messages []types.Message) string {
	counts := make(map[string]int)
	for _, m := range messages {
		for _, call := range m.ToolCalls {
			counts[call.Name]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d)", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}

// pathArgKeys are the tool-argument fields treated as file references.
var pathArgKeys = []string{"path", "file_path", "file"}

const maxFilesListed = 10

// filesTouched collects distinct file paths from tool-call arguments, in
// first-seen order.
func filesTouched(messages []types.Message) []string {
	seen := make(map[string]bool)
	var files []string
	for _, m := range messages {
		for _, call := range m.ToolCalls {
			if len(call.Arguments) == 0 {
				continue
			}
			for _, key := range pathArgKeys {
				v := gjson.GetBytes(call.Arguments, key)
				if !v.Exists() || v.String() == "" || seen[v.String()] {
					continue
				}
				seen[v.String()] = true
				files = append(files, v.String())
			}
		}
	}
	if len(files) > maxFilesListed {
		files = files[:maxFilesListed]
	}
	return files
}

const (
	maxErrorSamples  = 5
	errorSampleChars = 120
)

// errorSamples returns truncated error-looking observations from the span.
func errorSamples(messages []types.Message) []string {
	var samples []string
	for _, m := range messages {
		if !m.IsToolResult() || !masking.LooksLikeError(m.Content) {
			continue
		}
		samples = append(samples, flatten(m.Content, errorSampleChars))
		if len(samples) == maxErrorSamples {
			break
		}
	}
	return samples
}

func flatten(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
