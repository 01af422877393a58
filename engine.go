package ctxgate

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ctxgate/ctxgate/compaction"
	"github.com/ctxgate/ctxgate/config"
	"github.com/ctxgate/ctxgate/events"
	"github.com/ctxgate/ctxgate/masking"
	"github.com/ctxgate/ctxgate/registry"
	"github.com/ctxgate/ctxgate/session"
	"github.com/ctxgate/ctxgate/storage"
	"github.com/ctxgate/ctxgate/tokens"
	"github.com/ctxgate/ctxgate/types"
)

// Engine is the context-window management engine. One Engine serves many
// sessions concurrently.
type Engine struct {
	provider *config.Provider
	registry *registry.Registry
	sessions *session.Store
	store    storage.Store
	emitter  events.Emitter
	logger   zerolog.Logger

	counter    *tokens.Counter
	pool       *tokens.Pool
	compactor  *compaction.Engine
	controller *session.Controller

	tokenWorkers   int
	summaryBuilder compaction.SummaryBuilder
}

// RequestReport describes what ProcessRequest did to one request.
type RequestReport struct {
	Model           string
	MaxContext      int
	Tokens          int
	TokensEstimated bool
	Masking         masking.Report
	Compacted       bool
	CompactionState compaction.Reason
}

// New creates an engine reading policy from provider. Options supply the
// persistence backend, event sink, and logger; defaults are in-memory and
// silent.
func New(provider *config.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:     provider,
		registry:     registry.Default(),
		sessions:     session.NewStore(),
		store:        storage.NewMemoryStore(),
		emitter:      events.NopEmitter{},
		logger:       zerolog.Nop(),
		counter:      tokens.NewCounter(),
		tokenWorkers: tokens.DefaultPoolWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}

	compactorOpts := []compaction.Option{
		compaction.WithLogger(zerologAdapter{logger: e.logger}),
	}
	if e.summaryBuilder != nil {
		compactorOpts = append(compactorOpts, compaction.WithSummaryBuilder(e.summaryBuilder))
	}
	e.compactor = compaction.NewEngine(e.counter, compactorOpts...)
	e.pool = tokens.NewPool(e.counter, e.tokenWorkers)
	e.controller = session.NewController(e.autoEnabled, e.autoApplicable, e.autoRun)
	return e
}

// Close stops the background counting pool and closes the persistence
// backend.
func (e *Engine) Close() error {
	e.pool.Close()
	return e.store.Close()
}

// ProcessRequest runs one request through the pipeline: record the inbound
// conversation, mask stale observations, count tokens, and compact when the
// session has opted in and the threshold is crossed. The returned list is
// what the caller forwards upstream; on any internal failure it degrades to
// the least-processed form rather than erroring the request.
func (e *Engine) ProcessRequest(ctx context.Context, sessionID, model string, messages []types.Message) ([]types.Message, *RequestReport, error) {
	cfg := e.provider.Snapshot()
	if model == "" {
		model = cfg.DefaultModel
	}
	mdl := e.registry.Lookup(model)

	masked, maskReport := masking.MaskWithReport(messages, cfg.Masking)
	e.sessions.SetMessages(sessionID, model, masked)

	if maskReport.MaskedResults > 0 {
		e.emitter.Emit(sessionID, events.MaskingApplied, events.Payload{
			"masked_results": maskReport.MaskedResults,
			"chars_removed":  maskReport.CharsRemoved,
			"kept_errors":    maskReport.KeptErrors,
		})
	}

	// Inline count is the cheap heuristic; the exact tokenizer run happens
	// on the pool below.
	count := e.counter.Count(masked, "")
	e.sessions.UpdateTokens(sessionID, count.Total, count.IsEstimated)

	report := &RequestReport{
		Model:           model,
		MaxContext:      mdl.MaxContext,
		Tokens:          count.Total,
		TokensEstimated: count.IsEstimated,
		Masking:         maskReport,
	}

	outbound := masked
	ok, reason := compaction.ShouldCompact(count.Total, len(masked), mdl.MaxContext, cfg.Compaction)
	report.CompactionState = reason
	if ok {
		if e.autoEnabled(sessionID) {
			if res, err := e.runCompaction(ctx, sessionID, compaction.TriggerAuto, false); err == nil {
				outbound = res.Messages
				report.Compacted = true
				report.Tokens = res.Record.CompactedTokens
				report.TokensEstimated = mdl.Encoding == ""
			}
			// On failure the unmodified conversation goes out; the
			// failure event is already emitted.
		} else {
			e.emitter.Emit(sessionID, events.CompactionAlert, events.Payload{
				"tokens":    count.Total,
				"threshold": cfg.Compaction.Threshold(mdl.MaxContext),
			})
		}
	}

	if mdl.Encoding != "" {
		submitted := e.pool.Submit(tokens.Request{
			SessionID: sessionID,
			Messages:  masked,
			Encoding:  mdl.Encoding,
			Done:      e.onExactCount,
		})
		if !submitted {
			e.logger.Warn().Str("session_id", sessionID).Msg("token counting queue full, keeping heuristic count")
		}
	}

	return outbound, report, nil
}

// onExactCount lands pool results: it refreshes the session count and lets
// the auto-compaction controller react.
func (e *Engine) onExactCount(sessionID string, result tokens.Result) {
	e.sessions.UpdateTokens(sessionID, result.Total, result.IsEstimated)
	e.controller.OnTokenUpdate(sessionID, result.Total)
}

// PreviewCompaction estimates what compaction would do to a session without
// touching it. It reads a snapshot and takes no session lock.
func (e *Engine) PreviewCompaction(sessionID string) (compaction.Estimate, error) {
	sess, ok := e.sessions.Snapshot(sessionID)
	if !ok {
		return compaction.Estimate{}, wrapErr("preview_compaction", sessionID, session.ErrNotFound)
	}
	cfg := e.provider.Snapshot()
	mdl := e.registry.Lookup(modelOr(sess.Model, cfg.DefaultModel))
	return e.compactor.Preview(sess.Messages, cfg.Compaction, mdl.MaxContext, mdl.Encoding), nil
}

// ExecuteCompaction compacts a session on demand. force skips the
// applicability checks. A not-applicable request returns an error wrapping
// compaction.ErrNotApplicable with the reason; concurrent executes for one
// session serialize on the session lock.
func (e *Engine) ExecuteCompaction(ctx context.Context, sessionID string, force bool) (*compaction.Result, error) {
	trigger := compaction.TriggerManual
	if force {
		trigger = compaction.TriggerManualForced
	}
	return e.runCompaction(ctx, sessionID, trigger, force)
}

// runCompaction performs the atomic compact-and-commit: the compactor works
// on a copy under the session lock, and the session state only changes when
// every step succeeded.
func (e *Engine) runCompaction(ctx context.Context, sessionID string, trigger compaction.Trigger, force bool) (*compaction.Result, error) {
	var result *compaction.Result
	err := e.sessions.WithExclusive(sessionID, func(sess session.Session) (*session.Commit, error) {
		cfg := e.provider.Snapshot()
		mdl := e.registry.Lookup(modelOr(sess.Model, cfg.DefaultModel))

		res, err := e.compactor.Execute(sessionID, sess.Messages, cfg.Compaction, mdl.MaxContext, mdl.Encoding, trigger, force)
		if err != nil {
			return nil, err
		}
		result = res
		compactedTokens := res.Record.CompactedTokens
		return &session.Commit{Messages: res.Messages, Tokens: &compactedTokens}, nil
	})
	if err != nil {
		if errors.Is(err, compaction.ErrNotApplicable) {
			return nil, err
		}
		e.emitter.Emit(sessionID, events.CompactionFailed, events.Payload{
			"trigger": string(trigger),
			"error":   err.Error(),
		})
		return nil, wrapErr("execute_compaction", sessionID, err)
	}

	if err := e.store.AppendCompactionRecord(ctx, result.Record); err != nil {
		// The compaction is already committed; a lost audit entry is not
		// worth unwinding it.
		e.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to persist compaction record")
	}

	e.emitter.Emit(sessionID, events.CompactionEvent, events.Payload{
		"trigger":          string(trigger),
		"original_tokens":  result.Record.OriginalTokens,
		"compacted_tokens": result.Record.CompactedTokens,
		"messages_removed": result.Record.MessagesRemoved,
	})
	return result, nil
}

// GetAutoCompaction returns the session's auto-compaction flag, falling
// back to the configured default when the session never set one.
func (e *Engine) GetAutoCompaction(ctx context.Context, sessionID string) (bool, error) {
	enabled, found, err := e.store.GetAutoCompaction(ctx, sessionID)
	if err != nil {
		return false, wrapErr("get_auto_compaction", sessionID, err)
	}
	if !found {
		return e.provider.Snapshot().AutoCompactionDefault, nil
	}
	return enabled, nil
}

// SetAutoCompaction stores the session's auto-compaction flag. The change
// applies from the next token-count update; setting the current value again
// is a no-op.
func (e *Engine) SetAutoCompaction(ctx context.Context, sessionID string, enabled bool) error {
	if err := e.store.SetAutoCompaction(ctx, sessionID, enabled); err != nil {
		return wrapErr("set_auto_compaction", sessionID, err)
	}
	return nil
}

// Stats aggregates a session's compaction history with its current
// utilization.
type Stats struct {
	Count            int                 `json:"count"`
	TotalTokensSaved int                 `json:"total_tokens_saved"`
	MeanRatio        float64             `json:"mean_ratio"`
	CurrentTokens    int                 `json:"current_tokens"`
	MaxContext       int                 `json:"max_context"`
	UtilizationPct   float64             `json:"utilization_pct"`
	History          []compaction.Record `json:"history"`
}

// GetCompactionStats returns the session's audit history plus aggregates.
func (e *Engine) GetCompactionStats(ctx context.Context, sessionID string) (*Stats, error) {
	history, err := e.store.GetCompactionHistory(ctx, sessionID)
	if err != nil {
		return nil, wrapErr("get_compaction_stats", sessionID, err)
	}

	stats := &Stats{Count: len(history), History: history}
	var ratioSum float64
	for _, record := range history {
		stats.TotalTokensSaved += record.OriginalTokens - record.CompactedTokens
		ratioSum += record.Ratio
	}
	if len(history) > 0 {
		stats.MeanRatio = ratioSum / float64(len(history))
	}

	cfg := e.provider.Snapshot()
	sess, ok := e.sessions.Snapshot(sessionID)
	if ok {
		stats.CurrentTokens = sess.Tokens
		mdl := e.registry.Lookup(modelOr(sess.Model, cfg.DefaultModel))
		stats.MaxContext = mdl.MaxContext
		usable := mdl.MaxContext - cfg.Compaction.ReservedTokens
		if usable > 0 {
			stats.UtilizationPct = float64(sess.Tokens) / float64(usable) * 100
		}
	}
	return stats, nil
}

// autoEnabled reads the per-session auto-compaction opt-in for the
// controller.
func (e *Engine) autoEnabled(sessionID string) bool {
	enabled, err := e.GetAutoCompaction(context.Background(), sessionID)
	if err != nil {
		e.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to read auto-compaction flag")
		return false
	}
	return enabled
}

// autoApplicable runs the threshold check against the session snapshot.
func (e *Engine) autoApplicable(sessionID string, total int) bool {
	sess, ok := e.sessions.Snapshot(sessionID)
	if !ok {
		return false
	}
	cfg := e.provider.Snapshot()
	mdl := e.registry.Lookup(modelOr(sess.Model, cfg.DefaultModel))
	applicable, _ := compaction.ShouldCompact(total, len(sess.Messages), mdl.MaxContext, cfg.Compaction)
	return applicable
}

// autoRun performs a controller-initiated compaction. Failures are emitted
// and logged inside runCompaction.
func (e *Engine) autoRun(sessionID string) {
	if _, err := e.runCompaction(context.Background(), sessionID, compaction.TriggerAuto, false); err != nil {
		e.logger.Debug().Err(err).Str("session_id", sessionID).Msg("auto compaction did not run")
	}
}

func modelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
