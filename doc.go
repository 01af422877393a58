// Package ctxgate manages the context window of LLM proxy traffic: it
// counts tokens, masks stale tool observations, and compacts long
// conversations into summaries before they hit the model's context limit.
//
// The engine sits between a client and an upstream model API. Each request
// passes its full conversation through ProcessRequest, which returns the
// transformed message list to forward upstream. Transport, authentication,
// and the upstream call itself belong to the caller.
//
// Basic usage:
//
//	provider := config.NewProvider(config.Default())
//	engine := ctxgate.New(provider)
//	defer engine.Close()
//
//	outbound, report, err := engine.ProcessRequest(ctx, sessionID, model, messages)
//
// Compaction can also be driven explicitly through PreviewCompaction and
// ExecuteCompaction, or automatically per session via SetAutoCompaction.
package ctxgate
