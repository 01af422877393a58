package ctxgate

import (
	"github.com/rs/zerolog"

	"github.com/ctxgate/ctxgate/compaction"
)

// zerologAdapter exposes a zerolog.Logger through the compaction package's
// minimal Logger interface.
type zerologAdapter struct {
	logger zerolog.Logger
}

var _ compaction.Logger = zerologAdapter{}

func (a zerologAdapter) Debug(msg string, args ...any) { a.log(a.logger.Debug(), msg, args) }
func (a zerologAdapter) Info(msg string, args ...any)  { a.log(a.logger.Info(), msg, args) }
func (a zerologAdapter) Warn(msg string, args ...any)  { a.log(a.logger.Warn(), msg, args) }
func (a zerologAdapter) Error(msg string, args ...any) { a.log(a.logger.Error(), msg, args) }

// log treats args as alternating key/value pairs, the way the compaction
// engine emits them.
func (a zerologAdapter) log(evt *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		evt = evt.Interface(key, args[i+1])
	}
	evt.Msg(msg)
}
