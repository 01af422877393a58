package tokens

import (
	"context"
	"sync"

	"github.com/ctxgate/ctxgate/types"
)

// DefaultPoolWorkers is the default number of counting workers.
const DefaultPoolWorkers = 4

// Request is a unit of background counting work.
type Request struct {
	// SessionID identifies the session the count belongs to. Opaque to the
	// pool; handed back to the callback.
	SessionID string

	// Messages is the history to count.
	Messages []types.Message

	// Encoding selects the encoder; empty means the approximation fallback.
	Encoding string

	// Done receives the result. Called from a worker goroutine; must not
	// block for long. Nil Done drops the result.
	Done func(sessionID string, result Result)
}

// Pool runs token counts on background workers so large histories stay off
// the request path. Counts for different sessions may complete in any order.
type Pool struct {
	counter *Counter
	jobs    chan Request

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPool creates a Pool backed by counter and starts its workers.
// workers <= 0 selects DefaultPoolWorkers.
func NewPool(counter *Counter, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}
	p := &Pool{
		counter: counter,
		jobs:    make(chan Request, workers*4),
	}
	p.start(workers)
	return p
}

func (p *Pool) start(workers int) {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		for i := 0; i < workers; i++ {
			p.wg.Add(1)
			go p.run(ctx)
		}
	})
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-p.jobs:
			if !ok {
				return
			}
			result := p.counter.Count(req.Messages, req.Encoding)
			if req.Done != nil {
				req.Done(req.SessionID, result)
			}
		}
	}
}

// Submit queues a counting request. It returns false when the queue is full;
// the caller should then count synchronously instead of blocking the request.
func (p *Pool) Submit(req Request) bool {
	select {
	case p.jobs <- req:
		return true
	default:
		return false
	}
}

// Close stops the workers. Queued requests that have not started are dropped.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}
