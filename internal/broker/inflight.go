package broker

import (
	"context"

	"jentic/internal/domain"
)

// loadCall is one identifier's share of a batched remote fetch. Every caller
// that asks for the identifier while the fetch runs waits on the same call.
type loadCall struct {
	batch   *loadBatch
	done    chan struct{}
	outcome domain.LoadOutcome
}

// loadBatch is a single transport.Load request. Its context is detached from
// the caller that started it and is canceled only once no caller waits on
// any of its identifiers.
type loadBatch struct {
	ctx       context.Context
	cancel    context.CancelFunc
	waiters   int
	abandoned bool
}

func newLoadCall(batch *loadBatch) *loadCall {
	return &loadCall{batch: batch, done: make(chan struct{})}
}

func (c *loadCall) finish(outcome domain.LoadOutcome) {
	c.outcome = outcome
	close(c.done)
}

// result returns a private copy of the outcome for one waiter.
func (c *loadCall) result() domain.LoadOutcome {
	out := c.outcome
	if out.Metadata != nil {
		meta := out.Metadata.Clone()
		out.Metadata = &meta
	}
	return out
}

// joinLocked registers a waiter. Callers must hold Broker.mu.
func (c *loadCall) joinLocked() {
	c.batch.waiters++
}

// leaveLocked drops a waiter and abandons the batch when it was the last one.
// Callers must hold Broker.mu.
func (c *loadCall) leaveLocked() {
	c.batch.waiters--
	if c.batch.waiters <= 0 && !c.batch.abandoned {
		c.batch.abandoned = true
		c.batch.cancel()
	}
}

// joinableLocked reports whether new callers may still wait on this call.
func (c *loadCall) joinableLocked() bool {
	return !c.batch.abandoned
}
