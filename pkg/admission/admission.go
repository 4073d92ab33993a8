// Package admission bounds how much upstream work the gateway takes on:
// a fixed worker budget across all clients, and a per-host connect-attempt
// limiter so one flapping camera cannot saturate outbound dials.
package admission

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrAtCapacity is returned by Acquire when the worker budget is exhausted.
var ErrAtCapacity = fmt.Errorf("admission: at capacity")

// Controller gates concurrent relay workers and rate-limits connect
// attempts per upstream host.
type Controller struct {
	maxWorkers int

	mu      sync.Mutex
	active  int
	limiter map[string]*rate.Limiter

	connectRate  rate.Limit
	connectBurst int
}

// New creates a Controller allowing at most maxWorkers concurrent relay
// sessions, and connectsPerMinute connection attempts per upstream host.
func New(maxWorkers int, connectsPerMinute float64) *Controller {
	return &Controller{
		maxWorkers:   maxWorkers,
		limiter:      make(map[string]*rate.Limiter),
		connectRate:  rate.Limit(connectsPerMinute / 60.0),
		connectBurst: 1,
	}
}

// Acquire reserves one worker slot, returning ErrAtCapacity if none are free.
// Release must be called exactly once for a successful Acquire.
func (c *Controller) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active >= c.maxWorkers {
		return ErrAtCapacity
	}
	c.active++
	return nil
}

// Release frees one worker slot acquired by Acquire.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// Active reports the number of currently reserved worker slots.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// WaitConnect blocks until a connect attempt to host is allowed by that
// host's token bucket, or ctx is canceled.
func (c *Controller) WaitConnect(ctx context.Context, host string) error {
	return c.limiterFor(host).Wait(ctx)
}

func (c *Controller) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiter[host]
	if !ok {
		l = rate.NewLimiter(c.connectRate, c.connectBurst)
		c.limiter[host] = l
	}
	return l
}
