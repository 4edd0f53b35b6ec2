package decision

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/octoreflex/proctriage/internal/model"
)

// ActionCostModel gives the rate-limiter token cost of each action,
// rising with the action's reversibility rank so a burst of
// high-impact actions (Restart, Kill) exhausts the bucket faster than
// an equivalent burst of low-impact ones (Renice).
var ActionCostModel = map[model.ActionKind]int{
	model.ActionKeep:       0,
	model.ActionRenice:     1,
	model.ActionPause:      5,
	model.ActionQuarantine: 10,
	model.ActionRestart:    20,
	model.ActionKill:       50,
}

// Bucket is a thread-safe token bucket guarding the rate at which the
// decision module may recommend costly actions, adapted from the
// escalation containment rate limiter: a fixed capacity, a full
// (non-incremental) refill on a timer, and atomic cost consumption.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// NewBucket creates a Bucket with the given capacity and starts its
// refill goroutine. Call Close to stop it.
func NewBucket(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("decision.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("decision.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens, returning whether they
// were available.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// ConsumeForAction consumes the standard cost for recommending the
// given action. Actions with no defined cost (Keep) are always free.
func (b *Bucket) ConsumeForAction(a model.ActionKind) bool {
	cost, ok := ActionCostModel[a]
	if !ok || cost == 0 {
		return true
	}
	return b.Consume(cost)
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the bucket's maximum token capacity.
func (b *Bucket) Capacity() int { return b.capacity }

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 { return b.consumedTotal.Load() }

// RefillCount returns the number of completed refill cycles.
func (b *Bucket) RefillCount() uint64 { return b.refillCount.Load() }

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() { close(b.stop) }
