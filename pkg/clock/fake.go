package clock

import (
	"sync"
	"time"
)

// FakeClock is a deterministic clock for tests. Time only advances when
// Advance is called. Tickers and After channels fire synchronously from
// within Advance, in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	afters  []fakeAfter
}

type fakeAfter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFakeClock creates a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives once d has elapsed.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.afters = append(c.afters, fakeAfter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker that ticks every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		clock:    c,
		interval: d,
		next:     c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ft)
	return ft
}

// Advance moves the clock forward by d, firing every tick and After deadline
// that falls within the window. A ticker whose channel is full drops the
// tick, matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		next, fire := c.nextDeadline(target)
		if fire == nil {
			break
		}
		c.now = next
		fire()
	}
	c.now = target
}

// TickerCount returns the number of active tickers.
func (c *FakeClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// nextDeadline finds the earliest deadline not after target. Caller must
// hold c.mu.
func (c *FakeClock) nextDeadline(target time.Time) (time.Time, func()) {
	var (
		best time.Time
		fire func()
	)

	for _, t := range c.tickers {
		if t.next.After(target) {
			continue
		}
		if fire == nil || t.next.Before(best) {
			ticker := t
			best = t.next
			fire = func() {
				select {
				case ticker.ch <- ticker.next:
				default:
				}
				ticker.next = ticker.next.Add(ticker.interval)
			}
		}
	}

	for i, a := range c.afters {
		if a.deadline.After(target) {
			continue
		}
		if fire == nil || a.deadline.Before(best) {
			idx := i
			after := a
			best = a.deadline
			fire = func() {
				after.ch <- after.deadline
				c.afters = append(c.afters[:idx], c.afters[idx+1:]...)
			}
		}
	}

	return best, fire
}

func (c *FakeClock) removeTicker(ft *fakeTicker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.tickers {
		if t == ft {
			c.tickers = append(c.tickers[:i], c.tickers[i+1:]...)
			return
		}
	}
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	next     time.Time
	ch       chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.clock.removeTicker(t)
}

func (t *fakeTicker) Reset(d time.Duration) {
	if d <= 0 {
		panic("non-positive interval for Ticker.Reset")
	}
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.interval = d
	t.next = t.clock.now.Add(d)
	for _, existing := range t.clock.tickers {
		if existing == t {
			return
		}
	}
	t.clock.tickers = append(t.clock.tickers, t)
}
