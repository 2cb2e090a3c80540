package crdt

import (
	"math"
	"sync/atomic"
	"time"
)

// Clock — монотонный источник меток времени в секундах (Unix, float64).
// Работает без блокировок: текущее значение хранится за atomic.Pointer.
type Clock struct {
	last   atomic.Pointer[float64]
	offset atomic.Int64 // смещение в наносекундах (для тестов/симуляции)
	now    func() time.Time
}

func NewClock() *Clock {
	c := &Clock{now: time.Now}
	zero := 0.0
	c.last.Store(&zero)
	return c
}

// WithOffset сдвигает системное время (для симуляций / тестов).
func (c *Clock) WithOffset(offset time.Duration) *Clock {
	c.offset.Store(int64(offset))
	return c
}

func (c *Clock) wall() float64 {
	off := time.Duration(c.offset.Load())
	return float64(c.now().Add(off).UnixNano()) / float64(time.Second)
}

// Now returns a timestamp strictly greater than every timestamp this clock
// has returned or observed before.
func (c *Clock) Now() float64 {
	return c.advance(math.Inf(-1))
}

// Observe сдвигает часы за метку, полученную от другой реплики,
// и возвращает новую локальную метку, строго большую remote.
func (c *Clock) Observe(remote float64) float64 {
	if math.IsNaN(remote) || math.IsInf(remote, 0) {
		remote = math.Inf(-1)
	}
	return c.advance(remote)
}

func (c *Clock) advance(floor float64) float64 {
	for {
		p := c.last.Load()
		bound := max(*p, floor)
		next := c.wall()
		if next <= bound {
			next = math.Nextafter(bound, math.Inf(1))
		}
		if c.last.CompareAndSwap(p, &next) {
			return next
		}
		// кто-то другой изменил состояние — повторяем
	}
}
