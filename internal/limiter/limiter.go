package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of concurrent job executions process-wide.
// Waiters are admitted in the order the semaphore provides; no fairness
// beyond that is promised.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64

	mu       sync.Mutex
	inFlight int64
	peak     int64
	waiting  int64
}

func New(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// func is safe to call more than once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()
	l.waiting++
	l.mu.Unlock()

	err := l.sem.Acquire(ctx, 1)

	l.mu.Lock()
	l.waiting--
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.inFlight--
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a slot. The slot is released on every exit path.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (l *Limiter) Capacity() int { return int(l.capacity) }

func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.inFlight)
}

func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.waiting)
}

// Peak is the highest number of simultaneous holders seen so far.
func (l *Limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.peak)
}
