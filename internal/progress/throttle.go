package progress

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	DefaultInterval = 2 * time.Second
	MaxSummaryLen   = 200
)

// Throttle admits at most one update per interval. The first update after
// creation is always admitted. Allow never blocks.
type Throttle struct {
	mu  sync.Mutex
	lim *rate.Limiter
	now func() time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{
		lim: rate.NewLimiter(rate.Every(interval), 1),
		now: time.Now,
	}
}

func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lim.AllowN(t.now(), 1)
}

// Summarize collapses whitespace and caps the line for display.
func Summarize(line string) string {
	s := strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(s) <= MaxSummaryLen {
		return s
	}
	r := []rune(s)
	return string(r[:MaxSummaryLen])
}
