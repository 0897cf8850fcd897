package gamdl

import "strings"

const (
	TailKeep = 50
	TailShow = 10
)

// Tail keeps the most recent lines of process output.
type Tail struct {
	max   int
	lines []string
}

func NewTail(max int) *Tail {
	if max <= 0 {
		max = TailKeep
	}
	return &Tail{max: max, lines: make([]string, 0, max)}
}

func (t *Tail) Push(line string) {
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

func (t *Tail) Len() int { return len(t.lines) }

// Last returns up to n trailing lines joined with newlines.
func (t *Tail) Last(n int) string {
	if n > len(t.lines) {
		n = len(t.lines)
	}
	return strings.Join(t.lines[len(t.lines)-n:], "\n")
}
