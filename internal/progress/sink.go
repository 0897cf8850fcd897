package progress

// Sink receives best-effort progress lines. Implementations must not block
// for long; dropped lines are acceptable.
type Sink interface {
	Report(line string)
}

type SinkFunc func(line string)

func (f SinkFunc) Report(line string) { f(line) }

type discard struct{}

func (discard) Report(string) {}

// Discard drops every line.
var Discard Sink = discard{}

type throttled struct {
	next Sink
	gate *Throttle
}

// Throttled forwards only the lines the throttle admits.
func Throttled(next Sink, gate *Throttle) Sink {
	if next == nil {
		return Discard
	}
	return &throttled{next: next, gate: gate}
}

func (t *throttled) Report(line string) {
	if t.gate.Allow() {
		t.next.Report(line)
	}
}
