package session

import (
	"sync"

	"limeal.fr/mcboot/pkg/game/launcher"
)

type EventKind int

const (
	EventStatus EventKind = iota
	EventProgress
	EventLog
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventProgress:
		return "progress"
	case EventLog:
		return "log"
	case EventDone:
		return "done"
	}
	return "unknown"
}

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Result terminates the event stream of a launch.
type Result struct {
	Outcome  Outcome
	Kind     ErrorKind
	Err      error
	ExitCode int
	Plan     *launcher.Plan
}

func (r *Result) Message() string {
	if r.Err == nil {
		return string(r.Outcome)
	}
	return r.Err.Error()
}

type Event struct {
	Kind     EventKind
	Status   string
	Progress int
	Line     string
	Result   *Result
}

// emitter serializes events onto a launch stream and keeps progress from
// going backwards.
type emitter struct {
	mu   sync.Mutex
	ch   chan<- Event
	last int
}

func newEmitter(ch chan<- Event) *emitter {
	return &emitter{ch: ch, last: -1}
}

func (e *emitter) status(s string) {
	e.ch <- Event{Kind: EventStatus, Status: s}
}

func (e *emitter) log(line string) {
	e.ch <- Event{Kind: EventLog, Line: line}
}

func (e *emitter) progress(p int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p = min(max(p, 0), 100)
	if p <= e.last {
		return
	}
	e.last = p
	e.ch <- Event{Kind: EventProgress, Progress: p}
}

func (e *emitter) done(r *Result) {
	e.ch <- Event{Kind: EventDone, Result: r}
}
