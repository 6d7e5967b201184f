package scenario

import "time"

// Status captures where a scenario replay is.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports replay progress for one scenario. Step is 1-based; it is 0
// for queued and final events.
type Event struct {
	Scenario string
	Step     int
	Total    int
	Op       Op
	Status   Status
	Err      error
	Elapsed  time.Duration
}

// Sink consumes progress events. Replays running concurrently call it from
// several goroutines.
type Sink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- ev
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(ev Event) { f(ev) }

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
