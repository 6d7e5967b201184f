package trace

import "time"

// Kind is what an event marks.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindHeartbeat: "heartbeat",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	// ScopeEngine covers lifecycle and configuration of a collector and
	// scenario replays.
	ScopeEngine Scope = iota + 1
	// ScopeCollect covers one admitted collection.
	ScopeCollect
	// ScopeGeneration covers the scan of a single generation.
	ScopeGeneration
	// ScopeObject covers decisions about one tracked object.
	ScopeObject
)

var scopeNames = [...]string{
	ScopeEngine:     "engine",
	ScopeCollect:    "collect",
	ScopeGeneration: "generation",
	ScopeObject:     "object",
}

func (s Scope) String() string {
	if s > 0 && int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return "unknown"
}

// Event is one trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // stamped by the receiving tracer
	Kind     Kind
	Scope    Scope
	SpanID   uint64 // 0 for points and heartbeats
	ParentID uint64 // 0 for roots
	GID      uint64 // emitting goroutine
	Name     string // e.g. "collect", "gen1", "collectable"
	Detail   string
	Extra    map[string]string
}
