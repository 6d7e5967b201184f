package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity. Each level admits every scope up to and
// including its widest scope.
type Level uint8

const (
	LevelOff    Level = iota // nothing
	LevelError               // nothing streamed; the ring is dumped on failure
	LevelPhase               // engine lifecycle and whole collections
	LevelDetail              // plus per-generation passes
	LevelDebug               // plus per-object decisions
)

var levelNames = [...]string{
	LevelOff:    "off",
	LevelError:  "error",
	LevelPhase:  "phase",
	LevelDetail: "detail",
	LevelDebug:  "debug",
}

// widest is the coarsest-to-finest cut-off per level; 0 admits nothing.
var widest = [...]Scope{
	LevelOff:    0,
	LevelError:  0,
	LevelPhase:  ScopeCollect,
	LevelDetail: ScopeGeneration,
	LevelDebug:  ScopeObject,
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the level names case-insensitively; "" means off.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LevelOff, nil
	}
	for l, n := range levelNames {
		if n == name {
			return Level(l), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|phase|detail|debug)", s)
}

// ShouldEmit reports whether events of scope are recorded at l.
func (l Level) ShouldEmit(scope Scope) bool {
	if int(l) >= len(widest) {
		return false
	}
	return scope != 0 && scope <= widest[l]
}
