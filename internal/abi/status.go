// Package abi is the process-wide surface exported to C hosts. Every
// operation answers with a Status (or a plain value with a sentinel), never
// with a Go error, and never panics across the boundary. cmd/libgengc only
// converts C types; all behaviour lives here so it can be tested in Go.
package abi

import (
	"fmt"

	"fortio.org/safecast"

	"gengc/internal/gc"
)

// Status is the return code every C entry point uses.
type Status int32

const (
	StatusSuccess              Status = 0
	StatusAlreadyTracked       Status = -1
	StatusNotTracked           Status = -2
	StatusCollectionInProgress Status = -3
	StatusInvalidGeneration    Status = -4
	StatusInternal             Status = -5
)

// String returns the C enumerator name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "GENGC_SUCCESS"
	case StatusAlreadyTracked:
		return "GENGC_ERROR_ALREADY_TRACKED"
	case StatusNotTracked:
		return "GENGC_ERROR_NOT_TRACKED"
	case StatusCollectionInProgress:
		return "GENGC_ERROR_COLLECTION_IN_PROGRESS"
	case StatusInvalidGeneration:
		return "GENGC_ERROR_INVALID_GENERATION"
	case StatusInternal:
		return "GENGC_ERROR_INTERNAL"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// StatusOf maps an engine error onto its status code.
func StatusOf(err error) Status {
	switch gc.CodeOf(err) {
	case 0:
		return StatusSuccess
	case gc.CodeAlreadyTracked:
		return StatusAlreadyTracked
	case gc.CodeNotTracked:
		return StatusNotTracked
	case gc.CodeCollectionInProgress:
		return StatusCollectionInProgress
	case gc.CodeInvalidGeneration:
		return StatusInvalidGeneration
	default:
		return StatusInternal
	}
}

// Stats mirrors gengc_stats_t.
type Stats struct {
	TotalTracked     int32
	GenerationCounts [gc.NumGenerations]int32
	Uncollectable    int32
}

func toStats(s gc.Stats) (Stats, error) {
	var out Stats
	var err error
	if out.TotalTracked, err = safecast.Conv[int32](s.TotalTracked); err != nil {
		return Stats{}, err
	}
	for g, n := range s.GenerationCounts {
		if out.GenerationCounts[g], err = safecast.Conv[int32](n); err != nil {
			return Stats{}, err
		}
	}
	if out.Uncollectable, err = safecast.Conv[int32](s.Uncollectable); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// count32 converts a count for an int32 getter; counts that do not fit are
// reported as -1 like any other failure.
func count32(n int) int32 {
	v, err := safecast.Conv[int32](n)
	if err != nil {
		return -1
	}
	return v
}

// fill writes s and a terminating NUL into buf. A buffer too small for both
// fails with StatusInternal and is left holding an empty string.
func fill(buf []byte, s string) Status {
	if len(buf) < len(s)+1 {
		if len(buf) > 0 {
			buf[0] = 0
		}
		return StatusInternal
	}
	copy(buf, s)
	buf[len(s)] = 0
	return StatusSuccess
}

// fillIDs copies ids into out and returns how many there are. When out is
// too short nothing is copied and StatusInternal is returned alongside the
// length needed, so a caller can retry with a larger buffer.
func fillIDs(out []uintptr, ids []gc.ID) (int, Status) {
	if len(out) < len(ids) {
		return len(ids), StatusInternal
	}
	for i, id := range ids {
		out[i] = uintptr(id)
	}
	return len(ids), StatusSuccess
}
