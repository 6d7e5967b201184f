package gc

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// Flags selects debug output. The bit values are the ones hosts pass through
// the C surface.
type Flags uint32

const (
	FlagStats         Flags = 1 << iota // per-collection summary lines
	FlagCollectable                     // one line per collected object
	FlagUncollectable                   // one line per object sent to the garbage set
	FlagInstances                       // object table in DebugState
	FlagObjects                         // object table in DebugState
	FlagSaveAll                         // keep every unreachable object in the garbage set
	FlagLeak                            // FlagCollectable|FlagUncollectable|FlagSaveAll
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagStats, "stats"},
	{FlagCollectable, "collectable"},
	{FlagUncollectable, "uncollectable"},
	{FlagInstances, "instances"},
	{FlagObjects, "objects"},
	{FlagSaveAll, "saveall"},
	{FlagLeak, "leak"},
}

// String lists the set flags joined by '|', or "none".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	rest := f
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
			rest &^= fn.flag
		}
	}
	if rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// ParseFlags accepts flag names separated by '|' or ',' ("stats|leak"), or
// a decimal number.
func ParseFlags(s string) (Flags, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return Flags(n), nil
	}
	var out Flags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		found := false
		for _, fn := range flagNames {
			if fn.name == part {
				out |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown debug flag %q", part)
		}
	}
	return out, nil
}

// effective expands FlagLeak into the flags it implies.
func (f Flags) effective() Flags {
	if f&FlagLeak != 0 {
		f |= FlagCollectable | FlagUncollectable | FlagSaveAll
	}
	return f
}

// debugf queues a debug line. Callers hold c.mu.
func (c *Collector) debugf(format string, args ...any) {
	c.pending = append(c.pending, fmt.Sprintf(format, args...))
}

// takePending hands the queued lines to the caller. Callers hold c.mu.
func (c *Collector) takePending() []string {
	lines := c.pending
	c.pending = nil
	return lines
}

func writeLines(w io.Writer, lines []string) {
	if w == nil || len(lines) == 0 {
		return
	}
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	_, _ = io.WriteString(w, sb.String())
}

// DebugState writes a human-readable dump of the collector to w. The header
// section is always present; the object table needs FlagObjects or
// FlagInstances and the garbage list needs FlagUncollectable.
func (c *Collector) DebugState(w io.Writer) error {
	_, err := io.WriteString(w, c.RenderDebugState())
	return err
}

// RenderDebugState returns what DebugState writes. Colour follows
// color.NoColor, so the output is plain when it is not going to a terminal.
func (c *Collector) RenderDebugState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	heading := color.New(color.FgCyan, color.Bold).SprintFunc()
	flags := c.debug.effective()

	var sb strings.Builder
	sb.WriteString(heading("== gc state ==") + "\n")
	rows := [][2]string{
		{"enabled", strconv.FormatBool(c.enabled)},
		{"collecting", strconv.FormatBool(c.collecting.Load())},
		{"reachability", c.reach.Name()},
		{"debug", c.debug.String()},
		{"tracked", strconv.Itoa(len(c.headers))},
		{"generations", fmt.Sprintf("%d %d %d", c.gens[0].len(), c.gens[1].len(), c.gens[2].len())},
		{"counters", thresholdString(c.thr.count)},
		{"thresholds", thresholdString(c.thr.limit)},
		{"collections", thresholdString(c.collections)},
		{"collected", strconv.Itoa(c.collected)},
		{"uncollectable", strconv.Itoa(c.garbage.len())},
		{"references", strconv.Itoa(c.edges.count())},
	}
	keyWidth := 0
	for _, r := range rows {
		keyWidth = max(keyWidth, runewidth.StringWidth(r[0]))
	}
	for _, r := range rows {
		sb.WriteString("  " + runewidth.FillRight(r[0], keyWidth) + "  " + r[1] + "\n")
	}

	if flags&(FlagObjects|FlagInstances) != 0 {
		sb.WriteString(heading("== objects ==") + "\n")
		ids := make([]ID, 0, len(c.headers))
		for g := range c.gens {
			ids = append(ids, c.gens[g].ids()...)
		}
		c.writeObjectTable(&sb, ids)
	}
	if flags&FlagUncollectable != 0 {
		sb.WriteString(heading("== garbage ==") + "\n")
		c.writeObjectTable(&sb, c.garbage.ids())
	}
	return sb.String()
}

// writeObjectTable prints one aligned row per id. Callers hold c.mu.
func (c *Collector) writeObjectTable(sb *strings.Builder, ids []ID) {
	if len(ids) == 0 {
		sb.WriteString("  (empty)\n")
		return
	}
	header := []string{"id", "type", "gen", "refs", "size", "flags"}
	table := [][]string{header}
	for _, id := range ids {
		h, ok := c.headers[id]
		if !ok {
			continue
		}
		var marks []string
		if h.finalizer {
			marks = append(marks, "finalizer")
		}
		if h.inGarbage {
			marks = append(marks, "garbage")
		}
		sort.Strings(marks)
		table = append(table, []string{
			id.String(),
			h.typeTag,
			strconv.Itoa(h.generation),
			strconv.Itoa(h.refcount),
			strconv.Itoa(h.size),
			strings.Join(marks, ","),
		})
	}
	widths := make([]int, len(header))
	for _, row := range table {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range table {
		sb.WriteString(" ")
		for i, cell := range row {
			sb.WriteString(" ")
			if i == len(row)-1 {
				sb.WriteString(cell)
				continue
			}
			sb.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		sb.WriteString("\n")
	}
}
