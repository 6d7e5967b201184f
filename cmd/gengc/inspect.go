package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"gengc/internal/gc"
	"gengc/internal/testkit"
)

var headingColor = color.New(color.FgCyan, color.Bold)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] <snapshot.gcsnap>",
	Short: "Print the registry stored in a snapshot",
	Long: `Inspect restores a snapshot into a fresh collector, which rejects files
the engine could not have written, and prints the result. The debug format
is the dump gengc_debug_state produces for a live host.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}
		showObjects, err := cmd.Flags().GetBool("objects")
		if err != nil {
			return fmt.Errorf("failed to get objects flag: %w", err)
		}

		check, err := cmd.Flags().GetBool("check")
		if err != nil {
			return fmt.Errorf("failed to get check flag: %w", err)
		}

		snap, err := gc.ReadSnapshot(args[0])
		if err != nil {
			return err
		}
		if check {
			if err := testkit.CheckRegistryInvariants(snap); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
		}
		c, err := restoreRegistry(snap, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		switch strings.ToLower(format) {
		case "pretty":
			return renderRegistryPretty(out, c, showObjects)
		case "debug":
			if showObjects {
				c.SetDebugFlags(c.DebugFlags() | gc.FlagObjects | gc.FlagUncollectable)
			}
			return c.DebugState(out)
		case "json":
			return renderSnapshotJSON(out, snap)
		default:
			return fmt.Errorf("unsupported format %q (must be pretty, debug or json)", format)
		}
	},
}

func init() {
	inspectCmd.Flags().String("format", "pretty", "output format (pretty|debug|json)")
	inspectCmd.Flags().Bool("objects", false, "list every tracked object")
	inspectCmd.Flags().Bool("check", false, "fail if the registry violates its structural invariants")
}

// restoreRegistry loads s into a new collector whose debug lines go to
// debugOut.
func restoreRegistry(s *gc.Snapshot, debugOut io.Writer) (*gc.Collector, error) {
	c, err := gc.New(gc.DefaultConfig())
	if err != nil {
		return nil, err
	}
	c.SetDebugOutput(debugOut)
	if err := c.Restore(s); err != nil {
		return nil, err
	}
	return c, nil
}

type snapshotPayload struct {
	Enabled       bool                `json:"enabled"`
	Reachability  string              `json:"reachability"`
	Debug         string              `json:"debug"`
	Tracked       int                 `json:"tracked"`
	Generations   [3]int              `json:"generations"`
	Uncollectable int                 `json:"uncollectable"`
	Thresholds    [3]int              `json:"thresholds"`
	Counters      [3]int              `json:"counters"`
	Collections   [3]int              `json:"collections"`
	Collected     int                 `json:"collected"`
	Objects       []gc.SnapshotObject `json:"objects"`
	Garbage       []uint64            `json:"garbage"`
	References    []gc.SnapshotEdge   `json:"references"`
	Last          *gc.CollectReport   `json:"last,omitempty"`
}

func renderSnapshotJSON(out io.Writer, s *gc.Snapshot) error {
	st := s.Stats()
	payload := snapshotPayload{
		Enabled:       s.Enabled,
		Reachability:  s.Reachability,
		Debug:         s.Debug.String(),
		Tracked:       st.TotalTracked,
		Generations:   st.GenerationCounts,
		Uncollectable: st.Uncollectable,
		Thresholds:    s.Thresholds,
		Counters:      s.Counters,
		Collections:   s.Collections,
		Collected:     s.Collected,
		Objects:       s.Objects,
		Garbage:       s.Garbage,
		References:    s.References,
		Last:          s.Last,
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func renderRegistryPretty(out io.Writer, c *gc.Collector, showObjects bool) error {
	st := c.Stats()
	rows := [][2]string{
		{"enabled", fmt.Sprint(c.Enabled())},
		{"reachability", c.ReachabilityName()},
		{"debug", c.DebugFlags().String()},
		{"tracked", fmt.Sprint(st.TotalTracked)},
		{"generations", triple(st.GenerationCounts)},
		{"uncollectable", fmt.Sprint(st.Uncollectable)},
		{"thresholds", triple(c.Thresholds())},
		{"counters", triple(c.Counters())},
		{"collections", triple(c.CollectionCounts())},
		{"collected", fmt.Sprint(c.TotalCollected())},
		{"references", fmt.Sprint(c.References())},
	}
	fmt.Fprintln(out, headingColor.Sprint("== snapshot =="))
	writeRows(out, rows)

	if last, ok := c.LastReport(); ok {
		fmt.Fprintln(out, headingColor.Sprint("== last collection =="))
		writeRows(out, [][2]string{
			{"generation", fmt.Sprint(last.Generation)},
			{"scanned", fmt.Sprint(last.Scanned)},
			{"collected", fmt.Sprint(last.Collected)},
			{"uncollectable", fmt.Sprint(last.Uncollectable)},
			{"promoted", triple(last.Promoted)},
		})
		if len(last.Timings.Phases) > 0 {
			fmt.Fprint(out, indent(last.Timings.Summary(), "  "))
		}
	}

	if garbage := c.Garbage(); len(garbage) > 0 {
		fmt.Fprintln(out, headingColor.Sprint("== garbage =="))
		for _, id := range garbage {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}

	if !showObjects {
		return nil
	}
	fmt.Fprintln(out, headingColor.Sprint("== objects =="))
	ids, err := c.Objects(-1)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "  (empty)")
		return nil
	}
	for _, id := range ids {
		info, err := c.Info(id)
		if err != nil {
			return err
		}
		var flags []string
		if info.Finalizer {
			flags = append(flags, "finalizer")
		}
		if info.InGarbage {
			flags = append(flags, "garbage")
		}
		fmt.Fprintf(out, "  %-18s %s gen=%d refs=%d size=%d %s\n",
			id, runewidth.FillRight(runewidth.Truncate(info.TypeTag, 24, "…"), 24),
			info.Generation, info.Refcount, info.Size, strings.Join(flags, ","))
	}
	return nil
}

func triple(v [gc.NumGenerations]int) string {
	return fmt.Sprintf("%d %d %d", v[0], v[1], v[2])
}

func writeRows(out io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, runewidth.StringWidth(r[0]))
	}
	for _, r := range rows {
		fmt.Fprintf(out, "  %s  %s\n", runewidth.FillRight(r[0], width), r[1])
	}
}
