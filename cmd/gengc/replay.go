package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gengc/internal/gc"
	"gengc/internal/scenario"
)

var (
	okLabel   = color.New(color.FgGreen, color.Bold)
	failLabel = color.New(color.FgRed, color.Bold)
	dimLabel  = color.New(color.Faint)
)

var replayCmd = &cobra.Command{
	Use:   "replay [flags] <scenario.toml|dir>...",
	Short: "Replay scenario files against fresh collectors",
	Long: `Replay loads each scenario file (directories contribute their *.toml
files) and runs its steps against a new collector, checking every expect
table along the way. Scenarios run concurrently, each on its own collector.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Int("jobs", 0, "max scenarios replayed at once (0 = all)")
	replayCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	replayCmd.Flags().Bool("timings", false, "print phase timings of each scenario's last collection")
	replayCmd.Flags().String("snapshot-dir", "", "write each final registry to <dir>/<scenario>.gcsnap")
}

func runReplay(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	progress, err := parseSwitch("ui", uiValue)
	if err != nil {
		return err
	}
	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	snapshotDir, err := cmd.Flags().GetString("snapshot-dir")
	if err != nil {
		return fmt.Errorf("failed to get snapshot-dir flag: %w", err)
	}

	paths, err := expandScenarioPaths(args)
	if err != nil {
		return err
	}
	scenarios := make([]*scenario.Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := scenario.Load(p)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	_, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var results []*scenario.Result
	var replayErr error
	if progress.enabledFor(os.Stdout) {
		results, replayErr = runReplayWithUI(cmd.Context(), scenarios, jobs)
	} else {
		results, replayErr = scenario.ReplayAll(cmd.Context(), scenarios, jobs, nil)
	}

	out := cmd.OutOrStdout()
	failed := failedScenario(replayErr)
	for i, s := range scenarios {
		printResult(out, s, results[i], failed, showTimings)
	}
	if replayErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", failLabel.Sprint("error:"), replayErr)
		return replayErr
	}

	if snapshotDir != "" {
		for _, res := range results {
			path := filepath.Join(snapshotDir, snapshotFileName(res.Name))
			if err := gc.WriteSnapshot(path, res.Snapshot); err != nil {
				return fmt.Errorf("write snapshot for %s: %w", res.Name, err)
			}
			fmt.Fprintf(out, "%s %s\n", dimLabel.Sprint("snapshot"), path)
		}
	}
	return nil
}

func printResult(out io.Writer, s *scenario.Scenario, res *scenario.Result, failed string, showTimings bool) {
	switch {
	case res != nil && res.Snapshot != nil:
		fmt.Fprintf(out, "%s %s  %d steps, %d collected, tracked=%d gen=[%d %d %d] uncollectable=%d  %s\n",
			okLabel.Sprint("ok  "), s.Name, res.Steps, res.Collected,
			res.Stats.TotalTracked,
			res.Stats.GenerationCounts[0], res.Stats.GenerationCounts[1], res.Stats.GenerationCounts[2],
			res.Stats.Uncollectable,
			dimLabel.Sprintf("%.2fms", toMillis(res.Elapsed.Nanoseconds())))
		if showTimings && len(res.Report.Timings.Phases) > 0 {
			fmt.Fprint(out, indent(res.Report.Timings.Summary(), "    "))
		}
	case s.Name == failed:
		fmt.Fprintf(out, "%s %s\n", failLabel.Sprint("FAIL"), s.Name)
	default:
		fmt.Fprintf(out, "%s %s\n", dimLabel.Sprint("skip"), s.Name)
	}
}

func failedScenario(err error) string {
	var serr *scenario.StepError
	if errors.As(err, &serr) {
		return serr.Scenario
	}
	return ""
}

// expandScenarioPaths resolves arguments to scenario files. Directories are
// scanned (non-recursively) for *.toml files in lexical order.
func expandScenarioPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.toml"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no *.toml scenarios", arg)
		}
		sort.Strings(matches)
		paths = append(paths, matches...)
	}
	return paths, nil
}

func snapshotFileName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
	return clean + ".gcsnap"
}

func indent(text, prefix string) string {
	lines := strings.SplitAfter(text, "\n")
	var sb strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		sb.WriteString(prefix)
		sb.WriteString(line)
	}
	return sb.String()
}

func toMillis(ns int64) float64 {
	return float64(ns) / 1_000_000.0
}
