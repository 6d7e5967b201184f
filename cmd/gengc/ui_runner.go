package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"gengc/internal/scenario"
	"gengc/internal/ui"
)

type replayOutcome struct {
	results []*scenario.Result
	err     error
}

// runReplayWithUI replays scenarios while a progress view renders their
// events. The view quits once the replays are done.
func runReplayWithUI(ctx context.Context, scenarios []*scenario.Scenario, jobs int) ([]*scenario.Result, error) {
	events := make(chan scenario.Event, 256)
	outcomeCh := make(chan replayOutcome, 1)

	go func() {
		results, err := scenario.ReplayAll(ctx, scenarios, jobs, scenario.ChannelSink{Ch: events})
		outcomeCh <- replayOutcome{results: results, err: err}
		close(events)
	}()

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	model := ui.NewProgressModel("replaying scenarios", names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// The view may quit early; keep the replays from blocking on a full channel.
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
