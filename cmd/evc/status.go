package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the group's resumption pointers and event counts by state",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := openRun(ctx, "status", false)
		if err != nil {
			return err
		}
		defer env.Close()

		gs := env.collector.Group()
		counts, err := gs.CountByState(ctx)
		if err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		r := newStatusReport(gs.Group(), counts)
		if jsonOutput {
			return printStatusJSON(os.Stdout, r)
		}
		printStatus(os.Stdout, r)
		return nil
	},
}

// statusStates is the display order of the state counts.
var statusStates = []model.State{
	model.StatePending,
	model.StateRetryable,
	model.StateError,
	model.StateOK,
	model.StateWarning,
	model.StateDiscarded,
	model.StateObsolete,
}

type statusReport struct {
	Group               string              `json:"group"`
	RetryableEventID    int64               `json:"retryable_event_id"`
	LastExecutedEventID int64               `json:"last_executed_event_id"`
	RetryWindow         string              `json:"retry_window"`
	Origins             []string            `json:"origins"`
	Counts              map[model.State]int `json:"counts"`
	Total               int                 `json:"total"`
}

func newStatusReport(g *model.Group, counts map[model.State]int) statusReport {
	r := statusReport{
		Group:               g.Name,
		RetryableEventID:    g.RetryableEventID,
		LastExecutedEventID: g.LastExecutedEventID,
		RetryWindow:         g.RetryWindow.String(),
		Counts:              make(map[model.State]int, len(statusStates)),
	}
	for _, o := range g.Origins() {
		r.Origins = append(r.Origins, o.Name)
	}
	for _, s := range statusStates {
		r.Counts[s] = counts[s]
		r.Total += counts[s]
	}
	return r
}

func printStatusJSON(w io.Writer, r statusReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printStatus(w io.Writer, r statusReport) {
	fmt.Fprintf(w, "Group %s\n", ui.RenderAccent(r.Group))
	fmt.Fprintf(w, "  Origins:        %v\n", r.Origins)
	fmt.Fprintf(w, "  Retry window:   %s\n", r.RetryWindow)
	switch {
	case r.RetryableEventID != 0:
		fmt.Fprintf(w, "  Resumes at:     %s\n", ui.RenderState(model.StateRetryable, fmt.Sprintf("%d (retryable)", r.RetryableEventID)))
	case r.LastExecutedEventID != 0:
		fmt.Fprintf(w, "  Last executed:  %d\n", r.LastExecutedEventID)
	default:
		fmt.Fprintf(w, "  Last executed:  %s\n", ui.RenderMuted("none"))
	}
	fmt.Fprintln(w, "Events")
	for _, s := range statusStates {
		fmt.Fprintf(w, "  %-10s %s\n", string(s)+":", ui.RenderState(s, fmt.Sprint(r.Counts[s])))
	}
	fmt.Fprintf(w, "  %-10s %d\n", "total:", r.Total)
}
