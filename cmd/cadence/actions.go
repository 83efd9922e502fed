package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cadence/internal/models"
	"cadence/internal/orchestrator"
)

type actionSpec struct {
	use    string
	short  string
	action orchestrator.Action
}

var actionCommands = []actionSpec{
	{"run", "Run one full cycle: engagement, standalone post, thread", orchestrator.ActionAuto},
	{"standalone", "Publish one standalone post if due", orchestrator.ActionStandalone},
	{"thread", "Publish a thread if due", orchestrator.ActionThread},
	{"engage", "Reply to and quote fresh timeline posts", orchestrator.ActionEngage},
	{"test", "Post a test standalone then engage", orchestrator.ActionTest},
}

func newActionCmd(flags *rootFlags, spec actionSpec) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags, spec.action == orchestrator.ActionEngage)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.orch.RunAction(ctx, spec.action, orchestrator.Options{Force: flags.force, Topic: flags.topic})
			return printReport(cmd, report, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cycle report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, r models.CycleReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(out, "cycle %s: %d action(s), %d posted\n", r.ID, len(r.Actions), r.Posted())
	for _, a := range r.Actions {
		line := fmt.Sprintf(" - %-10s %s", a.Type, outcomeColor(a.Outcome)(fmt.Sprintf("%-7s", a.Outcome)))
		if a.TargetID != "" {
			line += " target=" + a.TargetID
		}
		switch {
		case len(a.ResultIDs) > 0:
			line += fmt.Sprintf(" ids=%v", a.ResultIDs)
		case a.ResultID != "":
			line += " id=" + a.ResultID
		}
		if a.Reason != "" {
			line += " (" + a.Reason + ")"
		}
		fmt.Fprintln(out, line)
	}
	if r.SaveErr != nil {
		fmt.Fprintln(out, color.YellowString("warning: state not saved: %v", r.SaveErr))
	}
	return nil
}

func outcomeColor(o models.Outcome) func(a ...interface{}) string {
	switch o {
	case models.OutcomePosted:
		return color.New(color.FgGreen).SprintFunc()
	case models.OutcomeSkipped:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgRed).SprintFunc()
	}
}
