package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"timelines/internal/core"
	"timelines/internal/infra/persistence/memory"
	"timelines/internal/scenario"
	"timelines/pkg/period"
	"timelines/pkg/timeline"
)

// replayScenario loads path and replays it into a fresh in-memory service.
// The --policy flag wins over the scenario's policy, which wins over the
// configured one.
func (a *app) replayScenario(cmd *cobra.Command, path string) (*core.Service, scenario.Scenario, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, scenario.Scenario{}, err
	}
	policy := a.cfg.TimelinePolicy()
	if a.policy == "" && sc.Policy != "" {
		if policy, err = timeline.ParsePolicy(sc.Policy); err != nil {
			return nil, scenario.Scenario{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	svc := a.service(memory.NewStore(), policy)
	if err := sc.Replay(cmd.Context(), svc); err != nil {
		return nil, scenario.Scenario{}, err
	}
	a.logger.Debug("scenario replayed", "path", path, "subject", sc.Subject, "steps", len(sc.Steps), "policy", policy.String())
	return svc, sc, nil
}

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Replay a scenario and print the resulting entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, sc, err := a.replayScenario(cmd, args[0])
			if err != nil {
				return err
			}
			entries, err := svc.Entries(cmd.Context(), sc.Subject)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintln(out, e.String())
			}
			return nil
		},
	}
}

func newGapsCmd(a *app) *cobra.Command {
	var key, from, to string
	cmd := &cobra.Command{
		Use:   "gaps <scenario.yaml>",
		Short: "Print the uncovered periods of one timeline within a bound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bound, err := period.Parse(from, to)
			if err != nil {
				return err
			}
			if !bound.IsValid() {
				return fmt.Errorf("--from %s is after --to %s", from, to)
			}
			svc, sc, err := a.replayScenario(cmd, args[0])
			if err != nil {
				return err
			}
			gaps, err := svc.Gaps(cmd.Context(), sc.Subject, key, bound)
			if err != nil {
				return err
			}
			for _, g := range gaps {
				fmt.Fprintln(cmd.OutOrStdout(), g.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "timeline key")
	cmd.Flags().StringVar(&from, "from", "", "first date of the bound (yyyy-mm-dd)")
	cmd.Flags().StringVar(&to, "to", "", "last date of the bound; empty means open ended")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newAsOfCmd(a *app) *cobra.Command {
	var key, date string
	cmd := &cobra.Command{
		Use:   "asof <scenario.yaml>",
		Short: "Print the entries in effect on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := period.ParseDate(date)
			if err != nil {
				return err
			}
			svc, sc, err := a.replayScenario(cmd, args[0])
			if err != nil {
				return err
			}
			keys := []string{key}
			if key == "" {
				if keys, err = svc.Keys(cmd.Context(), sc.Subject); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				e, ok, err := svc.AsOf(cmd.Context(), sc.Subject, k, when)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(out, "%s none\n", k)
					continue
				}
				fmt.Fprintln(out, e.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "effective date (yyyy-mm-dd)")
	cmd.Flags().StringVar(&key, "key", "", "timeline key; every key when empty")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
