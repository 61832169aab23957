package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		subject string
		all     bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write subject snapshots to the configured archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (subject == "") == !all {
				return errors.New("exactly one of --subject or --all is required")
			}
			svc, archive, cleanup, err := a.openBackends(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			out := cmd.OutOrStdout()
			if all {
				objs, err := svc.ExportAll(cmd.Context(), archive, limit)
				if err != nil {
					return err
				}
				for _, o := range objs {
					fmt.Fprintln(out, o.Key)
				}
				return nil
			}
			obj, err := svc.Export(cmd.Context(), subject, archive)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, obj.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject to export")
	cmd.Flags().BoolVar(&all, "all", false, "export every subject")
	cmd.Flags().IntVar(&limit, "limit", 0, "concurrent exports with --all")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "restore [snapshot-key]",
		Short: "Replace a subject's entries with an archived snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (subject == "") {
				return errors.New("give either a snapshot key or --subject for its latest snapshot")
			}
			svc, archive, cleanup, err := a.openBackends(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			var key string
			if len(args) == 1 {
				key = args[0]
			} else if key, err = svc.LatestSnapshot(cmd.Context(), archive, subject); err != nil {
				return err
			}
			snap, err := svc.Restore(cmd.Context(), archive, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s: %d entries from %s\n", snap.Subject, len(snap.Entries), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "restore this subject's latest snapshot")
	return cmd
}

func newLatestCmd(a *app) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the key of a subject's most recent snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, archive, cleanup, err := a.openBackends(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			key, err := svc.LatestSnapshot(cmd.Context(), archive, subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
