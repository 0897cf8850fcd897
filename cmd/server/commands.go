package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/yokitheyo/gamdlbot/internal/archive"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired download workspaces once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
		res := archive.SweepWorkspaces(cfg.OutputRoot, cfg.TempDirPrefix, cfg.Retention(), logger)
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s workspace(s) older than %s from %s, %d error(s)\n",
			humanize.Comma(int64(res.Removed)), cfg.Retention(), cfg.OutputRoot, res.Errors)
		if res.Errors > 0 {
			return fmt.Errorf("%d workspace(s) could not be removed", res.Errors)
		}
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the quality presets and the gamdl arguments they add",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tARGS")
		for _, p := range cfg.Presets {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Label, shellquote.Join(p.Args...))
		}
		return w.Flush()
	},
}
