package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bosstimer/internal/app"
	"bosstimer/internal/display"
	"bosstimer/internal/timers"
	logx "bosstimer/pkg/logx"
)

func openWorkspace(ctx context.Context) (*app.Workspace, error) {
	return app.OpenWorkspace(ctx, cfgPath, logx.NewConsole("warn"))
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show saved entries with their next respawn",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()
		return display.Table(cmd.OutOrStdout(), ws.Rows())
	},
}

var addOpts timers.AddOptions

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an entry to the saved list",
	Example: `  bosstimer add --name "Fire Dragon" --minutes 90
  bosstimer add --name Golem --minutes 45 --seconds 30 --last 12:00:00`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		e := ws.Board.Add(addOpts)
		if err := e.Validate(); err != nil {
			return err
		}
		if err := ws.Save(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s (every %s, last %s)\n",
			e.Order, e.Name, e.Period(), e.LastTime)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <n>",
	Aliases: []string{"rm"},
	Short:   "Remove entry #n from the saved list",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("entry number %q: %w", args[0], err)
		}
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		e, err := ws.Board.Remove(n)
		if err != nil {
			return err
		}
		if err := ws.Save(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", e.Name)
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent alarms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		items, err := ws.RecentAlarms(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "No alarms yet")
			return nil
		}
		for _, it := range items {
			fmt.Fprintf(out, "%s  %-7s %s\n", it.At.Local().Format(time.DateTime), it.Kind, it.Name)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addOpts.Name, "name", "", "display name (default \"new boss\")")
	addCmd.Flags().IntVar(&addOpts.Minutes, "minutes", 0, "period minutes, 1..1440 (default 60)")
	addCmd.Flags().IntVar(&addOpts.Seconds, "seconds", 0, "period seconds, 0..59")
	addCmd.Flags().StringVar(&addOpts.LastTime, "last", "", "last respawn HH:MM:SS (default now)")
	addCmd.Flags().BoolVar(&addOpts.Disabled, "disabled", false, "add the entry disabled")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of alarms to show")
}
