package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bosstimer/internal/app"
)

var noInput bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the timer daemon",
	Long: `Run evaluates every entry once per tick, plays the warning and alarm
sounds, shows banners and accepts commands on stdin (type "help").
Entries are saved on exit and by the autosave schedule.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var in io.Reader = os.Stdin
		if noInput {
			in = nil
		}
		a, err := app.NewApp(app.Options{
			ConfigPath: cfgPath,
			Version:    version,
			In:         in,
			Out:        cmd.OutOrStdout(),
		})
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}

		reason := app.StopSignal
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatal
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, reason)
		if reason == app.StopFatal {
			return a.Err()
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&noInput, "no-input", false, "do not read commands from stdin (for services)")
}
