package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bosstimer/internal/audio"
)

var checkUpdateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Compare the running version with the latest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		c, err := ws.Checker(version)
		if err != nil {
			return err
		}
		res, err := c.Check(cmd.Context(), version)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Available {
			fmt.Fprintf(out, "Update available: %s (running %s)\n", res.Latest, res.Current)
		} else {
			fmt.Fprintf(out, "Up to date (%s, latest %s)\n", res.Current, res.Latest)
		}
		return nil
	},
}

var testSoundCmd = &cobra.Command{
	Use:   "test-sound",
	Short: "Play the warning clip, then the alarm clip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ws, err := openWorkspace(cmd.Context())
		if err != nil {
			return err
		}
		defer ws.Close()

		ctx := cmd.Context()
		p := ws.Player(cmd.OutOrStdout())
		defer p.Stop()

		for i, clip := range []audio.Clip{audio.ClipWarning, audio.ClipAlarm} {
			if i > 0 {
				if err := sleep(ctx, 2*time.Second); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Playing %s...\n", clip)
			if err := p.Play(ctx, clip); err != nil {
				return err
			}
		}
		// Let the alarm clip finish.
		deadline := time.Now().Add(30 * time.Second)
		for p.IsPlaying() && time.Now().Before(deadline) {
			if err := sleep(ctx, 100*time.Millisecond); err != nil {
				return err
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
