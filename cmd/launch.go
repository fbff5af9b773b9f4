package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"limeal.fr/mcboot/pkg/game/session"
	"limeal.fr/mcboot/pkg/utils"
)

var (
	username string
	memoryMB int
	quiet    bool
)

var launchCmd = &cobra.Command{
	Use:   "launch <version>",
	Short: "Install and launch a minecraft version",
	Long: `Install and launch a minecraft version.

Arguments:
  <version>  The id of the version to launch (e.g. "1.20.1").

The launch command downloads whatever the installation is missing, selects a
java runtime and runs the game until it exits. Ctrl+C cancels the launch
before the game starts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, pool, err := newService()
		if err != nil {
			return err
		}
		defer pool.Close()

		if memoryMB <= 0 {
			memoryMB = cfg.MemoryMB
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		bar := utils.NewBarProgress(os.Stderr, "Starting...")
		var result *session.Result
		for ev := range svc.Launch(ctx, session.LaunchRequest{
			VersionID: args[0],
			Username:  username,
			MemoryMB:  memoryMB,
		}) {
			switch ev.Kind {
			case session.EventStatus:
				bar.Describe(ev.Status)
			case session.EventProgress:
				bar.Percent(ev.Progress)
			case session.EventLog:
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), ev.Line)
				}
			case session.EventDone:
				result = ev.Result
			}
		}

		if result == nil {
			return errors.New("launch ended without a result")
		}
		switch result.Outcome {
		case session.OutcomeSuccess:
			bar.Finish()
			return nil
		case session.OutcomeCancelled:
			fmt.Fprintln(os.Stderr, "\nLaunch cancelled")
			return nil
		}
		fmt.Fprintln(os.Stderr)
		return errors.New(result.Message())
	},
}

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.Flags().StringVarP(&username, "username", "u", "Player", "The offline player name")
	launchCmd.Flags().IntVarP(&memoryMB, "memory", "m", 0, "Maximum heap in MB (defaults to the configured memory)")
	launchCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the game output")
}
