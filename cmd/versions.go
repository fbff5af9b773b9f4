package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"limeal.fr/mcboot/pkg/game/catalog"
	"limeal.fr/mcboot/pkg/game/version"
)

var (
	versionsChannel string
	versionsLimit   int
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the versions of the catalog",
	Long: `List the versions of the catalog, grouped by channel.

Versions that need a newer java runtime than any installed one are marked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, pool, err := newService()
		if err != nil {
			return err
		}
		defer pool.Close()

		ctx := cmd.Context()
		list, err := svc.ListVersions(ctx)
		if err != nil {
			return err
		}
		highest := svc.Runtimes(ctx).Highest()
		c := catalog.New(list)

		out := cmd.OutOrStdout()
		for _, ch := range catalog.Channels {
			if versionsChannel != "" && string(ch) != versionsChannel {
				continue
			}
			entries := c.ByChannel(ch)
			if len(entries) == 0 {
				continue
			}
			fmt.Fprintf(out, "%s (%d)\n", ch, len(entries))
			for i, v := range entries {
				if versionsLimit > 0 && i >= versionsLimit {
					fmt.Fprintf(out, "  ... %d more\n", len(entries)-i)
					break
				}
				if need := version.RequiredRuntimeForID(v.ID); need > highest {
					fmt.Fprintf(out, "  %s (needs java %d)\n", v.ID, need)
				} else {
					fmt.Fprintf(out, "  %s\n", v.ID)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.Flags().StringVar(&versionsChannel, "channel", "", "Only list one channel (release, snapshot, old_beta, old_alpha)")
	versionsCmd.Flags().IntVarP(&versionsLimit, "limit", "n", 0, "Maximum versions listed per channel, 0 for all")
}
