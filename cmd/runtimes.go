package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runtimesCmd = &cobra.Command{
	Use:   "runtimes",
	Short: "List the java runtimes found on this machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, pool, err := newService()
		if err != nil {
			return err
		}
		defer pool.Close()

		rts := svc.Runtimes(cmd.Context())
		out := cmd.OutOrStdout()
		if rts.Len() == 0 {
			fmt.Fprintln(out, "No java runtime found")
			return nil
		}

		host, hasHost := rts.Host()
		for _, rt := range rts.All() {
			marker := ""
			if hasHost && rt.Path == host.Path {
				marker = " (default)"
			}
			fmt.Fprintf(out, "java %d\t%s\t%s%s\n", rt.Major, rt.Version, rt.Path, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runtimesCmd)
}
