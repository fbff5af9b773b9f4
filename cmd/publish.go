package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"limeal.fr/mcboot/pkg/connectors"
	"limeal.fr/mcboot/pkg/game/folder"
	"limeal.fr/mcboot/pkg/utils"
)

var publishCmd = &cobra.Command{
	Use:   "publish <uri>",
	Short: "Publish the installation to a mirror",
	Long: `Publish the installation to a mirror.

Arguments:
  <uri>  The mirror to publish to (file://, sftp:// or s3://).

The publish command uploads the versions, libraries and assets of the
installation, rewrites the version documents to point at the mirror and
writes a catalog at its root. Point manifest_url at that catalog to install
from the mirror.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri := args[0]
		connector := connectors.FindConnectorFromURI(uri)
		if connector == nil {
			fmt.Fprintln(os.Stderr, "❌ The uri provided is not valid")
			fmt.Fprintln(os.Stderr, "[Format] <scheme>://<path>")
			return fmt.Errorf("no connector for %s", uri)
		}

		inst, err := folder.Open(cfg.Dir)
		if err != nil {
			return err
		}

		if err := connector.Connect(); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", connector.GetURI(), err)
		}
		defer connector.Close()

		bar := utils.NewBarProgress(os.Stderr, "Publishing")
		report, err := inst.Publish(connector, uri, bar.Callback())
		if err != nil {
			return err
		}
		bar.Finish()

		fmt.Fprintf(cmd.OutOrStdout(), "\nPublished %d versions: %d files uploaded, %d already present\n",
			len(report.Versions), report.Uploaded, report.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
