package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/scribe/internal/memory"
)

var repairCmd = &cobra.Command{
	Use:   "repair [path]",
	Short: "Rewrite a damaged memory file as a clean JSON array",
	Long: `Repair reads the memory file tolerantly, keeps a read-only copy of the
original bytes next to it (<path>.orig.bak), and rewrites the file as a JSON
array of the records that could be read. An existing backup is never
overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			path = cfg.Memory.Path
		}

		report, err := memory.Repair(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Repaired %s: %d records kept, %d lines dropped\nBackup: %s\n",
			report.Path, report.Records, report.Skipped, report.Backup)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(repairCmd)
}
