package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fee-cli/internal/workbook"
)

var workbookCmd = &cobra.Command{
	Use:   "workbook",
	Short: "Inspect the reference workbook",
}

var workbookCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Verify the workbook's sheets and required columns",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Workbook.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return eris.New("workbook path is required")
		}

		rep, err := workbook.Check(path)
		if err != nil {
			return err
		}
		if err := writeOutput(os.Stdout, outputFormat, rep); err != nil {
			return err
		}
		if !rep.OK {
			return eris.Errorf("workbook: %s failed structural checks", path)
		}
		return nil
	},
}

func init() {
	workbookCmd.AddCommand(workbookCheckCmd)
	rootCmd.AddCommand(workbookCmd)
}
