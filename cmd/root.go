package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/config"
)

var (
	cfg          *config.Config
	outputFormat string
	workbookFlag string
)

var rootCmd = &cobra.Command{
	Use:   "fee-cli",
	Short: "EIS fee letter preparation",
	Long:  "Resolves investors, companies and fee rows from the reference workbook, calculates fees deterministically and runs the compliance gate before a letter is issued.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if workbookFlag != "" {
			cfg.Workbook.Path = workbookFlag
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "json", "output format (json, yaml)")
	rootCmd.PersistentFlags().StringVar(&workbookFlag, "workbook", "", "reference workbook path (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
