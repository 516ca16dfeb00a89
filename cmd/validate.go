package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bessim/app"
	"github.com/kilianp07/bessim/pkg/export"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured battery against the catalog and sizing limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *app.Engine) error {
			report := e.Validate()
			if err := emit(e.Config.Output, export.NewReport(e.Config.Battery, report)); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("configuration is invalid")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
