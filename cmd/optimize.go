package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bessim/app"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search the configured power and duration grid for the best sizing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *app.Engine) error {
			s, err := e.LoadSeries(inputPath)
			if err != nil {
				return err
			}
			res, err := e.Optimize(ctx, s)
			if err != nil {
				return err
			}
			return emit(e.Config.Output, res)
		})
	},
}

func init() {
	optimizeCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input series CSV (default: config input.path)")
	rootCmd.AddCommand(optimizeCmd)
}
