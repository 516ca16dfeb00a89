package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bessim/app"
)

var (
	inputPath string
	dynamic   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the configured battery over an input series",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, e *app.Engine) error {
			s, err := e.LoadSeries(inputPath)
			if err != nil {
				return err
			}
			res, err := e.Simulate(ctx, s, dynamic)
			if err != nil {
				return err
			}
			return emit(e.Config.Output, res)
		})
	},
}

func init() {
	simulateCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input series CSV (default: config input.path)")
	simulateCmd.Flags().BoolVar(&dynamic, "dynamic", false, "follow the request_mw column instead of the configured strategy")
	rootCmd.AddCommand(simulateCmd)
}
