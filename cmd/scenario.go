package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bessim/core/model"
	"github.com/kilianp07/bessim/core/simulation"
	"github.com/kilianp07/bessim/infra/logger"
	"github.com/kilianp07/bessim/qa/scenarios"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario FILE...",
	Short: "Run scenario files and check their expectations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScenarios,
}

func init() {
	rootCmd.AddCommand(scenarioCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	log := logger.New("scenario", logger.Config{})
	sim := simulation.New(model.DefaultCatalog(), log)
	failed := 0
	for _, path := range args {
		sc, err := scenarios.Load(path)
		if err != nil {
			return err
		}
		_, violations, err := scenarios.Run(cmd.Context(), sim, sc)
		if err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		if len(violations) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s\n", sc.Name)
			continue
		}
		failed++
		fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n", sc.Name)
		for _, v := range violations {
			fmt.Fprintf(cmd.OutOrStdout(), "     %s\n", v)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
	}
	return nil
}
