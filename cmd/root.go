package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bessim/app"
	"github.com/kilianp07/bessim/config"
	"github.com/kilianp07/bessim/infra/logger"
	"github.com/kilianp07/bessim/pkg/export"
)

var (
	cfgPath    string
	outputPath string
	format     string
)

var rootCmd = &cobra.Command{
	Use:           "bessim",
	Short:         "Battery storage dispatch simulation and sizing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output file (default: config output.path or stdout)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "", "output format: json or csv (default: config output.format)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// withEngine loads the configuration, builds an engine and hands both to fn
// with a context cancelled on SIGINT or SIGTERM.
func withEngine(fn func(ctx context.Context, e *app.Engine) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.New("main", cfg.Logging).Errorf("engine close: %v", err)
		}
	}()
	return fn(ctx, e)
}

// emit writes v using the flag values, falling back to the output section.
func emit(out config.OutputConfig, v any) (err error) {
	path, fmtName := out.Path, out.Format
	if outputPath != "" {
		path = outputPath
	}
	if format != "" {
		fmtName = format
	}
	var w io.Writer = os.Stdout
	if path != "" {
		f, cerr := os.Create(path)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return export.Write(w, fmtName, v)
}
