// Command resonance is the CLI for the resonance substrate: append and query
// events, inspect memories and adaptations, measure dissonance, ask the
// mirrors for a reflection, and run the watch/monitor daemons.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adam-kernel/resonance-go/pkg/core"
	"github.com/adam-kernel/resonance-go/pkg/resonance"
)

var (
	flagDBPath  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "resonance",
		Short: "Event substrate and mirror daemons for a self-observing machine",
		Long: `resonance stores the machine's observations, reflections, and
adaptations in a shared SQLite stream, measures dissonance over the recent
window, and routes prompts to the Kain/Abel mirror personas.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagDBPath, "db", "",
		"path to the resonance database (default from RESONANCE_DB_PATH)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(
		newAppendCmd(),
		newQueryCmd(),
		newMemoriesCmd(),
		newAdaptationsCmd(),
		newDissonanceCmd(),
		newReflectCmd(),
		newWatchCmd(),
		newMonitorCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the CLI logger: human-readable, debug level when -v.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// newClient loads configuration, applies flag overrides, and opens an
// initialized client.
func newClient(cmd *cobra.Command) (*resonance.Client, *zap.Logger, error) {
	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if flagDBPath != "" {
		cfg.Store.DBPath = flagDBPath
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, err
	}

	client, err := resonance.New(cfg, resonance.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Initialize(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, logger, nil
}

// printf writes to the command's stdout.
func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
