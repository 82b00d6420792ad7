package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/arbengine/config"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbengine",
	Short: "Flash-loan arbitrage execution engine",
	Long: `arbengine polls an arbitrage opportunity feed, filters candidates by
profit and slippage, and executes accepted ones as signed transaction bundles
through a Flashbots relay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ConfigError marks a failure to load or validate the configuration
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// ExitCode maps the result of Execute to a process exit status
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.As(err, &cfgErr):
		return 2
	default:
		return 1
	}
}

// ExecuteContext runs the command line; ctx is canceled on shutdown signals
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads the configuration named by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}
