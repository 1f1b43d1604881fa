package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/koba/flowsql/internal/database"
	"github.com/koba/flowsql/internal/engine"
)

var (
	configPath string
	dbFile     string
	driver     string
	traceSQL   bool
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flowsql",
	Short: "Schema-governed relational data access",
	Long: `A tool to declare tables and typed columns, migrate them online and read or
write rows through a small typed filter language.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", "", "SQLite database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "Database type: sqlite, mysql or postgres (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&traceSQL, "trace-sql", false, "Log every executed statement")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

// loadConfig layers the defaults, the config file, the environment and the
// command-line flags, in that order.
func loadConfig() (database.Config, error) {
	config := database.DefaultConfig()
	if configPath != "" {
		var err error
		config, err = database.LoadConfigFile(configPath)
		if err != nil {
			return config, err
		}
	}

	config, err := database.ApplyEnv(config)
	if err != nil {
		return config, fmt.Errorf("failed to load config: %w", err)
	}
	if dbFile != "" {
		config.Filename = dbFile
	}
	if driver != "" {
		config.Type, err = database.NormalizeType(driver)
		if err != nil {
			return config, err
		}
	}
	if traceSQL {
		config.TraceSQL = true
	}
	return config, nil
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		cfg.Encoding = "console"
	}
	return cfg.Build()
}

// openEngine connects an engine for the current flags. The returned cleanup
// closes it and flushes the logger.
func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	config, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	e, err := engine.New(config, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}
	if err := e.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cleanup := func() {
		e.Close()
		_ = logger.Sync()
	}
	return e, cleanup, nil
}
