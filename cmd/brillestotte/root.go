package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/brillestotte/internal/config"
	"github.com/gyeh/brillestotte/internal/exitcode"
	"github.com/gyeh/brillestotte/internal/logging"
)

var (
	configPath string
	dsnFlag    string
	logFormat  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "brillestotte",
	Short:         "Eyewear subsidy decisions and payouts for children",
	Long:          "Decides eyewear subsidy claims for children, records approved payments and batches them out to the disbursement channel.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", os.Getenv("BRILLE_CONFIG"), "Path to YAML config file (or set BRILLE_CONFIG)")
	pf.StringVar(&dsnFlag, "dsn", "", "Postgres connection string (overrides database.dsn / BRILLE_DATABASE_DSN)")
	pf.StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides log.format)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (overrides log.level)")
}

// setup loads configuration, applies flag overrides and builds the logger.
// Configuration errors exit with the usage code.
func setup() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(exitcode.UsageError)
	}
	if dsnFlag != "" {
		cfg.Database.DSN = dsnFlag
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logging.Setup(cfg.Log.Format, cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	return cfg, log
}

// fail logs err and exits with the code for its kind.
func fail(log zerolog.Logger, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	os.Exit(exitcode.ForError(err))
}
