package cmd

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wegman-software/osm2scs-go/internal/config"
	"github.com/wegman-software/osm2scs-go/internal/logger"
)

var (
	v          = viper.New()
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "osm2scs-go",
	Short: "Generate SCS map primitives from OpenStreetMap data",
	Long: `osm2scs-go turns an OSM extract into terrain tiles, road and railway
curves and building models placed in a local metric frame.

Features:
  - Fixed-topology terrain tiles draped on SRTM elevation data
  - Length-bounded road and railway segments following the ground
  - Extruded building solids with tag-derived heights
  - YAML filters and Lua hooks for appearance overrides
  - Parquet or PostGIS output

Settings are read from flags, OSM2SCS_* environment variables and an
optional config file, in that order of precedence.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Only the running command's flags are bound, so subcommands may
		// share flag names
		bindFlags(cmd.Flags())

		loaded, err := config.Load(v, configFile)
		if err != nil {
			logger.Init(false)
			exitWithError("failed to load configuration", err)
		}
		cfg = loaded

		// Initialize logger with optional file output
		logger.InitWithFile(cfg.Verbose, cfg.LogFile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	d := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&configFile, "config", "c", "", "Config file (YAML, JSON or TOML)")

	// Global flags
	flags.BoolP("verbose", "v", false, "Enable verbose output")
	flags.StringP("output-dir", "o", d.OutputDir, "Directory for Parquet output files")
	flags.IntP("workers", "j", d.Workers, "Number of concurrent elevation batches")

	// Logging and metrics flags
	flags.String("log-file", "", "Path to log file for persistent logging (JSON format)")
	flags.Duration("metrics-interval", d.MetricsInterval, "Interval for system metrics logging, 0 disables it")
	flags.String("metrics-file", "", "Write run metrics in Prometheus text format to this file")

	// Database flags (persistent so they're available to all subcommands)
	flags.String("db-host", d.DBHost, "PostgreSQL host")
	flags.Int("db-port", d.DBPort, "PostgreSQL port")
	flags.StringP("db-name", "d", d.DBName, "PostgreSQL database name")
	flags.StringP("db-user", "U", d.DBUser, "PostgreSQL user")
	flags.StringP("db-password", "W", d.DBPassword, "PostgreSQL password")
	flags.String("db-schema", d.DBSchema, "PostgreSQL schema")
}

// bindFlags binds every flag to the config key of the same name,
// with dashes turned into underscores
func bindFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			panic(err)
		}
	})
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
