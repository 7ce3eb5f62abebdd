// Package cmd implements the progress-scraper command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const defaultConfigPath = "config.yml"

var rootCmd = &cobra.Command{
	Use:   "progress-scraper",
	Short: "Scrape e-learning progress into PostgreSQL",
	Long: `progress-scraper logs into the e-learning platform with a headless browser,
walks every path, training and step, downloads step contents and upserts the
result into PostgreSQL.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	// Load .env early so viper sees its variables.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindEnv("config", "CONFIG_PATH")
	_ = viper.BindEnv("debug", "APP_DEBUG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(
		newScrapeCommand(),
		newMigrateCommand(),
		newContentsCommand(),
		newStatusCommand(),
		newVersionCommand(),
	)
}

// loadConfig resolves the config path from flags or environment, loads it
// and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.GetConfigPath(defaultConfigPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if viper.GetBool("debug") {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	return cfg, nil
}

// setup loads the config, builds the logger and stores it in the command
// context for everything the command runs.
func setup(cmd *cobra.Command) (*config.Config, context.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger.WithContext(cmd.Context(), log), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "progress-scraper version %s\n", Version)
		},
	}
}
