package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/observability"
)

var cfgFile string

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "argonaut",
	Short:   "Argonaut runs a staged research reasoning pipeline over a typed knowledge graph.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "argonaut"})
			return err
		}
		loadedConfig = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting argonaut", zap.String("version", Version))
		return nil
	},
}

// loadedConfig is populated by PersistentPreRunE and read by subcommands.
var loadedConfig *config.Config

// Execute runs the root command with the context passed from main for
// graceful shutdown.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			if ctx.Err() == nil {
				logger.Error("Command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads the config file and ARGONAUT_ environment variables.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ARGONAUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind the credentials explicitly; the short names are the ones users
	// actually export.
	_ = viper.BindEnv("llm.api_key", "ARGONAUT_OPENAI_API_KEY", "ARGONAUT_LLM_API_KEY")
	_ = viper.BindEnv("search.api_key", "ARGONAUT_TAVILY_API_KEY", "ARGONAUT_SEARCH_API_KEY")
	_ = viper.BindEnv("postgres.url", "ARGONAUT_DATABASE_URL", "ARGONAUT_POSTGRES_URL")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
