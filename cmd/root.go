package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"mentionwatch/internal/config"
	"mentionwatch/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	appCfg  config.Config
)

// rootCmd is the base command called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "mentionwatch",
	Short:        "Cross-platform mention monitoring",
	Long:         "Track keywords across social, news, forum and review platforms, and analyze trends over the collected mentions.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

func initConfig() {
	cfg, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	appCfg = cfg
	logging.Setup(appCfg.App.LogLevel, appCfg.App.LogFormat)
}

// loadConfig reads the config file (if any), overlays MENTIONWATCH_* env
// vars, fills defaults and validates.
func loadConfig(v *viper.Viper, file string) (config.Config, error) {
	var cfg config.Config
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "$HOME/.config/mentionwatch", "configs"} {
			v.AddConfigPath(dir)
		}
	}
	v.SetEnvPrefix("MENTIONWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch err := v.ReadInConfig(); {
	case err == nil:
		slog.Debug("config loaded", "file", v.ConfigFileUsed())
	case errors.As(err, new(viper.ConfigFileNotFoundError)):
		// env and defaults only
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetConfig exposes the loaded configuration to subcommands.
func GetConfig() config.Config {
	return appCfg
}
