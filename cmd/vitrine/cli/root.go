package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/vitrinehq/vitrine/internal/config"
)

var (
	cfgFile    string
	envFile    string
	appVersion string // set in Execute, reported by the MCP server and version
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vitrine",
		Short: "Back office identity and session server for the Vitrine catalog",
		Long: `Vitrine: the back office identity core of the Vitrine catalog platform.

It authenticates administrators, issues short-lived access and long-lived refresh
credentials in cookies, throttles brute-force login attempts, enforces role
requirements and keeps an audit trail of administrative changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./vitrine.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading VITRINE_* variables")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.vitrine)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	// Variables already in the environment win over the dotenv file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vitrine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.vitrine")
	}

	viper.SetEnvPrefix("VITRINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	registerDefaults(viper.GetViper(), config.DefaultSettings())
	viper.ReadInConfig() // Ignore error - config file is optional
}

// registerDefaults declares every settings key on v so that environment
// variables are seen by Unmarshal even when no config file mentions the key.
func registerDefaults(v *viper.Viper, defaults config.Settings) {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaults(v, "", tree)
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadSettings builds the immutable process settings from defaults, the
// config file, the environment and bound flags. It does not validate.
func loadSettings() (config.Settings, error) {
	return settingsFrom(viper.GetViper())
}

func settingsFrom(v *viper.Viper) (config.Settings, error) {
	s := config.DefaultSettings()
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("parse configuration: %w", err)
	}
	if dataDir != "" {
		s.Database.DataDir = dataDir
	}
	if s.Database.Driver == config.DriverSQLite && s.Database.DSN == "" && s.Database.DataDir == "" {
		s.Database.DataDir = defaultDataDir()
	}
	return s, nil
}

// newLogger builds the process logger. dev forces debug level.
func newLogger(cfg config.LoggingSettings, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
