// Command insights runs the blog server and its maintenance tasks.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/insights"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configPath string
	envFile    string
	cfg        insights.SiteConfig
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "insights - a blog publishing platform built with Go, Echo, and templ",
	Long: `insights serves a blog with categories, a curated sidebar, image uploads
and privacy-preserving page-view analytics, plus an admin console and JSON API.

Configuration comes from an optional YAML file (--config) overlaid by
environment variables; a .env file is loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		var err error
		cfg, err = insights.LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err = insights.NewLogger(cfg.LogLevel, cfg.LogFormat)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the insights version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "insights %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, initCmd, seedCmd, usersCmd, postsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured database for one-shot commands.
func openStore() (*insights.Store, error) {
	store, err := insights.NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DatabasePath, err)
	}
	return store, nil
}
