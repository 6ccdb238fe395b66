package main

import (
	"github.com/spf13/cobra"

	"github.com/eringen/insights"
	"github.com/eringen/insights/views"
)

var staticDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the public site, admin console and JSON API on the configured
address. SESSION_SECRET must be set. The server shuts down gracefully on
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := insights.New(cfg, views.New(),
			insights.WithLogger(logger),
			insights.WithStaticDir(staticDir),
		)
		return app.Start()
	},
}

func init() {
	serveCmd.Flags().StringVar(&staticDir, "static", "public", "directory for static assets and uploads")
}
