package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eringen/insights"
	"github.com/eringen/insights/scaffold"
)

var (
	seedFile      string
	adminEmail    string
	adminName     string
	adminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the admin user and load categories, resources and posts",
	Long: `seed upserts the admin account and loads a YAML seed document. Without
--file the built-in starter content is used. Running it twice is safe: existing
posts are skipped and resources are only added to an empty list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flag defaults are resolved here so values from --env-file apply.
		adminEmail = flagOrEnv(adminEmail, "ADMIN_EMAIL", "admin@example.com")
		adminName = flagOrEnv(adminName, "ADMIN_NAME", "Admin")
		adminPassword = flagOrEnv(adminPassword, "ADMIN_PASSWORD", "")
		if adminPassword == "" {
			return fmt.Errorf("admin password required: set --admin-password or ADMIN_PASSWORD")
		}
		raw, err := seedSource()
		if err != nil {
			return err
		}
		data, err := insights.ParseSeed(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		data.Users = append([]insights.SeedUser{{
			Email:    adminEmail,
			Name:     adminName,
			Password: adminPassword,
			Role:     insights.RoleAdmin,
		}}, data.Users...)

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		svc := insights.NewService(store, nil, nil, logger)
		report, err := svc.Seed(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d categories, %d resources, %d posts\n",
			report.Users, report.Categories, report.Resources, report.Posts)
		return nil
	},
}

func seedSource() ([]byte, error) {
	if seedFile != "" {
		return os.ReadFile(seedFile)
	}
	return scaffold.Render("seed.yaml", scaffold.Data{
		SiteName:   cfg.Name,
		SiteURL:    cfg.URL,
		AdminEmail: adminEmail,
	})
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML seed document (default: built-in starter content)")
	seedCmd.Flags().StringVar(&adminEmail, "admin-email", "", "admin account email (env ADMIN_EMAIL)")
	seedCmd.Flags().StringVar(&adminName, "admin-name", "", "admin display name (env ADMIN_NAME)")
	seedCmd.Flags().StringVar(&adminPassword, "admin-password", "", "admin account password (env ADMIN_PASSWORD)")
}

func flagOrEnv(flag, key, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
