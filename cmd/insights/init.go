package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eringen/insights/scaffold"
)

var initData scaffold.Data

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter config.yaml, .env.example and seed.yaml",
	Args:  cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		created, err := scaffold.Write(dir, initData)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, path := range created {
			fmt.Fprintf(out, "  created %s\n", path)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Next steps:")
		fmt.Fprintln(out, "  cp .env.example .env   # then set SESSION_SECRET and ADMIN_PASSWORD")
		fmt.Fprintln(out, "  insights seed")
		fmt.Fprintln(out, "  insights serve -c config.yaml")
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initData.SiteName, "name", "", "site name")
	initCmd.Flags().StringVar(&initData.SiteURL, "url", "", "canonical site URL")
	initCmd.Flags().StringVar(&initData.AdminEmail, "admin-email", "", "email of the seeded admin")
}
