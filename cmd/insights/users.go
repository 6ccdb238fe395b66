package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eringen/insights"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var (
	userEmail    string
	userName     string
	userPassword string
	userRole     string
)

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		role := insights.Role(strings.ToUpper(userRole))
		if role != insights.RoleAdmin && role != insights.RoleReader {
			return fmt.Errorf("unknown role %q (want ADMIN or READER)", userRole)
		}
		if len(userPassword) < 6 {
			return fmt.Errorf("password must be at least 6 characters")
		}
		hash, err := insights.HashPassword(userPassword)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		u, err := store.CreateUser(cmd.Context(), insights.User{
			Email:        userEmail,
			Name:         userName,
			Role:         role,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.Email, u.ID)
		return nil
	},
}

func init() {
	f := usersCreateCmd.Flags()
	f.StringVar(&userEmail, "email", "", "login email")
	f.StringVar(&userName, "name", "", "display name")
	f.StringVar(&userPassword, "password", "", "password (min 6 characters)")
	f.StringVar(&userRole, "role", string(insights.RoleAdmin), "ADMIN or READER")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("password")
	usersCmd.AddCommand(usersCreateCmd)
}
