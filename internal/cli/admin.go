package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer users, prompts and backgrounds",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var adminUsersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()
		ctx, cancel := adminCtx()
		defer cancel()

		users, err := s.client.ListUsers(ctx)
		if err != nil {
			exitOnAPIError(s, err)
		}
		for _, u := range users {
			active := "active"
			if !u.IsActive {
				active = "disabled"
			}
			fmt.Printf("%-6d %-20s %-10s %s\n", u.ID, u.Username, u.Role, active)
		}
	},
}

var addUserRole string

var adminUsersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		password, err := readPassword("Password for new account: ")
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := adminCtx()
		defer cancel()
		user, err := s.client.CreateUser(ctx, args[0], password, addUserRole)
		if err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Printf("Created user %s (%s)\n", user.Username, user.Role)
	},
}

var adminUsersRemoveCmd = &cobra.Command{
	Use:   "rm <user-id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()
		ctx, cancel := adminCtx()
		defer cancel()
		if err := s.client.DeleteUser(ctx, args[0]); err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Println("User deleted.")
	},
}

var adminUsersResetCmd = &cobra.Command{
	Use:   "reset-password <user-id>",
	Short: "Set a new password on an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		password, err := readPassword("New password: ")
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := adminCtx()
		defer cancel()
		if err := s.client.ResetPassword(ctx, args[0], password); err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Println("Password reset.")
	},
}

var adminPromptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage agent role prompts",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var adminPromptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List role prompts",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()
		ctx, cancel := adminCtx()
		defer cancel()
		prompts, err := s.client.ListPrompts(ctx)
		if err != nil {
			exitOnAPIError(s, err)
		}
		for _, p := range prompts {
			fmt.Printf("%-16s %d chars\n", p.Role, len(p.Content))
		}
	},
}

var adminPromptsGetCmd = &cobra.Command{
	Use:   "get <role>",
	Short: "Print one role's prompt",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()
		ctx, cancel := adminCtx()
		defer cancel()
		prompt, err := s.client.GetPrompt(ctx, args[0])
		if err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Println(prompt.Content)
	},
}

var adminPromptsSetCmd = &cobra.Command{
	Use:   "set <role>",
	Short: "Replace one role's prompt with stdin",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := adminCtx()
		defer cancel()
		if err := s.client.UpdatePrompt(ctx, args[0], string(content)); err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Println("Prompt updated.")
	},
}

var adminBackgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Manage shared background documents",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var adminBackgroundGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print one background document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()
		ctx, cancel := adminCtx()
		defer cancel()
		bg, err := s.client.GetBackground(ctx, args[0])
		if err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Println(bg.Content)
	},
}

var adminBackgroundSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Replace one background document with stdin",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := adminCtx()
		defer cancel()
		if err := s.client.UpdateBackground(ctx, args[0], string(content)); err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Println("Background updated.")
	},
}

var adminModeCmd = &cobra.Command{
	Use:   "mode [auto|manual]",
	Short: "Show or set the server driving mode",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()
		ctx, cancel := adminCtx()
		defer cancel()

		if len(args) == 0 {
			mode, err := s.client.DrivingMode(ctx)
			if err != nil {
				exitOnAPIError(s, err)
			}
			fmt.Printf("Driving mode: %s\n", mode)
			return
		}
		if err := s.client.SetDrivingMode(ctx, args[0]); err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Printf("Driving mode set to %s\n", args[0])
	},
}

func adminCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func init() {
	adminUsersAddCmd.Flags().StringVar(&addUserRole, "role", "operator", "Account role (admin|operator|viewer)")

	adminUsersCmd.AddCommand(adminUsersListCmd)
	adminUsersCmd.AddCommand(adminUsersAddCmd)
	adminUsersCmd.AddCommand(adminUsersRemoveCmd)
	adminUsersCmd.AddCommand(adminUsersResetCmd)

	adminPromptsCmd.AddCommand(adminPromptsListCmd)
	adminPromptsCmd.AddCommand(adminPromptsGetCmd)
	adminPromptsCmd.AddCommand(adminPromptsSetCmd)

	adminBackgroundCmd.AddCommand(adminBackgroundGetCmd)
	adminBackgroundCmd.AddCommand(adminBackgroundSetCmd)

	adminCmd.AddCommand(adminUsersCmd)
	adminCmd.AddCommand(adminPromptsCmd)
	adminCmd.AddCommand(adminBackgroundCmd)
	adminCmd.AddCommand(adminModeCmd)
}
