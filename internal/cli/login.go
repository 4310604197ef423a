package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/warboard/warboard/internal/api"
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in to the war-room server",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🔐 warboard Login")
		s := mustSession()

		var username string
		if len(args) == 1 {
			username = args[0]
		} else {
			fmt.Print("Username: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				fmt.Printf("Read error: %v\n", err)
				os.Exit(1)
			}
			username = strings.TrimSpace(line)
		}
		password, err := readPassword("Password: ")
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		result, err := s.client.Login(ctx, username, password)
		if err != nil {
			fmt.Printf("Login failed: %v\n", err)
			os.Exit(1)
		}
		if err := s.tokens.Save(result.Token, result.User.Username, result.User.Role); err != nil {
			fmt.Printf("Failed to save session: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Logged in as %s (%s)\n", result.User.Username, result.User.Role)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the local session",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		if s.tokens.Token() != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.client.Logout(ctx); err != nil && !errors.Is(err, api.ErrUnauthorized) {
				fmt.Printf("Server logout failed: %v\n", err)
			}
		}
		if err := s.tokens.Clear(); err != nil {
			fmt.Printf("Failed to clear session: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Logged out.")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in identity",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		user, err := s.client.CurrentUser(ctx)
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				_ = s.tokens.Clear()
				fmt.Println("Session expired. Run 'warboard login'.")
				os.Exit(1)
			}
			fmt.Printf("Failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s (%s)\n", user.Username, user.Role)
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change your password",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		oldPassword, err := readPassword("Current password: ")
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		newPassword, err := readPassword("New password: ")
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		confirm, err := readPassword("Repeat new password: ")
		if err != nil {
			fmt.Printf("Read error: %v\n", err)
			os.Exit(1)
		}
		if newPassword != confirm {
			fmt.Println("Passwords do not match.")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.client.ChangePassword(ctx, oldPassword, newPassword); err != nil {
			fmt.Printf("Failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Password changed.")
	},
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	// Piped input, e.g. in tests or scripts.
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
