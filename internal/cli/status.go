package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warboard/warboard/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ warboard Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and session status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 warboard Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (defaults in effect)")
			}
		}

		s := mustSession()
		fmt.Printf("Server:  %s\n", s.cfg.Server.BaseURL)

		sess := s.tokens.Current()
		if sess.Token == "" {
			fmt.Println("Session: ✗ Not logged in")
			return
		}
		fmt.Printf("Session: ✓ Logged in as %s\n", sess.Username)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.CheckAuth(ctx); err != nil {
			fmt.Println("Token:   ✗ Rejected by server (run 'warboard login')")
			return
		}
		fmt.Println("Token:   ✓ Valid")
	},
}
