package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/warboard/warboard/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		" __      ____ _ _ __| |__   ___   __ _ _ __ __| |\n" +
		" \\ \\ /\\ / / _` | '__| '_ \\ / _ \\ / _` | '__/ _` |\n" +
		"  \\ V  V / (_| | |  | |_) | (_) | (_| | | | (_| |\n" +
		"   \\_/\\_/ \\__,_|_|  |_.__/ \\___/ \\__,_|_|  \\__,_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "warboard",
	Short: "warboard - SOC war-room console",
	Long:  color.CyanString(logo) + "\nA terminal console for SOC incident war rooms.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(passwdCmd)
	rootCmd.AddCommand(incidentsCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(adminCmd)
}
