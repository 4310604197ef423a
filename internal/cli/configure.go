package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warboard/warboard/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the config file, prompting for the server endpoints",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("⚙️ warboard Configure")

		cfg, err := config.Load()
		if err != nil {
			cfg = config.DefaultConfig()
		}

		reader := bufio.NewReader(os.Stdin)
		cfg.Server.BaseURL = promptDefault(reader, "API base URL", cfg.Server.BaseURL)
		cfg.Realtime.URL = promptDefault(reader, "Realtime websocket URL", cfg.Realtime.URL)

		if err := config.Save(cfg); err != nil {
			fmt.Printf("Failed to save config: %v\n", err)
			os.Exit(1)
		}
		path, _ := config.ConfigPath()
		fmt.Printf("Config written to %s\n", path)
	},
}

func promptDefault(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, err := reader.ReadString('\n')
	if err != nil {
		return current
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
