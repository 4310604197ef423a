package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warboard/warboard/internal/api"
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "List and create incidents",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all incidents",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		events, err := s.client.ListEvents(ctx)
		if err != nil {
			exitOnAPIError(s, err)
		}
		if len(events) == 0 {
			fmt.Println("No incidents.")
			return
		}
		for _, e := range events {
			fmt.Printf("%-14s %-8s %-10s round %-3d %s\n", e.EventID, e.Severity, e.Status, e.CurrentRound, e.EventName)
		}
	},
}

var (
	createSource   string
	createSeverity string
	createMessage  string
)

var incidentsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Open a new incident",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		detail, err := s.client.CreateEvent(ctx, args[0], createMessage, createSource, createSeverity)
		if err != nil {
			exitOnAPIError(s, err)
		}
		fmt.Printf("Created incident %s\n", detail.EventID)
		fmt.Printf("Join it with: warboard console %s\n", detail.EventID)
	},
}

var incidentsSummariesCmd = &cobra.Command{
	Use:   "summaries <event-id>",
	Short: "Show the per-round summaries for an incident",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		summaries, err := s.client.Summaries(ctx, args[0])
		if err != nil {
			exitOnAPIError(s, err)
		}
		if len(summaries) == 0 {
			fmt.Println("No summaries yet.")
			return
		}
		for _, summary := range summaries {
			fmt.Printf("── round %d ──\n%s\n", summary.RoundID, summary.EventSummary)
			if summary.EventSuggestion != "" {
				fmt.Printf("suggestion: %s\n", summary.EventSuggestion)
			}
		}
	},
}

var incidentsHistoryCmd = &cobra.Command{
	Use:   "history <event-id> <role>",
	Short: "Show one agent role's timeline for an incident",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustSession()
		s.requireLogin()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		entries, err := s.client.RoleHistory(ctx, args[0], args[1])
		if err != nil {
			exitOnAPIError(s, err)
		}
		if len(entries) == 0 {
			fmt.Println("No entries for that role.")
			return
		}
		for _, e := range entries {
			fmt.Printf("%s round %d %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.RoundID, e.Kind)
		}
	},
}

// exitOnAPIError prints the failure and terminates; a rejected token also
// clears the stored session.
func exitOnAPIError(s *session, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, api.ErrUnauthorized) {
		_ = s.tokens.Clear()
		fmt.Println("Session expired. Run 'warboard login'.")
		os.Exit(1)
	}
	fmt.Printf("Failed: %v\n", err)
	os.Exit(1)
}

func init() {
	incidentsCreateCmd.Flags().StringVar(&createSource, "source", "manual", "Alert source")
	incidentsCreateCmd.Flags().StringVar(&createSeverity, "severity", "medium", "Severity (low|medium|high|critical)")
	incidentsCreateCmd.Flags().StringVar(&createMessage, "message", "", "Initial alert message")
	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsCreateCmd)
	incidentsCmd.AddCommand(incidentsSummariesCmd)
	incidentsCmd.AddCommand(incidentsHistoryCmd)
}
