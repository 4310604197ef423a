package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warboard/warboard/internal/archive"
	"github.com/warboard/warboard/internal/config"
	"github.com/warboard/warboard/internal/mirror"
	"github.com/warboard/warboard/internal/realtime"
	"github.com/warboard/warboard/internal/warroom"
)

var consoleCmd = &cobra.Command{
	Use:   "console <event-id>",
	Short: "Join an incident war room",
	Args:  cobra.ExactArgs(1),
	Run:   runConsole,
}

func runConsole(cmd *cobra.Command, args []string) {
	eventID := args[0]
	printHeader("🛡️ warboard Console")

	s := mustSession()
	s.requireLogin()
	log := slog.Default()

	deps := warroom.Deps{
		Client:   s.client,
		Tokens:   s.tokens,
		Renderer: warroom.NewTerminalRenderer(os.Stdout),
		Realtime: realtime.Config{
			URL:            s.cfg.Realtime.URL,
			BaseDelay:      s.cfg.Realtime.BaseDelay,
			CapDelay:       s.cfg.Realtime.CapDelay,
			MaxAttempts:    s.cfg.Realtime.MaxAttempts,
			ConnectTimeout: s.cfg.Realtime.ConnectTimeout,
		},
		SyncInterval: s.cfg.Sync.Interval,
		PollTimeout:  s.cfg.Sync.PollTimeout,
		Log:          log,
	}

	if s.cfg.Archive.Enabled {
		path, err := config.ExpandPath(s.cfg.Archive.Path)
		if err == nil {
			if svc, archiveErr := archive.NewService(path); archiveErr == nil {
				deps.Archive = svc
				defer svc.Close()
			} else {
				fmt.Printf("⚠️ Archive disabled: %v\n", archiveErr)
			}
		}
	}
	if s.cfg.Mirror.Enabled && s.cfg.Mirror.Brokers != "" {
		pub := mirror.NewPublisher(strings.Split(s.cfg.Mirror.Brokers, ","), s.cfg.Mirror.Topic, log)
		deps.Mirror = pub
		defer pub.Close()
	}

	expired := make(chan struct{}, 1)
	deps.OnUnauthorized = func() {
		_ = s.tokens.Clear()
		select {
		case expired <- struct{}{}:
		default:
		}
	}

	ctrl := warroom.NewController(eventID, deps)
	ctrl.Start()
	defer ctrl.Teardown()

	fmt.Println("Type a message and press enter to chat.")
	fmt.Println("Commands: /queue /refresh /done <id> <result> /fail <id> <reason> /quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGCONT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-expired:
			fmt.Println("Session expired. Run 'warboard login'.")
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTSTP:
				// Suspended consoles stop polling, like a hidden page.
				ctrl.SetVisible(false)
				signal.Reset(syscall.SIGTSTP)
				_ = syscall.Kill(syscall.Getpid(), syscall.SIGTSTP)
				signal.Notify(sigCh, syscall.SIGTSTP)
			case syscall.SIGCONT:
				ctrl.SetVisible(true)
			default:
				fmt.Println("\nLeaving war room.")
				return
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := handleConsoleLine(ctrl, line); done {
				return
			}
		}
	}
}

// handleConsoleLine executes one console input line. Returns true on quit.
func handleConsoleLine(ctrl *warroom.Controller, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		if err := ctrl.SendMessage(ctx, line); err != nil {
			fmt.Printf("Send failed: %v\n", err)
		}
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		fmt.Println("Leaving war room.")
		return true
	case "/refresh":
		ctrl.RefreshNow()
	case "/queue":
		warroom.NewTerminalRenderer(os.Stdout).RenderQueue(ctrl.WaitingTasks())
	case "/done", "/fail":
		if len(fields) < 3 {
			fmt.Printf("Usage: %s <id> <result>\n", fields[0])
			return false
		}
		status := "completed"
		if fields[0] == "/fail" {
			status = "failed"
		}
		result := strings.Join(fields[2:], " ")
		err := ctrl.SubmitExecutionResult(ctx, fields[1], result, status)
		switch {
		case errors.Is(err, warroom.ErrSubmitInFlight):
			fmt.Println("Another submission is still running, try again shortly.")
		case err != nil:
			fmt.Printf("Submit failed: %v\n", err)
		default:
			fmt.Printf("Result for %s submitted.\n", fields[1])
		}
	default:
		fmt.Printf("Unknown command %s\n", fields[0])
	}
	return false
}
