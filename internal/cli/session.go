package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/warboard/warboard/internal/api"
	"github.com/warboard/warboard/internal/auth"
	"github.com/warboard/warboard/internal/config"
)

// session bundles the collaborators every command needs.
type session struct {
	cfg    *config.Config
	tokens *auth.Store
	client *api.Client
}

func mustSession() *session {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	path, err := config.ConfigPath()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	tokens := auth.NewStore(filepath.Dir(path))
	client := api.NewClient(cfg.Server.BaseURL, tokens, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		SubmitTimeout:  cfg.Server.SubmitTimeout,
		PollRetries:    cfg.Sync.PollRetries,
		PollRetryCap:   cfg.Sync.PollRetryCap,
	})
	return &session{cfg: cfg, tokens: tokens, client: client}
}

// requireLogin exits with guidance when no session token is stored.
func (s *session) requireLogin() {
	if s.tokens.Token() == "" {
		fmt.Println("Not logged in. Run 'warboard login' first.")
		os.Exit(1)
	}
}
