// Command patchpilot turns an issue into file changes by calling a
// text-generation backend and applying its response as validated file
// operations inside the workspace.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/patchpilot/patchpilot/internal/cleanup"
	"github.com/patchpilot/patchpilot/internal/config"
	"github.com/patchpilot/patchpilot/internal/digest"
	"github.com/patchpilot/patchpilot/internal/pipeline"
	"github.com/patchpilot/patchpilot/internal/preflight"
	"github.com/patchpilot/patchpilot/internal/prompt"
	"github.com/patchpilot/patchpilot/internal/provider"
	"github.com/patchpilot/patchpilot/internal/session"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

var issueNumber int

var rootCmd = &cobra.Command{
	Use:           "patchpilot",
	Short:         "Apply AI-generated file changes for a tracked issue",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is fine; explicit environment wins anyway.
		if err := godotenv.Load(); err == nil {
			log.Printf("[Config] Loaded .env")
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for one issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), issueNumber)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run prerequisite checks without touching the backend pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, _, err := setup()
		if err != nil {
			return err
		}
		report := newChecker(cfg, store).Validate(cmd.Context())
		fmt.Print(report.Summary())
		if !report.OK() {
			return fmt.Errorf("prerequisite checks failed")
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict aged and oversized cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, _, err := setup()
		if err != nil {
			return err
		}
		removed, err := store.Sweep()
		if err != nil {
			return err
		}
		log.Printf("[Sweep] Removed %d entries", removed)
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&issueNumber, "issue", 0, "issue number to implement")
	runCmd.MarkFlagRequired("issue")
	rootCmd.AddCommand(runCmd, checkCmd, sweepCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *session.Store, *session.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	backend, err := session.NewDiskBackend(cfg.CacheDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return cfg, session.NewStore(backend), session.New(), nil
}

func runPipeline(ctx context.Context, issue int) error {
	cfg, store, sess, err := setup()
	if err != nil {
		return err
	}

	if removed, err := store.Sweep(); err != nil {
		log.Printf("[Sweep] Warning: %v", err)
	} else if removed > 0 {
		log.Printf("[Sweep] Removed %d entries at session start", removed)
	}

	registry := cleanup.NewRegistry(
		filepath.Join(cfg.CacheDir, ".patchpilot-*"),
		filepath.Join(cfg.CacheDir, "*.tmp"),
		filepath.Join(cfg.WorkspaceRoot, ".patchpilot-*"),
		filepath.Join(cfg.WorkspaceRoot, "*.tmp"),
	)
	defer registry.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	registry.TrapSignals(cancel)

	report := newChecker(cfg, store).Validate(ctx)
	fmt.Print(report.Summary())
	if !report.OK() {
		sess.Close(true)
		return fmt.Errorf("prerequisite checks failed, aborting before backend call")
	}

	backend, err := provider.New(&provider.Config{
		Name:             cfg.Provider,
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		MaxResponseBytes: cfg.MaxResponseBytes,
		Timeout:          cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	issues, err := tracker.NewClient(cfg.Repository, trackerAuth(cfg), "")
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Provider:      backend,
		Model:         cfg.Model,
		Issues:        issues,
		Prompts:       prompt.NewBuilder(cfg.MaxPromptBytes),
		Digests:       digest.NewBuilder(store),
		Store:         store,
		Session:       sess,
		Registry:      registry,
		WorkspaceRoot: cfg.WorkspaceRoot,
		CacheDir:      cfg.CacheDir,
		ContextFiles:  cfg.ContextFiles,
		OutputPath:    cfg.OutputPath,
		Retry:         pipeline.DefaultRetryPolicy,
	}

	result, err := p.Run(ctx, issue)
	if err != nil {
		sess.Close(true)
		return err
	}

	fmt.Print(result.Summary())
	sess.Close(result.Failed)
	if result.Failed {
		return fmt.Errorf("no usable file operations extracted for issue #%d", issue)
	}
	return nil
}

func trackerAuth(cfg *config.Config) tracker.AuthProvider {
	if cfg.GitHubToken != "" {
		return &tracker.TokenAuth{AccessToken: cfg.GitHubToken}
	}
	return tracker.NewAppAuth(cfg.GitHubAppID, cfg.GitHubPrivateKey)
}

func newChecker(cfg *config.Config, store *session.Store) *preflight.Checker {
	c := &preflight.Checker{
		Provider:      cfg.Provider,
		APIKey:        cfg.APIKey,
		AuxHosts:      []string{"api.github.com"},
		ProbeCooldown: cfg.ProbeCooldown,
		RequiredTools: []string{"git"},
		WorkspaceRoot: cfg.WorkspaceRoot,
		CacheDir:      cfg.CacheDir,
		Store:         store,
	}
	switch cfg.Provider {
	case "anthropic":
		c.BackendHost = "api.anthropic.com"
		c.ProbeURL = "https://api.anthropic.com/v1/models"
	default:
		c.BackendHost = "openrouter.ai"
		c.ProbeURL = "https://openrouter.ai/api/v1/models"
	}
	return c
}
