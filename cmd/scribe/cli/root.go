package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/scribe/internal/agent"
	"github.com/felixgeelhaar/scribe/internal/config"
	"github.com/felixgeelhaar/scribe/internal/credential"
	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/orchestrate"
	"github.com/felixgeelhaar/scribe/internal/provider"
	"github.com/felixgeelhaar/scribe/internal/store"
	"github.com/felixgeelhaar/scribe/internal/ui"
	"github.com/felixgeelhaar/scribe/internal/ui/tui"
)

// Version is set at build time.
var Version = "dev"

var (
	homeDir      string
	configPath   string
	verbose      bool
	providerType string
	modelName    string
	memoryPath   string
	sessionID    string
	ciMode       bool
	interactive  bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Multi-agent research brief pipeline",
	Long: `Scribe researches a topic, summarizes and critiques the findings, and writes
a short technical brief. Every run is appended to a local memory file.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Research a query and write a brief",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, strings.Join(args, " "))
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "State directory (default ~/.scribe)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml or .json)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&ciMode, "ci", false, "CI mode: JSON output, non-interactive")

	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&providerType, "provider", "p", "", "Model provider (mock, stub, gemini, openai, anthropic, ollama, cli)")
	runCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	runCmd.Flags().StringVar(&memoryPath, "memory", "", "Memory store path")
	runCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id (generated when empty)")
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Show progress in a terminal UI")
}

// applyFlags overlays command line flags on cfg.
func applyFlags(cfg *config.Config) {
	if providerType != "" {
		cfg.Provider.Type = providerType
	}
	if modelName != "" {
		cfg.Provider.Model = modelName
	}
	if memoryPath != "" {
		cfg.Memory.Path = memoryPath
	}
}

func runQuery(cmd *cobra.Command, query string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	obs := newObserver(cmd.ErrOrStderr())
	defer obs.Close()

	runner, cleanup, err := setupRunner(ctx, obs)
	if err != nil {
		return err
	}
	defer cleanup()

	var res *orchestrate.Result
	if interactive && !ciMode {
		res, err = runInteractive(ctx, runner, query)
	} else {
		if !ciMode {
			runner.UI = ui.NewLineUI(cmd.ErrOrStderr())
		}
		res, err = runner.Run(ctx, sessionID, query)
	}
	if err != nil {
		return err
	}
	return printResult(out, res)
}

// setupRunner loads configuration, opens the store and builds the provider.
func setupRunner(ctx context.Context, obs *observe.Observer) (*Runner, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cfg)

	validation := cfg.Validate()
	for _, w := range validation.Warnings {
		obs.Log().Warn().Msg(w)
	}
	if !validation.Valid {
		return nil, nil, fmt.Errorf("invalid configuration: %s", strings.Join(validation.Errors, "; "))
	}

	st, err := openStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init store: %w", err)
	}
	vault, err := openVault(st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	p, err := buildProvider(cfg.Provider, vault, st)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	runner := NewRunner(obs, cfg, st, p, nil)
	runner.SearchAPIKey, _ = vault.Resolve("google", "GOOGLE_API_KEY")
	runner.SearchCX = cfg.Search.CX
	if runner.SearchCX == "" {
		runner.SearchCX = firstEnv("GOOGLE_CX", "CUSTOM_SEARCH_CX")
	}

	cleanup := func() {
		runner.Close()
		if c, ok := p.(io.Closer); ok {
			c.Close()
		}
		st.Close()
	}
	return runner, cleanup, nil
}

// buildProvider returns nil for the offline mock mode.
func buildProvider(pc config.ProviderConfig, vault *credential.Vault, s store.Storage) (provider.Provider, error) {
	switch pc.Type {
	case "", "mock":
		return nil, nil
	case "stub":
		return provider.NewStubProvider(), nil
	case "gemini":
		key, err := vault.Resolve("gemini", "GOOGLE_API_KEY", "GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		return provider.NewGeminiProvider(key, pc.Model, pc.BaseURL)
	case "openai":
		key, err := vault.Resolve("openai", "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		return provider.NewOpenAIProvider(key, pc.BaseURL, pc.Model)
	case "anthropic":
		key, err := vault.Resolve("anthropic", "ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		return provider.NewAnthropicProvider(key, pc.BaseURL, pc.Model)
	case "ollama":
		return provider.NewOllamaProvider(pc.BaseURL, pc.Model)
	case "cli":
		return detectCLIProvider(s)
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Type)
	}
}

func detectCLIProvider(s store.Storage) (provider.Provider, error) {
	// 1. Check config first
	cliPath, _ := s.GetConfig("provider.cli.path")
	if cliPath != "" {
		return provider.NewCLIProvider(cliPath, []string{})
	}

	// 2. Auto-detect common tools
	tools := []string{"llm", "ollama", "gemini"}
	for _, t := range tools {
		path, err := exec.LookPath(t)
		if err == nil {
			return provider.NewCLIProvider(path, []string{})
		}
	}

	return nil, fmt.Errorf("no local model CLI detected (tried %s)", strings.Join(tools, ", "))
}

func runInteractive(ctx context.Context, runner *Runner, query string) (*orchestrate.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewModel(query, len(agent.Roles)))
	t := tui.NewTUI(program)
	runner.UI = t

	var res *orchestrate.Result
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = runner.Run(ctx, sessionID, query)
		t.Done(runErr)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("terminal UI: %w", err)
	}
	cancel()
	<-done
	if runErr == nil && res == nil {
		return nil, errors.New("run cancelled")
	}
	return res, runErr
}

// runOutput is the --ci JSON shape.
type runOutput struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id"`
	DraftPath string `json:"draft_path,omitempty"`
	orchestrate.Result
}

func printResult(out io.Writer, res *orchestrate.Result) error {
	if ciMode {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runOutput{
			SessionID: res.SessionID,
			RunID:     res.RunID,
			DraftPath: res.DraftPath,
			Result:    *res,
		})
	}

	fmt.Fprintf(out, "Session: %s\nRun: %s\n", res.SessionID, res.RunID)
	for _, section := range []struct{ title, body string }{
		{"Findings", res.Findings},
		{"Summary", res.Summary},
		{"Critique", res.Critique},
		{"Final draft", res.FinalDraft},
	} {
		fmt.Fprintf(out, "\n== %s ==\n%s\n", section.title, section.body)
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
