package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/scribe/internal/config"
	"github.com/felixgeelhaar/scribe/internal/memory"
	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/provider"
	"github.com/felixgeelhaar/scribe/internal/store"
)

func resetFlags() {
	homeDir, configPath = "", ""
	verbose, ciMode, interactive = false, false, false
	providerType, modelName, memoryPath, sessionID = "", "", "", ""
	historyLimit, historySearch = 20, ""
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var buf bytes.Buffer
	RootCmd.SetOut(&buf)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return buf.String(), err
}

func newTestRunner(t *testing.T, p provider.Provider) (*Runner, *store.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "scribe.db"), filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Memory.Path = filepath.Join(dir, "memory_store.json")
	return NewRunner(observe.Nop(), cfg, s, p, nil), s
}

func TestCLI_Commands(t *testing.T) {
	want := map[string]bool{"run": false, "history": false, "config": false, "repair": false, "serve": false}
	for _, cmd := range RootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
		if cmd.Name() == "config" && len(cmd.Commands()) != 2 {
			t.Errorf("Expected set and get subcommands for config, got %d", len(cmd.Commands()))
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestRunner_Offline(t *testing.T) {
	r, s := newTestRunner(t, nil)

	res, err := r.Run(context.Background(), "sess-offline", "quantum computing")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.HasPrefix(res.FinalDraft, "Draft Brief:") {
		t.Errorf("unexpected draft %q", res.FinalDraft)
	}
	if r.Memory().Len() != 1 {
		t.Errorf("expected 1 memory record, got %d", r.Memory().Len())
	}

	sess, err := s.GetSession("sess-offline")
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.Status != store.StatusCompleted {
		t.Errorf("expected status completed, got %q", sess.Status)
	}
	if len(sess.Turns) != 2 {
		t.Errorf("expected 2 turns, got %d", len(sess.Turns))
	}
	if sess.Metadata["provider"] != "offline" {
		t.Errorf("unexpected metadata %v", sess.Metadata)
	}

	arts, _ := s.ListArtifacts("sess-offline")
	if len(arts) != 1 || arts[0].Path != res.DraftPath {
		t.Errorf("expected the draft artifact, got %+v", arts)
	}
	recalled, err := s.Recall().Retrieve(context.Background(), "computing", 5)
	if err != nil || len(recalled) != 1 || recalled[0].RunID != res.RunID {
		t.Errorf("run not indexed for recall: %+v, %v", recalled, err)
	}
}

func TestRunner_StubProviderUsesSearch(t *testing.T) {
	stub := provider.NewStubProvider()
	r, _ := newTestRunner(t, stub)

	res, err := r.Run(context.Background(), "", "qubits")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.SessionID == "" {
		t.Error("expected a generated session id")
	}
	if !r.Tools().HasTool("search") {
		t.Error("search tool should be registered when a provider is configured")
	}
	// one search call plus summarize, critique and write
	if stub.Calls() != 4 {
		t.Errorf("expected 4 model calls, got %d", stub.Calls())
	}
	if !strings.Contains(res.Findings, "stub response to: Search the web") {
		t.Errorf("unexpected findings %q", res.Findings)
	}
}

func TestRunner_GuardRejectsQuery(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	r.Config.Guard.MaxQueryChars = 5

	if _, err := r.Run(context.Background(), "s", "far too long"); err == nil {
		t.Error("expected guard violation")
	}
	if _, err := r.Run(context.Background(), "s", "  "); err == nil {
		t.Error("expected guard violation for blank query")
	}
	if r.Memory().Len() != 0 {
		t.Error("rejected queries must not be recorded")
	}
}

func TestRunner_MemoryPathNotAllowed(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	r.Config.Guard.AllowedMemoryGlobs = []string{"srv/scribe/*.json"}

	if err := r.Build(context.Background()); err == nil {
		t.Error("expected memory path violation")
	}
}

func TestRunner_MissingPlugin(t *testing.T) {
	r, _ := newTestRunner(t, nil)
	r.Config.Plugins = []config.PluginConfig{{Stage: "critique", Path: filepath.Join(t.TempDir(), "missing-plugin")}}

	if err := r.Build(context.Background()); err == nil {
		t.Error("expected plugin load error")
	}
	if r.Pipeline() != nil {
		t.Error("pipeline must not be built when a plugin fails to load")
	}
}

func TestCLI_RunCI(t *testing.T) {
	home := t.TempDir()
	out, err := execute(t, "--home", home, "--ci", "run", "--session", "ci-1", "quantum", "computing")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var res map[string]string
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	for _, key := range []string{"session_id", "run_id", "findings", "summary", "critique", "final_draft", "draft_path"} {
		if res[key] == "" {
			t.Errorf("missing %q in output", key)
		}
	}
	if res["session_id"] != "ci-1" {
		t.Errorf("session_id = %q", res["session_id"])
	}

	mem, err := memory.Open(filepath.Join(home, "memory_store.json"))
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	rec, ok := mem.FindLastBySession("ci-1")
	if !ok || rec.String(memory.KeyQuery) != "quantum computing" {
		t.Errorf("run not recorded: %v", rec)
	}

	t.Run("Search", func(t *testing.T) {
		if _, err := execute(t, "--home", home, "--ci", "run", "--session", "ci-2", "sourdough", "starter"); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		out, err := execute(t, "--home", home, "history", "--search", "computing")
		if err != nil {
			t.Fatalf("history search failed: %v", err)
		}
		if !strings.Contains(out, "ci-1") || !strings.Contains(out, "quantum computing") {
			t.Errorf("expected the quantum run:\n%s", out)
		}
		if strings.Contains(out, "ci-2") {
			t.Errorf("unrelated run listed:\n%s", out)
		}

		out, _ = execute(t, "--home", home, "history", "--search", "zebra")
		if !strings.Contains(out, "No similar runs.") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("History", func(t *testing.T) {
		out, err := execute(t, "--home", home, "history")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out, "ci-1") || !strings.Contains(out, "completed") {
			t.Errorf("unexpected history output:\n%s", out)
		}

		out, err = execute(t, "--home", home, "history", "ci-1")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out, "Query: quantum computing") || !strings.Contains(out, "draft drafts/") {
			t.Errorf("unexpected session output:\n%s", out)
		}
	})
}

func TestCLI_RunUnknownProvider(t *testing.T) {
	_, err := execute(t, "--home", t.TempDir(), "run", "--provider", "skynet", "q")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestCLI_Config(t *testing.T) {
	home := t.TempDir()

	if _, err := execute(t, "--home", home, "config", "set", "openai.api_key", "sk-1234567890abcdef"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, err := execute(t, "--home", home, "config", "get", "openai.api_key")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "sk-1...cdef" {
		t.Errorf("expected masked key, got %q", out)
	}

	s, err := store.NewSQLiteStore(filepath.Join(home, "scribe.db"), filepath.Join(home, "artifacts"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	raw, _ := s.GetConfig("credential.openai")
	s.Close()
	if strings.Contains(raw, "sk-1234567890abcdef") {
		t.Error("api key stored in plaintext")
	}

	if _, err := execute(t, "--home", home, "config", "set", "provider.cli.path", "/usr/bin/llm"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, _ = execute(t, "--home", home, "config", "get", "provider.cli.path")
	if strings.TrimSpace(out) != "/usr/bin/llm" {
		t.Errorf("got %q", out)
	}

	out, _ = execute(t, "--home", home, "config", "get", "missing.key")
	if strings.TrimSpace(out) != "(not set)" {
		t.Errorf("got %q", out)
	}
}

func TestCLI_Repair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory_store.json")
	os.WriteFile(path, []byte(`{"session_id":"a","draft":"x"}
not json
`), 0600)

	out, err := execute(t, "repair", path)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if !strings.Contains(out, "1 records kept, 1 lines dropped") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := os.Stat(path + memory.BackupSuffix); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	if _, err := execute(t, "repair", path); err == nil {
		t.Error("second repair should refuse to overwrite the backup")
	}
}

func TestSecretName(t *testing.T) {
	tests := []struct {
		key  string
		name string
		ok   bool
	}{
		{"openai.api_key", "openai", true},
		{"google.api_key", "google", true},
		{".api_key", "", false},
		{"provider.cli.path", "", false},
	}
	for _, tt := range tests {
		name, ok := secretName(tt.key)
		if name != tt.name || ok != tt.ok {
			t.Errorf("secretName(%q) = %q, %v", tt.key, name, ok)
		}
	}
}
