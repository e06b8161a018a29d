package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/scribe/internal/config"
	"github.com/felixgeelhaar/scribe/internal/credential"
	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/store"
)

// stateDir is where the database, artifacts and default config live.
func stateDir() string {
	if homeDir != "" {
		return homeDir
	}
	return config.Dir()
}

func openStore() (*store.SQLiteStore, error) {
	dir := stateDir()
	return store.NewSQLiteStore(
		filepath.Join(dir, "scribe.db"),
		filepath.Join(dir, "artifacts"),
	)
}

func openVault(s credential.ConfigStore) (*credential.Vault, error) {
	sealer, err := credential.NewSealer()
	if err != nil {
		return nil, err
	}
	return credential.NewVault(s, sealer), nil
}

// loadConfig reads path, or config.yaml in the state directory when path is
// empty. The default memory path follows the state directory.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		candidate := filepath.Join(stateDir(), "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	var cfg *config.Config
	var err error
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, err
	}

	if cfg.Memory.Path == config.Default().Memory.Path {
		cfg.Memory.Path = filepath.Join(stateDir(), "memory_store.json")
	}
	return cfg, nil
}

func newObserver(out io.Writer) *observe.Observer {
	if ciMode {
		return observe.NewJSON(out, verbose)
	}
	return observe.New(out, verbose)
}
