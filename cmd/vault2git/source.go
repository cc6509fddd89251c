package main

import (
	"fmt"
	"path/filepath"

	"github.com/steveyegge/vault2git/internal/config"
	"github.com/steveyegge/vault2git/internal/logging"
	"github.com/steveyegge/vault2git/internal/source/export"
)

// openSource creates the source client the settings select.
func openSource(s *config.Settings, logs *logging.Logs, verbose bool) (*export.Client, error) {
	if s.Vault.ExportDir == "" {
		return nil, fmt.Errorf("no source configured: set vault.export_dir (or V2G_VAULT_EXPORT_DIR) to a history export")
	}

	dir, err := filepath.Abs(s.Vault.ExportDir)
	if err != nil {
		return nil, err
	}
	return export.NewWithConfig(&export.Config{
		Dir:     dir,
		Logger:  logs.Logger("export"),
		Verbose: verbose,
	})
}
