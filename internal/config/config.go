// Package config loads vault2git settings from a config file, the
// environment and a .env file.
//
// Settings are looked up in this order, later sources winning:
//
//  1. built-in defaults
//  2. vault2git.toml or vault2git.yaml in the current directory, then
//     in $HOME/.config/vault2git (or the file given with --config)
//  3. .env in the current directory (never overrides the real environment)
//  4. environment variables prefixed V2G_, e.g. V2G_VAULT_PASSWORD
//
// Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/steveyegge/vault2git/internal/migrate"
	"github.com/steveyegge/vault2git/internal/source"
)

// Name is the config file base name, without extension.
const Name = "vault2git"

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "V2G"

// Vault identifies the source server session.
type Vault struct {
	Server     string `mapstructure:"server"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Repository string `mapstructure:"repository"`

	// ExportDir selects the file-backed client over a history export
	ExportDir string `mapstructure:"export_dir"`
}

// Git configures the target repository.
type Git struct {
	Cmd        string `mapstructure:"cmd"`
	DomainName string `mapstructure:"domain_name"`
	GCInterval int    `mapstructure:"gc_interval"`
}

// Convertor configures the migration itself.
type Convertor struct {
	// WorkingFolder is the target working tree
	WorkingFolder string `mapstructure:"working_folder"`

	// Paths uses the "<sourcePath>~<branch>;..." list format
	Paths string `mapstructure:"paths"`

	// OldestCommitDate and NewestCommitDate bound the history window.
	// See ParseDate for accepted formats.
	OldestCommitDate string `mapstructure:"oldest_commit_date"`
	NewestCommitDate string `mapstructure:"newest_commit_date"`

	// Keep lists extra top-level files preserved when the tree is wiped
	Keep []string `mapstructure:"keep"`

	RestartLimit int `mapstructure:"restart_limit"`
	Limit        int `mapstructure:"limit"`
}

// Log configures the optional rotating log file.
type Log struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Journal configures the telemetry journal.
type Journal struct {
	// Path of the sqlite database; empty disables the journal
	Path string `mapstructure:"path"`
}

// Settings is the merged configuration.
type Settings struct {
	Vault     Vault                   `mapstructure:"vault"`
	Git       Git                     `mapstructure:"git"`
	Convertor Convertor               `mapstructure:"convertor"`
	Branches  []migrate.BranchMapping `mapstructure:"branches"`
	Log       Log                     `mapstructure:"log"`
	Journal   Journal                 `mapstructure:"journal"`

	// File is the config file that was read, or empty
	File string `mapstructure:"-"`
}

// defaults lists every key so environment overrides apply to keys
// missing from the config file.
var defaults = map[string]interface{}{
	"vault.server":                 "",
	"vault.user":                   "",
	"vault.password":               "",
	"vault.repository":             "",
	"vault.export_dir":             "",
	"git.cmd":                      "git",
	"git.domain_name":              "",
	"git.gc_interval":              200,
	"convertor.working_folder":     ".",
	"convertor.paths":              "",
	"convertor.oldest_commit_date": "",
	"convertor.newest_commit_date": "",
	"convertor.keep":               []string{},
	"convertor.restart_limit":      20,
	"convertor.limit":              0,
	"log.file":                     "",
	"log.max_size_mb":              10,
	"log.max_backups":              3,
	"log.max_age_days":             28,
	"log.compress":                 false,
	"journal.path":                 "",
}

// Load reads the settings. An empty path searches the default
// locations; a missing file there is not an error. An explicit path
// must exist.
func Load(path string) (*Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(Name)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", Name))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	s.File = v.ConfigFileUsed()
	return &s, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadDotEnv exports the variables of a .env file without touching
// ones already set. A missing file is ignored.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Mappings returns the configured branch mappings: the Paths list
// followed by the branches array.
func (s *Settings) Mappings() ([]migrate.BranchMapping, error) {
	out, err := migrate.ParsePaths(s.Convertor.Paths)
	if err != nil {
		return nil, err
	}
	for _, b := range s.Branches {
		out = append(out, migrate.BranchMapping{
			Branch: strings.TrimSpace(b.Branch),
			Path:   source.Clean(strings.TrimSpace(b.Path)),
		})
	}
	return out, nil
}

// Login returns the source session options.
func (s *Settings) Login() source.LoginOptions {
	return source.LoginOptions{
		Server:     s.Vault.Server,
		User:       s.Vault.User,
		Password:   s.Vault.Password,
		Repository: s.Vault.Repository,
	}
}

// Window returns the history window, resolving relative dates
// against now.
func (s *Settings) Window(now time.Time) (from, to time.Time, err error) {
	if from, err = ParseDate(s.Convertor.OldestCommitDate, now); err != nil {
		return from, to, fmt.Errorf("oldest_commit_date: %w", err)
	}
	if to, err = ParseDate(s.Convertor.NewestCommitDate, now); err != nil {
		return from, to, fmt.Errorf("newest_commit_date: %w", err)
	}
	return from, to, nil
}
