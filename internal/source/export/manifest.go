package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest file names searched in an export directory, in order.
const (
	ManifestTOML = "history.toml"
	ManifestYAML = "history.yaml"
)

// BlobDir holds file content, one subdirectory per transaction id.
const BlobDir = "blobs"

// manifest is the on-disk description of a repository history.
type manifest struct {
	Repository   string          `toml:"repository" yaml:"repository"`
	Transactions []manifestTx    `toml:"transaction" yaml:"transactions"`
	Labels       []manifestLabel `toml:"label" yaml:"labels"`
}

type manifestTx struct {
	ID       int64          `toml:"id" yaml:"id"`
	Revision int64          `toml:"revision" yaml:"revision"`
	User     string         `toml:"user" yaml:"user"`
	Comment  string         `toml:"comment" yaml:"comment"`
	Time     time.Time      `toml:"time" yaml:"time"`
	Items    []manifestItem `toml:"item" yaml:"items"`
}

type manifestItem struct {
	Kind  string `toml:"kind" yaml:"kind"`
	Path  string `toml:"path" yaml:"path"`
	Path2 string `toml:"path2,omitempty" yaml:"path2,omitempty"`
}

type manifestLabel struct {
	TxID    int64  `toml:"txid" yaml:"txid"`
	Text    string `toml:"text" yaml:"text"`
	Comment string `toml:"comment" yaml:"comment"`
	// Path is where the label was applied; empty means the root
	Path string `toml:"path,omitempty" yaml:"path,omitempty"`
}

// loadManifest reads history.toml or history.yaml from dir.
func loadManifest(dir string) (*manifest, string, error) {
	for _, name := range []string{ManifestTOML, ManifestYAML} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}

		m := &manifest{}
		if name == ManifestTOML {
			if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(m); err != nil {
				return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, m); err != nil {
				return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
		return m, path, nil
	}

	return nil, "", fmt.Errorf("no %s or %s in %s", ManifestTOML, ManifestYAML, dir)
}
