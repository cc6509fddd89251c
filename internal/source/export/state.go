package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// folderState is the persisted working-folder assignment table.
type folderState struct {
	Folders map[string]string `toml:"folders"`
}

func loadFolders(path string) (map[string]string, error) {
	var st folderState
	if _, err := toml.DecodeFile(path, &st); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read working folders %s: %w", path, err)
	}
	if st.Folders == nil {
		st.Folders = map[string]string{}
	}
	return st.Folders, nil
}

// saveFolders writes the table atomically through a temp file.
func saveFolders(path string, folders map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".folders-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(folderState{Folders: folders}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode working folders: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
