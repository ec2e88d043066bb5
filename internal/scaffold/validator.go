package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tsb/internal/config"
)

// CheckExisting checks if dir already has a tsb.yml
// Returns an error if it does, nil otherwise
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err != nil {
		return nil
	}

	errMsg := "project already initialized\n\nFound existing: " + config.FileName
	errMsg += "\n\nUse 'tsb init --force' to reinitialize (this will overwrite existing configuration)"
	return fmt.Errorf("%s", errMsg)
}
