package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tsb/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path         string // relative to the project directory
	Content      []byte
	Permissions  os.FileMode
	KeepExisting bool // left alone when already present
}

// Initialize writes tsb.yml into dir. A starter tsconfig.json and
// src/index.ts are added only when dir has no tsconfig.json yet.
// If force is true an existing tsb.yml is replaced.
// It returns the paths it created, relative to dir.
func Initialize(dir string, force bool) ([]string, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return nil, err
	}

	created, err := writeFiles(dir, files)
	if err != nil {
		return created, err
	}

	if err := validateCreatedFiles(dir); err != nil {
		return created, err
	}

	return created, nil
}

// handleForce removes an existing tsb.yml
func handleForce(dir string) error {
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", config.FileName)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", config.FileName, err)
		}
	}
	return nil
}

func getTemplateFiles() ([]FileInfo, error) {
	templates := []FileInfo{
		{Path: config.FileName},
		{Path: "tsconfig.json", KeepExisting: true},
		{Path: filepath.Join("src", "index.ts"), KeepExisting: true},
	}
	names := []string{"tsb.yml.tmpl", "tsconfig.json.tmpl", "index.ts.tmpl"}

	for i := range templates {
		content, err := templatesFS.ReadFile("templates/" + names[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", names[i], err)
		}
		templates[i].Content = content
		templates[i].Permissions = 0644
	}

	return templates, nil
}

// writeFiles writes files under dir. The starter sources are skipped as a
// group once the directory already has a tsconfig.json.
func writeFiles(dir string, files []FileInfo) ([]string, error) {
	_, err := os.Stat(filepath.Join(dir, "tsconfig.json"))
	hasProject := err == nil

	var created []string
	for _, file := range files {
		if file.KeepExisting && hasProject {
			continue
		}
		path := filepath.Join(dir, file.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return created, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(file.Path), err)
		}
		if file.KeepExisting {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return created, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		created = append(created, file.Path)
	}

	return created, nil
}

// validateCreatedFiles loads the new tsb.yml the same way every other
// command will.
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, config.FileName)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", config.FileName, err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(created []string) {
	fmt.Println("\n✅ Successfully initialized tsb project!")
	fmt.Println("\nCreated:")
	for _, path := range created {
		fmt.Printf("  ✓ %s\n", filepath.ToSlash(path))
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your build output directory to .gitignore")
	fmt.Println("  2. Run 'tsb compile' to build bytecode artifacts")
	fmt.Println("  3. Run 'tsb run dist/index.tsb' to start the compiled entry")
}
