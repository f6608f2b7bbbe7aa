package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

var (
	// ErrConfigNotFound indicates the project config file does not exist.
	ErrConfigNotFound = errors.New("project config not found")

	// ErrInvalidConfig indicates the project config file is malformed or
	// missing required fields.
	ErrInvalidConfig = errors.New("invalid project config")
)

// ProjectFileName is the conventional project config file name at the
// repository root.
const ProjectFileName = ".knowledged.yaml"

// Project describes a single activated project.
type Project struct {
	// Name is the tenant project identifier, typically the module or
	// repository path.
	Name string `koanf:"name"`

	// Root is the project root directory. Defaults to the directory
	// containing the config file.
	Root string `koanf:"root"`

	// DefaultBranch is used when branch detection fails. Defaults to main.
	DefaultBranch string `koanf:"default_branch"`
}

// LoadProject reads a project config file. If path names a directory, the
// conventional file name inside it is used.
func LoadProject(path string) (*Project, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidConfig)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat project config: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, ProjectFileName)
		info, err = os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil, fmt.Errorf("failed to stat project config: %w", err)
		}
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: file too large (%d bytes)", ErrInvalidConfig, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open project config: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var p Project
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if p.Root == "" {
		p.Root = filepath.Dir(path)
	}
	abs, err := filepath.Abs(p.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve root: %v", ErrInvalidConfig, err)
	}
	p.Root = abs
	if p.DefaultBranch == "" {
		p.DefaultBranch = "main"
	}

	return &p, nil
}
