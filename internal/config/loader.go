package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".docmirror.yaml"

// ProfileNotFoundError reports an unknown profile name together with the
// names that do exist. It matches ErrProfileNotFound with errors.Is.
type ProfileNotFoundError struct {
	Name  string
	Known []string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Is reports whether target is ErrProfileNotFound.
func (e *ProfileNotFoundError) Is(target error) bool {
	return target == ErrProfileNotFound
}

// LoadConfigFile loads profiles from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cf.Profiles == nil {
		cf.Profiles = make(map[string]Profile)
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, when given
//  2. .docmirror.yaml in the current directory
//  3. .docmirror.yaml in the user's home directory
//  4. config.yaml in the XDG config directory (~/.config/docmirror)
//
// It returns "" when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load finds and loads the configuration file. A missing file is an error
// only when configPath was given explicitly; otherwise an empty File with
// just the built-in profiles is returned.
func Load(configPath string) (*File, string, error) {
	path := FindConfigFile(configPath)
	if path == "" {
		if configPath != "" {
			return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return &File{Profiles: make(map[string]Profile)}, "", nil
	}
	cf, err := LoadConfigFile(path)
	if err != nil {
		return nil, "", err
	}
	return cf, path, nil
}
