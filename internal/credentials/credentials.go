// Package credentials loads API keys from a credentials.toml file, falling
// back to environment variables.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file is readable
// by anyone but its owner.
var ErrInsecurePermissions = errors.New("credentials file has insecure permissions")

const fileName = "credentials.toml"

// Credentials holds API keys by section name ([openai], [anthropic],
// [google], [tavily]). The [llm] section is a fallback for model providers.
type Credentials struct {
	Path     string
	llm      string
	sections map[string]string
}

// StandardPaths returns the credential file locations in priority order.
func StandardPaths() []string {
	paths := []string{fileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "todoagent", fileName),
			filepath.Join(home, ".todoagent", fileName),
		)
	}
	return paths
}

// Load reads the first credentials file found in paths. With no file
// present it returns empty credentials, so lookups fall through to the
// environment.
func Load(paths ...string) (*Credentials, error) {
	if len(paths) == 0 {
		paths = StandardPaths()
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return &Credentials{sections: map[string]string{}}, nil
}

// LoadFile loads credentials from path. On Unix the file must be mode 0400.
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials: %w", err)
		}
		if mode := info.Mode().Perm(); mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)", ErrInsecurePermissions, path, mode)
		}
	}

	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("parsing credentials %s: %w", path, err)
	}

	creds := &Credentials{Path: path, sections: map[string]string{}}
	for name, value := range raw {
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		key, _ := section["api_key"].(string)
		if key == "" {
			continue
		}
		if name == "llm" {
			creds.llm = key
		} else {
			creds.sections[strings.ToLower(name)] = key
		}
	}
	return creds, nil
}

// GetAPIKey returns the key for a provider. Priority: its own section, then
// [llm] for model providers, then the provider's environment variable.
func (c *Credentials) GetAPIKey(provider string) string {
	provider = strings.ToLower(provider)
	if c != nil {
		if key := c.sections[provider]; key != "" {
			return key
		}
		if c.llm != "" && isModelProvider(provider) {
			return c.llm
		}
	}
	return os.Getenv(EnvVar(provider))
}

// EnvVar returns the environment variable consulted for a provider's key.
func EnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "tavily":
		return "TAVILY_API_KEY"
	}
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

func isModelProvider(provider string) bool {
	switch provider {
	case "anthropic", "openai", "google":
		return true
	}
	return false
}
