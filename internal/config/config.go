// Package config manages user-level settings stored at
// ~/.qldist/config.yaml: the custom CLI path, the release registry
// coordinates and token, and the prerelease opt-in. Values can also come
// from QLDIST_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"

	homeDirName = ".qldist"
	envPrefix   = "QLDIST"

	// KeyCustomPath is a user-chosen CodeQL CLI path overriding all other
	// distribution sources.
	KeyCustomPath = "distribution.path"
	// KeyIncludePrerelease opts in to prerelease releases.
	KeyIncludePrerelease = "distribution.includePrerelease"
	// KeyOwner and KeyRepo locate the release registry repository.
	KeyOwner = "registry.owner"
	KeyRepo  = "registry.repo"
	// KeyToken is a personal access token for the registry.
	KeyToken = "registry.token"

	defaultOwner = "github"
	defaultRepo  = "codeql-cli-binaries"
)

// Dir returns the path to the qldist config directory (~/.qldist/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", homeDirName)
	}
	return filepath.Join(home, homeDirName)
}

// Settings reads and writes the configuration file. It satisfies the
// distribution package's Settings interface.
type Settings struct {
	v    *viper.Viper
	path string

	mu          sync.Mutex
	subscribers []func()
}

// Load initializes Settings over dir/config.yaml, reading the file if it
// exists and applying environment overrides.
func Load(dir string) *Settings {
	v := viper.New()
	path := filepath.Join(dir, fileName+"."+fileType)
	v.SetConfigFile(path)
	v.SetConfigType(fileType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyOwner, defaultOwner)
	v.SetDefault(KeyRepo, defaultRepo)

	// Ignore error if config file doesn't exist yet.
	_ = v.ReadInConfig()

	return &Settings{v: v, path: path}
}

// CustomPath returns the configured binary path, empty when unset.
func (s *Settings) CustomPath() string {
	return s.v.GetString(KeyCustomPath)
}

// IncludePrerelease reports whether prerelease releases are eligible.
func (s *Settings) IncludePrerelease() bool {
	return s.v.GetBool(KeyIncludePrerelease)
}

// Owner returns the registry repository owner.
func (s *Settings) Owner() string {
	return s.v.GetString(KeyOwner)
}

// Repo returns the registry repository name.
func (s *Settings) Repo() string {
	return s.v.GetString(KeyRepo)
}

// Token returns the personal access token, empty when unset.
func (s *Settings) Token() string {
	return s.v.GetString(KeyToken)
}

// Set writes a key-value pair, saves the config file, and notifies
// subscribers.
func (s *Settings) Set(key string, value any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	s.v.Set(key, value)

	// Create the file if it doesn't exist.
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", s.path, err)
		}
		f.Close()
	}

	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	s.notify()
	return nil
}

// OnDidChange registers fn to run after every successful Set.
func (s *Settings) OnDidChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Settings) notify() {
	s.mu.Lock()
	subscribers := make([]func(), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()
	for _, fn := range subscribers {
		fn()
	}
}
