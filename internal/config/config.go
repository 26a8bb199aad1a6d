// Package config owns the bridge registry: which role this repository plays,
// what it provides, and the set of provider dependencies it consumes.
//
// The registry lives at .bridge/settings/bridge.json inside the repository.
// It is loaded once at command start, mutated in memory, and persisted back
// explicitly on every mutating operation; nothing autosaves behind the
// caller's back. All paths inside the registry are repo-relative.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultPath is the conventional registry location inside a repository.
const DefaultPath = ".bridge/settings/bridge.json"

// ContractsDir is the conventional directory for cached contracts and
// consumer-expectations files.
const ContractsDir = ".bridge/contracts"

// Roles a repository may declare.
const (
	RoleConsumer = "consumer"
	RoleProvider = "provider"
	RoleBoth     = "both"
)

// Sync methods. Only git is implemented; the others are recognized so that
// the sync engine can fail with a clear message instead of a config error.
const (
	SyncGit  = "git"
	SyncHTTP = "http"
	SyncS3   = "s3"
)

// Dependency describes one provider relationship of a consumer repo.
type Dependency struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	SyncMethod   string `json:"sync_method"`
	GitURL       string `json:"git_url,omitempty"`
	ContractPath string `json:"contract_path"`
	LocalCache   string `json:"local_cache"`
	SyncOnCommit bool   `json:"sync_on_commit"`
}

// Provides is the self-description of a provider repository.
type Provides struct {
	ContractFile string   `json:"contract_file,omitempty"`
	ExtractFrom  []string `json:"extract_from,omitempty"`
	AutoUpdate   bool     `json:"auto_update,omitempty"`
}

// Config is the in-memory registry. Path records where it was loaded from
// (or should be saved to) so components never rely on ambient working-dir
// conventions.
type Config struct {
	Enabled      bool                  `json:"enabled"`
	Role         string                `json:"role"`
	RepoID       string                `json:"repo_id"`
	Provides     Provides              `json:"provides"`
	Dependencies map[string]Dependency `json:"dependencies"`

	Path string `json:"-"`
}

// envelope is the on-disk shape: everything nested under a "bridge" key so
// the file can later host sibling tool sections.
type envelope struct {
	Bridge bridgeBody `json:"bridge"`
}

type bridgeBody struct {
	Enabled      bool                  `json:"enabled"`
	Role         string                `json:"role"`
	RepoID       string                `json:"repo_id"`
	Provides     Provides              `json:"provides"`
	Dependencies map[string]Dependency `json:"dependencies"`
}

// Default builds a fresh registry for the given role. Providers get a
// provisioned Provides block pointing at the conventional contract location.
func Default(role, path string) *Config {
	cfg := &Config{
		Enabled:      true,
		Role:         role,
		Dependencies: map[string]Dependency{},
		Path:         path,
	}
	if role == RoleProvider || role == RoleBoth {
		cfg.Provides = Provides{
			ContractFile: ContractsDir + "/provided-api.yaml",
			ExtractFrom:  []string{"backend/**/*.py"},
			AutoUpdate:   true,
		}
	}
	return cfg
}

// Load reads the registry from path. A missing file is not an error: it
// yields a default consumer config bound to path, so first-run commands can
// report "not initialized" themselves.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(RoleConsumer, path), nil
		}
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	cfg := &Config{
		Enabled:      env.Bridge.Enabled,
		Role:         env.Bridge.Role,
		RepoID:       env.Bridge.RepoID,
		Provides:     env.Bridge.Provides,
		Dependencies: env.Bridge.Dependencies,
		Path:         path,
	}
	if cfg.Role == "" {
		cfg.Role = RoleConsumer
	}
	if cfg.Dependencies == nil {
		cfg.Dependencies = map[string]Dependency{}
	}
	return cfg, nil
}

// Exists reports whether a registry file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save persists the registry atomically to cfg.Path.
func (c *Config) Save() error {
	env := envelope{Bridge: bridgeBody{
		Enabled:      c.Enabled,
		Role:         c.Role,
		RepoID:       c.RepoID,
		Provides:     c.Provides,
		Dependencies: c.Dependencies,
	}}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return writeFileAtomic(c.Path, b)
}

// Dependency returns the named dependency, if configured.
func (c *Config) Dependency(name string) (Dependency, bool) {
	dep, ok := c.Dependencies[name]
	return dep, ok
}

// DependencyNames lists configured dependency names in sorted order.
func (c *Config) DependencyNames() []string {
	names := make([]string, 0, len(c.Dependencies))
	for name := range c.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddDependency registers (or replaces) a dependency and persists the
// registry.
func (c *Config) AddDependency(dep Dependency) error {
	c.Dependencies[dep.Name] = dep
	return c.Save()
}

// RemoveDependency drops the named dependency, persists the registry and
// deletes the dependency's cached contract file. A missing cache file is not
// an error. repoRoot anchors the dependency's repo-relative cache path.
func (c *Config) RemoveDependency(name, repoRoot string) error {
	dep, ok := c.Dependencies[name]
	if !ok {
		return fmt.Errorf("dependency %q not found in configuration", name)
	}
	delete(c.Dependencies, name)
	if err := c.Save(); err != nil {
		return err
	}
	if dep.LocalCache != "" {
		cache := filepath.Join(repoRoot, filepath.FromSlash(dep.LocalCache))
		if err := os.Remove(cache); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Validate checks the registry and returns every problem found, one message
// per line, or nil when the registry is sound.
func (c *Config) Validate() error {
	var msgs []string
	add := func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}

	if c.Role == "" {
		add("Role is required")
	}
	switch c.Role {
	case RoleConsumer, RoleProvider, RoleBoth:
	default:
		add("Invalid role: %s", c.Role)
	}

	for _, name := range c.DependencyNames() {
		dep := c.Dependencies[name]
		if dep.Name == "" {
			add("Dependency %s: name is required", name)
		}
		if dep.Type == "" {
			add("Dependency %s: type is required", name)
		}
		if dep.SyncMethod == "" {
			add("Dependency %s: sync_method is required", name)
		}
		if dep.SyncMethod == SyncGit && dep.GitURL == "" {
			add("Dependency %s: git_url is required for git sync method", name)
		}
		if dep.ContractPath == "" {
			add("Dependency %s: contract_path is required", name)
		}
		if dep.LocalCache == "" {
			add("Dependency %s: local_cache is required", name)
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, "\n"))
}

// writeFileAtomic writes b via a sibling temp file and rename, creating
// parent directories as needed.
func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
