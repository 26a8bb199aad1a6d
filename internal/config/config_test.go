package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testDep(name string) Dependency {
	return Dependency{
		Name:         name,
		Type:         "api",
		SyncMethod:   SyncGit,
		GitURL:       "https://git.example.com/" + name + ".git",
		ContractPath: ".bridge/contracts/provided-api.yaml",
		LocalCache:   ContractsDir + "/" + name + "-api.yaml",
	}
}

func TestLoadMissingYieldsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Role != RoleConsumer {
		t.Fatalf("default role = %q, want consumer", cfg.Role)
	}
	if cfg.Dependencies == nil || len(cfg.Dependencies) != 0 {
		t.Fatalf("default dependencies: %#v", cfg.Dependencies)
	}
	if cfg.Path != path {
		t.Fatalf("path not bound: %q", cfg.Path)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, DefaultPath)
	cfg := Default(RoleBoth, path)
	cfg.RepoID = "backend-api"
	cfg.Dependencies["auth-service"] = testDep("auth-service")
	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Role != RoleBoth || got.RepoID != "backend-api" {
		t.Fatalf("round-trip mismatch: %#v", got)
	}
	dep, ok := got.Dependency("auth-service")
	if !ok || dep.GitURL != "https://git.example.com/auth-service.git" {
		t.Fatalf("dependency mismatch: %#v", dep)
	}
	if got.Provides.ContractFile == "" {
		t.Fatalf("provider role should provision provides block")
	}
}

func TestOnDiskShapeIsNestedUnderBridge(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)
	cfg := Default(RoleConsumer, path)
	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["bridge"]; !ok {
		t.Fatalf("registry must nest under a bridge key, got keys %v", keys(raw))
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestValidateMessages(t *testing.T) {
	cfg := Default("producer", "x")
	dep := testDep("backend-api")
	dep.GitURL = ""
	dep.LocalCache = ""
	cfg.Dependencies["backend-api"] = dep

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"Invalid role: producer",
		"Dependency backend-api: git_url is required for git sync method",
		"Dependency backend-api: local_cache is required",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in:\n%s", want, msg)
		}
	}
}

func TestValidateOK(t *testing.T) {
	cfg := Default(RoleConsumer, "x")
	cfg.Dependencies["backend-api"] = testDep("backend-api")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDependencyNamesSorted(t *testing.T) {
	cfg := Default(RoleConsumer, "x")
	for _, n := range []string{"zeta", "alpha", "mid"} {
		cfg.Dependencies[n] = testDep(n)
	}
	got := cfg.DependencyNames()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}

func TestRemoveDependencyDeletesCache(t *testing.T) {
	root := t.TempDir()
	cfg := Default(RoleConsumer, filepath.Join(root, DefaultPath))
	dep := testDep("backend-api")
	cfg.Dependencies[dep.Name] = dep

	cache := filepath.Join(root, filepath.FromSlash(dep.LocalCache))
	if err := os.MkdirAll(filepath.Dir(cache), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cache, []byte("version: \"1.0\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := cfg.RemoveDependency("backend-api", root); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(cache); !os.IsNotExist(err) {
		t.Fatalf("cache file should be deleted")
	}
	if _, ok := cfg.Dependency("backend-api"); ok {
		t.Fatalf("dependency should be gone")
	}
}

func TestRemoveDependencyToleratesMissingCache(t *testing.T) {
	root := t.TempDir()
	cfg := Default(RoleConsumer, filepath.Join(root, DefaultPath))
	cfg.Dependencies["backend-api"] = testDep("backend-api")
	if err := cfg.RemoveDependency("backend-api", root); err != nil {
		t.Fatalf("remove with no cache file: %v", err)
	}
	if err := cfg.RemoveDependency("backend-api", root); err == nil {
		t.Fatalf("removing an unknown dependency should fail")
	}
}
