package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"specbridge/internal/breaking"
	"specbridge/internal/config"
	"specbridge/internal/contract"
)

const providerContract = `version: "1.0"
repo_id: backend-api
role: provider
last_updated: "2024-11-27T10:00:00Z"
endpoints:
  - id: get-users
    path: /users
    method: GET
    status: implemented
  - id: get-users-id
    path: /users/{user_id}
    method: GET
    status: implemented
models: {}
`

// stubFetcher materializes a fixed file set instead of cloning, or fails.
type stubFetcher struct {
	files map[string][]byte
	err   error
	panic bool
}

func (s stubFetcher) Fetch(_ context.Context, _ string, dir string) error {
	if s.panic {
		panic("fetcher exploded")
	}
	if s.err != nil {
		return s.err
	}
	for rel, body := range s.files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, body, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func testDep(name string) config.Dependency {
	return config.Dependency{
		Name:         name,
		Type:         "api",
		SyncMethod:   config.SyncGit,
		GitURL:       "https://git.example.com/" + name + ".git",
		ContractPath: "contracts/api.yaml",
		LocalCache:   config.ContractsDir + "/" + name + "-api.yaml",
	}
}

func testEngine(t *testing.T, deps []config.Dependency, opts ...Option) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(config.RoleConsumer, filepath.Join(root, config.DefaultPath))
	for _, dep := range deps {
		cfg.Dependencies[dep.Name] = dep
	}
	return New(cfg, root, nil, opts...), root
}

func TestSyncUnknownDependency(t *testing.T) {
	eng, _ := testEngine(t, nil)
	res := eng.SyncDependency(context.Background(), "ghost")
	if res.Success {
		t.Fatalf("result = %#v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "Dependency ghost not found in configuration" {
		t.Fatalf("errors = %#v", res.Errors)
	}
}

func TestSyncUnsupportedMethods(t *testing.T) {
	httpDep := testDep("over-http")
	httpDep.SyncMethod = config.SyncHTTP
	s3Dep := testDep("over-s3")
	s3Dep.SyncMethod = config.SyncS3
	weird := testDep("weird")
	weird.SyncMethod = "carrier-pigeon"
	eng, _ := testEngine(t, []config.Dependency{httpDep, s3Dep, weird})

	cases := []struct{ name, want string }{
		{"over-http", "HTTP sync not yet implemented"},
		{"over-s3", "S3 sync not yet implemented"},
		{"weird", "Unknown sync method: carrier-pigeon"},
	}
	for _, c := range cases {
		res := eng.SyncDependency(context.Background(), c.name)
		if res.Success || len(res.Errors) != 1 || res.Errors[0] != c.want {
			t.Fatalf("%s: %#v", c.name, res)
		}
	}
}

func TestSyncFirstTime(t *testing.T) {
	dep := testDep("backend-api")
	fetcher := stubFetcher{files: map[string][]byte{dep.ContractPath: []byte(providerContract)}}
	eng, root := testEngine(t, []config.Dependency{dep}, WithFetcher(fetcher))

	res := eng.SyncDependency(context.Background(), "backend-api")
	if !res.Success || res.Stale() {
		t.Fatalf("result = %#v", res)
	}
	if res.EndpointCount != 2 {
		t.Fatalf("endpoint count = %d", res.EndpointCount)
	}
	if len(res.Changes) != 2 || res.Changes[0] != "Added: GET /users" {
		t.Fatalf("changes = %#v", res.Changes)
	}
	if res.Patch == "" || !strings.Contains(res.Patch, "+++ b/"+dep.LocalCache) {
		t.Fatalf("patch = %q", res.Patch)
	}

	cached, err := contract.Load(filepath.Join(root, filepath.FromSlash(dep.LocalCache)))
	if err != nil {
		t.Fatalf("cache not written: %v", err)
	}
	if cached.LastUpdated != "2024-11-27T10:00:00Z" {
		t.Fatalf("cached contract must be byte-preserved: %q", cached.LastUpdated)
	}
}

func TestSyncNoChanges(t *testing.T) {
	dep := testDep("backend-api")
	fetcher := stubFetcher{files: map[string][]byte{dep.ContractPath: []byte(providerContract)}}
	eng, _ := testEngine(t, []config.Dependency{dep}, WithFetcher(fetcher))

	if res := eng.SyncDependency(context.Background(), "backend-api"); !res.Success {
		t.Fatalf("first sync failed: %#v", res)
	}
	res := eng.SyncDependency(context.Background(), "backend-api")
	if !res.Success || len(res.Changes) != 0 {
		t.Fatalf("second sync must be quiet: %#v", res)
	}
	if res.Patch != "" {
		t.Fatalf("unchanged cache must yield no patch: %q", res.Patch)
	}
}

func TestSyncRecordsExpectations(t *testing.T) {
	dep := testDep("backend-api")
	fetcher := stubFetcher{files: map[string][]byte{dep.ContractPath: []byte(providerContract)}}
	eng, root := testEngine(t, []config.Dependency{dep}, WithFetcher(fetcher))

	app := filepath.Join(root, "app")
	if err := os.MkdirAll(app, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := "import requests\n\ndef load(uid):\n    requests.get(\"/users\")\n    requests.get(f\"/users/{uid}\")\n    requests.get(\"/unknown\")\n"
	if err := os.WriteFile(filepath.Join(app, "api.py"), []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if res := eng.SyncDependency(context.Background(), "backend-api"); !res.Success {
		t.Fatalf("sync: %#v", res)
	}

	exps := breaking.LoadExpectations(root, "backend-api")
	if len(exps) != 2 {
		t.Fatalf("expectations = %#v", exps)
	}
	if locs := exps["GET /users"]; len(locs) != 1 || locs[0] != "app/api.py:4" {
		t.Fatalf("locations = %#v", locs)
	}
	if _, ok := exps["GET /users/{param}"]; !ok {
		t.Fatalf("templated call missing: %#v", exps)
	}
	if _, ok := exps["GET /unknown"]; ok {
		t.Fatalf("calls outside the contract must not become expectations")
	}
}

func TestSyncContractFileMissingIsHardFailure(t *testing.T) {
	dep := testDep("backend-api")
	eng, root := testEngine(t, []config.Dependency{dep}, WithFetcher(stubFetcher{}))

	// Even with a usable cache, a repo without the contract file is a
	// configuration problem, not a connectivity one.
	cache := filepath.Join(root, filepath.FromSlash(dep.LocalCache))
	if err := contract.WriteFileAtomic(cache, []byte(providerContract)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res := eng.SyncDependency(context.Background(), "backend-api")
	if res.Success {
		t.Fatalf("result = %#v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "Contract file not found in repository: contracts/api.yaml" {
		t.Fatalf("errors = %#v", res.Errors)
	}
}

func TestSyncUnparsableContractIsHardFailure(t *testing.T) {
	dep := testDep("backend-api")
	fetcher := stubFetcher{files: map[string][]byte{dep.ContractPath: []byte("[unclosed\n")}}
	eng, _ := testEngine(t, []config.Dependency{dep}, WithFetcher(fetcher))

	res := eng.SyncDependency(context.Background(), "backend-api")
	if res.Success {
		t.Fatalf("result = %#v", res)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Failed to parse contract:") {
		t.Fatalf("errors = %#v", res.Errors)
	}
}

func TestSyncOfflineFallbackWithCache(t *testing.T) {
	dep := testDep("backend-api")
	eng, root := testEngine(t, []config.Dependency{dep},
		WithFetcher(stubFetcher{err: errors.New("could not resolve host")}))

	cache := filepath.Join(root, filepath.FromSlash(dep.LocalCache))
	if err := contract.WriteFileAtomic(cache, []byte(providerContract)); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res := eng.SyncDependency(context.Background(), "backend-api")
	if !res.Success || !res.Stale() {
		t.Fatalf("result = %#v", res)
	}
	if res.EndpointCount != 2 {
		t.Fatalf("endpoint count = %d", res.EndpointCount)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "could not resolve host") {
		t.Fatalf("errors = %#v", res.Errors)
	}
	if len(res.Changes) != 1 || res.Changes[0] != "Sync failed, using cached contract" {
		t.Fatalf("changes = %#v", res.Changes)
	}
}

func TestSyncOfflineNoCacheFails(t *testing.T) {
	dep := testDep("backend-api")
	eng, _ := testEngine(t, []config.Dependency{dep},
		WithFetcher(stubFetcher{err: errors.New("connection refused")}))

	res := eng.SyncDependency(context.Background(), "backend-api")
	if res.Success {
		t.Fatalf("result = %#v", res)
	}
	if len(res.Errors) != 2 || res.Errors[1] != "No cached contract available" {
		t.Fatalf("errors = %#v", res.Errors)
	}
}

func TestSyncAllEmpty(t *testing.T) {
	eng, _ := testEngine(t, nil)
	results := eng.SyncAll(context.Background())
	if results == nil || len(results) != 0 {
		t.Fatalf("results = %#v", results)
	}
}

func TestSyncAllParallel(t *testing.T) {
	var deps []config.Dependency
	for _, name := range []string{"golf", "alpha", "echo", "bravo", "foxtrot", "delta", "charlie"} {
		deps = append(deps, testDep(name))
	}
	fetcher := stubFetcher{files: map[string][]byte{"contracts/api.yaml": []byte(providerContract)}}

	var mu sync.Mutex
	events := map[string][]string{}
	eng, _ := testEngine(t, deps, WithFetcher(fetcher),
		WithProgress(func(dep, status string) {
			mu.Lock()
			events[dep] = append(events[dep], status)
			mu.Unlock()
		}))

	results := eng.SyncAll(context.Background())
	if len(results) != len(deps) {
		t.Fatalf("results = %#v", results)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].DependencyName > results[i].DependencyName {
			t.Fatalf("results not sorted: %q before %q",
				results[i-1].DependencyName, results[i].DependencyName)
		}
	}
	for _, res := range results {
		if !res.Success {
			t.Fatalf("sync failed: %#v", res)
		}
		got := events[res.DependencyName]
		if len(got) != 2 || got[0] != "starting" || got[1] != "completed" {
			t.Fatalf("%s events = %v", res.DependencyName, got)
		}
	}
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	good := testDep("good")
	bad := testDep("bad")
	bad.SyncMethod = config.SyncHTTP
	fetcher := stubFetcher{files: map[string][]byte{"contracts/api.yaml": []byte(providerContract)}}

	var mu sync.Mutex
	events := map[string][]string{}
	eng, _ := testEngine(t, []config.Dependency{good, bad}, WithFetcher(fetcher),
		WithProgress(func(dep, status string) {
			mu.Lock()
			events[dep] = append(events[dep], status)
			mu.Unlock()
		}))

	results := eng.SyncAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %#v", results)
	}
	if results[0].DependencyName != "bad" || results[0].Success {
		t.Fatalf("bad result = %#v", results[0])
	}
	if results[1].DependencyName != "good" || !results[1].Success {
		t.Fatalf("good result = %#v", results[1])
	}
	if got := events["bad"]; len(got) != 2 || got[1] != "failed" {
		t.Fatalf("bad events = %v", got)
	}
}

func TestSyncAllRecoversFromPanic(t *testing.T) {
	a := testDep("aaa")
	b := testDep("bbb")
	eng, _ := testEngine(t, []config.Dependency{a, b}, WithFetcher(stubFetcher{panic: true}))

	results := eng.SyncAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %#v", results)
	}
	for _, res := range results {
		if res.Success {
			t.Fatalf("result = %#v", res)
		}
		if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Unexpected error during sync") {
			t.Fatalf("errors = %#v", res.Errors)
		}
	}
}
