// Package syncer pulls provider contracts into the local cache. One sync
// fetches the provider repo, reads the contract file, records this repo's
// usage expectations, atomically replaces the cached copy and reports what
// changed. Batch syncs run through a bounded worker pool.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"specbridge/internal/config"
	"specbridge/internal/contract"
	"specbridge/internal/textdiff"
)

// maxConcurrentSyncs bounds the batch worker pool; beyond this, extra git
// clones just fight over bandwidth.
const maxConcurrentSyncs = 5

// ProgressFunc receives per-dependency lifecycle events during a batch sync:
// "starting", then "completed" or "failed".
type ProgressFunc func(dependency, status string)

// Engine syncs dependency contracts for one repository.
type Engine struct {
	cfg      *config.Config
	root     string
	log      *zap.Logger
	fetcher  Fetcher
	progress ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher substitutes the repository fetcher. The default is a GitFetcher
// with no timeout.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithProgress installs a batch progress callback. The callback may be
// invoked from multiple goroutines.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// WithGitTimeout bounds each git fetch. Zero leaves fetches unbounded.
func WithGitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.fetcher = GitFetcher{Timeout: d} }
}

// New builds an Engine for the repository at root using the given registry.
func New(cfg *config.Config, root string, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		root:    root,
		log:     log,
		fetcher: GitFetcher{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// SyncDependency syncs a single named dependency. All failure modes are
// reported through the Result; the method itself never returns an error.
func (e *Engine) SyncDependency(ctx context.Context, name string) Result {
	dep, ok := e.cfg.Dependency(name)
	if !ok {
		return failure(name, fmt.Sprintf("Dependency %s not found in configuration", name))
	}
	switch dep.SyncMethod {
	case config.SyncGit:
		return e.syncGit(ctx, dep)
	case config.SyncHTTP:
		return failure(name, "HTTP sync not yet implemented")
	case config.SyncS3:
		return failure(name, "S3 sync not yet implemented")
	default:
		return failure(name, fmt.Sprintf("Unknown sync method: %s", dep.SyncMethod))
	}
}

// syncGit fetches the provider repo into a temp workspace and installs its
// contract into the local cache.
//
// Only connectivity failures fall back to the cached copy. A repo that clones
// fine but lacks the contract file, or ships one that does not parse, is a
// configuration or data problem that staleness cannot paper over.
func (e *Engine) syncGit(ctx context.Context, dep config.Dependency) Result {
	e.log.Debug("syncing dependency",
		zap.String("dependency", dep.Name),
		zap.String("git_url", dep.GitURL))

	tmp, err := os.MkdirTemp("", "specbridge-sync-")
	if err != nil {
		return failure(dep.Name, fmt.Sprintf("Failed to create temp workspace: %v", err))
	}
	defer os.RemoveAll(tmp)

	repoDir := filepath.Join(tmp, "repo")
	if err := e.fetcher.Fetch(ctx, dep.GitURL, repoDir); err != nil {
		return e.cachedFallback(dep, fmt.Sprintf("Git operation failed: %v", err))
	}

	src := filepath.Join(repoDir, filepath.FromSlash(dep.ContractPath))
	raw, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return failure(dep.Name, fmt.Sprintf("Contract file not found in repository: %s", dep.ContractPath))
		}
		return failure(dep.Name, fmt.Sprintf("Failed to read contract file: %v", err))
	}
	newC, err := contract.Parse(raw)
	if err != nil {
		return failure(dep.Name, fmt.Sprintf("Failed to parse contract: %v", err))
	}

	cachePath := filepath.Join(e.root, filepath.FromSlash(dep.LocalCache))
	oldRaw, readErr := os.ReadFile(cachePath)
	var oldC *contract.Contract
	if readErr == nil {
		// A corrupt cache is treated as no cache; the diff then reports
		// everything as added rather than failing the sync.
		if c, err := contract.Parse(oldRaw); err == nil {
			oldC = c
		}
	}

	// Record what this repo expects from the provider before the cache is
	// replaced. Best effort: a scan failure degrades expectations, not sync.
	if err := e.recordExpectations(dep, newC); err != nil {
		e.log.Warn("failed to record consumer expectations",
			zap.String("dependency", dep.Name),
			zap.Error(err))
	}

	if err := contract.WriteFileAtomic(cachePath, raw); err != nil {
		return failure(dep.Name, fmt.Sprintf("Failed to write cached contract: %v", err))
	}

	d := contract.Compare(oldC, newC)
	return Result{
		DependencyName: dep.Name,
		Success:        true,
		Changes:        d.ChangeDescriptions(),
		Errors:         []string{},
		Timestamp:      contract.Timestamp(time.Now()),
		EndpointCount:  len(newC.Endpoints),
		CachedFile:     cachePath,
		Patch:          textdiff.Unified("a/"+dep.LocalCache, "b/"+dep.LocalCache, oldRaw, raw),
	}
}

// cachedFallback resolves a connectivity failure against the local cache:
// a readable cached contract yields success-with-warning, otherwise the
// original failure is reported along with why the cache could not help.
func (e *Engine) cachedFallback(dep config.Dependency, cause string) Result {
	cachePath := filepath.Join(e.root, filepath.FromSlash(dep.LocalCache))
	raw, err := os.ReadFile(cachePath)
	if err != nil {
		return failure(dep.Name, cause, "No cached contract available")
	}
	c, err := contract.Parse(raw)
	if err != nil {
		return failure(dep.Name, cause, fmt.Sprintf("Cached contract is unreadable: %v", err))
	}
	e.log.Warn("sync failed, using cached contract",
		zap.String("dependency", dep.Name),
		zap.String("cause", cause))
	return Result{
		DependencyName: dep.Name,
		Success:        true,
		Changes:        []string{"Sync failed, using cached contract"},
		Errors:         []string{cause},
		Timestamp:      contract.Timestamp(time.Now()),
		EndpointCount:  len(c.Endpoints),
		CachedFile:     cachePath,
	}
}

// SyncAll syncs every configured dependency and returns results sorted by
// dependency name. With no dependencies the result is an empty slice; with
// exactly one the sync runs inline, skipping the pool.
func (e *Engine) SyncAll(ctx context.Context) []Result {
	names := e.cfg.DependencyNames()
	if len(names) == 0 {
		return []Result{}
	}
	if len(names) == 1 {
		return []Result{e.SyncDependency(ctx, names[0])}
	}

	results := make([]Result, len(names))
	g := new(errgroup.Group)
	g.SetLimit(min(len(names), maxConcurrentSyncs))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			results[i] = e.syncWithProgress(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].DependencyName < results[j].DependencyName
	})
	return results
}

// syncWithProgress wraps one pool sync with lifecycle events and converts a
// worker panic into a failed result so one bad dependency cannot take down
// the batch.
func (e *Engine) syncWithProgress(ctx context.Context, name string) (res Result) {
	e.emit(name, "starting")
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("sync panicked",
				zap.String("dependency", name),
				zap.Any("panic", r))
			res = failure(name, fmt.Sprintf("Unexpected error during sync: %v", r))
			e.emit(name, "failed")
		}
	}()
	res = e.SyncDependency(ctx, name)
	if res.Success {
		e.emit(name, "completed")
	} else {
		e.emit(name, "failed")
	}
	return res
}

func (e *Engine) emit(name, status string) {
	if e.progress != nil {
		e.progress(name, status)
	}
}
