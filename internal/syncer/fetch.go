package syncer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Fetcher materializes a provider repository at a local directory. It is the
// engine's only network-facing collaborator; tests substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) error
}

// GitFetcher performs a shallow (depth-1) clone via the git executable.
//
// Timeout bounds one fetch; zero means no limit. There is no universally
// right value for slow remotes, so the default stays unbounded and callers
// configure it.
type GitFetcher struct {
	Timeout time.Duration
}

func (g GitFetcher) Fetch(ctx context.Context, url, dir string) error {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("git clone %s: %w", url, err)
		}
		return fmt.Errorf("git clone %s: %s", url, msg)
	}
	return nil
}
