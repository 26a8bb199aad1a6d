package syncer

import (
	"time"

	"specbridge/internal/contract"
)

// Result is the outcome of syncing one dependency. A result is never
// partially filled: it is a clean success, a success-with-warning (offline
// fallback, Errors carries the underlying failure), or a failure with at
// least one error string.
type Result struct {
	DependencyName string   `json:"dependency_name"`
	Success        bool     `json:"success"`
	Changes        []string `json:"changes"`
	Errors         []string `json:"errors"`
	Timestamp      string   `json:"timestamp"`
	EndpointCount  int      `json:"endpoint_count"`
	CachedFile     string   `json:"cached_file,omitempty"`

	// Patch is a unified diff of the cached contract text, empty when
	// nothing changed. Not serialized; reporting decides whether to show it.
	Patch string `json:"-"`
}

// Stale reports whether the result came from the offline fallback: usable,
// but flagged with the original sync failure.
func (r Result) Stale() bool {
	return r.Success && len(r.Errors) > 0
}

func failure(name string, errs ...string) Result {
	return Result{
		DependencyName: name,
		Success:        false,
		Errors:         errs,
		Timestamp:      contract.Timestamp(time.Now()),
	}
}
