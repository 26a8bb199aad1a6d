// Package drift statically locates outbound HTTP calls in consumer source
// and checks them against a cached provider contract. Issues are data, not
// errors: a detection run only fails when it cannot run at all.
package drift

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"specbridge/internal/config"
	"specbridge/internal/contract"
)

// Issue severities. The enumeration is closed.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue is one detected mismatch (or a precondition failure) for a
// dependency.
type Issue struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	Location   string `json:"location"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

// Detector checks consumer call sites against cached contracts.
type Detector struct {
	cfg  *config.Config
	root string
	log  *zap.Logger
}

// New returns a detector for the repository at root using the given
// registry.
func New(cfg *config.Config, root string, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{cfg: cfg, root: root, log: log}
}

// Detect checks every extractable call site against the named dependency's
// cached contract. Precondition failures (unknown dependency, missing or
// unparsable cache) each yield a single explanatory issue instead of an
// error.
func (d *Detector) Detect(name string) []Issue {
	dep, ok := d.cfg.Dependency(name)
	if !ok {
		return []Issue{{
			Type:       "configuration_error",
			Severity:   SeverityError,
			Message:    fmt.Sprintf("Dependency %q not found in configuration", name),
			Suggestion: "Add the dependency using 'specbridge add-dependency'",
		}}
	}

	cachePath := filepath.Join(d.root, filepath.FromSlash(dep.LocalCache))
	c, err := contract.Load(cachePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Issue{{
				Type:       "missing_contract",
				Severity:   SeverityError,
				Message:    fmt.Sprintf("Contract file not found: %s", dep.LocalCache),
				Suggestion: "Run 'specbridge sync' to fetch the contract",
			}}
		}
		return []Issue{{
			Type:       "invalid_contract",
			Severity:   SeverityError,
			Message:    fmt.Sprintf("Failed to load contract: %v", err),
			Suggestion: "Check contract file format or re-sync",
		}}
	}

	calls, err := ScanCalls(d.root)
	if err != nil {
		return []Issue{{
			Type:       "scan_error",
			Severity:   SeverityError,
			Message:    fmt.Sprintf("Failed to scan consumer source: %v", err),
			Suggestion: "Check repository permissions",
		}}
	}
	d.log.Debug("scanned consumer source",
		zap.String("dependency", name),
		zap.Int("calls", len(calls)),
		zap.Int("endpoints", len(c.Endpoints)))

	var issues []Issue
	for _, call := range calls {
		if issue := checkCall(call, c); issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues
}

// DetectAll runs Detect for every configured dependency.
func (d *Detector) DetectAll() map[string][]Issue {
	results := make(map[string][]Issue, len(d.cfg.Dependencies))
	for _, name := range d.cfg.DependencyNames() {
		results[name] = d.Detect(name)
	}
	return results
}

// checkCall returns nil when the call matches a contract endpoint, otherwise
// a missing_endpoint issue with a repair suggestion.
func checkCall(call Call, c *contract.Contract) *Issue {
	if _, ok := c.FindEndpoint(call.Method, call.Path); ok {
		return nil
	}
	return &Issue{
		Type:       "missing_endpoint",
		Severity:   SeverityError,
		Endpoint:   call.Path,
		Method:     call.Method,
		Location:   call.Location(),
		Message:    fmt.Sprintf("API call to %s %s does not match any endpoint in contract", call.Method, call.Path),
		Suggestion: suggest(call, c),
	}
}

// suggest generates a repair hint in three tiers: near-miss endpoints of the
// same shape, a method mismatch on the same path, or a generic nudge.
// The near-miss rule is segment-count equality with at most one segment that
// neither matches literally nor is a template parameter.
func suggest(call Call, c *contract.Contract) string {
	callSegs := splitSegments(call.Path)

	var similar []string
	for _, ep := range c.Endpoints {
		epSegs := splitSegments(ep.Path)
		if len(epSegs) != len(callSegs) {
			continue
		}
		matches := 0
		for i := range callSegs {
			if callSegs[i] == epSegs[i] || strings.Contains(epSegs[i], "{") {
				matches++
			}
		}
		if matches >= len(callSegs)-1 {
			similar = append(similar, ep.Method+" "+ep.Path)
		}
	}
	if len(similar) > 0 {
		return "Did you mean one of these endpoints? " + strings.Join(similar, ", ")
	}

	want := contract.NormalizePath(call.Path)
	for _, ep := range c.Endpoints {
		if contract.NormalizePath(ep.Path) == want {
			return fmt.Sprintf("Endpoint path exists but method is %s, not %s", ep.Method, call.Method)
		}
	}
	return "Either sync the latest contract or remove this API call"
}

func splitSegments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
