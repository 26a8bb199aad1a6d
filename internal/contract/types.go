// Package contract defines the API contract data model shared by providers
// and consumers: endpoints, data models, and the containing Contract document.
//
// A contract is an immutable-by-convention snapshot. Consumers never mutate a
// fetched contract; providers regenerate it from source. Endpoints are keyed
// by (method, path) and that pair is unique within one contract.
package contract

import (
	"fmt"
	"regexp"
	"strings"
)

// HTTP methods recognized in endpoint declarations and call sites.
var httpMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "DELETE": {},
	"PATCH": {}, "HEAD": {}, "OPTIONS": {},
}

// IsHTTPMethod reports whether m (upper-case) is a recognized HTTP method.
func IsHTTPMethod(m string) bool {
	_, ok := httpMethods[m]
	return ok
}

// Endpoint statuses.
const (
	StatusImplemented = "implemented"
	StatusDeprecated  = "deprecated"
	StatusPlanned     = "planned"
)

// Parameter describes a single endpoint parameter in declaration order.
type Parameter struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	Required bool   `yaml:"required" json:"required"`
}

// Response describes the declared success response of an endpoint.
type Response struct {
	Status int    `yaml:"status" json:"status"`
	Type   string `yaml:"type" json:"type"`
	// Schema names the model for object responses; Items for array elements.
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty"`
	Items  string `yaml:"items,omitempty" json:"items,omitempty"`
}

// Endpoint is one route in a provider contract.
//
// ImplementedAt, SourceFile and FunctionName are provenance: where and when
// the extractor found the route. Consumers is the set of consumer repo_ids
// recorded against this endpoint (order-insensitive).
type Endpoint struct {
	ID            string      `yaml:"id" json:"id"`
	Path          string      `yaml:"path" json:"path"`
	Method        string      `yaml:"method" json:"method"`
	Status        string      `yaml:"status" json:"status"`
	ImplementedAt string      `yaml:"implemented_at,omitempty" json:"implemented_at,omitempty"`
	SourceFile    string      `yaml:"source_file,omitempty" json:"source_file,omitempty"`
	FunctionName  string      `yaml:"function_name,omitempty" json:"function_name,omitempty"`
	Parameters    []Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Response      Response    `yaml:"response,omitempty" json:"response,omitempty"`
	Consumers     []string    `yaml:"consumers,omitempty" json:"consumers,omitempty"`
}

// Key identifies an endpoint within a contract.
type Key struct {
	Method string
	Path   string
}

func (k Key) String() string { return k.Method + " " + k.Path }

// Key returns the (method, path) identity of the endpoint.
func (e Endpoint) Key() Key { return Key{Method: e.Method, Path: e.Path} }

// Field is one field of a data model.
type Field struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
}

// Model is a named data model exposed by a provider.
type Model struct {
	Fields []Field `yaml:"fields" json:"fields"`
}

// Contract is the full published surface of a provider: its endpoints and
// data models, with a schema version and a last-updated timestamp that must
// round-trip byte-for-byte through save/load.
type Contract struct {
	Version     string           `yaml:"version" json:"version"`
	RepoID      string           `yaml:"repo_id" json:"repo_id"`
	Role        string           `yaml:"role" json:"role"`
	LastUpdated string           `yaml:"last_updated" json:"last_updated"`
	Endpoints   []Endpoint       `yaml:"endpoints" json:"endpoints"`
	Models      map[string]Model `yaml:"models" json:"models"`
}

// EndpointsByKey returns a (method, path) lookup over the contract endpoints.
// Later duplicates are ignored; Validate flags them.
func (c *Contract) EndpointsByKey() map[Key]Endpoint {
	m := make(map[Key]Endpoint, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if _, dup := m[ep.Key()]; !dup {
			m[ep.Key()] = ep
		}
	}
	return m
}

// FindEndpoint looks up an endpoint by normalized path and method.
func (c *Contract) FindEndpoint(method, path string) (Endpoint, bool) {
	want := NormalizePath(path)
	for _, ep := range c.Endpoints {
		if ep.Method == method && NormalizePath(ep.Path) == want {
			return ep, true
		}
	}
	return Endpoint{}, false
}

var reParamSeg = regexp.MustCompile(`\{[^}]*\}`)

// NormalizePath rewrites every {...} template segment to the literal token
// {param}, so paths differing only in parameter naming compare equal:
//
//	/users/{id}      -> /users/{param}
//	/users/{user_id} -> /users/{param}
func NormalizePath(path string) string {
	return reParamSeg.ReplaceAllString(path, "{param}")
}

// equalParams compares parameter lists in order.
func equalParams(a, b []Parameter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualForSync reports structural equality for sync-time diffing: all fields
// except the implementation timestamp and the consumer list.
func (e Endpoint) EqualForSync(o Endpoint) bool {
	return e.ID == o.ID &&
		e.Path == o.Path &&
		e.Method == o.Method &&
		e.Status == o.Status &&
		e.SourceFile == o.SourceFile &&
		e.FunctionName == o.FunctionName &&
		e.Response == o.Response &&
		equalParams(e.Parameters, o.Parameters)
}

// EqualForCompat reports structural equality for breaking-change detection:
// provenance (source file, function name, timestamp) and consumers are
// ignored so that refactors alone never count as contract modifications.
func (e Endpoint) EqualForCompat(o Endpoint) bool {
	return e.Path == o.Path &&
		e.Method == o.Method &&
		e.Status == o.Status &&
		e.Response == o.Response &&
		equalParams(e.Parameters, o.Parameters)
}

// Validate checks structural constraints on the contract and aggregates all
// issues into a single error, or returns nil when the contract is sound.
func (c *Contract) Validate() error {
	var errs errlist

	if strings.TrimSpace(c.Version) == "" {
		errs.add("contract.version must be non-empty")
	}
	seen := make(map[Key]struct{}, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		prefix := fmt.Sprintf("endpoints[%d] (%s %s)", i, ep.Method, ep.Path)
		if !IsHTTPMethod(ep.Method) {
			errs.add("%s: unknown HTTP method %q", prefix, ep.Method)
		}
		if !strings.HasPrefix(ep.Path, "/") {
			errs.add("%s: path must start with '/'", prefix)
		}
		switch ep.Status {
		case StatusImplemented, StatusDeprecated, StatusPlanned:
		default:
			errs.add("%s: unknown status %q", prefix, ep.Status)
		}
		if _, dup := seen[ep.Key()]; dup {
			errs.add("%s: duplicate (method, path) pair", prefix)
		} else {
			seen[ep.Key()] = struct{}{}
		}
	}
	return errs.err()
}
