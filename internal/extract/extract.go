// Package extract scans provider source for route registrations and data
// model declarations, producing a Contract.
//
// Recognition is deliberately shallow: a line-oriented scan over a small
// fixed vocabulary, not a type checker. A route is an attribute-style
// decorator whose method name is an HTTP verb and whose first literal
// argument is the path (@app.get("/users")); a model is a class inheriting
// the BaseModel marker. Files that cannot be read or yield nothing are
// skipped, never fatal.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"specbridge/internal/contract"
)

// Extractor scans a provider repository rooted at Root.
type Extractor struct {
	root string
	log  *zap.Logger
	now  func() time.Time
}

// New returns an extractor over the given repository root.
func New(root string, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{root: root, log: log, now: time.Now}
}

var (
	// @app.get("/users") / @router.post('/users/{id}'): any identifier
	// receiver, HTTP-verb attribute, first argument a string literal.
	reRoute = regexp.MustCompile(`^\s*@([A-Za-z_]\w*)\.(get|post|put|delete|patch|head|options)\(\s*["']([^"']*)["']`)

	// def handler(params) -> Ret:   (async or not)
	reDef = regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*(?:->\s*([^:]+?)\s*)?:`)

	// class User(BaseModel):
	reModel = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*:`)

	// field: type   (one level of indentation inside a model class)
	reField = regexp.MustCompile(`^\s+([A-Za-z_]\w*)\s*:\s*([^=#]+?)\s*(?:=.*)?$`)

	reListAnno = regexp.MustCompile(`^(?:List|list)\[\s*([^\]]+?)\s*\]$`)
)

// Extract expands the glob patterns relative to the extractor root, scans
// every matched file in lexicographic path order, and assembles a provider
// contract. Duplicate (method, path) pairs keep the endpoint from the file
// that sorts first; consumers rely on that provenance being deterministic.
func (x *Extractor) Extract(patterns []string) (*contract.Contract, error) {
	paths, err := x.expand(patterns)
	if err != nil {
		return nil, err
	}

	c := &contract.Contract{
		Version:     "1.0",
		Role:        "provider",
		LastUpdated: contract.Timestamp(x.now()),
		Endpoints:   []contract.Endpoint{},
		Models:      map[string]contract.Model{},
	}

	seen := make(map[contract.Key]struct{})
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(x.root, filepath.FromSlash(rel)))
		if err != nil {
			x.log.Debug("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			continue
		}
		endpoints, models := x.scanFile(rel, string(data))
		for _, ep := range endpoints {
			if _, dup := seen[ep.Key()]; dup {
				continue // first occurrence wins
			}
			seen[ep.Key()] = struct{}{}
			c.Endpoints = append(c.Endpoints, ep)
		}
		for name, m := range models {
			if _, dup := c.Models[name]; !dup {
				c.Models[name] = m
			}
		}
	}
	return c, nil
}

// expand resolves the glob patterns into a deduplicated, lexicographically
// sorted list of repo-relative paths.
func (x *Extractor) expand(patterns []string) ([]string, error) {
	uniq := make(map[string]struct{})
	for _, pat := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(x.root, filepath.FromSlash(pat)))
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(x.root, m)
			if err != nil {
				continue
			}
			uniq[filepath.ToSlash(rel)] = struct{}{}
		}
	}
	paths := make([]string, 0, len(uniq))
	for p := range uniq {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// scanFile walks the file line by line. A route decorator is bound to the
// next def declaration that follows it; model classes collect their
// annotated fields until the indentation block ends.
func (x *Extractor) scanFile(rel, src string) ([]contract.Endpoint, map[string]contract.Model) {
	lines := strings.Split(src, "\n")
	var endpoints []contract.Endpoint
	models := make(map[string]contract.Model)

	stamp := contract.Timestamp(x.now())

	for i := 0; i < len(lines); i++ {
		if m := reRoute.FindStringSubmatch(lines[i]); m != nil {
			method := strings.ToUpper(m[2])
			path := m[3]
			// Find the decorated function; tolerate stacked decorators.
			for j := i + 1; j < len(lines) && j <= i+8; j++ {
				if strings.TrimSpace(lines[j]) == "" || strings.HasPrefix(strings.TrimSpace(lines[j]), "@") {
					continue
				}
				dm := reDef.FindStringSubmatch(lines[j])
				if dm == nil {
					break
				}
				endpoints = append(endpoints, contract.Endpoint{
					ID:            endpointID(method, path),
					Path:          path,
					Method:        method,
					Status:        contract.StatusImplemented,
					ImplementedAt: stamp,
					SourceFile:    rel,
					FunctionName:  dm[1],
					Parameters:    parseParams(dm[2]),
					Response:      parseReturn(dm[3]),
				})
				break
			}
			continue
		}
		if m := reModel.FindStringSubmatch(lines[i]); m != nil && isModelBase(m[2]) {
			name := m[1]
			fields, consumed := parseFields(lines[i+1:])
			models[name] = contract.Model{Fields: fields}
			i += consumed
		}
	}
	return endpoints, models
}

// isModelBase reports whether the class base list names the data-model
// marker (pydantic BaseModel, possibly qualified).
func isModelBase(bases string) bool {
	for _, b := range strings.Split(bases, ",") {
		b = strings.TrimSpace(b)
		if b == "BaseModel" || strings.HasSuffix(b, ".BaseModel") {
			return true
		}
	}
	return false
}

// parseParams splits a def argument list into ordered parameters. self/cls
// are dropped; a parameter with a default value is optional.
func parseParams(args string) []contract.Parameter {
	var params []contract.Parameter
	for _, raw := range splitArgs(args) {
		arg := strings.TrimSpace(raw)
		if arg == "" || arg == "self" || arg == "cls" || strings.HasPrefix(arg, "*") {
			continue
		}
		hasDefault := false
		if eq := strings.Index(arg, "="); eq >= 0 {
			// "x: int = 1" has a colon before '='; "x=1" does not.
			if col := strings.Index(arg, ":"); col < 0 || col > eq {
				hasDefault = true
				arg = arg[:eq]
			} else {
				hasDefault = true
			}
		}
		p := contract.Parameter{Required: !hasDefault}
		if col := strings.Index(arg, ":"); col >= 0 {
			p.Name = strings.TrimSpace(arg[:col])
			typ := strings.TrimSpace(arg[col+1:])
			if eq := strings.Index(typ, "="); eq >= 0 {
				typ = strings.TrimSpace(typ[:eq])
			}
			p.Type = typ
		} else {
			p.Name = strings.TrimSpace(arg)
		}
		if p.Name != "" {
			params = append(params, p)
		}
	}
	return params
}

// splitArgs splits on top-level commas, respecting brackets so annotations
// like Dict[str, int] survive.
func splitArgs(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// parseReturn maps a return annotation to a response descriptor. List[X]
// becomes an array of X, a bare name becomes an object schema, and no
// annotation is recorded as unknown.
func parseReturn(anno string) contract.Response {
	anno = strings.TrimSpace(anno)
	if anno == "" || anno == "None" {
		return contract.Response{Status: 200, Type: "unknown"}
	}
	if m := reListAnno.FindStringSubmatch(anno); m != nil {
		return contract.Response{Status: 200, Type: "array", Items: m[1]}
	}
	return contract.Response{Status: 200, Type: "object", Schema: anno}
}

// parseFields collects annotated field lines following a model class header.
// It stops at the first non-empty line at column zero and skips methods.
func parseFields(rest []string) ([]contract.Field, int) {
	var fields []contract.Field
	consumed := 0
	for _, line := range rest {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			consumed++
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		consumed++
		if strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "async def ") ||
			strings.HasPrefix(trimmed, "@") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if m := reField.FindStringSubmatch(line); m != nil {
			fields = append(fields, contract.Field{Name: m[1], Type: strings.TrimSpace(m[2])})
		}
	}
	return fields, consumed
}

var reIDStrip = regexp.MustCompile(`[^a-z0-9]+`)

// endpointID derives a stable identifier from method and path:
// GET /users/{id} -> get-users-id.
func endpointID(method, path string) string {
	slug := reIDStrip.ReplaceAllString(strings.ToLower(path), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "root"
	}
	return strings.ToLower(method) + "-" + slug
}
