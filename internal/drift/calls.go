package drift

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"specbridge/internal/contract"
	"specbridge/internal/srcwalk"
)

// Call is one outbound HTTP call site found in consumer source.
type Call struct {
	Method string // upper-case HTTP method
	Path   string // path component, leading slash, no query/fragment
	File   string // repo-relative source path
	Line   int    // 1-based line number
}

func (c Call) Location() string {
	return c.File + ":" + strconv.Itoa(c.Line)
}

// httpReceivers enumerates the client identifiers whose verb-named attribute
// calls are treated as HTTP requests. Adding support for a new client
// library is a one-line change here.
var httpReceivers = map[string]struct{}{
	"requests": {},
	"httpx":    {},
	"client":   {},
	"session":  {},
}

// receiver.verb( where the receiver is not itself an attribute access
// (self.client.get is out of vocabulary), hence the non-word non-dot guard.
var reCallSite = regexp.MustCompile(`(^|[^\w.])([A-Za-z_]\w*)\.([A-Za-z_]\w*)\(`)

// ScanCalls walks the repository at root and extracts every recognizable
// outbound call. Files that cannot be read are skipped; a single bad file
// never blocks scanning the rest of the tree.
func ScanCalls(root string) ([]Call, error) {
	files, err := srcwalk.Collect(root, srcwalk.PythonSource())
	if err != nil {
		return nil, err
	}
	var calls []Call
	for _, f := range files {
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			continue
		}
		calls = append(calls, extractCalls(f.RelPath, string(data))...)
	}
	return calls, nil
}

// extractCalls scans one file line by line for recognized call expressions.
func extractCalls(rel, src string) []Call {
	var calls []Call
	for i, line := range strings.Split(src, "\n") {
		for _, m := range reCallSite.FindAllStringSubmatchIndex(line, -1) {
			recv := line[m[4]:m[5]]
			verb := line[m[6]:m[7]]
			method := strings.ToUpper(verb)
			if !contract.IsHTTPMethod(method) {
				continue
			}
			if _, ok := httpReceivers[recv]; !ok {
				continue
			}
			url, ok := extractURLExpr(line[m[1]:]) // text after '('
			if !ok || url == "" {
				continue
			}
			calls = append(calls, Call{
				Method: method,
				Path:   pathFromURL(url),
				File:   rel,
				Line:   i + 1,
			})
		}
	}
	return calls
}

// extractURLExpr evaluates the first positional argument of a call as far as
// static analysis allows:
//
//   - string literal:        "http://api.example.com/users"
//   - f-string:              f"/users/{user_id}"  (dynamic parts -> {param})
//   - concatenation:         BASE + "/users"      (both sides, recursively)
//
// Anything else is not extractable and the call site is skipped.
func extractURLExpr(s string) (string, bool) {
	s = strings.TrimLeft(s, " \t")
	var out strings.Builder

	for {
		part, rest, ok := readStringTerm(s)
		if !ok {
			return "", false
		}
		out.WriteString(part)
		rest = strings.TrimLeft(rest, " \t")
		if strings.HasPrefix(rest, "+") {
			s = strings.TrimLeft(rest[1:], " \t")
			continue
		}
		// Argument ends at ',' or ')'; anything else means the expression
		// continues in a form we cannot evaluate.
		if rest == "" || rest[0] == ',' || rest[0] == ')' {
			return out.String(), true
		}
		return "", false
	}
}

// readStringTerm consumes one string term (plain or f-string) from the head
// of s and returns its static value plus the remainder.
func readStringTerm(s string) (val, rest string, ok bool) {
	fstring := false
	if strings.HasPrefix(s, "f\"") || strings.HasPrefix(s, "f'") {
		fstring = true
		s = s[1:]
	}
	if s == "" || (s[0] != '"' && s[0] != '\'') {
		return "", "", false
	}
	quote := s[0]
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		switch {
		case c == quote:
			return b.String(), s[i+1:], true
		case c == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case fstring && c == '{':
			if i+1 < len(s) && s[i+1] == '{' { // escaped literal brace
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return "", "", false
			}
			// Dynamic fragment: keep a placeholder token so the path still
			// normalizes against templated endpoint segments.
			b.WriteString("{param}")
			i += end + 1
		case fstring && c == '}':
			if i+1 < len(s) && s[i+1] == '}' { // escaped literal brace
				b.WriteByte('}')
				i += 2
				continue
			}
			b.WriteByte('}')
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", "", false // unterminated
}

// pathFromURL reduces a full or partial URL to its path component:
// scheme and host are dropped, a leading slash is guaranteed, and query
// string plus fragment are stripped.
func pathFromURL(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
		if j := strings.IndexByte(url, '/'); j >= 0 {
			url = url[j:]
		} else {
			url = "/"
		}
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	return url
}
