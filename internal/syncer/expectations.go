package syncer

import (
	"sort"
	"time"

	"github.com/goccy/go-yaml"

	"specbridge/internal/breaking"
	"specbridge/internal/config"
	"specbridge/internal/contract"
	"specbridge/internal/drift"
)

// recordExpectations scans this repository's outbound calls, keeps the ones
// the new provider contract actually serves, and writes them to the
// dependency's expectations file. Providers read these files back to learn
// who consumes each endpoint.
func (e *Engine) recordExpectations(dep config.Dependency, c *contract.Contract) error {
	calls, err := drift.ScanCalls(e.root)
	if err != nil {
		return err
	}

	byKey := make(map[string]*breaking.Expectation)
	var keys []string
	for _, call := range calls {
		ep, ok := c.FindEndpoint(call.Method, call.Path)
		if !ok {
			continue
		}
		key := call.Method + " " + call.Path
		exp, seen := byKey[key]
		if !seen {
			exp = &breaking.Expectation{Endpoint: key, Status: ep.Status}
			byKey[key] = exp
			keys = append(keys, key)
		}
		exp.UsageLocations = append(exp.UsageLocations, call.Location())
	}
	sort.Strings(keys)

	f := breaking.ExpectationsFile{
		Dependency:   dep.Name,
		LastUpdated:  contract.Timestamp(time.Now()),
		Expectations: make([]breaking.Expectation, 0, len(keys)),
	}
	for _, key := range keys {
		f.Expectations = append(f.Expectations, *byKey[key])
	}

	b, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return contract.WriteFileAtomic(breaking.ExpectationsPath(e.root, dep.Name), b)
}
