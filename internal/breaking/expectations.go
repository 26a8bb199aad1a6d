package breaking

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"specbridge/internal/config"
	"specbridge/internal/contract"
)

// Expectation records one endpoint a consumer depends on and where it is
// called from.
type Expectation struct {
	Endpoint       string   `yaml:"endpoint"` // "METHOD /path"
	Status         string   `yaml:"status"`
	UsageLocations []string `yaml:"usage_locations"`
}

// ExpectationsFile is the consumer-expectations document written by the sync
// engine, one per dependency.
type ExpectationsFile struct {
	Dependency   string        `yaml:"dependency"`
	LastUpdated  string        `yaml:"last_updated"`
	Expectations []Expectation `yaml:"expectations"`
}

// ExpectationsPath resolves the conventional expectations file location for
// a dependency.
func ExpectationsPath(repoRoot, dependency string) string {
	return filepath.Join(repoRoot, filepath.FromSlash(config.ContractsDir), dependency+"-expectations.yaml")
}

// LoadExpectations reads the expectations file for a dependency and returns
// an endpoint -> usage locations map. A missing or unreadable file yields an
// empty map: expectations are advisory, never fatal.
func LoadExpectations(repoRoot, dependency string) map[string][]string {
	return LoadExpectationsFile(ExpectationsPath(repoRoot, dependency))
}

// LoadExpectationsFile is LoadExpectations for an explicit file path, for
// providers handed an expectations file out of band.
func LoadExpectationsFile(path string) map[string][]string {
	b, err := os.ReadFile(path)
	if err != nil {
		return map[string][]string{}
	}
	var f ExpectationsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(f.Expectations))
	for _, exp := range f.Expectations {
		if exp.Endpoint != "" {
			out[exp.Endpoint] = exp.UsageLocations
		}
	}
	return out
}

// AnnotateConsumers records consumerName against every endpoint of the
// contract at contractPath that appears in expectations, then saves the
// contract back. Already-recorded consumers are left alone; the consumer
// list stays sorted for stable output.
func AnnotateConsumers(contractPath, consumerName string, expectations map[string][]string) error {
	if consumerName == "" {
		return errors.New("consumer name must be non-empty")
	}
	c, err := contract.Load(contractPath)
	if err != nil {
		return err
	}
	changed := false
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if _, used := expectations[ep.Key().String()]; !used {
			continue
		}
		if containsString(ep.Consumers, consumerName) {
			continue
		}
		ep.Consumers = append(ep.Consumers, consumerName)
		sort.Strings(ep.Consumers)
		changed = true
	}
	if !changed {
		return nil
	}
	return contract.Save(c, contractPath)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
