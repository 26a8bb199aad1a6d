package contract

import (
	"fmt"
	"sort"
)

// Diff is the transient comparison of two contract versions. It is computed
// for sync reporting and never persisted.
type Diff struct {
	Added    []Endpoint
	Removed  []Endpoint
	Modified []Endpoint
}

// HasChanges reports whether the diff carries any change at all.
func (d *Diff) HasChanges() bool {
	return len(d.Added)+len(d.Removed)+len(d.Modified) > 0
}

// ChangeDescriptions renders one human-readable line per change.
func (d *Diff) ChangeDescriptions() []string {
	lines := make([]string, 0, len(d.Added)+len(d.Removed)+len(d.Modified))
	for _, ep := range d.Added {
		lines = append(lines, fmt.Sprintf("Added: %s %s", ep.Method, ep.Path))
	}
	for _, ep := range d.Removed {
		lines = append(lines, fmt.Sprintf("Removed: %s %s", ep.Method, ep.Path))
	}
	for _, ep := range d.Modified {
		lines = append(lines, fmt.Sprintf("Modified: %s %s", ep.Method, ep.Path))
	}
	return lines
}

// Compare diffs old against new by (method, path). A nil old contract means
// first sync: every endpoint of new is reported as added. Modification is
// judged with EqualForSync, i.e. everything but timestamp and consumers.
// Each bucket is sorted by key for deterministic reporting.
func Compare(old, new *Contract) Diff {
	var d Diff
	if old == nil {
		d.Added = append(d.Added, new.Endpoints...)
		sortEndpoints(d.Added)
		return d
	}

	oldByKey := old.EndpointsByKey()
	newByKey := new.EndpointsByKey()

	for key, ep := range newByKey {
		if _, ok := oldByKey[key]; !ok {
			d.Added = append(d.Added, ep)
		}
	}
	for key, ep := range oldByKey {
		if _, ok := newByKey[key]; !ok {
			d.Removed = append(d.Removed, ep)
		}
	}
	for key, oldEP := range oldByKey {
		newEP, ok := newByKey[key]
		if !ok {
			continue
		}
		if !oldEP.EqualForSync(newEP) {
			d.Modified = append(d.Modified, newEP)
		}
	}

	sortEndpoints(d.Added)
	sortEndpoints(d.Removed)
	sortEndpoints(d.Modified)
	return d
}

func sortEndpoints(eps []Endpoint) {
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].Path == eps[j].Path {
			return eps[i].Method < eps[j].Method
		}
		return eps[i].Path < eps[j].Path
	})
}
