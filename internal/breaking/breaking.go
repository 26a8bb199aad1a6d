// Package breaking compares two versions of a provider contract against
// recorded consumer usage, flagging removals and modifications of endpoints
// that still have consumers, plus endpoints nobody consumes.
package breaking

import (
	"fmt"
	"strings"

	"specbridge/internal/contract"
	"specbridge/internal/drift"
)

// Change types.
const (
	TypeEndpointRemoved  = "endpoint_removed"
	TypeEndpointModified = "endpoint_modified"
	TypeUnusedEndpoint   = "unused_endpoint"
)

// Change is one provider-side contract change affecting consumers.
type Change struct {
	Type              string   `json:"type"`
	Severity          string   `json:"severity"`
	Endpoint          string   `json:"endpoint"`
	Method            string   `json:"method"`
	Message           string   `json:"message"`
	AffectedConsumers []string `json:"affected_consumers"`
	Suggestion        string   `json:"suggestion"`
}

// Detect compares old and new contract versions. Ordering: removals first,
// then modifications, then unused-endpoint notes; within each group the
// endpoints keep the old contract's declaration order (new contract's for
// unused).
//
// Modification is judged with EqualForCompat, so provenance-only changes
// (file moves, renames, re-extraction timestamps) never count.
func Detect(old, new *contract.Contract) []Change {
	var changes []Change

	newByKey := new.EndpointsByKey()

	for _, ep := range old.Endpoints {
		if _, ok := newByKey[ep.Key()]; ok {
			continue
		}
		if len(ep.Consumers) == 0 {
			continue
		}
		changes = append(changes, Change{
			Type:     TypeEndpointRemoved,
			Severity: drift.SeverityError,
			Endpoint: ep.Path,
			Method:   ep.Method,
			Message: fmt.Sprintf("Endpoint %s %s was removed but has active consumers",
				ep.Method, ep.Path),
			AffectedConsumers: append([]string(nil), ep.Consumers...),
			Suggestion: fmt.Sprintf("Consider deprecating instead of removing, or notify consumers: %s",
				strings.Join(ep.Consumers, ", ")),
		})
	}

	for _, oldEP := range old.Endpoints {
		newEP, ok := newByKey[oldEP.Key()]
		if !ok {
			continue
		}
		if oldEP.EqualForCompat(newEP) || len(oldEP.Consumers) == 0 {
			continue
		}
		changes = append(changes, Change{
			Type:     TypeEndpointModified,
			Severity: drift.SeverityWarning,
			Endpoint: oldEP.Path,
			Method:   oldEP.Method,
			Message: fmt.Sprintf("Endpoint %s %s was modified and has active consumers",
				oldEP.Method, oldEP.Path),
			AffectedConsumers: append([]string(nil), oldEP.Consumers...),
			Suggestion: fmt.Sprintf("Verify changes are backward compatible, or notify consumers: %s",
				strings.Join(oldEP.Consumers, ", ")),
		})
	}

	// Unused endpoints are reported on the new contract regardless of the
	// diff; comparing a contract against itself still surfaces them.
	for _, ep := range new.Endpoints {
		if len(ep.Consumers) > 0 {
			continue
		}
		changes = append(changes, Change{
			Type:     TypeUnusedEndpoint,
			Severity: drift.SeverityInfo,
			Endpoint: ep.Path,
			Method:   ep.Method,
			Message: fmt.Sprintf("Endpoint %s %s has no recorded consumers",
				ep.Method, ep.Path),
			AffectedConsumers: []string{},
			Suggestion:        "This endpoint may be safe to remove or deprecate",
		})
	}

	return changes
}
