package store

import (
	"fmt"
	"time"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

// MergeNodeProperties merges an incoming property bag into an existing one:
// new keys win, old keys are preserved unless overwritten.
func MergeNodeProperties(old, incoming model.Properties) model.Properties {
	merged := model.Properties{}
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}

// MergeEdgeProperties merges edge property bags. List-valued keys (evidence
// spans and the like) are concatenated and deduplicated; scalar keys follow
// new-keys-win.
func MergeEdgeProperties(old, incoming model.Properties) model.Properties {
	merged := model.Properties{}
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range incoming {
		oldList, oldIsList := asList(merged[k])
		newList, newIsList := asList(v)
		if oldIsList && newIsList {
			merged[k] = dedupeList(append(oldList, newList...))
			continue
		}
		merged[k] = v
	}
	return merged
}

// MergeEdge applies the upsert-merge rule to a uniqueness collision on
// (from, to, edge_type): confidence is replaced only when strictly higher or
// forced, properties merge additively.
func MergeEdge(old model.Edge, in EdgeInput, now time.Time) model.Edge {
	merged := old
	if in.Force || in.Confidence > old.Confidence {
		merged.Confidence = ClampConfidence(in.Confidence)
	}
	merged.Properties = MergeEdgeProperties(old.Properties, in.Properties)
	merged.UpdatedAt = now
	return merged
}

// CanonicalEndpoints fixes the stored direction of symmetric edge types:
// lower node id first, so a logically undirected edge occupies one row.
func CanonicalEndpoints(t model.EdgeType, from, to string) (string, string) {
	if t.Symmetric() && to < from {
		return to, from
	}
	return from, to
}

func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func dedupeList(l []interface{}) []interface{} {
	seen := map[string]bool{}
	out := make([]interface{}, 0, len(l))
	for _, v := range l {
		key := fmt.Sprintf("%v", v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
