package model

import "time"

// NodeType is the closed vocabulary of graph node types.
type NodeType string

const (
	NodePaper   NodeType = "paper"
	NodeConcept NodeType = "concept"
	NodeMethod  NodeType = "method"
	NodeDataset NodeType = "dataset"
	NodeMetric  NodeType = "metric"
	NodeAuthor  NodeType = "author"
)

var nodeTypes = map[NodeType]bool{
	NodePaper:   true,
	NodeConcept: true,
	NodeMethod:  true,
	NodeDataset: true,
	NodeMetric:  true,
	NodeAuthor:  true,
}

func (t NodeType) Valid() bool {
	return nodeTypes[t]
}

// EntityTypes are the node types produced by extraction (everything except
// paper, which is created from ingestion metadata).
func EntityTypes() []NodeType {
	return []NodeType{NodeConcept, NodeMethod, NodeDataset, NodeMetric, NodeAuthor}
}

// Properties is the open key/value bag attached to nodes and edges. Known
// keys are validated; unknown keys pass through unchanged.
type Properties map[string]interface{}

// Well-known property keys.
const (
	PropRationale        = "rationale"
	PropEvidenceSpans    = "evidence_spans"
	PropEvidenceConcepts = "evidence_concepts"
	PropDescription      = "description"
)

type Node struct {
	ID         string     `json:"id"`
	Type       NodeType   `json:"node_type"`
	Label      string     `json:"label"`
	Properties Properties `json:"properties,omitempty"`
	Embedding  []float32  `json:"embedding,omitempty"` // paper nodes only
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
