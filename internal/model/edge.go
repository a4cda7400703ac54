package model

import "time"

// EdgeType is the closed vocabulary of relationship types.
type EdgeType string

// Intra-paper relationships.
const (
	EdgeIntroduces    EdgeType = "INTRODUCES"
	EdgeUsesConcept   EdgeType = "USES_CONCEPT"
	EdgeUsesDataset   EdgeType = "USES_DATASET"
	EdgeEvaluatesWith EdgeType = "EVALUATES_WITH"
	EdgeEvaluatesOn   EdgeType = "EVALUATES_ON"
	EdgeAuthoredBy    EdgeType = "AUTHORED_BY"
)

// Cross-paper relationships.
const (
	EdgeImprovesOn     EdgeType = "IMPROVES_ON"
	EdgeExtends        EdgeType = "EXTENDS"
	EdgeComparesTo     EdgeType = "COMPARES_TO"
	EdgeSimilarTo      EdgeType = "SIMILAR_TO"
	EdgeRefinesConcept EdgeType = "REFINES_CONCEPT"
)

var intraEdgeTypes = map[EdgeType]bool{
	EdgeIntroduces:    true,
	EdgeUsesConcept:   true,
	EdgeUsesDataset:   true,
	EdgeEvaluatesWith: true,
	EdgeEvaluatesOn:   true,
	EdgeAuthoredBy:    true,
}

var crossEdgeTypes = map[EdgeType]bool{
	EdgeImprovesOn:     true,
	EdgeExtends:        true,
	EdgeComparesTo:     true,
	EdgeSimilarTo:      true,
	EdgeRefinesConcept: true,
}

func (t EdgeType) Valid() bool {
	return intraEdgeTypes[t] || crossEdgeTypes[t]
}

// CrossPaper reports whether t links two paper nodes.
func (t EdgeType) CrossPaper() bool {
	return crossEdgeTypes[t]
}

// Symmetric reports whether t is logically undirected. Symmetric edges are
// stored as a single row with canonically ordered endpoints.
func (t EdgeType) Symmetric() bool {
	return t == EdgeSimilarTo
}

type Edge struct {
	ID         string     `json:"id"`
	FromID     string     `json:"from_node_id"`
	ToID       string     `json:"to_node_id"`
	Type       EdgeType   `json:"edge_type"`
	Confidence float64    `json:"confidence"`
	Properties Properties `json:"properties,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
