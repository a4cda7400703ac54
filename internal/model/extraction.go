package model

// ExtractedEntity is one entity as produced by the extraction service,
// before normalization.
type ExtractedEntity struct {
	Type        string     `json:"entity_type"`
	Label       string     `json:"label"`
	Description string     `json:"description,omitempty"`
	Properties  Properties `json:"properties,omitempty"`
}

// ExtractedRelation is an intra-paper relationship between two extracted
// entities, referenced by label.
type ExtractedRelation struct {
	FromLabel    string  `json:"from_entity_label"`
	ToLabel      string  `json:"to_entity_label"`
	Type         string  `json:"relationship_type"`
	Confidence   float64 `json:"confidence"`
	Rationale    string  `json:"rationale,omitempty"`
	EvidenceSpan string  `json:"evidence_span,omitempty"`
}

// ExtractionResult is the full per-paper extraction payload.
type ExtractionResult struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relationships"`
}

// RelationshipProposal is one cross-paper relationship proposed by the
// inference service for a candidate pair. From identifies which end of the
// pair the edge originates at: "source" (default) or "target".
type RelationshipProposal struct {
	Type         string  `json:"relationship_type"`
	From         string  `json:"from,omitempty"`
	Confidence   float64 `json:"confidence"`
	Rationale    string  `json:"rationale,omitempty"`
	EvidenceSpan string  `json:"evidence_span,omitempty"`
}

// InferenceResult wraps the proposals for one candidate pair.
type InferenceResult struct {
	Relationships []RelationshipProposal `json:"relationships"`
}
