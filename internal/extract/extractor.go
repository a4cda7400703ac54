// Package extract adapts the external entity-extraction capability: paper
// text in, raw entities and intra-paper relationships out.
package extract

import (
	"context"
	"fmt"

	"github.com/cheersanimesh/research-knowledge-graph/internal/common"
	"github.com/cheersanimesh/research-knowledge-graph/internal/llm"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

const defaultPrompt = `You are an expert at extracting structured knowledge from academic papers.

Paper title: %s

Paper text:
%s

Extract the key concepts, methods, datasets, metrics and authors, plus
relationships among them. Relationship types must be one of:
USES_CONCEPT, USES_DATASET, EVALUATES_WITH, EVALUATES_ON.

Return ONLY a JSON object of the form:
{
  "entities": [
    {"entity_type": "concept", "label": "3D Gaussian Splatting", "description": "..."}
  ],
  "relationships": [
    {"from_entity_label": "Adaptive Density Control", "to_entity_label": "3D Gaussian Splatting",
     "relationship_type": "USES_CONCEPT", "confidence": 0.9,
     "rationale": "...", "evidence_span": "Section 3.1"}
  ]
}`

// maxTextChars bounds the payload sent to the extraction service.
const maxTextChars = 24000

type Extractor struct {
	llm    llm.Client
	prompt string
}

func NewExtractor(client llm.Client, prompt string) *Extractor {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Extractor{llm: client, prompt: prompt}
}

func (e *Extractor) Extract(ctx context.Context, title, text string) (model.ExtractionResult, error) {
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
	}
	prompt := fmt.Sprintf(e.prompt, title, text)

	response, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		return model.ExtractionResult{}, fmt.Errorf("extraction failed: %w", err)
	}

	result, err := common.ParseJSON[model.ExtractionResult](response)
	if err != nil {
		return model.ExtractionResult{}, fmt.Errorf("extraction failed: %w", err)
	}
	return result, nil
}
