package linker

import (
	"context"
	"fmt"
	"strings"

	"github.com/cheersanimesh/research-knowledge-graph/internal/common"
	"github.com/cheersanimesh/research-knowledge-graph/internal/llm"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

// Evidence is everything the inference service sees about a candidate pair.
type Evidence struct {
	SourceTitle    string
	SourceAbstract string
	TargetTitle    string
	TargetAbstract string
	SharedEntities []string
}

// InferenceClient proposes cross-paper relationships for one candidate pair.
type InferenceClient interface {
	Infer(ctx context.Context, ev Evidence) (model.InferenceResult, error)
}

const defaultPrompt = `You are an expert at analyzing relationships between academic papers.

Source paper: %s
Abstract: %s

Target paper: %s
Abstract: %s

Shared entities: %s

Propose relationships from the source paper to the target paper. Use only
these types: IMPROVES_ON, EXTENDS, COMPARES_TO, SIMILAR_TO, REFINES_CONCEPT.
If the direction is reversed (the target builds on the source), set "from"
to "target". Only propose relationships the abstracts actually support.

Return ONLY a JSON object of the form:
{
  "relationships": [
    {"relationship_type": "IMPROVES_ON", "from": "source", "confidence": 0.85,
     "rationale": "...", "evidence_span": "..."}
  ]
}`

// LLMInference backs InferenceClient with a text-generation call.
type LLMInference struct {
	llm    llm.Client
	prompt string
}

func NewLLMInference(client llm.Client, prompt string) *LLMInference {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &LLMInference{llm: client, prompt: prompt}
}

func (i *LLMInference) Infer(ctx context.Context, ev Evidence) (model.InferenceResult, error) {
	shared := "none"
	if len(ev.SharedEntities) > 0 {
		shared = strings.Join(ev.SharedEntities, ", ")
	}
	prompt := fmt.Sprintf(i.prompt,
		ev.SourceTitle, ev.SourceAbstract, ev.TargetTitle, ev.TargetAbstract, shared)

	response, err := i.llm.Generate(ctx, prompt)
	if err != nil {
		return model.InferenceResult{}, fmt.Errorf("relationship inference failed: %w", err)
	}

	result, err := common.ParseJSON[model.InferenceResult](response)
	if err != nil {
		return model.InferenceResult{}, fmt.Errorf("relationship inference failed: %w", err)
	}
	return result, nil
}
