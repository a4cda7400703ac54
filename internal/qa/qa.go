// Package qa answers natural-language questions over the ingested corpus
// by retrieving the most relevant papers and grounding a generated answer
// in them.
package qa

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cheersanimesh/research-knowledge-graph/internal/common"
	"github.com/cheersanimesh/research-knowledge-graph/internal/llm"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

const defaultPrompt = `You are a research assistant answering questions about a corpus of academic papers.

Question: %s

Relevant papers:
%s

Answer the question using only the papers above. Cite papers by title.
If the papers do not contain the answer, say so.`

// defaultTopK papers retrieved per question.
const defaultTopK = 5

type Service struct {
	store    store.GraphStore
	llm      llm.Client
	embedder llm.Embedder
	prompt   string
	topK     int
}

func New(s store.GraphStore, client llm.Client, embedder llm.Embedder, prompt string) *Service {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Service{store: s, llm: client, embedder: embedder, prompt: prompt, topK: defaultTopK}
}

// Answer embeds the question, retrieves the closest papers by embedding
// similarity and generates an answer grounded in their abstracts.
func (s *Service) Answer(ctx context.Context, question string) (string, []model.Paper, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil, fmt.Errorf("question is required")
	}
	if s.embedder == nil {
		return "", nil, fmt.Errorf("question answering requires an embedding provider")
	}

	queryVec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("failed to embed question: %w", err)
	}

	vectors, err := s.store.PaperVectors(ctx)
	if err != nil {
		return "", nil, err
	}
	type scored struct {
		id         string
		similarity float64
	}
	ranked := make([]scored, 0, len(vectors))
	for _, v := range vectors {
		ranked = append(ranked, scored{id: v.NodeID, similarity: common.Cosine(queryVec, v.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].similarity != ranked[j].similarity {
			return ranked[i].similarity > ranked[j].similarity
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}

	var papers []model.Paper
	var contextText strings.Builder
	for i, r := range ranked {
		paper, err := s.store.GetPaper(ctx, r.id)
		if err != nil {
			continue
		}
		papers = append(papers, paper)
		fmt.Fprintf(&contextText, "%d. %s (%d)\n%s\n\n", i+1, paper.Title, paper.Year, paper.Abstract)
	}
	if len(papers) == 0 {
		return "No papers in the corpus are relevant to this question.", nil, nil
	}

	answer, err := s.llm.Generate(ctx, fmt.Sprintf(s.prompt, question, contextText.String()))
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	return strings.TrimSpace(answer), papers, nil
}
