package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheersanimesh/research-knowledge-graph/internal/extract"
	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

type MockLLM struct {
	Response      string
	ResponseQueue []string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

type MockEmbedder struct {
	Vector []float32
	Err    error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

const extractionJSON = `{
	"entities": [
		{"entity_type": "concept", "label": "3D gaussian splatting", "description": "explicit scene representation"},
		{"entity_type": "method", "label": "adaptive density control"},
		{"entity_type": "dataset", "label": "Mip-NeRF 360"},
		{"entity_type": "author", "label": "Bernhard Kerbl"},
		{"entity_type": "spaceship", "label": "Enterprise"}
	],
	"relationships": [
		{"from_entity_label": "adaptive density control", "to_entity_label": "3D gaussian splatting",
		 "relationship_type": "USES_CONCEPT", "confidence": 0.9, "evidence_span": "Section 5"},
		{"from_entity_label": "adaptive density control", "to_entity_label": "Warp Drive",
		 "relationship_type": "USES_CONCEPT", "confidence": 0.9}
	]
}`

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func newOrchestrator(s store.GraphStore, mockLLM *MockLLM, embedder *MockEmbedder) *Orchestrator {
	extractor := extract.NewExtractor(mockLLM, "")
	return New(s, extractor, embedder, nil, nil, logging.NewNop(), true)
}

func TestIngestPaper(t *testing.T) {
	s := newTestStore(t)
	o := newOrchestrator(s, &MockLLM{Response: extractionJSON}, &MockEmbedder{Vector: []float32{0.1, 0.2}})
	ctx := context.Background()

	result, err := o.IngestPaper(ctx, PaperInput{
		Title:    "3D Gaussian Splatting for Real-Time Radiance Field Rendering",
		Abstract: "We introduce 3D gaussian splatting.",
		Year:     2023,
		ArxivID:  "2308.04079",
	})
	require.NoError(t, err)

	assert.False(t, result.Reingested)
	assert.Equal(t, 4, result.EntitiesWritten)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "spaceship", result.Skipped[0].Type)
	assert.Equal(t, "invalid entity type", result.Skipped[0].Reason)

	paper, err := s.GetPaper(ctx, result.PaperID)
	require.NoError(t, err)
	assert.Equal(t, 2023, paper.Year)

	node, err := s.GetNode(ctx, result.PaperID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, node.Embedding)

	// Authors attach via AUTHORED_BY, other entities via INTRODUCES.
	authored, err := s.Neighbors(ctx, result.PaperID, store.NeighborOptions{
		Direction: store.Outgoing,
		EdgeTypes: []model.EdgeType{model.EdgeAuthoredBy},
	})
	require.NoError(t, err)
	require.Len(t, authored, 1)
	assert.Equal(t, "Bernhard Kerbl", authored[0].Node.Label)

	introduced, err := s.Neighbors(ctx, result.PaperID, store.NeighborOptions{
		Direction: store.Outgoing,
		EdgeTypes: []model.EdgeType{model.EdgeIntroduces},
	})
	require.NoError(t, err)
	assert.Len(t, introduced, 3)

	// The valid intra-paper relation landed; the one with an unresolved
	// endpoint was dropped.
	var method model.Node
	for _, n := range introduced {
		if n.Node.Type == model.NodeMethod {
			method = n.Node
		}
	}
	relations, err := s.Neighbors(ctx, method.ID, store.NeighborOptions{
		Direction: store.Outgoing,
		EdgeTypes: []model.EdgeType{model.EdgeUsesConcept},
	})
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "3D Gaussian Splatting", relations[0].Node.Label)
}

func TestIngestPaperReingestionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	o := newOrchestrator(s, &MockLLM{Response: extractionJSON}, &MockEmbedder{Vector: []float32{1}})
	ctx := context.Background()

	in := PaperInput{Title: "Same Paper", Abstract: "text", Year: 2022, DOI: "10.1/same"}

	first, err := o.IngestPaper(ctx, in)
	require.NoError(t, err)
	second, err := o.IngestPaper(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.PaperID, second.PaperID)
	assert.True(t, second.Reingested)

	papers, err := s.ListPapers(ctx, store.PaperFilter{})
	require.NoError(t, err)
	assert.Len(t, papers, 1)
}

func TestIngestPaperEmbeddingFailureIsNotFatal(t *testing.T) {
	s := newTestStore(t)
	o := newOrchestrator(s, &MockLLM{Response: extractionJSON},
		&MockEmbedder{Err: errors.New("provider down")})

	result, err := o.IngestPaper(context.Background(), PaperInput{Title: "Paper", Abstract: "text"})
	require.NoError(t, err)
	assert.True(t, result.EmbeddingFailed)
	assert.Equal(t, 4, result.EntitiesWritten)
}

func TestIngestPaperExtractionFailureKeepsPaperNode(t *testing.T) {
	s := newTestStore(t)
	o := newOrchestrator(s, &MockLLM{Response: "not json at all"}, &MockEmbedder{Vector: []float32{1}})
	ctx := context.Background()

	_, err := o.IngestPaper(ctx, PaperInput{Title: "Broken", Abstract: "text", Year: 2021})
	require.Error(t, err)

	paper, err := s.FindPaper(ctx, "", "", "Broken", 2021)
	require.NoError(t, err)
	assert.Equal(t, "Broken", paper.Title)
}

func TestIngestPaperRequiresTitle(t *testing.T) {
	s := newTestStore(t)
	o := newOrchestrator(s, &MockLLM{Response: extractionJSON}, &MockEmbedder{Vector: []float32{1}})
	_, err := o.IngestPaper(context.Background(), PaperInput{Abstract: "text"})
	assert.Error(t, err)
}

func TestIngestPaperTypeConflictSkipsEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Pre-existing method node with the label extraction will claim as a
	// concept.
	_, err := s.UpsertNode(ctx, store.NodeInput{Type: model.NodeMethod, Label: "3D Gaussian Splatting"})
	require.NoError(t, err)

	o := newOrchestrator(s, &MockLLM{Response: extractionJSON}, &MockEmbedder{Vector: []float32{1}})
	result, err := o.IngestPaper(ctx, PaperInput{Title: "Paper", Abstract: "text"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.EntitiesWritten)
	var conflicted bool
	for _, sk := range result.Skipped {
		if sk.Reason == "entity type conflict" {
			conflicted = true
			assert.Equal(t, "3D Gaussian Splatting", sk.Label)
		}
	}
	assert.True(t, conflicted)
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	s := newTestStore(t)
	mockLLM := &MockLLM{ResponseQueue: []string{"garbage", extractionJSON}}
	o := newOrchestrator(s, mockLLM, &MockEmbedder{Vector: []float32{1}})

	summary, err := o.IngestBatch(context.Background(), []PaperInput{
		{Title: "Fails", Abstract: "a"},
		{Title: "Succeeds", Abstract: "b"},
	})
	require.NoError(t, err)

	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "Fails", summary.Failed[0].Title)
	require.Len(t, summary.Ingested, 1)
	assert.Equal(t, "Succeeds", summary.Ingested[0].Title)
	assert.Nil(t, summary.Linking)
}
