package traverse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func addPaper(t *testing.T, s *store.SQLiteStore, title string, embedding []float32) string {
	t.Helper()
	ctx := context.Background()
	n, err := s.UpsertNode(ctx, store.NodeInput{Type: model.NodePaper, Label: title})
	require.NoError(t, err)
	require.NoError(t, s.UpsertPaper(ctx, model.Paper{NodeID: n.ID, Title: title}))
	if embedding != nil {
		require.NoError(t, s.SetNodeEmbedding(ctx, n.ID, embedding))
	}
	return n.ID
}

func link(t *testing.T, s *store.SQLiteStore, from, to string, edgeType model.EdgeType) {
	t.Helper()
	_, err := s.UpsertEdge(context.Background(), store.EdgeInput{
		FromID: from, ToID: to, Type: edgeType, Confidence: 0.9,
	})
	require.NoError(t, err)
}

func TestExpandRespectsDepth(t *testing.T) {
	s := newTestStore(t)
	a := addPaper(t, s, "A", nil)
	b := addPaper(t, s, "B", nil)
	c := addPaper(t, s, "C", nil)
	link(t, s, a, b, model.EdgeComparesTo)
	link(t, s, b, c, model.EdgeComparesTo)

	e := New(s)
	hops, err := e.Expand(context.Background(), a, 1, store.NeighborOptions{Direction: store.Both})
	require.NoError(t, err)
	require.Len(t, hops, 1)
	assert.Equal(t, b, hops[0].Node.ID)
	assert.Equal(t, 1, hops[0].Depth)

	hops, err = e.Expand(context.Background(), a, 2, store.NeighborOptions{Direction: store.Both})
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, 2, hops[1].Depth)
	assert.Equal(t, c, hops[1].Node.ID)
}

func TestExpandTerminatesOnCycle(t *testing.T) {
	s := newTestStore(t)
	a := addPaper(t, s, "A", nil)
	b := addPaper(t, s, "B", nil)
	c := addPaper(t, s, "C", nil)
	link(t, s, a, b, model.EdgeExtends)
	link(t, s, b, c, model.EdgeExtends)
	link(t, s, c, a, model.EdgeExtends)

	e := New(s)
	hops, err := e.Expand(context.Background(), a, 10, store.NeighborOptions{Direction: store.Outgoing})
	require.NoError(t, err)
	// Each node appears once, at its first discovery depth.
	assert.Len(t, hops, 2)
}

func TestExpandFiltersEdgeTypes(t *testing.T) {
	s := newTestStore(t)
	a := addPaper(t, s, "A", nil)
	b := addPaper(t, s, "B", nil)
	c := addPaper(t, s, "C", nil)
	link(t, s, a, b, model.EdgeImprovesOn)
	link(t, s, a, c, model.EdgeComparesTo)

	e := New(s)
	hops, err := e.Expand(context.Background(), a, 1, store.NeighborOptions{
		Direction: store.Outgoing,
		EdgeTypes: []model.EdgeType{model.EdgeImprovesOn},
	})
	require.NoError(t, err)
	require.Len(t, hops, 1)
	assert.Equal(t, b, hops[0].Node.ID)
}

func TestExpandUnknownStart(t *testing.T) {
	s := newTestStore(t)
	e := New(s)
	_, err := e.Expand(context.Background(), "missing", 1, store.NeighborOptions{})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestImprovementChains(t *testing.T) {
	s := newTestStore(t)
	base := addPaper(t, s, "Base", nil)
	better := addPaper(t, s, "Better", nil)
	best := addPaper(t, s, "Best", nil)
	link(t, s, better, base, model.EdgeImprovesOn)
	link(t, s, best, better, model.EdgeImprovesOn)

	e := New(s)
	rows, err := e.ImprovementChains(context.Background(), base, 5)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, better, rows[0].Paper.ID)
	assert.Equal(t, 1, rows[0].Depth)
	assert.Equal(t, best, rows[1].Paper.ID)
	assert.Equal(t, 2, rows[1].Depth)
	require.Len(t, rows[1].Path, 3)
	assert.Equal(t, base, rows[1].Path[0].ID)
	assert.Equal(t, best, rows[1].Path[2].ID)
}

func TestImprovementChainsTerminateOnCycle(t *testing.T) {
	s := newTestStore(t)
	a := addPaper(t, s, "A", nil)
	b := addPaper(t, s, "B", nil)
	c := addPaper(t, s, "C", nil)
	// Mutually-improving claims form a cycle in the raw data.
	link(t, s, b, a, model.EdgeImprovesOn)
	link(t, s, c, b, model.EdgeImprovesOn)
	link(t, s, a, c, model.EdgeImprovesOn)

	e := New(s)
	rows, err := e.ImprovementChains(context.Background(), a, 10)
	require.NoError(t, err)
	// The walk stops when it would revisit a paper already on the path.
	require.Len(t, rows, 2)
	assert.Equal(t, b, rows[0].Paper.ID)
	assert.Equal(t, c, rows[1].Paper.ID)
}

func TestImprovementChainsDepthLimit(t *testing.T) {
	s := newTestStore(t)
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = addPaper(t, s, string(rune('A'+i)), nil)
		if i > 0 {
			link(t, s, ids[i], ids[i-1], model.EdgeImprovesOn)
		}
	}

	e := New(s)
	rows, err := e.ImprovementChains(context.Background(), ids[0], 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[1].Depth)
}

func TestSimilarPapersRanking(t *testing.T) {
	s := newTestStore(t)
	seed := addPaper(t, s, "Seed", []float32{1, 0})
	near := addPaper(t, s, "Near", []float32{0.95, 0.05})
	far := addPaper(t, s, "Far", []float32{0, 1})

	e := New(s)
	out, err := e.SimilarPapers(context.Background(), seed, 2)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, near, out[0].Paper.NodeID)
	assert.Equal(t, far, out[1].Paper.NodeID)
	assert.Greater(t, out[0].Similarity, out[1].Similarity)
}

func TestSimilarPapersRequiresEmbedding(t *testing.T) {
	s := newTestStore(t)
	seed := addPaper(t, s, "Seed", nil)
	addPaper(t, s, "Other", []float32{1, 0})

	e := New(s)
	_, err := e.SimilarPapers(context.Background(), seed, 5)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
