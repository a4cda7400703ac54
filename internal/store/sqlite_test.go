package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func mustNode(t *testing.T, s *SQLiteStore, nodeType model.NodeType, label string) model.Node {
	t.Helper()
	n, err := s.UpsertNode(context.Background(), NodeInput{Type: nodeType, Label: label})
	require.NoError(t, err)
	return n
}

func mustPaper(t *testing.T, s *SQLiteStore, p model.Paper) model.Node {
	t.Helper()
	n := mustNode(t, s, model.NodePaper, p.Title)
	p.NodeID = n.ID
	require.NoError(t, s.UpsertPaper(context.Background(), p))
	return n
}

func TestUpsertNodeDedupesByCaseFoldedLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := mustNode(t, s, model.NodeConcept, "Gaussian Splatting")
	second, err := s.UpsertNode(ctx, NodeInput{Type: model.NodeConcept, Label: "gaussian splatting"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertNodeTypeConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustNode(t, s, model.NodeConcept, "Transformer")
	_, err := s.UpsertNode(ctx, NodeInput{Type: model.NodeMethod, Label: "transformer"})
	assert.True(t, errors.Is(err, ErrEntityTypeConflict))

	var conflict *TypeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, model.NodeConcept, conflict.Existing)
	assert.Equal(t, model.NodeMethod, conflict.Requested)
}

func TestUpsertNodePapersNeverCollideWithEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entity := mustNode(t, s, model.NodeConcept, "Attention Is All You Need")
	paper, err := s.UpsertNode(ctx, NodeInput{Type: model.NodePaper, Label: "Attention Is All You Need"})
	require.NoError(t, err)
	assert.NotEqual(t, entity.ID, paper.ID)

	// Two papers with the same title are also distinct nodes; identity is
	// resolved through FindPaper, not labels.
	other, err := s.UpsertNode(ctx, NodeInput{Type: model.NodePaper, Label: "Attention Is All You Need"})
	require.NoError(t, err)
	assert.NotEqual(t, paper.ID, other.ID)
}

func TestUpsertNodeMergesProperties(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertNode(ctx, NodeInput{
		Type: model.NodeDataset, Label: "ImageNet",
		Properties: model.Properties{model.PropDescription: "image corpus", "size": "1.2M"},
	})
	require.NoError(t, err)

	merged, err := s.UpsertNode(ctx, NodeInput{
		Type: model.NodeDataset, Label: "ImageNet",
		Properties: model.Properties{model.PropDescription: "large image corpus"},
	})
	require.NoError(t, err)
	assert.Equal(t, "large image corpus", merged.Properties[model.PropDescription])
	assert.Equal(t, "1.2M", merged.Properties["size"])
}

func TestUpsertNodeByIDTargetsDirectly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := mustNode(t, s, model.NodePaper, "Old Title")
	updated, err := s.UpsertNode(ctx, NodeInput{ID: n.ID, Type: model.NodePaper, Label: "New Title"})
	require.NoError(t, err)
	assert.Equal(t, n.ID, updated.ID)
	assert.Equal(t, "New Title", updated.Label)

	_, err = s.UpsertNode(ctx, NodeInput{ID: "missing", Type: model.NodePaper, Label: "X"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertEdgeUniquenessAndMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustNode(t, s, model.NodePaper, "Paper A")
	b := mustNode(t, s, model.NodePaper, "Paper B")

	first, err := s.UpsertEdge(ctx, EdgeInput{
		FromID: a.ID, ToID: b.ID, Type: model.EdgeImprovesOn,
		Confidence: 0.9,
		Properties: model.Properties{model.PropEvidenceSpans: []string{"Section 4"}},
	})
	require.NoError(t, err)

	second, err := s.UpsertEdge(ctx, EdgeInput{
		FromID: a.ID, ToID: b.ID, Type: model.EdgeImprovesOn,
		Confidence: 0.95,
		Properties: model.Properties{model.PropEvidenceSpans: []string{"Table 2"}},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0.95, second.Confidence)
	spans, ok := second.Properties[model.PropEvidenceSpans].([]interface{})
	require.True(t, ok)
	assert.Len(t, spans, 2)

	// Lower confidence does not regress the edge.
	third, err := s.UpsertEdge(ctx, EdgeInput{
		FromID: a.ID, ToID: b.ID, Type: model.EdgeImprovesOn, Confidence: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.95, third.Confidence)

	// Unless forced.
	forced, err := s.UpsertEdge(ctx, EdgeInput{
		FromID: a.ID, ToID: b.ID, Type: model.EdgeImprovesOn, Confidence: 0.5, Force: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, forced.Confidence)
}

func TestUpsertEdgeDanglingReference(t *testing.T) {
	s := newTestStore(t)
	a := mustNode(t, s, model.NodePaper, "Paper A")

	_, err := s.UpsertEdge(context.Background(), EdgeInput{
		FromID: a.ID, ToID: "nope", Type: model.EdgeImprovesOn, Confidence: 0.8,
	})
	assert.True(t, errors.Is(err, ErrDanglingReference))
}

func TestSymmetricEdgeStoredOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustNode(t, s, model.NodePaper, "Paper A")
	b := mustNode(t, s, model.NodePaper, "Paper B")

	e1, err := s.UpsertEdge(ctx, EdgeInput{FromID: a.ID, ToID: b.ID, Type: model.EdgeSimilarTo, Confidence: 0.7})
	require.NoError(t, err)
	e2, err := s.UpsertEdge(ctx, EdgeInput{FromID: b.ID, ToID: a.ID, Type: model.EdgeSimilarTo, Confidence: 0.6})
	require.NoError(t, err)

	assert.Equal(t, e1.ID, e2.ID)
	assert.Equal(t, e1.FromID, e2.FromID)
	assert.Equal(t, 0.7, e2.Confidence)
}

func TestDeleteNodeCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	paper := mustPaper(t, s, model.Paper{Title: "Doomed", Year: 2020})
	concept := mustNode(t, s, model.NodeConcept, "Something")
	_, err := s.UpsertEdge(ctx, EdgeInput{FromID: paper.ID, ToID: concept.ID, Type: model.EdgeIntroduces, Confidence: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteNode(ctx, paper.ID))

	_, err = s.GetPaper(ctx, paper.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	neighbors, err := s.Neighbors(ctx, concept.ID, NeighborOptions{Direction: Both})
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestNeighborsDirectionAndTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	paper := mustNode(t, s, model.NodePaper, "Paper")
	concept := mustNode(t, s, model.NodeConcept, "Concept")
	dataset := mustNode(t, s, model.NodeDataset, "Dataset")

	_, err := s.UpsertEdge(ctx, EdgeInput{FromID: paper.ID, ToID: concept.ID, Type: model.EdgeIntroduces, Confidence: 1})
	require.NoError(t, err)
	_, err = s.UpsertEdge(ctx, EdgeInput{FromID: paper.ID, ToID: dataset.ID, Type: model.EdgeUsesDataset, Confidence: 1})
	require.NoError(t, err)

	out, err := s.Neighbors(ctx, paper.ID, NeighborOptions{Direction: Outgoing})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	filtered, err := s.Neighbors(ctx, paper.ID, NeighborOptions{
		Direction: Outgoing,
		EdgeTypes: []model.EdgeType{model.EdgeUsesDataset},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, dataset.ID, filtered[0].Node.ID)

	incoming, err := s.Neighbors(ctx, concept.ID, NeighborOptions{Direction: Incoming})
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, paper.ID, incoming[0].Node.ID)
}

func TestFindPaperIdentityResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := mustPaper(t, s, model.Paper{
		Title: "Neural Radiance Fields", Year: 2020,
		DOI: "10.1/nerf", ArxivID: "2003.08934",
	})

	byDOI, err := s.FindPaper(ctx, "10.1/nerf", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, n.ID, byDOI.NodeID)

	byArxiv, err := s.FindPaper(ctx, "", "2003.08934", "", 0)
	require.NoError(t, err)
	assert.Equal(t, n.ID, byArxiv.NodeID)

	byTitle, err := s.FindPaper(ctx, "", "", "neural radiance fields", 2020)
	require.NoError(t, err)
	assert.Equal(t, n.ID, byTitle.NodeID)

	_, err = s.FindPaper(ctx, "", "", "neural radiance fields", 2021)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListPapersFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustPaper(t, s, model.Paper{Title: "A", Year: 2019, Venue: "NeurIPS"})
	mustPaper(t, s, model.Paper{Title: "B", Year: 2021, Venue: "CVPR"})
	mustPaper(t, s, model.Paper{Title: "C", Year: 2023, Venue: "CVPR"})

	all, err := s.ListPapers(ctx, PaperFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "C", all[0].Title) // newest first

	cvpr, err := s.ListPapers(ctx, PaperFilter{Venue: "cvpr"})
	require.NoError(t, err)
	assert.Len(t, cvpr, 2)

	ranged, err := s.ListPapers(ctx, PaperFilter{YearFrom: 2020, YearTo: 2022})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "B", ranged[0].Title)
}

func TestSharedEntityPapers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustPaper(t, s, model.Paper{Title: "P1", Year: 2020})
	p2 := mustPaper(t, s, model.Paper{Title: "P2", Year: 2021})
	p3 := mustPaper(t, s, model.Paper{Title: "P3", Year: 2022})

	dataset := mustNode(t, s, model.NodeDataset, "KITTI")
	method := mustNode(t, s, model.NodeMethod, "Voxel Grid")
	author := mustNode(t, s, model.NodeAuthor, "Shared Author")

	for _, pair := range []struct {
		paper  string
		entity string
		t      model.EdgeType
	}{
		{p1.ID, dataset.ID, model.EdgeUsesDataset},
		{p1.ID, method.ID, model.EdgeIntroduces},
		{p1.ID, author.ID, model.EdgeAuthoredBy},
		{p2.ID, dataset.ID, model.EdgeUsesDataset},
		{p2.ID, method.ID, model.EdgeIntroduces},
		{p3.ID, author.ID, model.EdgeAuthoredBy},
	} {
		_, err := s.UpsertEdge(ctx, EdgeInput{FromID: pair.paper, ToID: pair.entity, Type: pair.t, Confidence: 1})
		require.NoError(t, err)
	}

	shared, err := s.SharedEntityPapers(ctx, p1.ID)
	require.NoError(t, err)

	// p2 shares two graph entities; p3 only shares an author, which does
	// not count toward candidate generation.
	require.Len(t, shared, 1)
	assert.Equal(t, p2.ID, shared[0].PaperID)
	assert.Equal(t, 2, shared[0].Shared)
}

// twoConnections opens two independent stores on the same database file,
// standing in for two processes sharing it.
func twoConnections(t *testing.T) (*SQLiteStore, *SQLiteStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	s1, err := OpenSQLite(path)
	require.NoError(t, err)
	s2, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		s1.Close(context.Background())
		s2.Close(context.Background())
	})
	return s1, s2
}

// raceOnce arranges for fn to run exactly once, from inside s's next upsert,
// after the dedup lookup but before the insert.
func raceOnce(s *SQLiteStore, fn func()) {
	fired := false
	s.now = func() time.Time {
		if !fired {
			fired = true
			fn()
		}
		return time.Now().UTC()
	}
}

func TestEntityDedupKeyBackedByUniqueIndex(t *testing.T) {
	s := newTestStore(t)

	insert := func(id, nodeType, label string) error {
		_, err := s.db.Exec(
			`INSERT INTO nodes (id, node_type, label, properties, created_at, updated_at)
			 VALUES (?, ?, ?, '{}', 0, 0)`, id, nodeType, label)
		return err
	}

	require.NoError(t, insert("n1", "concept", "Gaussian Splatting"))
	// The database itself rejects a second entity row on the dedup key,
	// even from a writer that bypassed the upsert path.
	assert.Error(t, insert("n2", "method", "gaussian splatting"))
	// Paper titles stay outside the dedup key.
	require.NoError(t, insert("p1", "paper", "Same Title"))
	require.NoError(t, insert("p2", "paper", "same title"))
}

func TestUpsertNodeMergesAfterLostRace(t *testing.T) {
	s1, s2 := twoConnections(t)
	ctx := context.Background()

	var raced model.Node
	raceOnce(s1, func() {
		n, err := s2.UpsertNode(ctx, NodeInput{Type: model.NodeConcept, Label: "Gaussian Splatting"})
		require.NoError(t, err)
		raced = n
	})

	n, err := s1.UpsertNode(ctx, NodeInput{
		Type: model.NodeConcept, Label: "gaussian splatting",
		Properties: model.Properties{model.PropDescription: "explicit representation"},
	})
	require.NoError(t, err)

	assert.Equal(t, raced.ID, n.ID)
	assert.Equal(t, "explicit representation", n.Properties[model.PropDescription])
}

func TestUpsertNodeConflictAfterLostRace(t *testing.T) {
	s1, s2 := twoConnections(t)
	ctx := context.Background()

	raceOnce(s1, func() {
		_, err := s2.UpsertNode(ctx, NodeInput{Type: model.NodeMethod, Label: "Transformer"})
		require.NoError(t, err)
	})

	_, err := s1.UpsertNode(ctx, NodeInput{Type: model.NodeConcept, Label: "transformer"})
	assert.True(t, errors.Is(err, ErrEntityTypeConflict))
}

func TestUpsertEdgeMergesAfterLostRace(t *testing.T) {
	s1, s2 := twoConnections(t)
	ctx := context.Background()

	a := mustNode(t, s1, model.NodePaper, "Paper A")
	b := mustNode(t, s1, model.NodePaper, "Paper B")

	raceOnce(s1, func() {
		_, err := s2.UpsertEdge(ctx, EdgeInput{
			FromID: a.ID, ToID: b.ID, Type: model.EdgeImprovesOn,
			Confidence: 0.9,
			Properties: model.Properties{model.PropEvidenceSpans: []string{"Section 4"}},
		})
		require.NoError(t, err)
	})

	// The triple committed by the other connection mid-call; this upsert
	// must land on the merge path, not fail on the unique constraint.
	e, err := s1.UpsertEdge(ctx, EdgeInput{
		FromID: a.ID, ToID: b.ID, Type: model.EdgeImprovesOn,
		Confidence: 0.7,
		Properties: model.Properties{model.PropEvidenceSpans: []string{"Table 2"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.9, e.Confidence)
	spans, ok := e.Properties[model.PropEvidenceSpans].([]interface{})
	require.True(t, ok)
	assert.Len(t, spans, 2)

	neighbors, err := s2.Neighbors(ctx, a.ID, NeighborOptions{Direction: Both})
	require.NoError(t, err)
	assert.Len(t, neighbors, 1)
}

func TestPaperVectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := mustPaper(t, s, model.Paper{Title: "Embedded", Year: 2021})
	mustPaper(t, s, model.Paper{Title: "No Embedding", Year: 2022})
	require.NoError(t, s.SetNodeEmbedding(ctx, p1.ID, []float32{0.1, 0.2}))

	vectors, err := s.PaperVectors(ctx)
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, p1.ID, vectors[0].NodeID)
	assert.Equal(t, 2021, vectors[0].Year)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0].Embedding)
}
