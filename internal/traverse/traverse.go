// Package traverse answers graph questions over the persisted store:
// bounded neighborhood expansion, improvement lineages, and similarity
// ranking. All walks carry a visited set so cycles terminate.
package traverse

import (
	"context"
	"fmt"
	"sort"

	"github.com/cheersanimesh/research-knowledge-graph/internal/common"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

// maxDepth bounds every walk regardless of what the caller asks for.
const maxDepth = 10

type Engine struct {
	store store.GraphStore
}

func New(s store.GraphStore) *Engine {
	return &Engine{store: s}
}

// Hop is one traversed edge plus the node it led to, annotated with its
// distance from the start node.
type Hop struct {
	Depth int        `json:"depth"`
	Edge  model.Edge `json:"edge"`
	Node  model.Node `json:"node"`
}

// Expand walks breadth-first from start up to depth hops, optionally
// restricted to a set of edge types. Each node is reported at its first
// (shallowest) discovery.
func (e *Engine) Expand(ctx context.Context, start string, depth int, opts store.NeighborOptions) ([]Hop, error) {
	if depth <= 0 {
		depth = 1
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	if _, err := e.store.GetNode(ctx, start); err != nil {
		return nil, err
	}

	visited := map[string]bool{start: true}
	frontier := []string{start}
	var hops []Hop

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := e.store.Neighbors(ctx, id, opts)
			if err != nil {
				return nil, fmt.Errorf("failed to expand %s: %w", id, err)
			}
			for _, n := range neighbors {
				if visited[n.Node.ID] {
					continue
				}
				visited[n.Node.ID] = true
				hops = append(hops, Hop{Depth: d, Edge: n.Edge, Node: n.Node})
				next = append(next, n.Node.ID)
			}
		}
		frontier = next
	}
	return hops, nil
}

// ChainRow is one paper on an improvement lineage: the chain of papers,
// root first, that successively improve on the start paper.
type ChainRow struct {
	Depth int          `json:"depth"`
	Paper model.Node   `json:"paper"`
	Path  []model.Node `json:"path"`
}

// ImprovementChains walks IMPROVES_ON edges backwards from start: papers
// that improve on it, papers that improve on those, and so on, to depth.
// The path accumulator keeps cyclic claims from looping.
func (e *Engine) ImprovementChains(ctx context.Context, start string, depth int) ([]ChainRow, error) {
	if depth <= 0 {
		depth = 3
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	root, err := e.store.GetNode(ctx, start)
	if err != nil {
		return nil, err
	}

	var rows []ChainRow
	err = e.improveWalk(ctx, root, []model.Node{root}, depth, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *Engine) improveWalk(ctx context.Context, at model.Node, path []model.Node, remaining int, rows *[]ChainRow) error {
	if remaining == 0 {
		return nil
	}
	neighbors, err := e.store.Neighbors(ctx, at.ID, store.NeighborOptions{
		Direction: store.Incoming,
		EdgeTypes: []model.EdgeType{model.EdgeImprovesOn},
	})
	if err != nil {
		return err
	}
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Node.ID < neighbors[j].Node.ID
	})

	for _, n := range neighbors {
		if onPath(path, n.Node.ID) {
			continue
		}
		next := append(append([]model.Node{}, path...), n.Node)
		*rows = append(*rows, ChainRow{
			Depth: len(next) - 1,
			Paper: n.Node,
			Path:  next,
		})
		if err := e.improveWalk(ctx, n.Node, next, remaining-1, rows); err != nil {
			return err
		}
	}
	return nil
}

func onPath(path []model.Node, id string) bool {
	for _, n := range path {
		if n.ID == id {
			return true
		}
	}
	return false
}

// SimilarPaper is one ranked similarity result.
type SimilarPaper struct {
	Paper      model.Paper `json:"paper"`
	Similarity float64     `json:"similarity"`
}

// SimilarPapers ranks the corpus against the given paper by embedding
// similarity, breaking exact ties by stored SIMILAR_TO confidence and then
// node id so the ordering is stable.
func (e *Engine) SimilarPapers(ctx context.Context, paperID string, limit int) ([]SimilarPaper, error) {
	if limit <= 0 {
		limit = 10
	}
	vectors, err := e.store.PaperVectors(ctx)
	if err != nil {
		return nil, err
	}
	var seed []float32
	for _, v := range vectors {
		if v.NodeID == paperID {
			seed = v.Embedding
			break
		}
	}
	if seed == nil {
		return nil, fmt.Errorf("paper %s has no embedding: %w", paperID, store.ErrNotFound)
	}

	similarConf, err := e.similarEdgeConfidence(ctx, paperID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id         string
		similarity float64
	}
	ranked := make([]scored, 0, len(vectors))
	for _, v := range vectors {
		if v.NodeID == paperID {
			continue
		}
		ranked = append(ranked, scored{id: v.NodeID, similarity: common.Cosine(seed, v.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].similarity != ranked[j].similarity {
			return ranked[i].similarity > ranked[j].similarity
		}
		if similarConf[ranked[i].id] != similarConf[ranked[j].id] {
			return similarConf[ranked[i].id] > similarConf[ranked[j].id]
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]SimilarPaper, 0, len(ranked))
	for _, r := range ranked {
		paper, err := e.store.GetPaper(ctx, r.id)
		if err != nil {
			return nil, err
		}
		out = append(out, SimilarPaper{Paper: paper, Similarity: r.similarity})
	}
	return out, nil
}

func (e *Engine) similarEdgeConfidence(ctx context.Context, paperID string) (map[string]float64, error) {
	neighbors, err := e.store.Neighbors(ctx, paperID, store.NeighborOptions{
		Direction: store.Both,
		EdgeTypes: []model.EdgeType{model.EdgeSimilarTo},
	})
	if err != nil {
		return nil, err
	}
	conf := make(map[string]float64, len(neighbors))
	for _, n := range neighbors {
		conf[n.Node.ID] = n.Edge.Confidence
	}
	return conf, nil
}
