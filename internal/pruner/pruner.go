// Package pruner selects which paper pairs are worth sending to
// relationship inference, cutting the O(n^2) comparison space down to
// O(n*k) while keeping recall high.
package pruner

import (
	"context"
	"fmt"
	"sort"

	"github.com/cheersanimesh/research-knowledge-graph/internal/common"
	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

type Config struct {
	// TopK papers by embedding similarity per seed paper.
	TopK int
	// MaxCandidates caps the union of semantic and shared-entity
	// candidates, bounding fan-out into the linker.
	MaxCandidates int
}

type Candidate struct {
	PaperID        string
	Similarity     float64 // normalized to [0,1]
	SharedEntities int
	Score          float64
	Year           int
}

// Pair is one (source, candidate) comparison for the linker. Each unordered
// pair appears at most once across the whole batch.
type Pair struct {
	SourceID       string
	TargetID       string
	Similarity     float64
	SharedEntities int
	Score          float64
}

type Pruner struct {
	store store.GraphStore
	log   *logging.Logger
	cfg   Config
}

func New(s store.GraphStore, log *logging.Logger, cfg Config) *Pruner {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 25
	}
	return &Pruner{store: s, log: log, cfg: cfg}
}

// CandidatesFor returns the pruned candidate set for one paper: the union
// of its top-k semantic neighbors and every paper sharing at least one
// concept/method/dataset node, deduplicated and capped by combined score.
func (p *Pruner) CandidatesFor(ctx context.Context, seedID string) ([]Candidate, error) {
	vectors, err := p.store.PaperVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load paper vectors: %w", err)
	}

	var seed *store.PaperVector
	years := make(map[string]int, len(vectors))
	for i := range vectors {
		years[vectors[i].NodeID] = vectors[i].Year
		if vectors[i].NodeID == seedID {
			seed = &vectors[i]
		}
	}

	byID := map[string]*Candidate{}

	// Semantic pruning: top-k by cosine similarity, ties to the more
	// recent publication. Skipped when the seed has no embedding.
	if seed != nil {
		sims := make([]Candidate, 0, len(vectors))
		for _, v := range vectors {
			if v.NodeID == seedID {
				continue
			}
			cos := common.Cosine(seed.Embedding, v.Embedding)
			sims = append(sims, Candidate{
				PaperID:    v.NodeID,
				Similarity: (cos + 1) / 2,
				Year:       v.Year,
			})
		}
		sort.Slice(sims, func(i, j int) bool {
			if sims[i].Similarity != sims[j].Similarity {
				return sims[i].Similarity > sims[j].Similarity
			}
			if sims[i].Year != sims[j].Year {
				return sims[i].Year > sims[j].Year
			}
			return sims[i].PaperID < sims[j].PaperID
		})
		if len(sims) > p.cfg.TopK {
			sims = sims[:p.cfg.TopK]
		}
		for _, c := range sims {
			c := c
			byID[c.PaperID] = &c
		}
	}

	// Shared-entity pruning: one graph lookup, not a pairwise scan.
	shared, err := p.store.SharedEntityPapers(ctx, seedID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shared-entity papers: %w", err)
	}
	for _, s := range shared {
		if s.PaperID == seedID {
			continue
		}
		if c, ok := byID[s.PaperID]; ok {
			c.SharedEntities = s.Shared
			continue
		}
		byID[s.PaperID] = &Candidate{
			PaperID:        s.PaperID,
			SharedEntities: s.Shared,
			Year:           years[s.PaperID],
		}
	}

	out := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		c.Score = c.Similarity + float64(c.SharedEntities)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].PaperID < out[j].PaperID
	})
	if len(out) > p.cfg.MaxCandidates {
		out = out[:p.cfg.MaxCandidates]
	}
	return out, nil
}

// Pairs expands CandidatesFor over a batch of papers, deduplicating
// unordered pairs so each comparison is issued at most once.
func (p *Pruner) Pairs(ctx context.Context, paperIDs []string) ([]Pair, error) {
	seen := map[[2]string]bool{}
	var pairs []Pair

	for _, id := range paperIDs {
		candidates, err := p.CandidatesFor(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range candidates {
			key := [2]string{id, c.PaperID}
			if c.PaperID < id {
				key = [2]string{c.PaperID, id}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, Pair{
				SourceID:       id,
				TargetID:       c.PaperID,
				Similarity:     c.Similarity,
				SharedEntities: c.SharedEntities,
				Score:          c.Score,
			})
		}
	}

	if p.log != nil {
		p.log.Info("pruned candidate pairs", "papers", len(paperIDs), "pairs", len(pairs))
	}
	return pairs, nil
}
