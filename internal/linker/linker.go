// Package linker runs relationship inference over pruned candidate pairs
// and writes the accepted proposals into the graph.
package linker

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/pruner"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

type Config struct {
	// Concurrency bounds the in-flight inference calls.
	Concurrency int
}

// Summary reports one linking run. Failures are isolated per pair, so a
// run can succeed partially.
type Summary struct {
	PairsProcessed    int
	PairsFailed       int
	EdgesWritten      int
	ProposalsRejected int
}

type Linker struct {
	store store.GraphStore
	inf   InferenceClient
	log   *logging.Logger
	cfg   Config
}

func New(s store.GraphStore, inf InferenceClient, log *logging.Logger, cfg Config) *Linker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Linker{store: s, inf: inf, log: log, cfg: cfg}
}

// LinkPairs infers and persists cross-paper relationships for every pair.
// A failing pair is logged and counted, never aborts the batch; the only
// hard error is context cancellation.
func (l *Linker) LinkPairs(ctx context.Context, pairs []pruner.Pair) (Summary, error) {
	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)

	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			written, rejected, err := l.linkPair(gctx, pair)

			mu.Lock()
			defer mu.Unlock()
			summary.PairsProcessed++
			summary.EdgesWritten += written
			summary.ProposalsRejected += rejected
			if err != nil {
				summary.PairsFailed++
				l.log.Warn("pair linking failed",
					"source", pair.SourceID, "target", pair.TargetID, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	l.log.Info("linking complete",
		"pairs", summary.PairsProcessed,
		"failed", summary.PairsFailed,
		"edges", summary.EdgesWritten,
		"rejected", summary.ProposalsRejected)
	return summary, nil
}

func (l *Linker) linkPair(ctx context.Context, pair pruner.Pair) (written, rejected int, err error) {
	source, err := l.store.GetPaper(ctx, pair.SourceID)
	if err != nil {
		return 0, 0, err
	}
	target, err := l.store.GetPaper(ctx, pair.TargetID)
	if err != nil {
		return 0, 0, err
	}
	shared, err := l.sharedLabels(ctx, pair.SourceID, pair.TargetID)
	if err != nil {
		return 0, 0, err
	}

	result, err := l.inf.Infer(ctx, Evidence{
		SourceTitle:    source.Title,
		SourceAbstract: source.Abstract,
		TargetTitle:    target.Title,
		TargetAbstract: target.Abstract,
		SharedEntities: shared,
	})
	if err != nil {
		return 0, 0, err
	}

	for _, proposal := range result.Relationships {
		edgeType := model.EdgeType(proposal.Type)
		if !edgeType.Valid() || !edgeType.CrossPaper() {
			rejected++
			l.log.Warn("rejected relationship proposal",
				"type", proposal.Type, "source", pair.SourceID, "target", pair.TargetID)
			continue
		}

		fromID, toID := pair.SourceID, pair.TargetID
		if proposal.From == "target" {
			fromID, toID = toID, fromID
		}

		props := model.Properties{}
		if proposal.Rationale != "" {
			props[model.PropRationale] = proposal.Rationale
		}
		if proposal.EvidenceSpan != "" {
			props[model.PropEvidenceSpans] = []string{proposal.EvidenceSpan}
		}
		if len(shared) > 0 {
			props[model.PropEvidenceConcepts] = shared
		}

		if _, err := l.store.UpsertEdge(ctx, store.EdgeInput{
			FromID:     fromID,
			ToID:       toID,
			Type:       edgeType,
			Confidence: store.ClampConfidence(proposal.Confidence),
			Properties: props,
		}); err != nil {
			// One bad proposal must not discard the rest of the pair.
			rejected++
			l.log.Warn("failed to persist relationship",
				"type", edgeType, "from", fromID, "to", toID, "error", err)
			continue
		}
		written++
	}
	return written, rejected, nil
}

// sharedLabels intersects the entity neighborhoods of both papers, giving
// the inference prompt concrete common ground.
func (l *Linker) sharedLabels(ctx context.Context, sourceID, targetID string) ([]string, error) {
	opts := store.NeighborOptions{
		Direction: store.Outgoing,
		EdgeTypes: []model.EdgeType{
			model.EdgeIntroduces,
			model.EdgeUsesConcept,
			model.EdgeUsesDataset,
			model.EdgeEvaluatesWith,
			model.EdgeEvaluatesOn,
		},
	}
	sourceNeighbors, err := l.store.Neighbors(ctx, sourceID, opts)
	if err != nil {
		return nil, err
	}
	targetNeighbors, err := l.store.Neighbors(ctx, targetID, opts)
	if err != nil {
		return nil, err
	}

	sourceLabels := make(map[string]bool, len(sourceNeighbors))
	for _, n := range sourceNeighbors {
		sourceLabels[n.Node.Label] = true
	}
	var shared []string
	seen := map[string]bool{}
	for _, n := range targetNeighbors {
		if sourceLabels[n.Node.Label] && !seen[n.Node.Label] {
			seen[n.Node.Label] = true
			shared = append(shared, n.Node.Label)
		}
	}
	sort.Strings(shared)
	return shared, nil
}
