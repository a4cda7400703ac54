// Package ingest orchestrates the pipeline for incoming papers: identity
// resolution, extraction, normalization, graph writes, then pruning and
// cross-paper linking over the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cheersanimesh/research-knowledge-graph/internal/extract"
	"github.com/cheersanimesh/research-knowledge-graph/internal/linker"
	"github.com/cheersanimesh/research-knowledge-graph/internal/llm"
	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/normalize"
	"github.com/cheersanimesh/research-knowledge-graph/internal/pruner"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
)

// embedSnippetChars is how much full text rides along with title+abstract
// in the embedding payload.
const embedSnippetChars = 2000

// PaperInput is one paper submitted for ingestion.
type PaperInput struct {
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	FullText      string `json:"full_text,omitempty"`
	Year          int    `json:"year,omitempty"`
	Venue         string `json:"venue,omitempty"`
	DOI           string `json:"doi,omitempty"`
	ArxivID       string `json:"arxiv_id,omitempty"`
	CitationCount int    `json:"citation_count,omitempty"`
}

// SkippedEntity records an entity dropped during ingestion with the reason,
// so callers can audit what never reached the graph.
type SkippedEntity struct {
	Type   string `json:"entity_type"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

// UnitResult is the outcome for one successfully ingested paper.
type UnitResult struct {
	PaperID         string          `json:"paper_id"`
	Title           string          `json:"title"`
	Reingested      bool            `json:"reingested"`
	EntitiesWritten int             `json:"entities_written"`
	EdgesWritten    int             `json:"edges_written"`
	Skipped         []SkippedEntity `json:"skipped,omitempty"`
	EmbeddingFailed bool            `json:"embedding_failed,omitempty"`
}

// FailedUnit records a paper whose ingestion failed outright.
type FailedUnit struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// RunSummary reports a whole batch: per-paper outcomes plus the linking
// phase, if it ran.
type RunSummary struct {
	Ingested []UnitResult    `json:"ingested"`
	Failed   []FailedUnit    `json:"failed,omitempty"`
	Linking  *linker.Summary `json:"linking,omitempty"`
}

type Orchestrator struct {
	store       store.GraphStore
	extractor   *extract.Extractor
	embedder    llm.Embedder
	pruner      *pruner.Pruner
	linker      *linker.Linker
	log         *logging.Logger
	skipLinking bool
}

func New(s store.GraphStore, ex *extract.Extractor, emb llm.Embedder,
	pr *pruner.Pruner, lk *linker.Linker, log *logging.Logger, skipLinking bool) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	return &Orchestrator{
		store:       s,
		extractor:   ex,
		embedder:    emb,
		pruner:      pr,
		linker:      lk,
		log:         log,
		skipLinking: skipLinking,
	}
}

// IngestPaper runs the single-paper pipeline. Entity-level problems are
// skipped and recorded; an extraction failure fails the unit but leaves the
// already-written paper node in place.
func (o *Orchestrator) IngestPaper(ctx context.Context, in PaperInput) (UnitResult, error) {
	title := strings.Join(strings.Fields(in.Title), " ")
	if title == "" {
		return UnitResult{}, fmt.Errorf("paper title is required")
	}
	result := UnitResult{Title: title}

	// Identity resolution: doi, then arxiv id, then title+year. A match
	// makes this a re-ingestion of the same node.
	existingID := ""
	existing, err := o.store.FindPaper(ctx, in.DOI, in.ArxivID, title, in.Year)
	if err == nil {
		existingID = existing.NodeID
		result.Reingested = true
	} else if !errors.Is(err, store.ErrNotFound) {
		return result, fmt.Errorf("failed to resolve paper identity: %w", err)
	}

	node, err := o.store.UpsertNode(ctx, store.NodeInput{
		ID:    existingID,
		Type:  model.NodePaper,
		Label: title,
	})
	if err != nil {
		return result, fmt.Errorf("failed to upsert paper node: %w", err)
	}
	result.PaperID = node.ID

	if err := o.store.UpsertPaper(ctx, model.Paper{
		NodeID:        node.ID,
		Title:         title,
		Abstract:      in.Abstract,
		Year:          in.Year,
		Venue:         in.Venue,
		DOI:           in.DOI,
		ArxivID:       in.ArxivID,
		CitationCount: in.CitationCount,
	}); err != nil {
		return result, fmt.Errorf("failed to upsert paper metadata: %w", err)
	}

	// Embedding failure degrades semantic pruning for this paper but is
	// not fatal to ingestion.
	if o.embedder != nil {
		if embedding, err := o.embedder.Embed(ctx, embedText(title, in.Abstract, in.FullText)); err != nil {
			result.EmbeddingFailed = true
			o.log.Warn("paper embedding failed", "paper", node.ID, "error", err)
		} else if err := o.store.SetNodeEmbedding(ctx, node.ID, embedding); err != nil {
			result.EmbeddingFailed = true
			o.log.Warn("failed to store paper embedding", "paper", node.ID, "error", err)
		}
	} else {
		result.EmbeddingFailed = true
	}

	text := in.FullText
	if text == "" {
		text = in.Abstract
	}
	extraction, err := o.extractor.Extract(ctx, title, text)
	if err != nil {
		return result, fmt.Errorf("extraction failed for %q: %w", title, err)
	}

	entities, rejected := normalize.Entities(extraction.Entities)
	for _, r := range rejected {
		result.Skipped = append(result.Skipped, SkippedEntity{
			Type: r.Type, Label: r.Label, Reason: "invalid entity type",
		})
	}

	nodeByLabel := map[string]string{}
	for _, e := range entities {
		entityNode, err := o.store.UpsertNode(ctx, store.NodeInput{
			Type:       e.Type,
			Label:      e.Label,
			Properties: e.Properties,
		})
		if err != nil {
			reason := "upsert failed"
			if errors.Is(err, store.ErrEntityTypeConflict) {
				reason = "entity type conflict"
			}
			result.Skipped = append(result.Skipped, SkippedEntity{
				Type: string(e.Type), Label: e.Label, Reason: reason,
			})
			o.log.Warn("skipped entity", "label", e.Label, "type", e.Type, "error", err)
			continue
		}
		result.EntitiesWritten++
		nodeByLabel[strings.ToLower(e.Label)] = entityNode.ID

		edgeType := model.EdgeIntroduces
		if e.Type == model.NodeAuthor {
			edgeType = model.EdgeAuthoredBy
		}
		if _, err := o.store.UpsertEdge(ctx, store.EdgeInput{
			FromID:     node.ID,
			ToID:       entityNode.ID,
			Type:       edgeType,
			Confidence: 1.0,
		}); err != nil {
			o.log.Warn("failed to attach entity to paper",
				"paper", node.ID, "entity", entityNode.ID, "error", err)
			continue
		}
		result.EdgesWritten++
	}

	for _, rel := range extraction.Relations {
		edgeType := model.EdgeType(rel.Type)
		if !edgeType.Valid() || edgeType.CrossPaper() {
			o.log.Warn("skipped relationship with invalid type",
				"paper", node.ID, "type", rel.Type)
			continue
		}
		fromID, okFrom := o.resolveLabel(nodeByLabel, node.ID, title, rel.FromLabel)
		toID, okTo := o.resolveLabel(nodeByLabel, node.ID, title, rel.ToLabel)
		if !okFrom || !okTo {
			o.log.Warn("skipped relationship with unresolved endpoint",
				"paper", node.ID, "from", rel.FromLabel, "to", rel.ToLabel)
			continue
		}

		props := model.Properties{}
		if rel.Rationale != "" {
			props[model.PropRationale] = rel.Rationale
		}
		if rel.EvidenceSpan != "" {
			props[model.PropEvidenceSpans] = []string{rel.EvidenceSpan}
		}
		if _, err := o.store.UpsertEdge(ctx, store.EdgeInput{
			FromID:     fromID,
			ToID:       toID,
			Type:       edgeType,
			Confidence: store.ClampConfidence(rel.Confidence),
			Properties: props,
		}); err != nil {
			o.log.Warn("failed to persist relationship",
				"paper", node.ID, "type", edgeType, "error", err)
			continue
		}
		result.EdgesWritten++
	}

	o.log.Info("ingested paper",
		"paper", node.ID,
		"title", title,
		"entities", result.EntitiesWritten,
		"edges", result.EdgesWritten,
		"skipped", len(result.Skipped))
	return result, nil
}

// resolveLabel maps an extracted endpoint label to a node id. The paper's
// own title resolves to the paper node.
func (o *Orchestrator) resolveLabel(nodeByLabel map[string]string, paperID, title, raw string) (string, bool) {
	key := strings.ToLower(normalize.Label(raw))
	if id, ok := nodeByLabel[key]; ok {
		return id, true
	}
	if key == strings.ToLower(title) {
		return paperID, true
	}
	// Author labels skip title-casing; retry with plain whitespace folding.
	plain := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if id, ok := nodeByLabel[plain]; ok {
		return id, true
	}
	return "", false
}

// IngestBatch ingests each paper independently, then runs the pruning and
// linking phase over everything that landed. One failing paper never stops
// the batch.
func (o *Orchestrator) IngestBatch(ctx context.Context, inputs []PaperInput) (RunSummary, error) {
	var summary RunSummary
	var paperIDs []string

	for _, in := range inputs {
		result, err := o.IngestPaper(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed = append(summary.Failed, FailedUnit{Title: in.Title, Error: err.Error()})
			o.log.Warn("paper ingestion failed", "title", in.Title, "error", err)
			continue
		}
		summary.Ingested = append(summary.Ingested, result)
		paperIDs = append(paperIDs, result.PaperID)
	}

	if o.skipLinking || len(paperIDs) < 2 || o.pruner == nil || o.linker == nil {
		return summary, nil
	}

	pairs, err := o.pruner.Pairs(ctx, paperIDs)
	if err != nil {
		return summary, fmt.Errorf("candidate pruning failed: %w", err)
	}
	linkSummary, err := o.linker.LinkPairs(ctx, pairs)
	if err != nil {
		return summary, fmt.Errorf("linking failed: %w", err)
	}
	summary.Linking = &linkSummary
	return summary, nil
}

// Relink re-runs pruning and linking over the stored corpus without
// re-ingesting anything.
func (o *Orchestrator) Relink(ctx context.Context) (linker.Summary, error) {
	papers, err := o.store.ListPapers(ctx, store.PaperFilter{})
	if err != nil {
		return linker.Summary{}, err
	}
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.NodeID)
	}
	pairs, err := o.pruner.Pairs(ctx, ids)
	if err != nil {
		return linker.Summary{}, err
	}
	return o.linker.LinkPairs(ctx, pairs)
}

func embedText(title, abstract, fullText string) string {
	var b strings.Builder
	b.WriteString(title)
	if abstract != "" {
		b.WriteString("\n\n")
		b.WriteString(abstract)
	}
	if fullText != "" {
		snippet := fullText
		if len(snippet) > embedSnippetChars {
			snippet = snippet[:embedSnippetChars]
		}
		b.WriteString("\n\n")
		b.WriteString(snippet)
	}
	return b.String()
}
