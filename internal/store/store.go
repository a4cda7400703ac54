// Package store owns all persisted graph identity and uniqueness
// enforcement. Mutation goes through the upsert contract; callers never
// write nodes or edges directly.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

var (
	// ErrNotFound is returned for lookups of missing nodes or papers.
	ErrNotFound = errors.New("not found")

	// ErrDanglingReference is returned when an edge upsert references a
	// node that does not exist. Fatal for that edge only.
	ErrDanglingReference = errors.New("dangling node reference")

	// ErrEntityTypeConflict matches TypeConflictError via errors.Is.
	ErrEntityTypeConflict = errors.New("entity type conflict")
)

// TypeConflictError reports a normalized-label collision across two
// incompatible node types. Never resolved automatically; the caller skips
// the offending entity and surfaces the conflict.
type TypeConflictError struct {
	Label     string
	Existing  model.NodeType
	Requested model.NodeType
}

func (e *TypeConflictError) Error() string {
	return fmt.Sprintf("entity type conflict for label %q: existing %s, requested %s",
		e.Label, e.Existing, e.Requested)
}

func (e *TypeConflictError) Is(target error) bool {
	return target == ErrEntityTypeConflict
}

// NodeInput is the upsert payload for a node. Label must already be
// normalized. When ID is set the upsert targets that node directly
// (re-ingestion path); otherwise entity nodes are resolved by dedup key and
// paper nodes are created.
type NodeInput struct {
	ID         string
	Type       model.NodeType
	Label      string
	Properties model.Properties
	Embedding  []float32
}

// EdgeInput is the upsert payload for an edge. Force makes the incoming
// confidence win even when it is not strictly higher.
type EdgeInput struct {
	FromID     string
	ToID       string
	Type       model.EdgeType
	Confidence float64
	Properties model.Properties
	Force      bool
}

type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

type NeighborOptions struct {
	EdgeTypes []model.EdgeType
	Direction Direction
}

// Neighbor pairs an incident edge with the node at its far end.
type Neighbor struct {
	Edge model.Edge
	Node model.Node
}

type PaperFilter struct {
	Year     int
	YearFrom int
	YearTo   int
	Venue    string
}

// SharedEntityCount reports how many concept/method/dataset nodes a paper
// shares with the queried paper.
type SharedEntityCount struct {
	PaperID string
	Shared  int
}

// PaperVector is the similarity-search view of a paper node.
type PaperVector struct {
	NodeID    string
	Year      int
	Embedding []float32
}

type GraphStore interface {
	UpsertNode(ctx context.Context, in NodeInput) (model.Node, error)
	GetNode(ctx context.Context, id string) (model.Node, error)
	SetNodeEmbedding(ctx context.Context, id string, embedding []float32) error
	DeleteNode(ctx context.Context, id string) error

	UpsertEdge(ctx context.Context, in EdgeInput) (model.Edge, error)
	Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Neighbor, error)

	UpsertPaper(ctx context.Context, p model.Paper) error
	GetPaper(ctx context.Context, nodeID string) (model.Paper, error)
	// FindPaper resolves paper identity: by doi when available, else arxiv
	// id, else normalized title+year. Returns ErrNotFound on no match.
	FindPaper(ctx context.Context, doi, arxivID, title string, year int) (model.Paper, error)
	ListPapers(ctx context.Context, f PaperFilter) ([]model.Paper, error)

	SharedEntityPapers(ctx context.Context, paperID string) ([]SharedEntityCount, error)
	PaperVectors(ctx context.Context) ([]PaperVector, error)

	Close(ctx context.Context) error
}
