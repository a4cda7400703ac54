package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

// MemgraphStore is the Bolt-protocol GraphStore backend for Memgraph or
// Neo4j. Each upsert is a single Cypher statement (or a read-merge-write
// over one row), so concurrent ingestion never locks the whole graph.
type MemgraphStore struct {
	driver neo4j.DriverWithContext
	log    *logging.Logger
	now    func() time.Time
}

func OpenMemgraph(ctx context.Context, uri, username, password string, log *logging.Logger) (*MemgraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, err
	}

	s := &MemgraphStore{
		driver: driver,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, q := range indexQueries {
		if _, err := s.run(ctx, q, nil); err != nil {
			// Index may already exist.
			log.Warn("index creation failed", "query", q, "error", err)
		}
	}
	log.Info("connected to memgraph", "uri", uri)
	return s, nil
}

func (s *MemgraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *MemgraphStore) run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return result, nil
}

func (s *MemgraphStore) UpsertNode(ctx context.Context, in NodeInput) (model.Node, error) {
	if !in.Type.Valid() {
		return model.Node{}, fmt.Errorf("invalid node type %q", in.Type)
	}

	var existing model.Node
	var found bool

	switch {
	case in.ID != "":
		n, err := s.GetNode(ctx, in.ID)
		if err != nil {
			return model.Node{}, err
		}
		existing, found = n, true
	case in.Type != model.NodePaper:
		res, err := s.run(ctx, findNodeByLabelQuery, map[string]interface{}{"label": in.Label})
		if err != nil {
			return model.Node{}, err
		}
		if len(res.Records) > 0 {
			existing = recordToNode(res.Records[0])
			found = true
		}
	}

	now := s.now()
	if found {
		if existing.Type != in.Type {
			return model.Node{}, &TypeConflictError{
				Label:     in.Label,
				Existing:  existing.Type,
				Requested: in.Type,
			}
		}
		merged := MergeNodeProperties(existing.Properties, in.Properties)
		label := existing.Label
		if in.Label != "" {
			label = in.Label
		}
		embedding := existing.Embedding
		if len(in.Embedding) > 0 {
			embedding = in.Embedding
		}
		_, err := s.run(ctx, updateNodeQuery, map[string]interface{}{
			"id":         existing.ID,
			"label":      label,
			"properties": encodeJSON(merged),
			"embedding":  embeddingParam(embedding),
			"updated_at": now.UnixMilli(),
		})
		if err != nil {
			return model.Node{}, err
		}
		existing.Label = label
		existing.Properties = merged
		existing.Embedding = embedding
		existing.UpdatedAt = now
		return existing, nil
	}

	node := model.Node{
		ID:         uuid.NewString(),
		Type:       in.Type,
		Label:      in.Label,
		Properties: in.Properties,
		Embedding:  in.Embedding,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if node.Properties == nil {
		node.Properties = model.Properties{}
	}
	_, err := s.run(ctx, createNodeQuery, map[string]interface{}{
		"id":         node.ID,
		"node_type":  string(node.Type),
		"label":      node.Label,
		"properties": encodeJSON(node.Properties),
		"embedding":  embeddingParam(node.Embedding),
		"created_at": now.UnixMilli(),
		"updated_at": now.UnixMilli(),
	})
	if err != nil {
		return model.Node{}, err
	}
	return node, nil
}

func (s *MemgraphStore) GetNode(ctx context.Context, id string) (model.Node, error) {
	res, err := s.run(ctx, getNodeQuery, map[string]interface{}{"id": id})
	if err != nil {
		return model.Node{}, err
	}
	if len(res.Records) == 0 {
		return model.Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return recordToNode(res.Records[0]), nil
}

func (s *MemgraphStore) SetNodeEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.run(ctx, setNodeEmbeddingQuery, map[string]interface{}{
		"id":         id,
		"embedding":  embeddingParam(embedding),
		"updated_at": s.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *MemgraphStore) DeleteNode(ctx context.Context, id string) error {
	_, err := s.run(ctx, deleteNodeQuery, map[string]interface{}{"id": id})
	return err
}

func (s *MemgraphStore) UpsertEdge(ctx context.Context, in EdgeInput) (model.Edge, error) {
	if !in.Type.Valid() {
		return model.Edge{}, fmt.Errorf("invalid edge type %q", in.Type)
	}
	from, to := CanonicalEndpoints(in.Type, in.FromID, in.ToID)
	in.FromID, in.ToID = from, to
	in.Confidence = ClampConfidence(in.Confidence)

	res, err := s.run(ctx, countEndpointsQuery, map[string]interface{}{
		"from_id": from, "to_id": to,
	})
	if err != nil {
		return model.Edge{}, err
	}
	if len(res.Records) == 0 || asInt(value(res.Records[0], "count")) != 2 {
		return model.Edge{}, fmt.Errorf("edge %s -> %s: %w", from, to, ErrDanglingReference)
	}

	params := map[string]interface{}{
		"from_id": from, "to_id": to, "edge_type": string(in.Type),
	}
	res, err = s.run(ctx, getEdgeByTripleQuery, params)
	if err != nil {
		return model.Edge{}, err
	}

	now := s.now()
	var edge model.Edge
	if len(res.Records) > 0 {
		// The MERGE below lands on the same relationship; conflict
		// resolution happens here, against the stored row.
		edge = MergeEdge(recordToEdge(res.Records[0]), in, now)
	} else {
		edge = model.Edge{
			ID:         uuid.NewString(),
			FromID:     from,
			ToID:       to,
			Type:       in.Type,
			Confidence: in.Confidence,
			Properties: in.Properties,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if edge.Properties == nil {
			edge.Properties = model.Properties{}
		}
	}

	_, err = s.run(ctx, saveEdgeQuery, map[string]interface{}{
		"id":         edge.ID,
		"from_id":    from,
		"to_id":      to,
		"edge_type":  string(in.Type),
		"confidence": edge.Confidence,
		"properties": encodeJSON(edge.Properties),
		"created_at": edge.CreatedAt.UnixMilli(),
		"updated_at": now.UnixMilli(),
	})
	if err != nil {
		return model.Edge{}, err
	}
	return edge, nil
}

func (s *MemgraphStore) Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Neighbor, error) {
	types := make([]interface{}, 0, len(opts.EdgeTypes))
	for _, t := range opts.EdgeTypes {
		types = append(types, string(t))
	}
	params := map[string]interface{}{"id": nodeID, "edge_types": types}

	var queries []string
	switch opts.Direction {
	case Outgoing:
		queries = []string{neighborsOutgoingQuery}
	case Incoming:
		queries = []string{neighborsIncomingQuery}
	default:
		queries = []string{neighborsOutgoingQuery, neighborsIncomingQuery}
	}

	var out []Neighbor
	for _, q := range queries {
		res, err := s.run(ctx, q, params)
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Records {
			out = append(out, Neighbor{
				Edge: recordToNeighborEdge(rec),
				Node: recordToNode(rec),
			})
		}
	}
	return out, nil
}

func (s *MemgraphStore) UpsertPaper(ctx context.Context, p model.Paper) error {
	res, err := s.run(ctx, upsertPaperQuery, map[string]interface{}{
		"node_id":        p.NodeID,
		"title":          p.Title,
		"abstract":       p.Abstract,
		"year":           p.Year,
		"venue":          p.Venue,
		"doi":            p.DOI,
		"arxiv_id":       p.ArxivID,
		"citation_count": p.CitationCount,
	})
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("paper node %s: %w", p.NodeID, ErrNotFound)
	}
	return nil
}

func (s *MemgraphStore) GetPaper(ctx context.Context, nodeID string) (model.Paper, error) {
	res, err := s.run(ctx, getPaperQuery, map[string]interface{}{"node_id": nodeID})
	if err != nil {
		return model.Paper{}, err
	}
	if len(res.Records) == 0 {
		return model.Paper{}, fmt.Errorf("paper %s: %w", nodeID, ErrNotFound)
	}
	return recordToPaper(res.Records[0]), nil
}

func (s *MemgraphStore) FindPaper(ctx context.Context, doi, arxivID, title string, year int) (model.Paper, error) {
	var res *neo4j.EagerResult
	var err error
	switch {
	case doi != "":
		res, err = s.run(ctx, findPaperByDOIQuery, map[string]interface{}{"doi": doi})
	case arxivID != "":
		res, err = s.run(ctx, findPaperByArxivQuery, map[string]interface{}{"arxiv_id": arxivID})
	default:
		res, err = s.run(ctx, findPaperByTitleYearQuery, map[string]interface{}{"title": title, "year": year})
	}
	if err != nil {
		return model.Paper{}, err
	}
	if len(res.Records) == 0 {
		return model.Paper{}, ErrNotFound
	}
	return recordToPaper(res.Records[0]), nil
}

func (s *MemgraphStore) ListPapers(ctx context.Context, f PaperFilter) ([]model.Paper, error) {
	res, err := s.run(ctx, listPapersQuery, map[string]interface{}{
		"year":      f.Year,
		"year_from": f.YearFrom,
		"year_to":   f.YearTo,
		"venue":     f.Venue,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Paper, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, recordToPaper(rec))
	}
	return out, nil
}

func (s *MemgraphStore) SharedEntityPapers(ctx context.Context, paperID string) ([]SharedEntityCount, error) {
	res, err := s.run(ctx, sharedEntityPapersQuery, map[string]interface{}{"id": paperID})
	if err != nil {
		return nil, err
	}
	out := make([]SharedEntityCount, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, SharedEntityCount{
			PaperID: asString(value(rec, "paper_id")),
			Shared:  asInt(value(rec, "shared")),
		})
	}
	return out, nil
}

func (s *MemgraphStore) PaperVectors(ctx context.Context) ([]PaperVector, error) {
	res, err := s.run(ctx, paperVectorsQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make([]PaperVector, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, PaperVector{
			NodeID:    asString(value(rec, "id")),
			Year:      asInt(value(rec, "year")),
			Embedding: asVector(value(rec, "embedding")),
		})
	}
	return out, nil
}

func recordToNode(rec *db.Record) model.Node {
	return model.Node{
		ID:         asString(value(rec, "id")),
		Type:       model.NodeType(asString(value(rec, "node_type"))),
		Label:      asString(value(rec, "label")),
		Properties: decodeJSON(asString(value(rec, "properties"))),
		Embedding:  asVector(value(rec, "embedding")),
		CreatedAt:  time.UnixMilli(int64(asInt(value(rec, "created_at")))).UTC(),
		UpdatedAt:  time.UnixMilli(int64(asInt(value(rec, "updated_at")))).UTC(),
	}
}

func recordToEdge(rec *db.Record) model.Edge {
	return model.Edge{
		ID:         asString(value(rec, "id")),
		FromID:     asString(value(rec, "from_id")),
		ToID:       asString(value(rec, "to_id")),
		Type:       model.EdgeType(asString(value(rec, "edge_type"))),
		Confidence: asFloat(value(rec, "confidence")),
		Properties: decodeJSON(asString(value(rec, "properties"))),
		CreatedAt:  time.UnixMilli(int64(asInt(value(rec, "created_at")))).UTC(),
		UpdatedAt:  time.UnixMilli(int64(asInt(value(rec, "updated_at")))).UTC(),
	}
}

func recordToNeighborEdge(rec *db.Record) model.Edge {
	return model.Edge{
		ID:         asString(value(rec, "edge_id")),
		FromID:     asString(value(rec, "from_id")),
		ToID:       asString(value(rec, "to_id")),
		Type:       model.EdgeType(asString(value(rec, "edge_type"))),
		Confidence: asFloat(value(rec, "confidence")),
		Properties: decodeJSON(asString(value(rec, "edge_properties"))),
		CreatedAt:  time.UnixMilli(int64(asInt(value(rec, "edge_created_at")))).UTC(),
		UpdatedAt:  time.UnixMilli(int64(asInt(value(rec, "edge_updated_at")))).UTC(),
	}
}

func recordToPaper(rec *db.Record) model.Paper {
	return model.Paper{
		NodeID:        asString(value(rec, "node_id")),
		Title:         asString(value(rec, "title")),
		Abstract:      asString(value(rec, "abstract")),
		Year:          asInt(value(rec, "year")),
		Venue:         asString(value(rec, "venue")),
		DOI:           asString(value(rec, "doi")),
		ArxivID:       asString(value(rec, "arxiv_id")),
		CitationCount: asInt(value(rec, "citation_count")),
	}
}

func value(rec *db.Record, key string) interface{} {
	v, _ := rec.Get(key)
	return v
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asVector(v interface{}) []float32 {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, e := range list {
		out = append(out, float32(asFloat(e)))
	}
	return out
}

func embeddingParam(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
