package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id          TEXT PRIMARY KEY,
	node_type   TEXT NOT NULL,
	label       TEXT NOT NULL,
	properties  TEXT NOT NULL DEFAULT '{}',
	embedding   BLOB,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_entity_label ON nodes(lower(label)) WHERE node_type != 'paper';

CREATE TABLE IF NOT EXISTS edges (
	id           TEXT PRIMARY KEY,
	from_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	to_node_id   TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	edge_type    TEXT NOT NULL,
	confidence   REAL NOT NULL,
	properties   TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	UNIQUE(from_node_id, to_node_id, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_node_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_node_id);

CREATE TABLE IF NOT EXISTS papers (
	node_id        TEXT PRIMARY KEY REFERENCES nodes(id) ON DELETE CASCADE,
	title          TEXT NOT NULL,
	abstract       TEXT NOT NULL DEFAULT '',
	year           INTEGER,
	venue          TEXT,
	doi            TEXT,
	arxiv_id       TEXT,
	citation_count INTEGER
);
CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(year);
`

// SQLiteStore is the embedded GraphStore backend. A single connection
// serializes writes, giving each upsert single-row transactional semantics
// without locking the whole graph at the application level.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertNode(ctx context.Context, in NodeInput) (model.Node, error) {
	n, err := s.upsertNode(ctx, in)
	if isWriteConflict(err) {
		// A writer on another connection landed the same dedup key between
		// our lookup and insert; rerun so the lookup takes the merge path.
		return s.upsertNode(ctx, in)
	}
	return n, err
}

func (s *SQLiteStore) upsertNode(ctx context.Context, in NodeInput) (model.Node, error) {
	if !in.Type.Valid() {
		return model.Node{}, fmt.Errorf("invalid node type %q", in.Type)
	}

	var existing model.Node
	var found bool
	var err error

	switch {
	case in.ID != "":
		existing, err = s.GetNode(ctx, in.ID)
		if err != nil {
			return model.Node{}, err
		}
		found = true
	case in.Type != model.NodePaper:
		// Dedup-key lookup by normalized label. Paper titles never collide
		// with entities; papers resolve by external identity instead.
		existing, found, err = s.findNodeByLabel(ctx, in.Label)
		if err != nil {
			return model.Node{}, err
		}
	}

	if found {
		if existing.Type != in.Type {
			return model.Node{}, &TypeConflictError{
				Label:     in.Label,
				Existing:  existing.Type,
				Requested: in.Type,
			}
		}
		merged := MergeNodeProperties(existing.Properties, in.Properties)
		now := s.now()
		label := existing.Label
		if in.Label != "" {
			label = in.Label
		}
		embedding := existing.Embedding
		if len(in.Embedding) > 0 {
			embedding = in.Embedding
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE nodes SET label = ?, properties = ?, embedding = ?, updated_at = ? WHERE id = ?`,
			label, encodeJSON(merged), encodeEmbedding(embedding), now.UnixMilli(), existing.ID)
		if err != nil {
			return model.Node{}, fmt.Errorf("failed to update node: %w", err)
		}
		existing.Label = label
		existing.Properties = merged
		existing.Embedding = embedding
		existing.UpdatedAt = now
		return existing, nil
	}

	now := s.now()
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, node_type, label, properties, embedding, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.ID, string(node.Type), node.Label, encodeJSON(node.Properties),
		encodeEmbedding(node.Embedding), now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return model.Node{}, fmt.Errorf("failed to insert node: %w", err)
	}
	return node, nil
}

func (s *SQLiteStore) findNodeByLabel(ctx context.Context, label string) (model.Node, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, node_type, label, properties, embedding, created_at, updated_at
		 FROM nodes WHERE lower(label) = lower(?) AND node_type != 'paper' LIMIT 1`, label)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, false, nil
	}
	if err != nil {
		return model.Node{}, false, err
	}
	return n, true, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (model.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, node_type, label, properties, embedding, created_at, updated_at
		 FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return n, err
}

func (s *SQLiteStore) SetNodeEmbedding(ctx context.Context, id string, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET embedding = ?, updated_at = ? WHERE id = ?`,
		encodeEmbedding(embedding), s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	// Incident edges and the paper row go with the node via FK cascade.
	_, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) UpsertEdge(ctx context.Context, in EdgeInput) (model.Edge, error) {
	e, err := s.upsertEdge(ctx, in)
	if isWriteConflict(err) {
		// Same triple committed by another connection mid-upsert; the
		// fresh transaction sees it and merges instead of inserting.
		return s.upsertEdge(ctx, in)
	}
	return e, err
}

func (s *SQLiteStore) upsertEdge(ctx context.Context, in EdgeInput) (model.Edge, error) {
	if !in.Type.Valid() {
		return model.Edge{}, fmt.Errorf("invalid edge type %q", in.Type)
	}
	from, to := CanonicalEndpoints(in.Type, in.FromID, in.ToID)
	in.FromID, in.ToID = from, to
	in.Confidence = ClampConfidence(in.Confidence)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Edge{}, err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE id IN (?, ?)`, from, to).Scan(&count)
	if err != nil {
		return model.Edge{}, err
	}
	if count != 2 {
		return model.Edge{}, fmt.Errorf("edge %s -> %s: %w", from, to, ErrDanglingReference)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, from_node_id, to_node_id, edge_type, confidence, properties, created_at, updated_at
		 FROM edges WHERE from_node_id = ? AND to_node_id = ? AND edge_type = ?`,
		from, to, string(in.Type))
	existing, err := scanEdge(row)
	now := s.now()

	switch {
	case errors.Is(err, sql.ErrNoRows):
		edge := model.Edge{
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
		_, err = tx.ExecContext(ctx,
			`INSERT INTO edges (id, from_node_id, to_node_id, edge_type, confidence, properties, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			edge.ID, from, to, string(in.Type), edge.Confidence,
			encodeJSON(edge.Properties), now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return model.Edge{}, fmt.Errorf("failed to insert edge: %w", err)
		}
		return edge, tx.Commit()
	case err != nil:
		return model.Edge{}, err
	default:
		merged := MergeEdge(existing, in, now)
		_, err = tx.ExecContext(ctx,
			`UPDATE edges SET confidence = ?, properties = ?, updated_at = ? WHERE id = ?`,
			merged.Confidence, encodeJSON(merged.Properties), now.UnixMilli(), merged.ID)
		if err != nil {
			return model.Edge{}, fmt.Errorf("failed to merge edge: %w", err)
		}
		return merged, tx.Commit()
	}
}

func (s *SQLiteStore) Neighbors(ctx context.Context, nodeID string, opts NeighborOptions) ([]Neighbor, error) {
	var conds []string
	var args []interface{}

	switch opts.Direction {
	case Outgoing:
		conds = append(conds, "e.from_node_id = ?")
		args = append(args, nodeID)
	case Incoming:
		conds = append(conds, "e.to_node_id = ?")
		args = append(args, nodeID)
	default:
		conds = append(conds, "(e.from_node_id = ? OR e.to_node_id = ?)")
		args = append(args, nodeID, nodeID)
	}

	if len(opts.EdgeTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.EdgeTypes)), ",")
		conds = append(conds, "e.edge_type IN ("+placeholders+")")
		for _, t := range opts.EdgeTypes {
			args = append(args, string(t))
		}
	}

	query := `
		SELECT e.id, e.from_node_id, e.to_node_id, e.edge_type, e.confidence, e.properties, e.created_at, e.updated_at,
		       n.id, n.node_type, n.label, n.properties, n.embedding, n.created_at, n.updated_at
		FROM edges e
		JOIN nodes n ON n.id = CASE WHEN e.from_node_id = ? THEN e.to_node_id ELSE e.from_node_id END
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY n.id`
	args = append([]interface{}{nodeID}, args...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbors: %w", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var (
			e                      model.Edge
			n                      model.Node
			eProps, nProps         string
			emb                    []byte
			eCre, eUpd, nCre, nUpd int64
		)
		err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Type, &e.Confidence, &eProps, &eCre, &eUpd,
			&n.ID, &n.Type, &n.Label, &nProps, &emb, &nCre, &nUpd)
		if err != nil {
			return nil, err
		}
		e.Properties = decodeJSON(eProps)
		e.CreatedAt, e.UpdatedAt = time.UnixMilli(eCre).UTC(), time.UnixMilli(eUpd).UTC()
		n.Properties = decodeJSON(nProps)
		n.Embedding = decodeEmbedding(emb)
		n.CreatedAt, n.UpdatedAt = time.UnixMilli(nCre).UTC(), time.UnixMilli(nUpd).UTC()
		out = append(out, Neighbor{Edge: e, Node: n})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertPaper(ctx context.Context, p model.Paper) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO papers (node_id, title, abstract, year, venue, doi, arxiv_id, citation_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			title = excluded.title,
			abstract = excluded.abstract,
			year = excluded.year,
			venue = excluded.venue,
			doi = excluded.doi,
			arxiv_id = excluded.arxiv_id,
			citation_count = excluded.citation_count`,
		p.NodeID, p.Title, p.Abstract, nullableInt(p.Year), nullableStr(p.Venue),
		nullableStr(p.DOI), nullableStr(p.ArxivID), nullableInt(p.CitationCount))
	if err != nil {
		return fmt.Errorf("failed to upsert paper: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPaper(ctx context.Context, nodeID string) (model.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT node_id, title, abstract, year, venue, doi, arxiv_id, citation_count
		 FROM papers WHERE node_id = ?`, nodeID)
	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Paper{}, fmt.Errorf("paper %s: %w", nodeID, ErrNotFound)
	}
	return p, err
}

func (s *SQLiteStore) FindPaper(ctx context.Context, doi, arxivID, title string, year int) (model.Paper, error) {
	var row *sql.Row
	const sel = `SELECT node_id, title, abstract, year, venue, doi, arxiv_id, citation_count FROM papers `
	switch {
	case doi != "":
		row = s.db.QueryRowContext(ctx, sel+`WHERE doi = ?`, doi)
	case arxivID != "":
		row = s.db.QueryRowContext(ctx, sel+`WHERE arxiv_id = ?`, arxivID)
	default:
		row = s.db.QueryRowContext(ctx, sel+`WHERE lower(title) = lower(?) AND year = ?`, title, year)
	}
	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Paper{}, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) ListPapers(ctx context.Context, f PaperFilter) ([]model.Paper, error) {
	conds := []string{"1=1"}
	var args []interface{}
	if f.Year != 0 {
		conds = append(conds, "year = ?")
		args = append(args, f.Year)
	}
	if f.YearFrom != 0 {
		conds = append(conds, "year >= ?")
		args = append(args, f.YearFrom)
	}
	if f.YearTo != 0 {
		conds = append(conds, "year <= ?")
		args = append(args, f.YearTo)
	}
	if f.Venue != "" {
		conds = append(conds, "lower(venue) = lower(?)")
		args = append(args, f.Venue)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, title, abstract, year, venue, doi, arxiv_id, citation_count
		 FROM papers WHERE `+strings.Join(conds, " AND ")+`
		 ORDER BY year DESC, title`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var out []model.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SharedEntityPapers finds every other paper that shares at least one
// concept, method or dataset node with the given paper in one query,
// avoiding a pairwise scan over the corpus.
func (s *SQLiteStore) SharedEntityPapers(ctx context.Context, paperID string) ([]SharedEntityCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e2.from_node_id, COUNT(DISTINCT e1.to_node_id)
		FROM edges e1
		JOIN nodes shared ON shared.id = e1.to_node_id
			AND shared.node_type IN ('concept', 'method', 'dataset')
		JOIN edges e2 ON e2.to_node_id = e1.to_node_id
			AND e2.from_node_id != e1.from_node_id
		JOIN nodes other ON other.id = e2.from_node_id AND other.node_type = 'paper'
		WHERE e1.from_node_id = ?
		GROUP BY e2.from_node_id
		ORDER BY COUNT(DISTINCT e1.to_node_id) DESC, e2.from_node_id`, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shared entities: %w", err)
	}
	defer rows.Close()

	var out []SharedEntityCount
	for rows.Next() {
		var c SharedEntityCount
		if err := rows.Scan(&c.PaperID, &c.Shared); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PaperVectors(ctx context.Context) ([]PaperVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, COALESCE(p.year, 0), n.embedding
		FROM nodes n
		LEFT JOIN papers p ON p.node_id = n.id
		WHERE n.node_type = 'paper' AND n.embedding IS NOT NULL
		ORDER BY n.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query paper vectors: %w", err)
	}
	defer rows.Close()

	var out []PaperVector
	for rows.Next() {
		var v PaperVector
		var emb []byte
		if err := rows.Scan(&v.NodeID, &v.Year, &emb); err != nil {
			return nil, err
		}
		v.Embedding = decodeEmbedding(emb)
		if len(v.Embedding) == 0 {
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(r rowScanner) (model.Node, error) {
	var n model.Node
	var props string
	var emb []byte
	var cre, upd int64
	if err := r.Scan(&n.ID, &n.Type, &n.Label, &props, &emb, &cre, &upd); err != nil {
		return model.Node{}, err
	}
	n.Properties = decodeJSON(props)
	n.Embedding = decodeEmbedding(emb)
	n.CreatedAt = time.UnixMilli(cre).UTC()
	n.UpdatedAt = time.UnixMilli(upd).UTC()
	return n, nil
}

func scanEdge(r rowScanner) (model.Edge, error) {
	var e model.Edge
	var props string
	var cre, upd int64
	if err := r.Scan(&e.ID, &e.FromID, &e.ToID, &e.Type, &e.Confidence, &props, &cre, &upd); err != nil {
		return model.Edge{}, err
	}
	e.Properties = decodeJSON(props)
	e.CreatedAt = time.UnixMilli(cre).UTC()
	e.UpdatedAt = time.UnixMilli(upd).UTC()
	return e, nil
}

func scanPaper(r rowScanner) (model.Paper, error) {
	var p model.Paper
	var year, citations sql.NullInt64
	var venue, doi, arxiv sql.NullString
	if err := r.Scan(&p.NodeID, &p.Title, &p.Abstract, &year, &venue, &doi, &arxiv, &citations); err != nil {
		return model.Paper{}, err
	}
	p.Year = int(year.Int64)
	p.CitationCount = int(citations.Int64)
	p.Venue = venue.String
	p.DOI = doi.String
	p.ArxivID = arxiv.String
	return p, nil
}

func encodeJSON(p model.Properties) string {
	if p == nil {
		return "{}"
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeJSON(s string) model.Properties {
	p := model.Properties{}
	if s == "" {
		return p
	}
	_ = json.Unmarshal([]byte(s), &p)
	return p
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

func nullableInt(i int) interface{} {
	if i == 0 {
		return nil
	}
	return i
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isWriteConflict reports a lost race against a concurrent writer on the
// same database file: a uniqueness violation from a row another connection
// inserted first, or a write attempted on a stale WAL snapshot. Both mean
// the conflicting row is now committed and a rerun merges into it.
func isWriteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked")
}
