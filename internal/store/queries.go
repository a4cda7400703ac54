package store

// Cypher for the Memgraph backend. Every graph node carries the :Node label
// with its vocabulary type in the node_type property; relationships use a
// single :REL type with the vocabulary type in edge_type, so the
// (from, to, edge_type) uniqueness invariant maps onto one MERGE pattern.

const (
	createNodeQuery = `
		CREATE (n:Node {
			id: $id,
			node_type: $node_type,
			label: $label,
			properties: $properties,
			embedding: $embedding,
			created_at: $created_at,
			updated_at: $updated_at
		})
		RETURN n.id AS id
	`

	updateNodeQuery = `
		MATCH (n:Node {id: $id})
		SET n.label = $label,
			n.properties = $properties,
			n.embedding = $embedding,
			n.updated_at = $updated_at
		RETURN n.id AS id
	`

	getNodeQuery = `
		MATCH (n:Node {id: $id})
		RETURN n.id AS id, n.node_type AS node_type, n.label AS label,
		       n.properties AS properties, n.embedding AS embedding,
		       n.created_at AS created_at, n.updated_at AS updated_at
	`

	findNodeByLabelQuery = `
		MATCH (n:Node)
		WHERE toLower(n.label) = toLower($label) AND n.node_type <> 'paper'
		RETURN n.id AS id, n.node_type AS node_type, n.label AS label,
		       n.properties AS properties, n.embedding AS embedding,
		       n.created_at AS created_at, n.updated_at AS updated_at
		LIMIT 1
	`

	setNodeEmbeddingQuery = `
		MATCH (n:Node {id: $id})
		SET n.embedding = $embedding, n.updated_at = $updated_at
		RETURN n.id AS id
	`

	deleteNodeQuery = `
		MATCH (n:Node {id: $id})
		DETACH DELETE n
	`

	countEndpointsQuery = `
		MATCH (n:Node)
		WHERE n.id IN [$from_id, $to_id]
		RETURN count(n) AS count
	`

	getEdgeByTripleQuery = `
		MATCH (a:Node {id: $from_id})-[r:REL {edge_type: $edge_type}]->(b:Node {id: $to_id})
		RETURN r.id AS id, a.id AS from_id, b.id AS to_id, r.edge_type AS edge_type,
		       r.confidence AS confidence, r.properties AS properties,
		       r.created_at AS created_at, r.updated_at AS updated_at
	`

	saveEdgeQuery = `
		MATCH (a:Node {id: $from_id})
		MATCH (b:Node {id: $to_id})
		MERGE (a)-[r:REL {edge_type: $edge_type}]->(b)
		SET r.id = $id,
			r.confidence = $confidence,
			r.properties = $properties,
			r.created_at = $created_at,
			r.updated_at = $updated_at
		RETURN r.id AS id
	`

	neighborsOutgoingQuery = `
		MATCH (n:Node {id: $id})-[r:REL]->(m:Node)
		WHERE size($edge_types) = 0 OR r.edge_type IN $edge_types
		RETURN r.id AS edge_id, startNode(r).id AS from_id, endNode(r).id AS to_id,
		       r.edge_type AS edge_type, r.confidence AS confidence,
		       r.properties AS edge_properties, r.created_at AS edge_created_at,
		       r.updated_at AS edge_updated_at,
		       m.id AS id, m.node_type AS node_type, m.label AS label,
		       m.properties AS properties, m.embedding AS embedding,
		       m.created_at AS created_at, m.updated_at AS updated_at
		ORDER BY m.id
	`

	neighborsIncomingQuery = `
		MATCH (n:Node {id: $id})<-[r:REL]-(m:Node)
		WHERE size($edge_types) = 0 OR r.edge_type IN $edge_types
		RETURN r.id AS edge_id, startNode(r).id AS from_id, endNode(r).id AS to_id,
		       r.edge_type AS edge_type, r.confidence AS confidence,
		       r.properties AS edge_properties, r.created_at AS edge_created_at,
		       r.updated_at AS edge_updated_at,
		       m.id AS id, m.node_type AS node_type, m.label AS label,
		       m.properties AS properties, m.embedding AS embedding,
		       m.created_at AS created_at, m.updated_at AS updated_at
		ORDER BY m.id
	`

	upsertPaperQuery = `
		MATCH (n:Node {id: $node_id})
		SET n.title = $title,
			n.abstract = $abstract,
			n.year = $year,
			n.venue = $venue,
			n.doi = $doi,
			n.arxiv_id = $arxiv_id,
			n.citation_count = $citation_count
		RETURN n.id AS id
	`

	paperFields = `
		n.id AS node_id, n.title AS title, n.abstract AS abstract,
		n.year AS year, n.venue AS venue, n.doi AS doi,
		n.arxiv_id AS arxiv_id, n.citation_count AS citation_count
	`

	getPaperQuery = `
		MATCH (n:Node {id: $node_id, node_type: 'paper'})
		RETURN` + paperFields

	findPaperByDOIQuery = `
		MATCH (n:Node {node_type: 'paper'})
		WHERE n.doi = $doi
		RETURN` + paperFields + `LIMIT 1`

	findPaperByArxivQuery = `
		MATCH (n:Node {node_type: 'paper'})
		WHERE n.arxiv_id = $arxiv_id
		RETURN` + paperFields + `LIMIT 1`

	findPaperByTitleYearQuery = `
		MATCH (n:Node {node_type: 'paper'})
		WHERE toLower(n.title) = toLower($title) AND n.year = $year
		RETURN` + paperFields + `LIMIT 1`

	listPapersQuery = `
		MATCH (n:Node {node_type: 'paper'})
		WHERE ($year = 0 OR n.year = $year)
		  AND ($year_from = 0 OR n.year >= $year_from)
		  AND ($year_to = 0 OR n.year <= $year_to)
		  AND ($venue = '' OR toLower(n.venue) = toLower($venue))
		RETURN` + paperFields + `
		ORDER BY n.year DESC, n.title
	`

	sharedEntityPapersQuery = `
		MATCH (p:Node {id: $id})-[:REL]->(shared:Node)
		WHERE shared.node_type IN ['concept', 'method', 'dataset']
		MATCH (other:Node {node_type: 'paper'})-[:REL]->(shared)
		WHERE other.id <> p.id
		RETURN other.id AS paper_id, count(DISTINCT shared.id) AS shared
		ORDER BY shared DESC, paper_id
	`

	paperVectorsQuery = `
		MATCH (n:Node {node_type: 'paper'})
		WHERE n.embedding IS NOT NULL AND size(n.embedding) > 0
		RETURN n.id AS id, coalesce(n.year, 0) AS year, n.embedding AS embedding
		ORDER BY n.id
	`
)

var indexQueries = []string{
	"CREATE INDEX ON :Node(id);",
	"CREATE INDEX ON :Node(node_type);",
	"CREATE INDEX ON :Node(label);",
}
