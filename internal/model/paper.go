package model

// Paper is the metadata row backing a paper-type node.
type Paper struct {
	NodeID        string `json:"node_id"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year,omitempty"`
	Venue         string `json:"venue,omitempty"`
	DOI           string `json:"doi,omitempty"`
	ArxivID       string `json:"arxiv_id,omitempty"`
	CitationCount int    `json:"citation_count,omitempty"`
}
