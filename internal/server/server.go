// Package server exposes the ingestion pipeline and graph queries over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cheersanimesh/research-knowledge-graph/internal/config"
	"github.com/cheersanimesh/research-knowledge-graph/internal/extract"
	"github.com/cheersanimesh/research-knowledge-graph/internal/ingest"
	"github.com/cheersanimesh/research-knowledge-graph/internal/linker"
	"github.com/cheersanimesh/research-knowledge-graph/internal/llm"
	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
	"github.com/cheersanimesh/research-knowledge-graph/internal/pruner"
	"github.com/cheersanimesh/research-knowledge-graph/internal/qa"
	"github.com/cheersanimesh/research-knowledge-graph/internal/store"
	"github.com/cheersanimesh/research-knowledge-graph/internal/traverse"
)

type Server struct {
	store    store.GraphStore
	orch     *ingest.Orchestrator
	traverse *traverse.Engine
	qa       *qa.Service
	log      *logging.Logger
}

// NewServer wires the full stack from configuration: graph backend, LLM
// provider, pruner, linker, traversal and QA.
func NewServer(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Server, error) {
	graphStore, err := newStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}

	llmClient, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	extractor := extract.NewExtractor(llmClient, cfg.Prompts.Extraction)
	pr := pruner.New(graphStore, log, pruner.Config{
		TopK:          cfg.Pruner.TopK,
		MaxCandidates: cfg.Pruner.MaxCandidates,
	})
	inference := linker.NewLLMInference(llmClient, cfg.Prompts.Inference)
	lk := linker.New(graphStore, inference, log, linker.Config{Concurrency: cfg.Linker.Concurrency})
	orch := ingest.New(graphStore, extractor, embedder, pr, lk, log, cfg.Linker.SkipLinking)

	return &Server{
		store:    graphStore,
		orch:     orch,
		traverse: traverse.New(graphStore),
		qa:       qa.New(graphStore, llmClient, embedder, cfg.Prompts.Answer),
		log:      log,
	}, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, log *logging.Logger) (store.GraphStore, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return store.OpenSQLite(cfg.Path)
	case "memgraph":
		return store.OpenMemgraph(ctx, cfg.URI, cfg.User, cfg.Password, log)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func (s *Server) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/papers", s.IngestPapers)
	r.POST("/link", s.Relink)
	r.GET("/papers", s.ListPapers)
	r.GET("/nodes/:id/neighbors", s.Neighbors)
	r.GET("/papers/:id/improvements", s.Improvements)
	r.GET("/papers/:id/similar", s.Similar)
	r.POST("/answer", s.Answer)

	return r
}

type IngestRequest struct {
	Papers []ingest.PaperInput `json:"papers"`
}

func (s *Server) IngestPapers(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(req.Papers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no papers provided"})
		return
	}

	summary, err := s.orch.IngestBatch(c.Request.Context(), req.Papers)
	if err != nil {
		s.log.Error("ingestion failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) Relink(c *gin.Context) {
	summary, err := s.orch.Relink(c.Request.Context())
	if err != nil {
		s.log.Error("relinking failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "relinking failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) ListPapers(c *gin.Context) {
	filter := store.PaperFilter{Venue: c.Query("venue")}
	filter.Year = queryInt(c, "year")
	filter.YearFrom = queryInt(c, "year_from")
	filter.YearTo = queryInt(c, "year_to")

	papers, err := s.store.ListPapers(c.Request.Context(), filter)
	if err != nil {
		s.log.Error("failed to list papers", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list papers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"papers": papers})
}

func (s *Server) Neighbors(c *gin.Context) {
	opts := store.NeighborOptions{Direction: store.Both}
	switch c.Query("direction") {
	case "out":
		opts.Direction = store.Outgoing
	case "in":
		opts.Direction = store.Incoming
	}
	if t := c.Query("edge_type"); t != "" {
		edgeType := model.EdgeType(t)
		if !edgeType.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edge type"})
			return
		}
		opts.EdgeTypes = []model.EdgeType{edgeType}
	}

	depth := queryInt(c, "depth")
	if depth <= 0 {
		depth = 1
	}
	hops, err := s.traverse.Expand(c.Request.Context(), c.Param("id"), depth, opts)
	if err != nil {
		s.notFoundOr500(c, err, "failed to expand neighbors")
		return
	}
	c.JSON(http.StatusOK, gin.H{"neighbors": hops})
}

func (s *Server) Improvements(c *gin.Context) {
	chains, err := s.traverse.ImprovementChains(c.Request.Context(), c.Param("id"), queryInt(c, "depth"))
	if err != nil {
		s.notFoundOr500(c, err, "failed to walk improvement chains")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chains": chains})
}

func (s *Server) Similar(c *gin.Context) {
	papers, err := s.traverse.SimilarPapers(c.Request.Context(), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		s.notFoundOr500(c, err, "failed to rank similar papers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"similar": papers})
}

type AnswerRequest struct {
	Question string `json:"question"`
}

func (s *Server) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	answer, papers, err := s.qa.Answer(c.Request.Context(), req.Question)
	if err != nil {
		s.log.Error("failed to answer question", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer question"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer, "papers": papers})
}

func (s *Server) notFoundOr500(c *gin.Context, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	s.log.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func queryInt(c *gin.Context, key string) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
