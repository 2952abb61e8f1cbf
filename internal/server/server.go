// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rahul/conductor/internal/capability"
	"github.com/rahul/conductor/internal/observability"
	"github.com/rahul/conductor/internal/orchestrator"
	"github.com/rahul/conductor/internal/report"
	"github.com/rahul/conductor/internal/source"
	"github.com/rahul/conductor/internal/steps"
	"github.com/rahul/conductor/internal/store"
)

// Runner executes tasks. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, description, sourceLabel string) (*report.Report, error)
	RunSteps(ctx context.Context, stepList []steps.Step, sourceLabel string) (*report.Report, error)
	Registry() *capability.Registry
}

// RunStore keeps finished reports.
type RunStore interface {
	SaveReport(r *report.Report) error
	GetRun(id string) (*store.RunRecord, error)
	ListRuns(limit int) ([]store.RunRecord, error)
}

// IssueFetcher loads Jira issues.
type IssueFetcher interface {
	FetchIssue(ctx context.Context, key string) (*source.Issue, error)
}

type Options struct {
	// AuthToken, when set, is required as a bearer token on every route but
	// /healthz.
	AuthToken      string
	MaxUploadBytes int64
	FeaturesDir    string
}

type Server struct {
	runner Runner
	store  RunStore
	jira   IssueFetcher
	opts   Options
}

// New builds the gin engine. store and jira may be nil; the routes that need
// them then answer 503.
func New(runner Runner, runs RunStore, jira IssueFetcher, opts Options) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 1 << 20
	}
	s := &Server{runner: runner, store: runs, jira: jira, opts: opts}

	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	s.attachRoutes(g)
	return g
}

func (s *Server) attachRoutes(g *gin.Engine) {
	g.GET("/healthz", s.health)

	api := g.Group("/")
	api.Use(bearerAuth(s.opts.AuthToken))
	api.POST("/api-agent", s.kindAgent(capability.KindRequest, "api-agent"))
	api.POST("/browser-agent", s.kindAgent(capability.KindInteraction, "browser-agent"))
	api.POST("/coordinator-agent", s.coordinator)
	api.POST("/coordinator-agent-bdd-file", s.coordinatorFile)
	api.GET("/execute-jira-feature/:issue_key", s.jiraFeature)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
}

func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		bearer := c.GetHeader("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") ||
			subtle.ConstantTimeCompare([]byte(bearer[7:]), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

func bindQuery(c *gin.Context) (string, bool) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return "", false
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return "", false
	}
	return req.Query, true
}

// kindAgent routes every step of the query to capabilities of one kind.
func (s *Server) kindAgent(kind capability.Kind, label string) gin.HandlerFunc {
	return func(c *gin.Context) {
		query, ok := bindQuery(c)
		if !ok {
			return
		}
		stepList := steps.Parse(query)
		for i := range stepList {
			stepList[i].Kind = kind
		}
		rep, err := s.runner.RunSteps(c.Request.Context(), stepList, label)
		s.respond(c, rep, err, nil)
	}
}

func (s *Server) coordinator(c *gin.Context) {
	query, ok := bindQuery(c)
	if !ok {
		return
	}
	rep, err := s.runner.Run(c.Request.Context(), query, "coordinator-agent")
	s.respond(c, rep, err, nil)
}

func (s *Server) coordinatorFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+(64<<10))
	header, err := c.FormFile("bdd_file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bdd_file is required: " + err.Error()})
		return
	}
	if header.Size > s.opts.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("bdd_file is larger than %d bytes", s.opts.MaxUploadBytes)})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read bdd_file: " + err.Error()})
		return
	}
	defer f.Close()

	task, err := source.LoadReader(f, header.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rep, err := s.runner.Run(c.Request.Context(), task.Description, task.Label)
	s.respond(c, rep, err, nil)
}

func (s *Server) jiraFeature(c *gin.Context) {
	if s.jira == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "jira is not configured"})
		return
	}
	key := c.Param("issue_key")
	if !source.ValidIssueKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid issue key %q", key)})
		return
	}

	issue, err := s.jira.FetchIssue(c.Request.Context(), key)
	switch {
	case errors.Is(err, source.ErrIssueNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Could not fetch %s: %v", key, err)})
		return
	}

	path, err := source.SaveFeature(s.opts.FeaturesDir, issue)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	rep, err := s.runner.Run(c.Request.Context(), issue.Description, "jira:"+issue.Key)
	s.respond(c, rep, err, gin.H{
		"feature_file_path": path,
		"issue": gin.H{
			"key":      issue.Key,
			"summary":  issue.Summary,
			"status":   issue.Status,
			"assignee": issue.Assignee,
		},
	})
}

// respond stores the report and writes it. A run that was aborted answers 500
// with the partial report.
func (s *Server) respond(c *gin.Context, rep *report.Report, err error, extra gin.H) {
	if rep != nil && s.store != nil {
		if serr := s.store.SaveReport(rep); serr != nil {
			log.Printf("Warning: failed to store report %s: %v", rep.RunID, serr)
		}
	}

	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		body["error"] = err.Error()
	}
	if rep != nil {
		body["result"] = rep.Markdown()
		body["report"] = rep
	}
	c.JSON(status, body)
}

func (s *Server) listRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history is not configured"})
		return
	}
	rec, err := s.store.GetRun(c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"runtime":      observability.GetStatus(),
		"capabilities": s.runner.Registry().Infos(),
	})
}

// compile-time check
var _ Runner = (*orchestrator.Orchestrator)(nil)
