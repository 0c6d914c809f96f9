package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gourav1632/into-the-repo/internal/analysis"
	"github.com/Gourav1632/into-the-repo/internal/gitremote"
	"github.com/Gourav1632/into-the-repo/internal/tasks"
	"github.com/Gourav1632/into-the-repo/internal/version"
)

type analyzeRequest struct {
	RepoURL   string `json:"repoUrl"`
	Branch    string `json:"branch"`
	RequestID string `json:"requestId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// handleAnalyze accepts an analysis submission and returns 202 with the
// pending task snapshot. Input errors are rejected up front; no task is
// created for them.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if req.RepoURL == "" {
		BadRequest(w, "repoUrl is required")
		return
	}
	if req.Branch == "" {
		BadRequest(w, "branch is required")
		return
	}
	if _, err := gitremote.ParseRepoURL(req.RepoURL); err != nil {
		WriteAnalysisError(w, err)
		return
	}

	task, err := s.deps.Orchestrator.Submit(req.RequestID,
		analysis.Request{RepoURL: req.RepoURL, Branch: req.Branch}, req.UserID)
	if err != nil {
		WriteAnalysisError(w, err)
		return
	}
	WriteJSON(w, task.Status(), http.StatusAccepted)
}

// handleTaskRoutes serves GET /api/tasks/{id} and POST /api/tasks/{id}/cancel.
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if rest == "" {
		NotFound(w, "task id is required")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/cancel"); ok {
		if r.Method != http.MethodPost {
			MethodNotAllowed(w)
			return
		}
		if err := s.deps.Orchestrator.Cancel(id); err != nil {
			WriteAnalysisError(w, err)
			return
		}
		task, _ := s.deps.Orchestrator.Get(id)
		WriteJSON(w, task.Status(), http.StatusOK)
		return
	}

	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	task, ok := s.deps.Orchestrator.Get(rest)
	if !ok {
		NotFound(w, "no task with request id "+rest)
		return
	}
	WriteJSON(w, task.Status(), http.StatusOK)
}

// handleResult serves a completed analysis straight from the cache.
// Without an explicit commit the branch head is resolved first, so the
// response always refers to a pinned commit.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	repoURL := r.URL.Query().Get("repoUrl")
	if repoURL == "" {
		BadRequest(w, "repoUrl is required")
		return
	}
	branch := r.URL.Query().Get("branch")
	commit := r.URL.Query().Get("commit")

	result, hit, err := s.deps.Pipeline.Lookup(r.Context(), repoURL, branch, commit)
	if err != nil {
		WriteAnalysisError(w, err)
		return
	}
	if !hit {
		NotFound(w, "no cached analysis for this repository state")
		return
	}
	WriteJSON(w, result, http.StatusOK)
}

// handleFileRoutes serves GET /api/files/{path}/callgraph: one file's call
// graph and AST record out of a cached result.
func (s *Server) handleFileRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/files/")
	encoded, ok := strings.CutSuffix(rest, "/callgraph")
	if !ok || encoded == "" {
		NotFound(w, "expected /api/files/{path}/callgraph")
		return
	}
	filePath, err := url.PathUnescape(encoded)
	if err != nil {
		BadRequest(w, "invalid file path")
		return
	}

	repoURL := r.URL.Query().Get("repoUrl")
	if repoURL == "" {
		BadRequest(w, "repoUrl is required")
		return
	}
	result, hit, err := s.deps.Pipeline.Lookup(r.Context(),
		repoURL, r.URL.Query().Get("branch"), r.URL.Query().Get("commit"))
	if err != nil {
		WriteAnalysisError(w, err)
		return
	}
	if !hit {
		NotFound(w, "no cached analysis for this repository state")
		return
	}

	record := result.Files[filePath]
	callGraph := result.CallGraphs[filePath]
	if record == nil || callGraph == nil {
		NotFound(w, "file "+filePath+" is not part of this analysis")
		return
	}
	WriteJSON(w, map[string]interface{}{
		"commit":    result.Commit,
		"file":      record,
		"callGraph": callGraph,
	}, http.StatusOK)
}

type verifyRequest struct {
	RepoURL string `json:"repoUrl"`
	Branch  string `json:"branch"`
}

// handleVerify validates a repository reference and branch without starting
// a task.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		MethodNotAllowed(w)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if req.RepoURL == "" {
		BadRequest(w, "repoUrl is required")
		return
	}
	if req.Branch == "" {
		req.Branch = analysis.DefaultBranch
	}

	identity, err := gitremote.ParseRepoURL(req.RepoURL)
	if err != nil {
		WriteAnalysisError(w, err)
		return
	}
	resolved, err := s.deps.Resolver.Resolve(r.Context(), req.RepoURL, req.Branch)
	if err != nil {
		WriteAnalysisError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{
		"repo":       identity.String(),
		"branch":     req.Branch,
		"commit":     resolved.Commit,
		"resolvedAt": resolved.ResolvedAt,
	}, http.StatusOK)
}

// handleHistory lists archived task outcomes for a repository.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w)
		return
	}
	if s.deps.History == nil {
		NotFound(w, "history is not enabled")
		return
	}
	repoURL := r.URL.Query().Get("repoUrl")
	if repoURL == "" {
		BadRequest(w, "repoUrl is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.History.List(r.Context(), repoURL, r.URL.Query().Get("branch"), limit)
	if err != nil {
		WriteAnalysisError(w, err)
		return
	}
	WriteJSON(w, map[string]interface{}{"entries": entries}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, map[string]interface{}{
		"status":  "ok",
		"version": version.Info(),
	}, http.StatusOK)
}

// handleStatus reports orchestrator and uptime stats.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.deps.Orchestrator.Statuses()
	byState := map[tasks.State]int{}
	for _, st := range statuses {
		byState[st.State]++
	}
	WriteJSON(w, map[string]interface{}{
		"version":       version.Info(),
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
		"tasks": map[string]interface{}{
			"total":      len(statuses),
			"pending":    byState[tasks.StatePending],
			"inProgress": byState[tasks.StateInProgress],
			"completed":  byState[tasks.StateCompleted],
			"failed":     byState[tasks.StateFailed],
		},
	}, http.StatusOK)
}
