package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"kbindex/internal/config"
	"kbindex/internal/ingest"
	"kbindex/internal/kb"
	"kbindex/internal/maintenance"
	"kbindex/internal/models"
	"kbindex/internal/vectorstore"
	"kbindex/internal/workflows"
)

type Server struct {
	cfg      config.Config
	store    vectorstore.Store
	pipeline *ingest.Pipeline
	temporal tclient.Client
	log      *zap.Logger
}

func NewServer(cfg config.Config, store vectorstore.Store, pipeline *ingest.Pipeline, temporal tclient.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, store: store, pipeline: pipeline, temporal: temporal, log: log}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/refresh/", s.handleRefreshScoped)
	mux.HandleFunc("/integrity", s.handleIntegrity)
	mux.HandleFunc("/search", s.handleSearch)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Documents []models.Document `json:"documents"`
		Rebuild   bool              `json:"rebuild"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if len(req.Documents) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("documents is required"))
		return
	}
	for i, d := range req.Documents {
		if strings.TrimSpace(d.DocumentID) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("document %d is missing document_id", i))
			return
		}
	}

	stats := s.pipeline.IngestAll(r.Context(), req.Documents, req.Rebuild)
	writeJSON(w, http.StatusOK, map[string]any{
		"requested": len(req.Documents),
		"ingested":  len(stats),
		"failed":    len(req.Documents) - len(stats),
		"stats":     stats,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Schedule string `json:"schedule"`
		Rebuild  bool   `json:"rebuild"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.Schedule == "" {
		req.Schedule = maintenance.ScheduleNightly
	}
	if err := maintenance.ValidateSchedule(req.Schedule); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	wfID := "refresh-" + uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.RefreshWorkflow, workflows.RefreshInput{
		KnowledgeBasePath: s.cfg.KnowledgeBasePath,
		Schedule:          req.Schedule,
		Rebuild:           req.Rebuild,
		MaxConcurrent:     s.cfg.IngestConcurrency,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleRefreshScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	wfID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/refresh/"), "/")
	if wfID == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	desc, err := s.temporal.DescribeWorkflowExecution(r.Context(), wfID, "")
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	status := desc.GetWorkflowExecutionInfo().GetStatus()

	out := map[string]any{
		"workflow_id": wfID,
		"status":      strings.ToLower(enumspb.WorkflowExecutionStatus_name[int32(status)]),
	}
	if status == enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
		resp, qErr := s.temporal.QueryWorkflow(r.Context(), wfID, "", workflows.QueryGetRefreshProgress)
		if qErr == nil {
			var prog workflows.RefreshProgress
			if err := resp.Get(&prog); err == nil {
				out["progress"] = prog
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	docs, err := kb.Load(s.cfg.KnowledgeBasePath)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	report, err := s.pipeline.RunIntegrityCheck(r.Context(), docs)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("q is required"))
		return
	}
	topK := 8
	if k := r.URL.Query().Get("k"); k != "" {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("k must be a positive integer"))
			return
		}
		topK = n
	}
	filter := vectorstore.Filter{DocumentID: r.URL.Query().Get("document_id")}

	results, err := s.store.Search(r.Context(), query, topK, filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": err.Error(),
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
