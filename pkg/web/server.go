package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/module-graph/pkg/export"
	"github.com/ritzau/module-graph/pkg/lens"
	"github.com/ritzau/module-graph/pkg/logging"
	"github.com/ritzau/module-graph/pkg/metrics"
	"github.com/ritzau/module-graph/pkg/model"
	"github.com/ritzau/module-graph/pkg/output"
	"github.com/ritzau/module-graph/pkg/pubsub"
	"github.com/ritzau/module-graph/pkg/runner"
)

// Analyzer is the part of the runner the server needs
type Analyzer interface {
	Latest() *runner.Snapshot
	Run(ctx context.Context, reason string) (*runner.Snapshot, error)
}

// GraphNode represents a module in the graph view
type GraphNode struct {
	ID       string              `json:"id"`
	Label    string              `json:"label"`
	Category string              `json:"category"` // missing, disconnected, sink, source, default
	Color    string              `json:"color"`
	Metrics  model.ModuleMetrics `json:"metrics"`
}

// GraphEdge represents a requirement in the graph view
type GraphEdge struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	InSCC   bool   `json:"inScc"`
	OnCycle bool   `json:"onCycle"`
	Color   string `json:"color"`
	Stroke  string `json:"stroke"`
	Width   int    `json:"width"`
}

// GraphData holds the module graph for visualization
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// ModuleView is a module with its derived metrics
type ModuleView struct {
	model.ModuleInfo
	Requires []string            `json:"requires"`
	Metrics  model.ModuleMetrics `json:"metrics"`
}

// CycleView is one circular dependency by module name
type CycleView struct {
	SCC   []string `json:"scc"`
	Cycle []string `json:"cycle"`
}

// ReportView is the JSON form of the text report
type ReportView struct {
	Root     string         `json:"root"`
	Lines    []string       `json:"lines"`
	Entries  []output.Entry `json:"entries"`
	Warnings int            `json:"warnings"`
	Errors   int            `json:"errors"`
	Reason   string         `json:"reason"`
	Finished time.Time      `json:"finished"`
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	analyzer  Analyzer
	publisher pubsub.Publisher
	recorder  *metrics.Recorder
}

// NewServer creates a server exposing the analyzer's latest snapshot
func NewServer(analyzer Analyzer, publisher *pubsub.SSEPublisher, recorder *metrics.Recorder) *Server {
	// New subscribers start from the current analysis state
	publisher.Retain(pubsub.TopicAnalysisStatus)

	s := &Server{
		router:    mux.NewRouter(),
		analyzer:  analyzer,
		publisher: publisher,
		recorder:  recorder,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/analysis", s.handleSubscribeAnalysis).Methods("GET")

	s.router.HandleFunc("/api/report", s.handleReport).Methods("GET")
	s.router.HandleFunc("/api/modules", s.handleModules).Methods("GET")
	s.router.HandleFunc("/api/modules/{name}", s.handleModule).Methods("GET")
	s.router.HandleFunc("/api/modules/{name}/focus", s.handleModuleFocus).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/graph.dot", s.handleGraphDOT).Methods("GET")
	s.router.HandleFunc("/api/analyze", s.handleAnalyze).Methods("POST")

	if s.recorder != nil {
		s.router.Handle("/metrics", s.recorder.Handler()).Methods("GET")
	}
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.WarnContext(r.Context(), "failed to encode response", "error", err)
	}
}

// snapshot returns the latest snapshot or answers 503 when there is none
func (s *Server) snapshot(w http.ResponseWriter) *runner.Snapshot {
	snap := s.analyzer.Latest()
	if snap == nil {
		http.Error(w, "Analysis not available yet", http.StatusServiceUnavailable)
	}
	return snap
}

func (s *Server) handleSubscribeAnalysis(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	sub, err := s.publisher.Subscribe(r.Context(), pubsub.TopicAnalysisStatus)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.WarnContext(r.Context(), "error writing SSE event", "error", err)
				return
			}
			flush(w)
		}
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, r, http.StatusOK, reportView(snap))
}

func reportView(snap *runner.Snapshot) ReportView {
	return ReportView{
		Root:     snap.Report.Root,
		Lines:    snap.Report.Lines(),
		Entries:  snap.Report.Entries,
		Warnings: snap.Report.Warnings,
		Errors:   snap.Report.Errors,
		Reason:   snap.Reason,
		Finished: snap.Finished,
	}
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	g := snap.Result.Graph
	views := make([]ModuleView, 0, g.Len())
	for _, id := range g.Nodes() {
		views = append(views, moduleView(snap, id))
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	name := mux.Vars(r)["name"]
	id, ok := snap.Result.Graph.Lookup(name)
	if !ok {
		http.Error(w, fmt.Sprintf("Module %q not found", name), http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, moduleView(snap, id))
}

// handleModuleFocus returns the modules around one module.
// Query: depth (default 1, -1 for unlimited), direction (both, downstream, upstream)
func (s *Server) handleModuleFocus(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	depth := 1
	if q := r.URL.Query().Get("depth"); q != "" {
		d, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid depth %q", q), http.StatusBadRequest)
			return
		}
		depth = d
	}
	dir, err := lens.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := mux.Vars(r)["name"]
	if _, ok := snap.Result.Graph.Lookup(name); !ok {
		http.Error(w, fmt.Sprintf("Module %q not found", name), http.StatusNotFound)
		return
	}

	view, err := lens.Focus(snap.Result.Graph, []string{name}, depth, dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

func moduleView(snap *runner.Snapshot, id int64) ModuleView {
	g := snap.Result.Graph
	info := *g.Node(id)
	if info.ProvidedBy == nil {
		info.ProvidedBy = []string{}
	}
	if info.RequiredBy == nil {
		info.RequiredBy = []string{}
	}
	return ModuleView{
		ModuleInfo: info,
		Requires:   g.Names(g.Successors(id)),
		Metrics:    snap.Result.Metrics[id],
	}
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}

	g := snap.Result.Graph
	views := make([]CycleView, 0, len(snap.Result.SCCs))
	for i, scc := range snap.Result.SCCs {
		views = append(views, CycleView{
			SCC:   g.Names(scc),
			Cycle: g.Names(snap.Result.Cycles[i]),
		})
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	writeJSON(w, r, http.StatusOK, buildGraphData(snap))
}

// buildGraphData converts the analyzed graph to the JSON graph view using
// the same styling as the DOT export
func buildGraphData(snap *runner.Snapshot) *GraphData {
	g := snap.Result.Graph
	graphData := &GraphData{
		Nodes: make([]GraphNode, 0, g.Len()),
		Edges: make([]GraphEdge, 0, g.EdgeCount()),
	}

	for _, id := range g.Nodes() {
		name := g.Name(id)
		m := snap.Result.Metrics[id]
		style := export.NodeStyleFor(name, m)
		graphData.Nodes = append(graphData.Nodes, GraphNode{
			ID:       name,
			Label:    style.Label,
			Category: style.Category.String(),
			Color:    style.FillColor,
			Metrics:  m,
		})
	}

	for _, e := range g.Edges() {
		style := export.EdgeStyleFor(snap.Result.Metrics[e[0]], snap.Result.Metrics[e[1]])
		graphData.Edges = append(graphData.Edges, GraphEdge{
			Source:  g.Name(e[0]),
			Target:  g.Name(e[1]),
			InSCC:   style.InSCC,
			OnCycle: style.OnCycle,
			Color:   style.Color,
			Stroke:  style.Stroke,
			Width:   style.Width,
		})
	}

	return graphData
}

func (s *Server) handleGraphDOT(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	if _, err := w.Write(snap.DOT); err != nil {
		logging.WarnContext(r.Context(), "failed to write DOT response", "error", err)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	snap, err := s.analyzer.Run(r.Context(), "requested over HTTP")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, reportView(snap))
}

// Start serves on port until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the publisher ends open SSE streams so shutdown can complete
	srv.RegisterOnShutdown(func() { _ = s.publisher.Close() })

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down web server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
