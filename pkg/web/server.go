// Package web serves the HTTP editing API over one engine session.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/ritzau/pipegraph/pkg/engine"
	"github.com/ritzau/pipegraph/pkg/logging"
	"github.com/ritzau/pipegraph/pkg/model"
	"github.com/ritzau/pipegraph/pkg/pubsub"
	"github.com/ritzau/pipegraph/pkg/simulate"
	"github.com/ritzau/pipegraph/pkg/snapshot"
	"github.com/ritzau/pipegraph/pkg/validation"
)

// Options configures a Server
type Options struct {
	Rows  int64               // nominal rows when /api/simulation has no rows parameter
	Store *snapshot.FileStore // rewritten after every action when set
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher
	opts      Options

	mu      sync.Mutex // guards session
	session *engine.Session
}

// GraphState is the editor view of the session
type GraphState struct {
	Platform model.Platform           `json:"platform"`
	Nodes    []*model.Node            `json:"nodes"`
	Edges    []*model.Edge            `json:"edges"`
	Results  []model.ValidationResult `json:"results"`
	CanUndo  bool                     `json:"canUndo"`
	CanRedo  bool                     `json:"canRedo"`
}

type nodeRequest struct {
	ID         string            `json:"id"`
	Kind       model.Kind        `json:"kind,omitempty"` // empty pre-fills from the catalog
	Category   string            `json:"category"`
	Name       string            `json:"name,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

type edgeRequest struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Branch model.Branch `json:"branch,omitempty"`
}

// NewServer creates a server that owns session from now on
func NewServer(session *engine.Session, opts Options) *Server {
	publisher := pubsub.NewSSEPublisher()

	// New subscribers only need the current state
	publisher.ConfigureTopic(pubsub.TopicValidation, pubsub.TopicConfig{BufferSize: 1})
	publisher.ConfigureTopic(pubsub.TopicHistory, pubsub.TopicConfig{BufferSize: 1})

	s := &Server{
		router:    mux.NewRouter(),
		publisher: publisher,
		opts:      opts,
		session:   session,
	}

	session.OnChange(s.handleChange)
	s.handleChange(engine.Event{
		Action:  "Load",
		Results: session.Results(),
		CanUndo: session.History().CanUndo(),
		CanRedo: session.History().CanRedo(),
	})

	s.setupRoutes()
	return s
}

// handleChange runs inside session calls, with mu held by the handler
func (s *Server) handleChange(ev engine.Event) {
	runnable := len(validation.Structural(ev.Results)) == 0
	if err := s.publisher.Publish(pubsub.TopicValidation, ev.Action, pubsub.NewValidationUpdate(ev.Results, runnable)); err != nil {
		logging.Warn("failed to publish validation", "error", err)
	}
	if err := s.publisher.Publish(pubsub.TopicHistory, ev.Action, s.historyUpdate()); err != nil {
		logging.Warn("failed to publish history", "error", err)
	}

	if s.opts.Store != nil && ev.Action != "Validate" {
		if err := s.opts.Store.Save(s.session.Graph(), s.session.Platform()); err != nil {
			logging.Error("failed to save pipeline", "path", s.opts.Store.Path, "error", err)
		}
	}
}

func (s *Server) historyUpdate() pubsub.HistoryUpdate {
	h := s.session.History()
	return pubsub.HistoryUpdate{
		Entries:  h.Entries(),
		Position: h.Position(),
		CanUndo:  h.CanUndo(),
		CanRedo:  h.CanRedo(),
	}
}

func (s *Server) state() *GraphState {
	g := s.session.Graph()
	return &GraphState{
		Platform: s.session.Platform(),
		Nodes:    g.Nodes,
		Edges:    g.Edges,
		Results:  s.session.Results(),
		CanUndo:  s.session.History().CanUndo(),
		CanRedo:  s.session.History().CanRedo(),
	}
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/{topic:validation|history}", s.handleSubscribe).Methods("GET")

	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/nodes", s.handleAddNode).Methods("POST")
	s.router.HandleFunc("/api/nodes/{id}", s.handleRemoveNode).Methods("DELETE")
	s.router.HandleFunc("/api/nodes/{id}", s.handleUpdateNode).Methods("PATCH")
	s.router.HandleFunc("/api/edges", s.handleConnect).Methods("POST")
	s.router.HandleFunc("/api/edges/{id}", s.handleDisconnect).Methods("DELETE")
	s.router.HandleFunc("/api/undo", s.handleUndo).Methods("POST")
	s.router.HandleFunc("/api/redo", s.handleRedo).Methods("POST")
	s.router.HandleFunc("/api/validation", s.handleValidation).Methods("GET")
	s.router.HandleFunc("/api/simulation", s.handleSimulation).Methods("GET")
	s.router.HandleFunc("/api/preview", s.handlePreview).Methods("GET")
	s.router.HandleFunc("/api/highlight/{id}", s.handleHighlight).Methods("GET")
	s.router.HandleFunc("/api/history", s.handleHistory).Methods("GET")
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnknownNode), errors.Is(err, engine.ErrUnknownEdge):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotRunnable):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnknownCategory), errors.Is(err, engine.ErrInvalidNode),
		errors.Is(err, simulate.ErrInvalidRows):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Safari waits for the first bytes before firing onopen
	fmt.Fprintf(w, ": connected\n\n")
	flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, ev); err != nil {
				logging.DebugContext(r.Context(), "subscriber went away", "topic", topic, "error", err)
				return
			}
			flush()
		}
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Graph().HasNode(req.ID) {
		writeError(w, http.StatusConflict, fmt.Errorf("node %q already exists", req.ID))
		return
	}

	var node *model.Node
	var err error
	if req.Kind == "" {
		// Catalog defaults and the request's overrides land in one history entry.
		node, err = s.session.CatalogNode(req.ID, req.Category)
		if err == nil {
			if req.Name != "" {
				node.Name = req.Name
			}
			if node.Properties == nil {
				node.Properties = make(map[string]string, len(req.Properties))
			}
			for k, v := range req.Properties {
				if v == "" {
					delete(node.Properties, k)
					continue
				}
				node.Properties[k] = v
			}
			err = s.session.AddNode(node)
		}
	} else {
		node = &model.Node{ID: req.ID, Name: req.Name, Kind: req.Kind, Category: req.Category, Properties: req.Properties}
		if !req.Kind.Valid() {
			err = fmt.Errorf("%w: unknown kind %q", engine.ErrInvalidNode, req.Kind)
		} else {
			err = s.session.AddNode(node)
		}
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.RemoveNode(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var patch map[string]string
	if err := decode(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["id"]
	if err := s.session.UpdateProperties(id, patch); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	node, _ := s.session.Graph().Node(id)
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Source == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, errors.New("source and target are required"))
		return
	}
	if req.Branch != "" && !req.Branch.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown branch %q", req.Branch))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.session.Connect(req.Source, req.Target, req.Branch))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.Disconnect(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.stepHistory(w, s.session.Undo, "nothing to undo")
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.stepHistory(w, s.session.Redo, "nothing to redo")
}

func (s *Server) stepHistory(w http.ResponseWriter, step func() bool, empty string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !step() {
		writeError(w, http.StatusConflict, errors.New(empty))
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.session.Validate()
	writeJSON(w, http.StatusOK, pubsub.NewValidationUpdate(results, len(validation.Structural(results)) == 0))
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	rows := s.opts.Rows
	if raw := r.URL.Query().Get("rows"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid rows %q", raw))
			return
		}
		rows = n
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.session.Simulate(rows)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.session.Preview())
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.session.Highlight(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"nodes": ids})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.historyUpdate())
}

// Start starts the web server on the specified port
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Info("starting web server", "url", fmt.Sprintf("http://localhost%s", addr))
	return http.ListenAndServe(addr, s.router)
}

// Close ends all event streams
func (s *Server) Close() error {
	return s.publisher.Close()
}

// Reload replaces the session graph, for example after the pipeline file changed
func (s *Server) Reload(g *model.Graph, p model.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Load(g, p)
}
