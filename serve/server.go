package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/chat"
	"github.com/vibecode/vibelet/generate"
	"github.com/vibecode/vibelet/index"
	"github.com/vibecode/vibelet/sandbox"
	"github.com/vibecode/vibelet/templates"
)

// SessionHeader names the editor session of a completion request. A new
// request for a session cancels the one still in flight.
const SessionHeader = "X-Vibelet-Session"

// maxBodyBytes bounds request bodies; completion requests carry whole files.
const maxBodyBytes = 8 << 20

// Completer processes a completion request and returns a response.
type Completer interface {
	Complete(ctx context.Context, req *vibelet.CompletionRequest) *vibelet.CompletionResponse
	WarmContext(ctx context.Context, playgroundID string, files map[string]string) <-chan struct{}
	Close()
}

// Chatter answers chat messages.
type Chatter interface {
	Respond(ctx context.Context, message string, history json.RawMessage) (*vibelet.ChatResponse, error)
	Stream(ctx context.Context, message string, history json.RawMessage, emit func(string) error) error
	Close()
}

// TemplateLookup resolves template blobs by identifier.
type TemplateLookup interface {
	Lookup(ctx context.Context, id string) (json.RawMessage, error)
}

// Sandbox is the container runtime playground files are mounted into.
type Sandbox interface {
	Instance(ctx context.Context) (sandbox.Container, error)
	WriteAll(ctx context.Context, files map[string]string) (int, error)
	Teardown() error
}

// Deps are the collaborators of a Server.
type Deps struct {
	Engine      Completer
	Chat        Chatter
	Templates   TemplateLookup
	Playgrounds templates.Store
	Sandbox     Sandbox
	// Reload rebuilds Engine and Chat from the current config. Optional.
	Reload func(ctx context.Context) (Completer, Chatter, error)
	// Cleanup releases shared resources on Close. Optional.
	Cleanup func()
}

// sessionEntry tracks a cancellable in-flight request for a session.
type sessionEntry struct {
	seq    uint64
	cancel context.CancelFunc
}

// Server serves the vibelet HTTP API.
type Server struct {
	deps Deps
	mux  *http.ServeMux

	mu       sync.Mutex
	seq      uint64
	sessions map[string]sessionEntry
}

// NewServer creates a server over deps.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		mux:      http.NewServeMux(),
		sessions: make(map[string]sessionEntry),
	}
	s.mux.HandleFunc("POST /api/code-completion", s.handleCompletion)
	s.mux.HandleFunc("POST /api/code-completion/context", s.handleContext)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	s.mux.HandleFunc("GET /api/template/{id}", s.handleTemplate)
	s.mux.HandleFunc("POST /api/playground/{id}/mount", s.handleMount)
	s.mux.HandleFunc("DELETE /api/sandbox", s.handleTeardown)
	s.mux.HandleFunc("GET /api/config/validate", s.handleConfigValidate)
	s.mux.HandleFunc("POST /api/config/reload", s.handleConfigReload)
	return s
}

// Build wires the production collaborators from cfg.
func Build(ctx context.Context, cfg *vibelet.Config) (Deps, error) {
	var snippets *index.Store
	if vibelet.EmbeddingEnabled(cfg) {
		embedder := index.NewEmbedder(
			vibelet.ResolveEmbeddingBaseURL(cfg),
			vibelet.ResolveEmbeddingAPIKey(cfg),
			vibelet.ResolveEmbeddingModel(cfg),
		)
		snippets = index.NewStore(embedder, cfg.Embedding.MaxSnippets, time.Duration(cfg.Embedding.TTLMinutes)*time.Minute)
		snippets.SetSearchTimeout(time.Duration(cfg.Embedding.SearchTimeoutMs) * time.Millisecond)
	} else {
		slog.Info("embedding not configured, related snippets disabled")
	}

	newServices := func(ctx context.Context) (Completer, Chatter, error) {
		c, err := vibelet.LoadConfig()
		if err != nil {
			return nil, nil, err
		}
		return generate.NewEngine(ctx, c, generate.WithSnippets(snippets)), chat.NewService(ctx, c), nil
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		snippets.Close()
		return Deps{}, err
	}

	cleanup := func() { snippets.Close() }
	var playgrounds templates.Store
	if dsn := vibelet.ResolveDatabaseURL(cfg); dsn != "" {
		pg, err := templates.NewPostgresStore(ctx, dsn)
		if err != nil {
			snippets.Close()
			return Deps{}, fmt.Errorf("failed to connect to playground store: %w", err)
		}
		playgrounds = pg
		cleanup = func() {
			snippets.Close()
			pg.Close()
		}
	} else {
		slog.Warn("database not configured, using in-memory playground store")
		playgrounds = templates.NewMemoryStore()
	}

	return Deps{
		Engine:      generate.NewEngine(ctx, cfg, generate.WithSnippets(snippets)),
		Chat:        chat.NewService(ctx, cfg),
		Templates:   registry,
		Playgrounds: playgrounds,
		Sandbox:     sandbox.Init(sandbox.LocalBoot(vibelet.ResolveSandboxDir(cfg))),
		Reload:      newServices,
		Cleanup:     cleanup,
	}, nil
}

func newRegistry(cfg *vibelet.Config) (*templates.Registry, error) {
	catalog := templates.DefaultCatalog()
	if cfg.Templates.Catalog != "" {
		c, err := templates.LoadCatalog(cfg.Templates.Catalog)
		if err != nil {
			return nil, err
		}
		catalog = c
	}

	var source templates.Source = templates.DirSource{Dir: vibelet.ResolveTemplateDir(cfg)}
	if endpoint, bucket, ak, sk, ssl := vibelet.ResolveMinio(cfg); endpoint != "" && bucket != "" {
		ms, err := templates.NewMinioSource(endpoint, bucket, ak, sk, ssl)
		if err != nil {
			return nil, err
		}
		source = ms
		slog.Info("reading templates from object storage", "endpoint", endpoint, "bucket", bucket)
	}
	return templates.NewRegistry(catalog, source, cfg.Templates.CacheSize)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Debug("request", "method", r.Method, "path", r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

// Close releases the engine and chat service.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sessions {
		e.cancel()
	}
	if s.deps.Engine != nil {
		s.deps.Engine.Close()
	}
	if s.deps.Chat != nil {
		s.deps.Chat.Close()
	}
	if s.deps.Cleanup != nil {
		s.deps.Cleanup()
	}
}

func (s *Server) engine() Completer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Engine
}

func (s *Server) chat() Chatter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Chat
}

// beginSession cancels any in-flight request of sid and registers a new one.
// The returned release func must be called when the request finishes.
func (s *Server) beginSession(parent context.Context, sid string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	if sid == "" {
		return ctx, cancel
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	if prev, ok := s.sessions[sid]; ok {
		prev.cancel()
	}
	s.sessions[sid] = sessionEntry{seq: seq, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		cancel()
		s.mu.Lock()
		if cur, ok := s.sessions[sid]; ok && cur.seq == seq {
			delete(s.sessions, sid)
		}
		s.mu.Unlock()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	slog.Debug("response", "status", status, "data", string(data))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, resp vibelet.ErrorResponse) {
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req vibelet.CompletionRequest
	if err := decodeBody(w, r, &req); err != nil {
		slog.Debug("malformed completion request", "error", err)
		writeError(w, http.StatusBadRequest, vibelet.ErrorResponse{Error: "Invalid input parameters", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, vibelet.ErrorResponse{Error: "Invalid input parameters"})
		return
	}

	ctx, release := s.beginSession(r.Context(), r.Header.Get(SessionHeader))
	defer release()

	resp := s.engine().Complete(ctx, &req)

	// Superseded by a newer request of the same session.
	if ctx.Err() != nil && r.Context().Err() == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req vibelet.ContextRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, vibelet.ContextResponse{Error: "invalid request body"})
		return
	}
	id := strings.TrimSpace(req.PlaygroundID)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, vibelet.ContextResponse{Error: "playgroundId is required"})
		return
	}
	// Indexing runs in the background; respond immediately.
	s.engine().WarmContext(context.WithoutCancel(r.Context()), id, req.Files)
	writeJSON(w, http.StatusOK, vibelet.ContextResponse{OK: true})
}

func chatError(w http.ResponseWriter, err error) {
	now := time.Now().UTC()
	writeError(w, http.StatusInternalServerError, vibelet.ErrorResponse{
		Error:     "Failed to generate AI response",
		Details:   err.Error(),
		Timestamp: &now,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req vibelet.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		slog.Debug("malformed chat request", "error", err)
		writeError(w, http.StatusBadRequest, vibelet.ErrorResponse{Error: "Message is required and must be a string", Message: err.Error()})
		return
	}
	message, err := req.Text()
	if err != nil {
		writeError(w, http.StatusBadRequest, vibelet.ErrorResponse{Error: "Message is required and must be a string"})
		return
	}
	if req.Mode != "" || req.Model != "" {
		slog.Debug("ignoring chat options", "mode", req.Mode, "model", req.Model)
	}

	if !req.Stream {
		resp, err := s.chat().Respond(r.Context(), message, req.History)
		if err != nil {
			slog.Error("chat error", "error", err)
			chatError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	s.streamChat(w, r, message, req.History)
}

// streamChat relays deltas as server-sent events. Headers are committed with
// the first delta so that a request failing up front still gets a JSON error.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, message string, history json.RawMessage) {
	flusher, _ := w.(http.Flusher)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	err := s.chat().Stream(r.Context(), message, history, func(delta string) error {
		start()
		frame, err := json.Marshal(vibelet.StreamFrame{Text: delta})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	switch {
	case err != nil && !started:
		slog.Error("chat error", "error", err)
		chatError(w, err)
	case err != nil:
		// Headers are gone; the client sees the stream end early.
		slog.Error("chat stream interrupted", "error", err)
	default:
		start()
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, vibelet.ErrorResponse{Error: "Missing playground ID"})
		return
	}
	blob, status, resp := s.playgroundTemplate(r.Context(), id)
	if blob == nil {
		writeError(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, vibelet.TemplateResponse{Success: true, TemplateJSON: blob})
}

// playgroundTemplate resolves a playground to its template blob, or to the
// error response to send.
func (s *Server) playgroundTemplate(ctx context.Context, playgroundID string) (json.RawMessage, int, vibelet.ErrorResponse) {
	templateID, err := s.deps.Playgrounds.TemplateOf(ctx, playgroundID)
	if errors.Is(err, templates.ErrPlaygroundNotFound) {
		return nil, http.StatusNotFound, vibelet.ErrorResponse{Error: "Playground not found"}
	}
	if err != nil {
		slog.Error("failed to load playground", "id", playgroundID, "error", err)
		return nil, http.StatusInternalServerError, vibelet.ErrorResponse{Error: "Internal server error", Message: err.Error()}
	}

	blob, err := s.deps.Templates.Lookup(ctx, templateID)
	if errors.Is(err, templates.ErrUnknownTemplate) || errors.Is(err, templates.ErrBlobNotFound) {
		return nil, http.StatusNotFound, vibelet.ErrorResponse{Error: "Invalid template"}
	}
	if err != nil {
		slog.Error("failed to load template", "template", templateID, "error", err)
		return nil, http.StatusInternalServerError, vibelet.ErrorResponse{Error: "Internal server error", Message: err.Error()}
	}
	return blob, http.StatusOK, vibelet.ErrorResponse{}
}

func (s *Server) handleMount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	blob, status, resp := s.playgroundTemplate(r.Context(), id)
	if blob == nil {
		writeError(w, status, resp)
		return
	}
	files, err := templates.Flatten(blob)
	if err != nil {
		writeError(w, http.StatusInternalServerError, vibelet.ErrorResponse{Error: "Internal server error", Message: err.Error()})
		return
	}

	if _, err := s.deps.Sandbox.Instance(r.Context()); err != nil {
		slog.Error("sandbox unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, vibelet.ErrorResponse{Error: "Failed to initialize sandbox", Message: err.Error()})
		return
	}
	n, err := s.deps.Sandbox.WriteAll(r.Context(), files)
	if err != nil {
		slog.Error("mount failed", "playground", id, "written", n, "error", err)
		writeError(w, http.StatusInternalServerError, vibelet.ErrorResponse{Error: "Failed to mount template", Message: err.Error()})
		return
	}

	s.engine().WarmContext(context.WithoutCancel(r.Context()), id, files)
	slog.Info("template mounted", "playground", id, "files", n)
	writeJSON(w, http.StatusOK, vibelet.MountResponse{Success: true, Files: n})
}

func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sandbox.Teardown(); err != nil {
		slog.Error("sandbox teardown failed", "error", err)
		writeError(w, http.StatusInternalServerError, vibelet.ErrorResponse{Error: "Internal server error", Message: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type configResponse struct {
	Warnings []string `json:"warnings,omitempty"`
	Reloaded bool     `json:"reloaded,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func (s *Server) handleConfigValidate(w http.ResponseWriter, r *http.Request) {
	cfg, err := vibelet.LoadConfig()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, configResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Warnings: vibelet.ValidateConfig(cfg)})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reload == nil {
		writeJSON(w, http.StatusNotImplemented, configResponse{Error: "reload is not supported"})
		return
	}
	engine, chatter, err := s.deps.Reload(context.WithoutCancel(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, configResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	oldEngine, oldChat := s.deps.Engine, s.deps.Chat
	s.deps.Engine, s.deps.Chat = engine, chatter
	s.mu.Unlock()
	// Requests already running keep the old instances.
	if oldEngine != nil {
		oldEngine.Close()
	}
	if oldChat != nil {
		oldChat.Close()
	}
	slog.Info("engine reloaded")
	writeJSON(w, http.StatusOK, configResponse{Reloaded: true})
}
