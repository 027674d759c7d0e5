package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/sandbox"
	"github.com/vibecode/vibelet/templates"
)

// stubCompleter returns a fixed suggestion. When block is set, Complete waits
// for it or for cancellation.
type stubCompleter struct {
	suggestion string
	block      chan struct{}

	mu     sync.Mutex
	warmed map[string]map[string]string
	closed bool
}

func (s *stubCompleter) Complete(ctx context.Context, req *vibelet.CompletionRequest) *vibelet.CompletionResponse {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	return &vibelet.CompletionResponse{
		Suggestion: s.suggestion,
		Metadata:   vibelet.CompletionMetadata{Position: vibelet.Position{Line: req.CursorLine, Column: req.CursorColumn}},
	}
}

func (s *stubCompleter) WarmContext(_ context.Context, id string, files map[string]string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warmed == nil {
		s.warmed = make(map[string]map[string]string)
	}
	s.warmed[id] = files
	done := make(chan struct{})
	close(done)
	return done
}

func (s *stubCompleter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// stubChatter emits deltas, then returns err. When block is set, Stream
// waits for it or for cancellation first.
type stubChatter struct {
	deltas []string
	err    error
	block  chan struct{}
}

func (s *stubChatter) Respond(_ context.Context, message string, _ json.RawMessage) (*vibelet.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &vibelet.ChatResponse{Response: "echo: " + message, Model: "stub-model", Timestamp: time.Unix(0, 0).UTC()}, nil
}

func (s *stubChatter) Stream(ctx context.Context, _ string, _ json.RawMessage, emit func(string) error) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, d := range s.deltas {
		if err := emit(d); err != nil {
			return err
		}
	}
	return s.err
}

func (s *stubChatter) Close() {}

type stubTemplates map[string]json.RawMessage

func (s stubTemplates) Lookup(_ context.Context, id string) (json.RawMessage, error) {
	blob, ok := s[id]
	if !ok {
		return nil, templates.ErrUnknownTemplate
	}
	return blob, nil
}

const reactTree = `{"folderName":"react","items":[{"filename":"index","fileExtension":"js","content":"main()"},{"folderName":"src","items":[{"filename":"App","fileExtension":"tsx","content":"export {}"}]}]}`

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Engine == nil {
		deps.Engine = &stubCompleter{suggestion: "42;"}
	}
	if deps.Chat == nil {
		deps.Chat = &stubChatter{}
	}
	if deps.Templates == nil {
		deps.Templates = stubTemplates{"REACT": json.RawMessage(reactTree)}
	}
	if deps.Playgrounds == nil {
		store := templates.NewMemoryStore()
		store.Put("pg-react", "REACT")
		store.Put("pg-legacy", "SVELTE")
		deps.Playgrounds = store
	}
	if deps.Sandbox == nil {
		deps.Sandbox = sandbox.NewRuntime(sandbox.LocalBoot(t.TempDir()))
	}
	srv := NewServer(deps)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) vibelet.ErrorResponse {
	t.Helper()
	var resp vibelet.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCompletion(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rec := do(t, srv, http.MethodPost, "/api/code-completion",
		`{"fileContent":"const x = ","cursorLine":0,"cursorColumn":10,"suggestionType":"completion"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp vibelet.CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42;", resp.Suggestion)
	assert.Equal(t, vibelet.Position{Line: 0, Column: 10}, resp.Metadata.Position)
}

func TestCompletionInvalidInput(t *testing.T) {
	srv := newTestServer(t, Deps{})
	for _, body := range []string{
		`{"fileContent":"","cursorLine":0,"cursorColumn":0,"suggestionType":"completion"}`,
		`{"fileContent":"x","cursorLine":-1,"cursorColumn":0,"suggestionType":"completion"}`,
		`{"fileContent":"x","cursorLine":0,"cursorColumn":-3,"suggestionType":"completion"}`,
		`{"fileContent":"x","cursorLine":0,"cursorColumn":0}`,
	} {
		rec := do(t, srv, http.MethodPost, "/api/code-completion", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Invalid input parameters", decodeError(t, rec).Error, body)
	}
}

func TestCompletionMalformedBody(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rec := do(t, srv, http.MethodPost, "/api/code-completion", `{"fileContent":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "Invalid input parameters", resp.Error)
	assert.NotEmpty(t, resp.Message)

	rec = do(t, srv, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message is required and must be a string", decodeError(t, rec).Error)
}

func TestCompletionSupersededBySameSession(t *testing.T) {
	engine := &stubCompleter{suggestion: "s", block: make(chan struct{})}
	srv := newTestServer(t, Deps{Engine: engine})
	body := `{"fileContent":"x","cursorLine":0,"cursorColumn":1,"suggestionType":"completion"}`

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- do(t, srv, http.MethodPost, "/api/code-completion", body, SessionHeader, "editor-1")
	}()
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		_, ok := srv.sessions["editor-1"]
		return ok
	}, time.Second, 5*time.Millisecond)

	second := make(chan *httptest.ResponseRecorder)
	go func() {
		second <- do(t, srv, http.MethodPost, "/api/code-completion", body, SessionHeader, "editor-1")
	}()

	// The newer request cancels the older one, which answers with no content.
	assert.Equal(t, http.StatusNoContent, (<-first).Code)

	close(engine.block)
	assert.Equal(t, http.StatusOK, (<-second).Code)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Empty(t, srv.sessions)
}

func TestBeginSessionCancelsPrevious(t *testing.T) {
	srv := newTestServer(t, Deps{})
	ctx1, release1 := srv.beginSession(context.Background(), "s")
	ctx2, release2 := srv.beginSession(context.Background(), "s")
	defer release2()

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())

	// A stale release must not drop the newer entry.
	release1()
	srv.mu.Lock()
	_, ok := srv.sessions["s"]
	srv.mu.Unlock()
	assert.True(t, ok)
}

func TestContextWarm(t *testing.T) {
	engine := &stubCompleter{}
	srv := newTestServer(t, Deps{Engine: engine})

	rec := do(t, srv, http.MethodPost, "/api/code-completion/context",
		`{"playgroundId":"pg-1","files":{"a.js":"const a = 1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, map[string]string{"a.js": "const a = 1"}, engine.warmed["pg-1"])

	rec = do(t, srv, http.MethodPost, "/api/code-completion/context", `{"files":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"playgroundId is required"}`, rec.Body.String())
}

func TestChatBuffered(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rec := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hi","history":[],"mode":"chat","model":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"echo: hi","model":"stub-model","timestamp":"1970-01-01T00:00:00Z"}`, rec.Body.String())
}

func TestChatRequiresStringMessage(t *testing.T) {
	srv := newTestServer(t, Deps{})
	for _, body := range []string{`{}`, `{"message":42}`, `{"message":""}`} {
		rec := do(t, srv, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Message is required and must be a string", decodeError(t, rec).Error)
	}
}

func TestChatUpstreamError(t *testing.T) {
	srv := newTestServer(t, Deps{Chat: &stubChatter{err: errors.New("API error (status 502): bad gateway")}})
	for _, body := range []string{`{"message":"hi"}`, `{"message":"hi","stream":true}`} {
		rec := do(t, srv, http.MethodPost, "/api/chat", body)
		require.Equal(t, http.StatusInternalServerError, rec.Code, body)
		resp := decodeError(t, rec)
		assert.Equal(t, "Failed to generate AI response", resp.Error)
		assert.Equal(t, "API error (status 502): bad gateway", resp.Details)
		assert.NotNil(t, resp.Timestamp)
	}
}

func TestChatStream(t *testing.T) {
	srv := newTestServer(t, Deps{Chat: &stubChatter{deltas: []string{"Hel", "lo"}}})
	rec := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hi","stream":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "data: {\"text\":\"Hel\"}\n\ndata: {\"text\":\"lo\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestChatStreamInterrupted(t *testing.T) {
	srv := newTestServer(t, Deps{Chat: &stubChatter{deltas: []string{"partial"}, err: errors.New("connection reset")}})
	rec := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hi","stream":true}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data: {\"text\":\"partial\"}\n\n", rec.Body.String())
}

func TestChatWebSocket(t *testing.T) {
	srv := newTestServer(t, Deps{Chat: &stubChatter{deltas: []string{"Hel", "lo"}}})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": "hi"}))
	var got []chatWSOutbound
	for range 3 {
		var out chatWSOutbound
		require.NoError(t, conn.ReadJSON(&out))
		got = append(got, out)
	}
	assert.Equal(t, []chatWSOutbound{
		{Type: "delta", Text: "Hel"},
		{Type: "delta", Text: "lo"},
		{Type: "done"},
	}, got)

	require.NoError(t, conn.WriteJSON(map[string]any{"message": 7}))
	var out chatWSOutbound
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "error", out.Type)
}

func TestChatWebSocketBacklogFull(t *testing.T) {
	chatter := &stubChatter{deltas: []string{"ok"}, block: make(chan struct{})}
	srv := newTestServer(t, Deps{Chat: chatter})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// One turn in flight plus a full queue; the rest are refused.
	for range chatWSMaxQueued + 3 {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "message": "hi"}))
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out chatWSOutbound
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, chatWSOutbound{Type: "error", Message: "too many pending chat messages"}, out)

	// The connection stays usable once the backlog drains.
	close(chatter.block)
	for {
		require.NoError(t, conn.ReadJSON(&out))
		if out.Type == "done" {
			break
		}
	}
}

func TestTemplate(t *testing.T) {
	srv := newTestServer(t, Deps{})

	rec := do(t, srv, http.MethodGet, "/api/template/pg-react", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp vibelet.TemplateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.JSONEq(t, reactTree, string(resp.TemplateJSON))

	rec = do(t, srv, http.MethodGet, "/api/template/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Playground not found", decodeError(t, rec).Error)

	rec = do(t, srv, http.MethodGet, "/api/template/pg-legacy", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Invalid template", decodeError(t, rec).Error)
}

func TestMountAndTeardown(t *testing.T) {
	engine := &stubCompleter{}
	rt := sandbox.NewRuntime(sandbox.LocalBoot(t.TempDir()))
	srv := newTestServer(t, Deps{Engine: engine, Sandbox: rt})

	rec := do(t, srv, http.MethodPost, "/api/playground/pg-react/mount", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"files":2}`, rec.Body.String())

	root := rt.Current().(*sandbox.Dir).Root()
	data, err := os.ReadFile(filepath.Join(root, "src", "App.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "export {}", string(data))
	assert.Equal(t, map[string]string{"index.js": "main()", "src/App.tsx": "export {}"}, engine.warmed["pg-react"])

	rec = do(t, srv, http.MethodDelete, "/api/sandbox", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, rt.Current())
	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestMountUnknownPlayground(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rec := do(t, srv, http.MethodPost, "/api/playground/nope/mount", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMountBootFailure(t *testing.T) {
	rt := sandbox.NewRuntime(func(context.Context) (sandbox.Container, error) {
		return nil, errors.New("no capacity")
	})
	srv := newTestServer(t, Deps{Sandbox: rt})
	rec := do(t, srv, http.MethodPost, "/api/playground/pg-react/mount", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "no capacity")
}

func TestConfigReload(t *testing.T) {
	t.Setenv("VIBELET_CONFIG_DIR", t.TempDir())
	old := &stubCompleter{}
	next := &stubCompleter{suggestion: "reloaded"}
	srv := newTestServer(t, Deps{
		Engine: old,
		Reload: func(context.Context) (Completer, Chatter, error) {
			return next, &stubChatter{}, nil
		},
	})

	rec := do(t, srv, http.MethodPost, "/api/config/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, old.closed)

	rec = do(t, srv, http.MethodPost, "/api/code-completion",
		`{"fileContent":"x","cursorLine":0,"cursorColumn":1,"suggestionType":"completion"}`)
	assert.Contains(t, rec.Body.String(), `"suggestion":"reloaded"`)

	rec = do(t, srv, http.MethodGet, "/api/config/validate", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigReloadUnsupported(t *testing.T) {
	srv := newTestServer(t, Deps{})
	rec := do(t, srv, http.MethodPost, "/api/config/reload", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("VIBELET_CONFIG_DIR", t.TempDir())
	for _, args := range [][]string{
		{"vibeletd", "config", "defaults"},
		{"vibeletd", "config", "get"},
		{"vibeletd", "config", "validate"},
		{"vibeletd", "config", "prompt"},
	} {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		require.NoError(t, app.Run(context.Background(), args), args)
		assert.NotEmpty(t, out.String(), args)
	}

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(context.Background(), []string{"vibeletd", "config", "defaults"}))
	var cfg vibelet.Config
	require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, ":3000", cfg.Server.Addr)
}
