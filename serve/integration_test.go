package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/chat"
	"github.com/vibecode/vibelet/generate"
	"github.com/vibecode/vibelet/model"
	"github.com/vibecode/vibelet/suggest"
)

// fakeUpstream is an OpenAI-compatible chat completions endpoint.
type fakeUpstream struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	if stream, _ := body["stream"].(bool); stream {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"`+"```js\\nreturn 42;\\n```"+`"}}]}`)
}

func (f *fakeUpstream) seen() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.requests...)
}

func newIntegrationServer(t *testing.T) (*httptest.Server, *fakeUpstream) {
	t.Helper()
	t.Setenv("VIBELET_CONFIG_DIR", t.TempDir())

	up := &fakeUpstream{}
	upstream := httptest.NewServer(up)
	t.Cleanup(upstream.Close)

	cfg := vibelet.DefaultConfig()
	ctx := context.Background()
	srv := newTestServer(t, Deps{
		Engine: generate.NewEngine(ctx, cfg, generate.WithProvider(model.NewClient(upstream.URL, "test-key", model.APIChatCompletions))),
		Chat:   chat.NewService(ctx, cfg, chat.WithProvider(model.NewClient(upstream.URL, "test-key", model.APIChatCompletions))),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, up
}

func TestIntegrationCompletion(t *testing.T) {
	ts, up := newIntegrationServer(t)

	body := `{"fileContent":"function foo() {\n  \n}","cursorLine":1,"cursorColumn":2,"suggestionType":"completion","fileName":"foo.js"}`
	resp, err := http.Post(ts.URL+"/api/code-completion", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out vibelet.CompletionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "42;", out.Suggestion)
	assert.True(t, out.Context.IsInFunction)
	assert.False(t, out.Context.IsInClass)
	assert.Equal(t, []string{}, out.Context.IncompletePatterns)
	assert.Equal(t, "JavaScript", out.Metadata.Language)

	reqs := up.seen()
	require.Len(t, reqs, 1)
	msgs := reqs[0]["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestIntegrationChatStream(t *testing.T) {
	ts, up := newIntegrationServer(t)

	body := `{"message":"hi","stream":true,"history":[{"role":"user","content":"x"},{"role":"system","content":"y"},{"role":"user"}]}`
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"text\":\"Hel\"}\n\ndata: {\"text\":\"lo\"}\n\n", string(data))

	reqs := up.seen()
	require.Len(t, reqs, 1)
	msgs := reqs[0]["messages"].([]any)
	// system prompt, the one valid history turn, the new message
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "x", msgs[1].(map[string]any)["content"])
	assert.Equal(t, "hi", msgs[2].(map[string]any)["content"])
}

func TestIntegrationSuggestController(t *testing.T) {
	ts, _ := newIntegrationServer(t)

	buf := suggest.NewBuffer("app.js", "const answer = ")
	buf.SetPosition(suggest.Position{LineNumber: 1, Column: 16})
	c := suggest.NewController(suggest.NewHTTPFetcher(ts.URL))

	<-c.FetchSuggestion(context.Background(), "completion", buf)
	require.Equal(t, "42;", c.State().Suggestion)
	require.True(t, c.AcceptSuggestion(buf))
	assert.Equal(t, "const answer = 42;", buf.Text())
}
