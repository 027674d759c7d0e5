package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	vibelet "github.com/vibecode/vibelet"
	"github.com/vibecode/vibelet/generate"
	"github.com/vibecode/vibelet/suggest"
)

// playgroundID scopes the REPL's related-code index.
const playgroundID = "repl"

// recordingCompleter runs the in-process engine and keeps the last result
// for the transcript.
type recordingCompleter struct {
	engine *generate.Engine

	mu   sync.Mutex
	last *generate.CompleteResult
}

func (r *recordingCompleter) Complete(ctx context.Context, req *vibelet.CompletionRequest) *vibelet.CompletionResponse {
	req.PlaygroundID = playgroundID
	res := r.engine.CompleteVerbose(ctx, req)
	r.mu.Lock()
	r.last = &res
	r.mu.Unlock()
	return res.Response
}

// takeLast returns and forgets the last result.
func (r *recordingCompleter) takeLast() *generate.CompleteResult {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.last
	r.last = nil
	return res
}

// session is the REPL state: a document, its suggestion controller and the
// transcript writer.
type session struct {
	buf      *suggest.Buffer
	ctrl     *suggest.Controller
	recorder *recordingCompleter // nil when suggestions come from a server
	out      io.Writer           // TOML transcript
	now      func() time.Time
	lastErr  error
}

func newSession(buf *suggest.Buffer, f suggest.Fetcher, recorder *recordingCompleter, out io.Writer) *session {
	s := &session{buf: buf, recorder: recorder, out: out, now: time.Now}
	s.ctrl = suggest.NewController(suggest.FetcherFunc(func(ctx context.Context, req *vibelet.CompletionRequest) (string, error) {
		text, err := f.Fetch(ctx, req)
		s.lastErr = err
		return text, err
	}))
	return s
}

// enter appends line to the document, puts the cursor at column and asks for
// a suggestion. It returns the suggestion, if any.
func (s *session) enter(ctx context.Context, line string, column int) string {
	s.ctrl.ClearSuggestion(s.buf)
	s.buf.SetPosition(suggest.Position{LineNumber: 1 << 30, Column: 1 << 30})
	if s.buf.Text() != "" {
		s.buf.Insert("\n")
	}
	s.buf.Insert(line)
	last := s.buf.Position().LineNumber
	s.buf.SetPosition(suggest.Position{LineNumber: last, Column: column + 1})

	s.lastErr = nil
	<-s.ctrl.FetchSuggestion(ctx, "completion", s.buf)
	st := s.ctrl.State()
	s.record(line, st)
	return st.Suggestion
}

// accept inserts the displayed suggestion. It reports false when idle.
func (s *session) accept() bool {
	ok := s.ctrl.AcceptSuggestion(s.buf)
	if ok {
		s.writeAction("accept")
	}
	return ok
}

func (s *session) reject() bool {
	if s.ctrl.State().Position == nil {
		return false
	}
	s.ctrl.RejectSuggestion(s.buf)
	s.writeAction("reject")
	return true
}

// command runs a ":" command and returns the text to show.
func (s *session) command(ctx context.Context, cmd string, warm func(dir string) string) (msg string, quit bool) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(cmd, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "q", "quit":
		return "", true
	case "accept", "a":
		if !s.accept() {
			return "(no suggestion)", false
		}
		return s.render(), false
	case "reject", "r":
		if !s.reject() {
			return "(no suggestion)", false
		}
		return "rejected", false
	case "toggle":
		if s.ctrl.ToggleEnabled() {
			return "suggestions enabled", false
		}
		return "suggestions disabled", false
	case "show":
		return s.render(), false
	case "retry":
		s.ctrl.ClearSuggestion(s.buf)
		s.lastErr = nil
		<-s.ctrl.FetchSuggestion(ctx, "completion", s.buf)
		st := s.ctrl.State()
		s.record("", st)
		if st.Suggestion == "" {
			return "(no suggestion)", false
		}
		return st.Suggestion, false
	case "goto":
		fields := strings.Fields(arg)
		if len(fields) != 2 {
			return "usage: :goto <line> <column>", false
		}
		line, err1 := strconv.Atoi(fields[0])
		col, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return "usage: :goto <line> <column>", false
		}
		s.ctrl.ClearSuggestion(s.buf)
		s.buf.SetPosition(suggest.Position{LineNumber: line, Column: col})
		p := s.buf.Position()
		return fmt.Sprintf("cursor: %d:%d", p.LineNumber, p.Column), false
	case "write", "w":
		if arg == "" {
			return "usage: :write <path>", false
		}
		if err := os.WriteFile(arg, []byte(s.buf.Text()), 0o644); err != nil {
			return "error: " + err.Error(), false
		}
		return "wrote " + arg, false
	case "index":
		if arg == "" {
			arg = "."
		}
		if warm == nil {
			return "embedding is not configured", false
		}
		return warm(arg), false
	default:
		return "unknown command: " + cmd, false
	}
}

// render shows the document with the cursor as "|" and the displayed
// suggestion in brackets.
func (s *session) render() string {
	st := s.ctrl.State()
	cur := s.buf.Position()
	var b strings.Builder
	for i, line := range s.buf.Lines() {
		n := i + 1
		marks := map[int]string{}
		if st.Position != nil && st.Position.LineNumber == n {
			marks[st.Position.Column] += "[" + st.Suggestion + "]"
		}
		if cur.LineNumber == n {
			marks[cur.Column] += "|"
		}
		fmt.Fprintf(&b, "%4d  ", n)
		col := 1
		for _, r := range line {
			b.WriteString(marks[col])
			b.WriteRune(r)
			col++
		}
		b.WriteString(marks[col])
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}
