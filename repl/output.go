package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	"github.com/vibecode/vibelet/suggest"
)

// termWriter wraps a file and converts \n to \r\n when the file is a terminal
// (needed because raw mode disables the kernel's NL→CRNL translation).
// When the file is redirected, \n passes through unchanged.
func termWriter(f *os.File) io.Writer {
	if term.IsTerminal(int(f.Fd())) {
		return &crlfWriter{w: f}
	}
	return f
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}

type transcriptEntry struct {
	Request requestEntry  `toml:"request"`
	Context *contextEntry `toml:"context,omitempty"`
	Result  resultEntry   `toml:"result"`
}

type requestEntry struct {
	Timestamp time.Time `toml:"timestamp"`
	Input     string    `toml:"input,omitempty"`
	Line      int       `toml:"line"`
	Column    int       `toml:"column"`
}

type contextEntry struct {
	Language        string   `toml:"language"`
	Framework       string   `toml:"framework"`
	InFunction      bool     `toml:"in_function"`
	InClass         bool     `toml:"in_class"`
	AfterComment    bool     `toml:"after_comment"`
	Patterns        []string `toml:"patterns"`
	RelatedSnippets int      `toml:"related_snippets"`
	Prompt          string   `toml:"prompt,omitempty"`
}

type resultEntry struct {
	Outcome    string `toml:"outcome,omitempty"`
	Suggestion string `toml:"suggestion"`
	Error      string `toml:"error,omitempty"`
}

type actionEntry struct {
	Action struct {
		Timestamp time.Time `toml:"timestamp"`
		Kind      string    `toml:"kind"`
		Document  string    `toml:"document"`
	} `toml:"action"`
}

func writeSeparator(w io.Writer) {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))
}

// record writes one TOML transcript entry for a fetch.
func (s *session) record(input string, st suggest.State) {
	if s.out == nil {
		return
	}
	cur := s.buf.Position()
	e := transcriptEntry{
		Request: requestEntry{
			Timestamp: s.now().UTC(),
			Input:     input,
			Line:      cur.LineNumber,
			Column:    cur.Column,
		},
		Result: resultEntry{Suggestion: st.Suggestion},
	}
	if s.lastErr != nil {
		e.Result.Error = s.lastErr.Error()
	}
	if res := s.recorder.takeLast(); res != nil {
		cc := res.Response.Context
		e.Context = &contextEntry{
			Language:        cc.Language,
			Framework:       cc.Framework,
			InFunction:      cc.IsInFunction,
			InClass:         cc.IsInClass,
			AfterComment:    cc.IsAfterComment,
			Patterns:        cc.IncompletePatterns,
			RelatedSnippets: len(cc.RelatedSnippets),
			Prompt:          res.Prompt,
		}
		e.Result.Outcome = res.Suggestion.Outcome.String()
	}

	writeSeparator(s.out)
	if err := toml.NewEncoder(s.out).Encode(e); err != nil {
		fmt.Fprintf(s.out, "# encode error: %v\n", err)
	}
	fmt.Fprintln(s.out)
}

func (s *session) writeAction(kind string) {
	if s.out == nil {
		return
	}
	var e actionEntry
	e.Action.Timestamp = s.now().UTC()
	e.Action.Kind = kind
	e.Action.Document = s.buf.Text()
	writeSeparator(s.out)
	if err := toml.NewEncoder(s.out).Encode(e); err != nil {
		fmt.Fprintf(s.out, "# encode error: %v\n", err)
	}
	fmt.Fprintln(s.out)
}
