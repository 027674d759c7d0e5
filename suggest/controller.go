package suggest

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	vibelet "github.com/vibecode/vibelet"
)

// EditSource labels document edits made when a suggestion is accepted.
const EditSource = "ai-suggestion"

// State is a snapshot of the controller. Position is nil exactly when no
// suggestion is displayed.
type State struct {
	Suggestion string
	IsLoading  bool
	Position   *Position
	Decoration []string
	IsEnabled  bool
}

// Controller owns the suggestion state of one editor session. All state
// changes go through its methods and are serialized by a mutex.
type Controller struct {
	fetcher  Fetcher
	onChange func(State)

	mu       sync.Mutex
	state    State
	inFlight int
	closed   bool
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// OnChange registers fn to be called with a snapshot after every change.
// fn runs outside the controller lock.
func OnChange(fn func(State)) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// NewController creates an enabled, idle controller.
func NewController(f Fetcher, opts ...ControllerOption) *Controller {
	c := &Controller{fetcher: f, state: State{IsEnabled: true}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := c.state
	if s.Position != nil {
		p := *s.Position
		s.Position = &p
	}
	s.Decoration = slices.Clone(s.Decoration)
	return s
}

// update runs fn under the lock and notifies the listener when fn reports a change.
func (c *Controller) update(fn func() bool) {
	c.mu.Lock()
	changed := fn()
	snap := c.snapshot()
	c.mu.Unlock()
	if changed && c.onChange != nil {
		c.onChange(snap)
	}
}

// ToggleEnabled flips IsEnabled. In-flight requests are not canceled.
func (c *Controller) ToggleEnabled() bool {
	var enabled bool
	c.update(func() bool {
		c.state.IsEnabled = !c.state.IsEnabled
		enabled = c.state.IsEnabled
		return true
	})
	return enabled
}

// FetchSuggestion requests a suggestion for the editor's current document and
// cursor. It is a no-op when disabled, closed, or when the editor has no model
// or cursor. Otherwise IsLoading is set before it returns and the request runs
// in the background. The returned channel is closed once the result has been
// applied (immediately for a no-op).
func (c *Controller) FetchSuggestion(ctx context.Context, suggestionType string, editor Editor) <-chan struct{} {
	done := make(chan struct{})

	var req *vibelet.CompletionRequest
	var at Position
	c.update(func() bool {
		if c.closed || !c.state.IsEnabled || editor == nil {
			return false
		}
		m := editor.Model()
		pos := editor.Position()
		if m == nil || pos == nil {
			return false
		}
		at = *pos
		req = &vibelet.CompletionRequest{
			FileContent:    m.Value(),
			CursorLine:     pos.LineNumber - 1,
			CursorColumn:   pos.Column - 1,
			SuggestionType: suggestionType,
		}
		if named, ok := m.(fileNamer); ok {
			req.FileName = named.FileName()
		}
		c.inFlight++
		c.state.IsLoading = true
		return true
	})
	if req == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		text, err := c.fetcher.Fetch(ctx, req)
		c.apply(editor, at, text, err)
	}()
	return done
}

// apply is the single entry point for fetch results. The newest result
// replaces whatever suggestion is displayed.
func (c *Controller) apply(editor Editor, at Position, text string, err error) {
	c.update(func() bool {
		if c.closed {
			return false
		}
		c.inFlight--
		c.state.IsLoading = c.inFlight > 0

		if err != nil {
			slog.Warn("error fetching code suggestion", "error", err)
			return true
		}
		text = strings.TrimSpace(text)
		if text == "" {
			slog.Debug("no suggestion received")
			return true
		}

		c.state.Decoration = editor.DeltaDecorations(c.state.Decoration, []Decoration{{Range: At(at), Text: text}})
		c.state.Suggestion = text
		c.state.Position = &at
		return true
	})
}

// AcceptSuggestion inserts the displayed suggestion at its position and
// returns to idle. It reports whether anything was inserted.
func (c *Controller) AcceptSuggestion(editor Editor) bool {
	accepted := false
	c.update(func() bool {
		if c.state.Position == nil {
			return false
		}
		if editor != nil {
			editor.ExecuteEdits(EditSource, []Edit{{Range: At(*c.state.Position), Text: c.state.Suggestion}})
			accepted = true
		}
		c.dismiss(editor)
		return true
	})
	return accepted
}

// RejectSuggestion removes the displayed suggestion without editing the document.
func (c *Controller) RejectSuggestion(editor Editor) {
	c.update(func() bool { return c.dismiss(editor) })
}

// ClearSuggestion removes the displayed suggestion without editing the document.
func (c *Controller) ClearSuggestion(editor Editor) {
	c.update(func() bool { return c.dismiss(editor) })
}

// dismiss removes decorations and empties the suggestion fields together.
// It reports false when there was nothing to dismiss.
func (c *Controller) dismiss(editor Editor) bool {
	if c.state.Position == nil && len(c.state.Decoration) == 0 {
		return false
	}
	if editor != nil && len(c.state.Decoration) > 0 {
		editor.DeltaDecorations(c.state.Decoration, nil)
	}
	c.state.Suggestion = ""
	c.state.Position = nil
	c.state.Decoration = nil
	return true
}

// Close tears the controller down. Results arriving afterwards are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
