package suggest

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/vibecode/vibelet/analyze"
)

// Buffer is an in-memory Editor: a document, a cursor and a decoration set.
// It is safe for concurrent use.
type Buffer struct {
	mu          sync.Mutex
	name        string
	text        string
	cursor      Position
	decorations []decoration // in creation order
	nextID      int
}

type decoration struct {
	id string
	Decoration
}

// NewBuffer creates a buffer holding text with the cursor at 1:1.
func NewBuffer(name, text string) *Buffer {
	return &Buffer{
		name:   name,
		text:   text,
		cursor: Position{LineNumber: 1, Column: 1},
	}
}

type bufferModel struct{ b *Buffer }

func (m bufferModel) Value() string    { return m.b.Text() }
func (m bufferModel) FileName() string { return m.b.name }

// Model returns the buffer's document.
func (b *Buffer) Model() Model { return bufferModel{b} }

// Text returns the document text.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Position returns the cursor.
func (b *Buffer) Position() *Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.cursor
	return &p
}

// SetPosition moves the cursor, clamped to the document.
func (b *Buffer) SetPosition(p Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = b.positionAt(b.offset(p))
}

// Move shifts the cursor by whole lines and columns. A line move keeps the
// column where the target line allows it.
func (b *Buffer) Move(lines, columns int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.cursor
	p.LineNumber = max(p.LineNumber+lines, 1)
	p.Column = max(p.Column+columns, 1)
	b.cursor = b.positionAt(b.offset(p))
}

// Insert types text at the cursor.
func (b *Buffer) Insert(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replace(At(b.cursor), text)
}

// Backspace deletes the rune before the cursor.
func (b *Buffer) Backspace() {
	b.mu.Lock()
	defer b.mu.Unlock()
	off := b.offset(b.cursor)
	if off == 0 {
		return
	}
	_, size := utf8.DecodeLastRuneInString(b.text[:off])
	b.text = b.text[:off-size] + b.text[off:]
	b.cursor = b.positionAt(off - size)
}

// ExecuteEdits applies edits in order. The cursor ends after the last
// inserted text.
func (b *Buffer) ExecuteEdits(source string, edits []Edit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range edits {
		b.replace(e.Range, e.Text)
	}
}

func (b *Buffer) replace(r Range, text string) {
	start, end := b.offset(r.Start), b.offset(r.End)
	if end < start {
		start, end = end, start
	}
	b.text = b.text[:start] + text + b.text[end:]
	b.cursor = b.positionAt(start + len(text))
}

// DeltaDecorations implements Editor.
func (b *Buffer) DeltaDecorations(old []string, next []Decoration) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(old) > 0 {
		drop := make(map[string]bool, len(old))
		for _, id := range old {
			drop[id] = true
		}
		kept := b.decorations[:0]
		for _, d := range b.decorations {
			if !drop[d.id] {
				kept = append(kept, d)
			}
		}
		b.decorations = kept
	}
	ids := make([]string, 0, len(next))
	for _, d := range next {
		b.nextID++
		id := fmt.Sprintf("dec-%d", b.nextID)
		b.decorations = append(b.decorations, decoration{id: id, Decoration: d})
		ids = append(ids, id)
	}
	return ids
}

// Decorations returns the live decorations in the order they were added.
func (b *Buffer) Decorations() []Decoration {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Decoration, 0, len(b.decorations))
	for _, d := range b.decorations {
		out = append(out, d.Decoration)
	}
	return out
}

// Lines returns the document split into lines.
func (b *Buffer) Lines() []string {
	return strings.Split(b.Text(), "\n")
}

// offset converts a position into a byte offset, clamping to the document.
func (b *Buffer) offset(p Position) int {
	lines := strings.SplitAfter(b.text, "\n")
	line := min(max(p.LineNumber, 1), len(lines))
	off := 0
	for _, l := range lines[:line-1] {
		off += len(l)
	}
	before, _ := analyze.SplitAt(strings.TrimSuffix(lines[line-1], "\n"), p.Column-1)
	return off + len(before)
}

// positionAt converts a byte offset into a position.
func (b *Buffer) positionAt(off int) Position {
	off = min(max(off, 0), len(b.text))
	head := b.text[:off]
	line := strings.Count(head, "\n") + 1
	lineStart := strings.LastIndexByte(head, '\n') + 1
	return Position{LineNumber: line, Column: utf8.RuneCountInString(head[lineStart:]) + 1}
}
