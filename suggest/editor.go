// Package suggest drives inline AI suggestions inside an editor: fetching a
// suggestion for the cursor, showing it as a decoration, and accepting or
// dismissing it.
package suggest

// Position is a 1-based editor position. Columns count runes.
type Position struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

// Range spans two positions. An empty range is an insertion point.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// At returns the empty range at p.
func At(p Position) Range { return Range{Start: p, End: p} }

// Edit replaces Range with Text.
type Edit struct {
	Range Range
	Text  string
}

// Decoration is a purely visual marker; Text is shown as ghost text at Range.
type Decoration struct {
	Range Range
	Text  string
}

// Model is the document shown by an editor.
type Model interface {
	Value() string
}

// Editor is the surface the controller reads from and draws into.
//
// Model and Position return nil when no document or cursor is available.
// DeltaDecorations removes the decorations named by old, adds next, and
// returns the ids of the added ones.
type Editor interface {
	Model() Model
	Position() *Position
	ExecuteEdits(source string, edits []Edit)
	DeltaDecorations(old []string, next []Decoration) []string
}

// fileNamer is implemented by models that know their file name.
type fileNamer interface {
	FileName() string
}
