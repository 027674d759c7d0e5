// Package analyze derives a CodeContext from a document and a cursor.
// All detection is heuristic and table-driven; nothing here fails.
package analyze

import (
	"path/filepath"
	"strings"

	vibelet "github.com/vibecode/vibelet"
)

// ContextRadius is the number of lines kept on each side of the cursor line.
const ContextRadius = 10

// Extract builds the CodeContext for the zero-based cursor line and column.
// Out-of-range positions produce empty strings rather than errors.
func Extract(content string, line, column int, fileName string) vibelet.CodeContext {
	return ExtractWithRadius(content, line, column, fileName, ContextRadius)
}

// ExtractWithRadius is Extract with an explicit window radius.
func ExtractWithRadius(content string, line, column int, fileName string, radius int) vibelet.CodeContext {
	if line < 0 {
		line = 0
	}
	if column < 0 {
		column = 0
	}
	if radius < 0 {
		radius = 0
	}

	lines := strings.Split(content, "\n")
	currentLine := lineAt(lines, line)
	beforeCursor, _ := SplitAt(currentLine, column)

	return vibelet.CodeContext{
		Language:           DetectLanguage(content, fileName),
		Framework:          DetectFramework(content),
		BeforeContext:      strings.Join(window(lines, line-radius, line), "\n"),
		CurrentLine:        currentLine,
		AfterContext:       strings.Join(window(lines, line+1, line+1+radius), "\n"),
		CursorPosition:     vibelet.Position{Line: line, Column: column},
		IsInFunction:       InFunction(lines, line),
		IsInClass:          InClass(lines, line),
		IsAfterComment:     AfterComment(beforeCursor),
		IncompletePatterns: IncompletePatterns(beforeCursor),
	}
}

// lineAt returns lines[i] or "" when i is out of range.
func lineAt(lines []string, i int) string {
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

// window returns lines[from:to] clamped to the slice bounds.
func window(lines []string, from, to int) []string {
	from = max(from, 0)
	to = min(to, len(lines))
	if from >= to {
		return nil
	}
	return lines[from:to]
}

// SplitAt splits s at the given rune column, clamped to the line length.
func SplitAt(s string, column int) (before, after string) {
	if column <= 0 {
		return "", s
	}
	n := 0
	for i := range s {
		if n == column {
			return s[:i], s[i:]
		}
		n++
	}
	return s, ""
}

// DetectLanguage labels the document: file extension first, then content
// rules, then DefaultLanguage.
func DetectLanguage(content, fileName string) string {
	if fileName != "" {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
		if label, ok := languageByExt[ext]; ok {
			return label
		}
	}
	return firstMatch(languageRules, content, DefaultLanguage)
}

// DetectFramework labels the document with the first matching framework rule.
func DetectFramework(content string) string {
	return firstMatch(frameworkRules, content, NoFramework)
}

// InFunction scans upward from the line above the cursor. It reports true on
// the first declaration-like line and stops early at a line that starts by
// closing a block.
func InFunction(lines []string, line int) bool {
	for i := min(line, len(lines)) - 1; i >= 0; i-- {
		if reFunctionDecl.MatchString(lines[i]) {
			return true
		}
		if reBlockClose.MatchString(lines[i]) {
			break
		}
	}
	return false
}

// InClass scans every line above the cursor for a class or interface
// declaration. Unlike InFunction it does not stop at closing braces.
func InClass(lines []string, line int) bool {
	for i := min(line, len(lines)) - 1; i >= 0; i-- {
		if reClassDecl.MatchString(lines[i]) {
			return true
		}
	}
	return false
}

// AfterComment reports whether the text before the cursor contains a line comment.
func AfterComment(beforeCursor string) bool {
	return len(allMatches(commentRules, beforeCursor)) > 0
}

// IncompletePatterns returns every classification matching the text before the cursor.
func IncompletePatterns(beforeCursor string) []string {
	return allMatches(incompleteRules, beforeCursor)
}
