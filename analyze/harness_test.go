package analyze

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"

	vibelet "github.com/vibecode/vibelet"
)

func TestDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "extract":
				var line, col int
				var file string
				d.ScanArgs(t, "line", &line)
				d.ScanArgs(t, "col", &col)
				if d.HasArg("file") {
					d.ScanArgs(t, "file", &file)
				}
				return formatContext(Extract(d.Input, line, col, file))
			case "patterns":
				return "[" + strings.Join(IncompletePatterns(d.Input), " ") + "]\n"
			default:
				t.Fatalf("unknown command: %s", d.Cmd)
				return ""
			}
		})
	})
}

func formatContext(cc vibelet.CodeContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "language: %s\n", cc.Language)
	fmt.Fprintf(&sb, "framework: %s\n", cc.Framework)
	fmt.Fprintf(&sb, "in-function: %t\n", cc.IsInFunction)
	fmt.Fprintf(&sb, "in-class: %t\n", cc.IsInClass)
	fmt.Fprintf(&sb, "after-comment: %t\n", cc.IsAfterComment)
	fmt.Fprintf(&sb, "patterns: [%s]\n", strings.Join(cc.IncompletePatterns, " "))
	fmt.Fprintf(&sb, "before: %q\n", cc.BeforeContext)
	fmt.Fprintf(&sb, "current: %q\n", cc.CurrentLine)
	fmt.Fprintf(&sb, "after: %q\n", cc.AfterContext)
	return sb.String()
}
