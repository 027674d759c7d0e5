package index

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// keepVars are assignments whose values are never masked, even in dotenv
// files.
var keepVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "PWD": true, "SHELL": true,
	"LANG": true, "TZ": true, "TERM": true, "EDITOR": true,
	"NODE_ENV": true, "PORT": true, "HOST": true, "HOSTNAME": true,
	"CI": true, "DEBUG": true, "LOG_LEVEL": true,
}

var reSecretName = regexp.MustCompile(`(?i)api[_-]?key|secret|token|passw(?:or)?d|credential|private[_-]?key|access[_-]?key|auth|dsn|database[_-]?url`)

// maskAssign reports whether the value assigned to name should be masked.
func maskAssign(name string, allValues bool) bool {
	if keepVars[name] {
		return false
	}
	return allValues || reSecretName.MatchString(name)
}

// RedactShell masks assignment values in shell source. With allValues every
// assignment outside keepVars is masked, as suits dotenv files; otherwise only
// names that look like credentials are. Variable references are kept.
// Well-known key formats are masked wherever they appear.
func RedactShell(src string, allValues bool) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(src), "")
	if err != nil {
		return maskKnownKeys(regexRedact(src, allValues))
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		if n, ok := node.(*syntax.Assign); ok && n.Name != nil && n.Value != nil && maskAssign(n.Name.Value, allValues) {
			n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
		}
		return true
	})

	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.Indent(0)).Print(&buf, prog); err != nil {
		return maskKnownKeys(regexRedact(src, allValues))
	}
	return maskKnownKeys(strings.TrimRight(buf.String(), "\n"))
}

var reAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=([^\s;&|]+)`)

// regexRedact is a fallback for shell source that fails to parse.
func regexRedact(src string, allValues bool) string {
	return reAssign.ReplaceAllStringFunc(src, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if !maskAssign(name, allValues) {
			return m
		}
		return name + "=***"
	})
}

var (
	reSecretAssign = regexp.MustCompile(`(?i)([\w.-]*(?:api[_-]?key|secret|token|passw(?:or)?d|credential)[\w.-]*["']?\s*[:=]\s*)(["'\x60])[^"'\x60\n]*(["'\x60])`)
	reSecretValues = []*regexp.Regexp{
		regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
		regexp.MustCompile(`\bgsk_[A-Za-z0-9]{16,}`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}`),
	}
)

func maskKnownKeys(s string) string {
	for _, re := range reSecretValues {
		s = re.ReplaceAllString(s, "***")
	}
	return s
}

// RedactSource masks secrets in a project file before it leaves the process.
// Dotenv files have every value masked and shell scripts their credential
// assignments. Other files have string literals assigned to secret-looking
// keys masked. Well-known key formats are masked everywhere.
func RedactSource(name, content string) string {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case base == ".env" || base == ".envrc" || strings.HasPrefix(base, ".env."):
		return RedactShell(content, true)
	case strings.HasSuffix(base, ".sh") || strings.HasSuffix(base, ".bash") || strings.HasSuffix(base, ".zsh"):
		return RedactShell(content, false)
	}
	return maskKnownKeys(reSecretAssign.ReplaceAllString(content, "${1}${2}***${3}"))
}
