package analyze

import (
	"regexp"
	"strings"
)

// DefaultLanguage is reported when neither the file name nor the content
// identifies a language.
const DefaultLanguage = "JavaScript"

// NoFramework is reported when no framework rule matches.
const NoFramework = "None"

// rule pairs a label with a predicate. Tables of rules are evaluated in
// declaration order.
type rule struct {
	label string
	match func(string) bool
}

func containsAny(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

func containsAll(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if !strings.Contains(s, sub) {
				return false
			}
		}
		return true
	}
}

func matches(re *regexp.Regexp) func(string) bool {
	return re.MatchString
}

// trimmed applies match to s with surrounding whitespace removed.
func trimmed(match func(string) bool) func(string) bool {
	return func(s string) bool { return match(strings.TrimSpace(s)) }
}

// languageByExt maps lower-case file extensions to display labels.
var languageByExt = map[string]string{
	"ts":   "TypeScript",
	"tsx":  "TypeScript",
	"js":   "JavaScript",
	"jsx":  "JavaScript",
	"py":   "Python",
	"java": "Java",
	"go":   "Go",
	"rs":   "Rust",
	"php":  "PHP",
	"css":  "CSS",
	"html": "HTML",
}

// languageRules run against the whole document when the extension is unknown.
var languageRules = []rule{
	{"TypeScript", containsAny("interface ", ": string")},
	{"Python", containsAll("def ", "import ")},
	{"Go", containsAny("func ", "package ")},
}

// frameworkRules are ordered: a Next.js project is also a React project, so
// React must be checked first to keep the reported label stable.
var frameworkRules = []rule{
	{"React", containsAny("import React", "useState")},
	{"Vue", containsAny("import Vue", "<template>")},
	{"Angular", containsAny("@angular/", "@Component")},
	{"Next.js", containsAny("next/", "getServerSideProps")},
}

var (
	reFunctionDecl = regexp.MustCompile(`^\s*(function|def|const\s+\w+\s*=|let\s+\w+\s*=)`)
	reClassDecl    = regexp.MustCompile(`^\s*(class|interface)\s+`)
	reBlockClose   = regexp.MustCompile(`^\s*}`)
)

// commentRules detect a line comment before the cursor.
var commentRules = []rule{
	{"slash", matches(regexp.MustCompile(`//.*$`))},
	{"hash", matches(regexp.MustCompile(`#.*$`))},
}

// Incomplete pattern labels.
const (
	PatternConditional = "conditional"
	PatternFunction    = "function"
	PatternObject      = "object"
	PatternArray       = "array"
	PatternAssignment  = "assignment"
	PatternMethodCall  = "method-call"
)

// incompleteRules classify the text immediately before the cursor. They are
// independent; every matching label is reported.
var incompleteRules = []rule{
	{PatternConditional, trimmed(matches(regexp.MustCompile(`^\s*(if|while|for)\s*\($`)))},
	{PatternFunction, trimmed(matches(regexp.MustCompile(`^\s*(function|def)\s*$`)))},
	{PatternObject, matches(regexp.MustCompile(`\{\s*$`))},
	{PatternArray, matches(regexp.MustCompile(`\[\s*$`))},
	{PatternAssignment, matches(regexp.MustCompile(`=\s*$`))},
	{PatternMethodCall, matches(regexp.MustCompile(`\.\s*$`))},
}

// firstMatch returns the label of the first rule matching s, or fallback.
func firstMatch(rules []rule, s, fallback string) string {
	for _, r := range rules {
		if r.match(s) {
			return r.label
		}
	}
	return fallback
}

// allMatches returns the labels of every rule matching s, never nil.
func allMatches(rules []rule, s string) []string {
	labels := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.match(s) {
			labels = append(labels, r.label)
		}
	}
	return labels
}
