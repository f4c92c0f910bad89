// Package rules holds the ordered rule table that decides which transform
// chain applies to an input file, and how its output is named.
package rules

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/mode"
	"github.com/wolfeidau/assetpipe/internal/naming"
)

// Transform step names understood by the transform registry.
const (
	StepHTML       = "html"
	StepCSS        = "css"
	StepExtractCSS = "extract-css"
	StepSass       = "sass"
	StepFile       = "file"
	StepBabel      = "babel"
)

// DependencyDir is excluded from the script transform rule.
const DependencyDir = "node_modules"

// Step is one named stage of a transform chain.
type Step struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

// Entry is a single rule: a matcher, the transform chain applied to matching
// files, and the naming policy for anything the chain emits.
type Entry struct {
	Name    string
	Test    *regexp.Regexp
	Exclude *regexp.Regexp
	Use     []Step
	Output  naming.Policy
}

// Matches reports whether the entry applies to path.
func (e Entry) Matches(path string) bool {
	if e.Test == nil || !e.Test.MatchString(path) {
		return false
	}
	return e.Exclude == nil || !e.Exclude.MatchString(path)
}

// Emits reports whether the chain ends by emitting the file on its own
// rather than inlining it into the bundle.
func (e Entry) Emits() bool {
	return len(e.Use) > 0 && e.Use[len(e.Use)-1].Name == StepFile
}

// StepNames returns the chain as a list of names.
func (e Entry) StepNames() []string {
	names := make([]string, 0, len(e.Use))
	for _, s := range e.Use {
		names = append(names, s.Name)
	}
	return names
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s]", e.Name, strings.Join(e.StepNames(), " -> "))
}

// Compile builds an Entry from string patterns. exclude may be empty.
func Compile(name, test, exclude string, use []Step, output naming.Policy) (Entry, error) {
	if name == "" {
		return Entry{}, errors.New("rule name is required")
	}
	if test == "" {
		return Entry{}, fmt.Errorf("rule %q: test pattern is required", name)
	}

	testRe, err := regexp.Compile(test)
	if err != nil {
		return Entry{}, fmt.Errorf("rule %q: invalid test pattern: %w", name, err)
	}
	if testRe.MatchString("") {
		return Entry{}, fmt.Errorf("rule %q: test pattern %q matches the empty path", name, test)
	}
	if hasEmptyAlternative(test) {
		return Entry{}, fmt.Errorf("rule %q: test pattern %q has an empty alternative", name, test)
	}

	var excludeRe *regexp.Regexp
	if exclude != "" {
		excludeRe, err = regexp.Compile(exclude)
		if err != nil {
			return Entry{}, fmt.Errorf("rule %q: invalid exclude pattern: %w", name, err)
		}
	}

	for i, s := range use {
		if s.Name == "" {
			return Entry{}, fmt.Errorf("rule %q: step %d has no name", name, i)
		}
		if s.Name == StepFile && i != len(use)-1 {
			return Entry{}, fmt.Errorf("rule %q: %q must be the last step", name, StepFile)
		}
	}

	return Entry{
		Name:    name,
		Test:    testRe,
		Exclude: excludeRe,
		Use:     use,
		Output:  output,
	}, nil
}

func mustCompile(name, test, exclude string, use []Step, output naming.Policy) Entry {
	e, err := Compile(name, test, exclude, use, output)
	if err != nil {
		panic(err)
	}
	return e
}

// Table is an ordered, immutable list of rules. The first matching entry wins.
type Table struct {
	entries []Entry
}

// NewTable validates entries and returns a table preserving their order.
func NewTable(entries ...Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, errors.New("rule table is empty")
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Test == nil {
			return nil, fmt.Errorf("rule %q has no matcher", e.Name)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", e.Name)
		}
		seen[e.Name] = true
	}

	return &Table{entries: append([]Entry(nil), entries...)}, nil
}

// Resolve returns the first entry matching path. Paths are compared in
// slash form so the result does not depend on the host OS.
func (t *Table) Resolve(path string) (Entry, error) {
	p := filepath.ToSlash(path)
	for _, e := range t.entries {
		if e.Matches(p) {
			return e, nil
		}
	}
	return Entry{}, &NoRuleMatchedError{Path: path}
}

// Entries returns a copy of the rules in declared order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

func (t *Table) Len() int {
	return len(t.entries)
}

// DefaultTable returns the built in rule set for m.
//
// The image matcher is an explicit alternation of the five supported
// extensions. A path with no extension does not match it.
func DefaultTable(m mode.Mode) *Table {
	t, err := NewTable(
		mustCompile("html", `(?i)\.html$`, "",
			[]Step{{Name: StepHTML}},
			naming.Policy{}),
		mustCompile("css", `(?i)\.css$`, "",
			[]Step{{Name: StepCSS}, {Name: StepExtractCSS}},
			naming.ForMode(m, "css")),
		mustCompile("sass", `(?i)\.s[ac]ss$`, "",
			[]Step{
				{Name: StepSass},
				{Name: StepCSS},
				{Name: StepExtractCSS, Options: map[string]any{"publicPath": "relative"}},
			},
			naming.ForMode(m, "css")),
		mustCompile("images", `(?i)\.(?:gif|png|jpg|jpeg|svg)$`, "",
			[]Step{{Name: StepFile}},
			naming.ForMode(m, "img")),
		mustCompile("fonts", `(?i)\.woff2?$`, "",
			[]Step{{Name: StepFile}},
			naming.ForMode(m, "fonts")),
		mustCompile("script", `\.m?js$`, DependencyDir,
			[]Step{{Name: StepBabel}},
			naming.ForMode(m, "js")),
		// Dependency code is bundled as is.
		mustCompile("vendor-script", `\.[mc]?js$`, "",
			nil,
			naming.ForMode(m, "js")),
		mustCompile("json", `(?i)\.json$`, "",
			nil,
			naming.Policy{}),
	)
	if err != nil {
		panic(err)
	}
	return t
}

// hasEmptyAlternative reports patterns such as `\.(?:|png|jpg)$` whose
// alternation contains an empty branch, silently widening the match to any
// path ending in a bare dot.
func hasEmptyAlternative(pattern string) bool {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return false
	}
	return walkEmptyAlternative(re)
}

func walkEmptyAlternative(re *syntax.Regexp) bool {
	if re.Op == syntax.OpAlternate {
		for _, sub := range re.Sub {
			if sub.Op == syntax.OpEmptyMatch {
				return true
			}
		}
	}
	for _, sub := range re.Sub {
		if walkEmptyAlternative(sub) {
			return true
		}
	}
	return false
}
