// Package rerrors defines the tagged error kinds the core reports to callers.
//
// Kinds are never exposed as Go error *types*; callers match on the Kind
// value with Is, the same pattern the teacher uses for its SQL errors.
package rerrors

import (
	"fmt"
	"strings"

	errors "gopkg.in/src-d/go-errors.v1"
)

// Kinds, see spec §7.
var (
	// GrammarError: a field failed to parse or failed validation.
	GrammarError = errors.NewKind("%s")

	// BadIngredient: configuration-level problem building an ingredient.
	BadIngredient = errors.NewKind("%s")

	// BadRecipe: assembly-level problem building or running a recipe.
	BadRecipe = errors.NewKind("%s")
)

// Diagnostic is a single validator finding: a message plus a two-line caret
// snippet pointing at the offending token in the original field text.
type Diagnostic struct {
	Message string
	Offset  int
	Snippet string
}

func (d Diagnostic) String() string {
	if d.Snippet == "" {
		return d.Message
	}
	return d.Message + "\n" + d.Snippet
}

// Snippet renders a two-line caret diagram for text around offset.
func Snippet(text string, offset, span int) string {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	start := offset - span
	if start < 0 {
		start = 0
	}
	end := offset + span
	if end > len(text) {
		end = len(text)
	}
	before := lastLine(text[start:offset])
	after := firstLine(text[offset:end])
	return before + after + "\n" + strings.Repeat(" ", len(before)) + "^"
}

func lastLine(s string) string {
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// NewGrammarError builds a GrammarError from a list of diagnostics.
func NewGrammarError(fieldText string, diags []Diagnostic) error {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, d.String())
	}
	return GrammarError.New(fmt.Sprintf("could not compile %q:\n%s", fieldText, strings.Join(lines, "\n")))
}
