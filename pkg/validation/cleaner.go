// Package validation cleans, judges, and when necessary regenerates persona
// responses so that callers always receive usable in-character text.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	citationPattern = regexp.MustCompile(`\[\d+\]`)
	bracketPattern  = regexp.MustCompile(`\[[^\[\]]*\]`)

	// reasoningTagPattern removes <reasoning>...</reasoning> spans; an
	// unclosed opening tag swallows the rest of the text.
	reasoningTagPattern = regexp.MustCompile(`(?s)<reasoning>.*?(</reasoning>|$)`)

	// reasoningTrailerPattern drops a "**Reasoning:**" marker and everything
	// after it.
	reasoningTrailerPattern = regexp.MustCompile(`(?s)\*\*Reasoning:?\*\*.*$`)

	// thinkingLinePattern removes whole lines of narrated deliberation.
	thinkingLinePattern = regexp.MustCompile(`(?mi)^\s*Let me (think|analyze|observe)\b.*$`)

	// vendorSelfRefPattern matches the generator naming itself instead of
	// speaking as the persona.
	vendorSelfRefPattern = regexp.MustCompile(`(?i)\bperplexity(\.ai)?\b`)

	multiBlankPattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern = regexp.MustCompile(`[ \t]{2,}`)
)

// Cleaner strips generator artifacts from raw persona output.
//
// Cleaning is deliberately conservative: if the full pass would mutilate the
// text below the minimum viable length, it retreats to tag-stripping only,
// on the theory that an artifact-bearing response beats an empty one.
type Cleaner struct {
	// personaName replaces vendor self-references.
	personaName string

	// minViable is the rune floor below which a fully cleaned text is
	// considered mutilated.
	minViable int
}

// NewCleaner creates a cleaner that rewrites vendor self-references to the
// given persona name. A zero minViable disables the retreat.
func NewCleaner(personaName string, minViable int) *Cleaner {
	return &Cleaner{personaName: personaName, minViable: minViable}
}

// Clean returns the cleaned text and whether the full pass was applied
// (false means it retreated to tag-stripping only).
func (c *Cleaner) Clean(raw string) (string, bool) {
	stripped := c.stripTags(raw)
	full := c.fullClean(stripped)
	if c.minViable > 0 && utf8.RuneCountInString(full) < c.minViable &&
		utf8.RuneCountInString(stripped) >= c.minViable {
		return normalize(stripped), false
	}
	return full, true
}

// stripTags removes only the unambiguous artifacts: reasoning spans,
// reasoning trailers, and vendor self-references.
func (c *Cleaner) stripTags(text string) string {
	text = reasoningTagPattern.ReplaceAllString(text, "")
	text = reasoningTrailerPattern.ReplaceAllString(text, "")
	if c.personaName != "" {
		text = vendorSelfRefPattern.ReplaceAllString(text, c.personaName)
	}
	return text
}

// fullClean applies the aggressive pass on top of tag-stripping.
func (c *Cleaner) fullClean(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = citationPattern.ReplaceAllString(text, "")
	text = bracketPattern.ReplaceAllString(text, "")
	text = thinkingLinePattern.ReplaceAllString(text, "")
	return normalize(text)
}

// normalize collapses the whitespace damage left by the removals.
func normalize(text string) string {
	text = multiSpacePattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = multiBlankPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// EnsureCompletion guarantees the text reads as finished. Text already
// ending in terminal punctuation passes through; otherwise it is cut back to
// the last full sentence, or marked with an ellipsis when no sentence
// boundary exists.
func EnsureCompletion(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	switch last {
	case '.', '!', '?', '…':
		return text
	}
	if i := strings.LastIndexByte(text, '.'); i > 0 {
		return text[:i+1]
	}
	return text + "…"
}
