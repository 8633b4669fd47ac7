package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// BreakFamily names a class of persona failure.
type BreakFamily string

const (
	// FamilyNone means the text passed classification.
	FamilyNone BreakFamily = ""

	// FamilyPersonaBreak means the generator spoke as itself (vendor
	// self-identification, refusals, generic-AI disclaimers) instead of as
	// the persona.
	FamilyPersonaBreak BreakFamily = "persona_break"

	// FamilyProcessLeak means the scaffolding of the generation process
	// leaked into the output (narrated steps, numbered plans, or output too
	// short to be a real reflection).
	FamilyProcessLeak BreakFamily = "process_leak"
)

// Verdict is the classifier's judgment on a cleaned text.
type Verdict struct {
	// Family is the detected failure family, or FamilyNone.
	Family BreakFamily `json:"family,omitempty"`

	// Evidence lists the signals that fired, for diagnostics.
	Evidence []string `json:"evidence,omitempty"`
}

// OK reports whether the text passed.
func (v Verdict) OK() bool { return v.Family == FamilyNone }

// disclaimerLengthCeiling is the character count under which repeated
// generic-AI disclaimers condemn on their own: a short answer that is mostly
// disclaimer has no room left for the persona.
const disclaimerLengthCeiling = 240

var (
	// vendorIDPattern is the strong persona-break signal: the generator
	// naming its vendor or calling itself an AI model. One hit condemns.
	vendorIDPattern = regexp.MustCompile(
		`(?i)\b(as an AI\b|I('| a)?m an AI\b|AI (language )?model|large language model|perplexity|openai|anthropic)`)

	// refusalPhrases are weak persona-break signals; two or more must
	// co-occur.
	refusalPhrases = []string{
		"i cannot",
		"i can't",
		"i won't",
		"i will not",
		"i refuse to",
		"i'm not able to",
		"i am not able to",
		"i apologize, but",
		"i'm sorry, but",
	}

	// disclaimerPhrases are weak persona-break signals of the generic
	// assistant register.
	disclaimerPhrases = []string{
		"i don't have personal",
		"i don't have feelings",
		"i don't have the ability",
		"as a language model",
	}

	// discourseMarkers are weak process-leak signals: narrated reasoning
	// steps. Two or more must co-occur.
	discourseMarkers = []string{
		"first,",
		"let me",
		"then i",
		"finally,",
		"to understand",
		"i'll analyze",
		"i will analyze",
	}

	// numberedStepPattern detects list-of-steps scaffolding. Two or more
	// items make a list, and a list condemns alone.
	numberedStepPattern = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)

	// trailingAnalysisPattern detects a text breaking off mid-description
	// of an analytical process.
	trailingAnalysisPattern = regexp.MustCompile(
		`(?i)\b(analyz|process|examin|evaluat|consider|determin|comput|check)\w*\W*$`)
)

// Classifier judges cleaned persona output.
//
// Detection is two-tier: strong signals condemn alone, weak signals only in
// co-occurrence. This keeps single incidental phrases ("let me show you the
// garden") from triggering a regeneration.
type Classifier struct {
	// shortFloor is the character count under which output is treated as a
	// process-leak signal (the generation produced scaffolding, not text).
	shortFloor int

	// vocabulary is the calling persona's own register, lowercased. Text
	// carrying none of it weighs against the disclaimer signals.
	vocabulary []string
}

// NewClassifier creates a classifier for one persona. A zero shortFloor
// disables the short-output signal; an empty vocabulary disables the
// vocabulary check (absence is then assumed, never presence).
func NewClassifier(shortFloor int, vocabulary []string) *Classifier {
	return &Classifier{shortFloor: shortFloor, vocabulary: vocabulary}
}

// Classify judges the text. Persona breaks take precedence over process
// leaks when both fire.
func (c *Classifier) Classify(text string) Verdict {
	lower := strings.ToLower(text)

	if v := c.classifyPersonaBreak(text, lower); !v.OK() {
		return v
	}
	return c.classifyProcessLeak(text, lower)
}

func (c *Classifier) classifyPersonaBreak(text, lower string) Verdict {
	if hit := vendorIDPattern.FindString(text); hit != "" {
		return Verdict{
			Family:   FamilyPersonaBreak,
			Evidence: []string{fmt.Sprintf("vendor self-identification: %q", hit)},
		}
	}

	refusals := phraseHits(lower, refusalPhrases, "refusal")
	disclaimers := phraseHits(lower, disclaimerPhrases, "disclaimer")

	// Refusal forms co-occur with each other or with a disclaimer.
	if len(refusals) >= 2 || (len(refusals) >= 1 && len(disclaimers) >= 1) {
		return Verdict{Family: FamilyPersonaBreak, Evidence: append(refusals, disclaimers...)}
	}

	// Disclaimers alone condemn only a short answer that carries none of
	// the persona's own register.
	if len(disclaimers) >= 2 && len(strings.TrimSpace(text)) <= disclaimerLengthCeiling &&
		!c.hasVocabulary(lower) {
		return Verdict{
			Family: FamilyPersonaBreak,
			Evidence: append(disclaimers,
				"short text with no persona vocabulary"),
		}
	}
	return Verdict{}
}

func (c *Classifier) classifyProcessLeak(text, lower string) Verdict {
	trimmed := strings.TrimSpace(text)
	if c.shortFloor > 0 && len(trimmed) > 0 && len(trimmed) < c.shortFloor {
		return Verdict{
			Family:   FamilyProcessLeak,
			Evidence: []string{fmt.Sprintf("output below %d chars", c.shortFloor)},
		}
	}

	// A numbered-step list condemns alone.
	steps := numberedStepPattern.FindAllString(text, -1)
	if len(steps) >= 2 {
		return Verdict{
			Family:   FamilyProcessLeak,
			Evidence: []string{fmt.Sprintf("numbered step list (%d items)", len(steps))},
		}
	}

	evidence := phraseHits(lower, discourseMarkers, "discourse marker")
	if len(steps) == 1 {
		evidence = append(evidence, "numbered step")
	}
	if trailsMidAnalysis(trimmed) {
		evidence = append(evidence, "trails off mid-analysis")
	}
	if len(evidence) >= 2 {
		return Verdict{Family: FamilyProcessLeak, Evidence: evidence}
	}
	return Verdict{}
}

// hasVocabulary reports whether any persona vocabulary word appears.
func (c *Classifier) hasVocabulary(lower string) bool {
	for _, word := range c.vocabulary {
		if strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

// trailsMidAnalysis reports whether the text ends without terminal
// punctuation, in the middle of describing an analytical step.
func trailsMidAnalysis(trimmed string) bool {
	if trimmed == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '.', '!', '?', '…':
		return false
	}
	return trailingAnalysisPattern.MatchString(trimmed)
}

// phraseHits records each phrase found in the text.
func phraseHits(lower string, phrases []string, label string) []string {
	var hits []string
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			hits = append(hits, fmt.Sprintf("%s: %q", label, phrase))
		}
	}
	return hits
}
