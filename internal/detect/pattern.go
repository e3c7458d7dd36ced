package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// Defaults for context-word score enhancement. A context word found within
// ContextWindow characters of a match raises its score by ContextBoost,
// capped at 1.0.
const (
	DefaultContextWindow = 35
	DefaultContextBoost  = 0.35
)

// Pattern is a single named regex rule with a base confidence score.
type Pattern struct {
	Name   string
	Regexp *regexp.Regexp
	Score  float64
}

// PatternRecognizer detects one entity type through an ordered list of regex
// patterns. Matches are scored with the pattern's base score, optionally
// validated (e.g. checksum), and boosted when a configured context word
// appears near the match.
type PatternRecognizer struct {
	name          string
	entity        string
	patterns      []Pattern
	context       []string
	contextWindow int
	contextBoost  float64

	// validate, when set, is run on each matched text. A false result drops
	// the match; the outcome is reported as validation_result.
	validate func(match string) bool
}

// PatternRecognizerConfig configures NewPatternRecognizer. Zero window and
// boost select the package defaults.
type PatternRecognizerConfig struct {
	Name          string
	Entity        string
	Patterns      []Pattern
	Context       []string
	ContextWindow int
	ContextBoost  float64
	Validate      func(match string) bool
}

// NewPatternRecognizer builds a recognizer from the given config.
func NewPatternRecognizer(cfg PatternRecognizerConfig) *PatternRecognizer {
	r := &PatternRecognizer{
		name:          cfg.Name,
		entity:        cfg.Entity,
		patterns:      cfg.Patterns,
		context:       cfg.Context,
		contextWindow: cfg.ContextWindow,
		contextBoost:  cfg.ContextBoost,
		validate:      cfg.Validate,
	}
	if r.contextWindow <= 0 {
		r.contextWindow = DefaultContextWindow
	}
	if r.contextBoost <= 0 {
		r.contextBoost = DefaultContextBoost
	}
	return r
}

func (r *PatternRecognizer) Name() string { return r.name }

func (r *PatternRecognizer) Entities() []string { return []string{r.entity} }

// Analyze runs every pattern against the text and scores the matches.
func (r *PatternRecognizer) Analyze(text string, entities map[string]bool, withExplanation bool) ([]Finding, error) {
	if entities != nil && !entities[r.entity] {
		return nil, nil
	}

	var findings []Finding
	for _, p := range r.patterns {
		for _, loc := range p.Regexp.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]

			var validated *bool
			if r.validate != nil {
				ok := r.validate(match)
				validated = &ok
				if !ok {
					continue
				}
			}

			score := p.Score
			word, boost := r.contextSupport(text, loc[0], loc[1], score)
			score += boost

			f := Finding{
				EntityType: r.entity,
				Text:       match,
				Start:      loc[0],
				End:        loc[1],
				Score:      score,
			}
			if withExplanation {
				f.Explanation = AssembleExplanation(r.rawExplanation(p, validated, word, boost))
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// contextSupport scans a window around the match for any configured context
// word and returns the supporting word plus the score improvement applied.
func (r *PatternRecognizer) contextSupport(text string, start, end int, score float64) (string, float64) {
	if len(r.context) == 0 {
		return "", 0
	}
	lo := start - r.contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + r.contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:start] + text[end:hi])

	for _, word := range r.context {
		if strings.Contains(window, strings.ToLower(word)) {
			boost := r.contextBoost
			if score+boost > 1.0 {
				boost = 1.0 - score
			}
			return word, boost
		}
	}
	return "", 0
}

func (r *PatternRecognizer) rawExplanation(p Pattern, validated *bool, word string, boost float64) map[string]any {
	raw := map[string]any{
		"recognizer":     r.name,
		"original_score": p.Score,
		"pattern_name":   p.Name,
		"pattern":        p.Regexp.String(),
		"score":          p.Score,
		"textual_explanation": fmt.Sprintf(
			"Identified as %s by %s using pattern `%s`", r.entity, r.name, p.Name),
	}
	if validated != nil {
		raw["validation_result"] = *validated
	}
	if word != "" {
		raw["supportive_context_word"] = word
		raw["score_context_improvement"] = boost
	}
	return raw
}

// MustPattern compiles a pattern rule, panicking on an invalid regex. Used
// for the built-in rule tables which are fixed at compile time.
func MustPattern(name, expr string, score float64) Pattern {
	return Pattern{Name: name, Regexp: regexp.MustCompile(expr), Score: score}
}
