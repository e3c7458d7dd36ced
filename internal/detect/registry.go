package detect

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Registry holds the configured set of entity recognizers. It is built once
// at process start and is immutable afterwards, so it can be shared across
// concurrent request handlers without locking. All per-request state lives
// in the caller.
type Registry struct {
	recognizers []Recognizer
	entities    []string
	logger      *zap.Logger
}

// NewRegistry creates a registry over the given recognizers.
func NewRegistry(recognizers []Recognizer, logger *zap.Logger) *Registry {
	seen := make(map[string]bool)
	var entities []string
	for _, r := range recognizers {
		for _, e := range r.Entities() {
			if !seen[e] {
				seen[e] = true
				entities = append(entities, e)
			}
		}
	}
	if !seen[EntityGeneric] {
		// Deny-list injection can always produce GENERIC_PII.
		entities = append(entities, EntityGeneric)
	}
	sort.Strings(entities)

	logger.Info("Recognizer registry initialized",
		zap.Int("recognizers", len(recognizers)),
		zap.Int("entity_types", len(entities)),
	)

	return &Registry{recognizers: recognizers, entities: entities, logger: logger}
}

// NewDefaultRegistry builds a registry with all built-in pattern recognizers
// plus, when a model backend is available, the NER recognizer.
func NewDefaultRegistry(modelPath string, logger *zap.Logger) *Registry {
	recognizers := []Recognizer{
		NewPhoneRecognizer(),
		NewEmailRecognizer(),
		NewCreditCardRecognizer(),
		NewSSNRecognizer(),
		NewIPRecognizer(),
		NewURLRecognizer(),
		NewIBANRecognizer(),
	}
	if ner := NewNERRecognizer(modelPath, logger); ner != nil {
		recognizers = append(recognizers, ner)
	}
	return NewRegistry(recognizers, logger)
}

// Entities returns the entity type names this registry can produce, sorted.
// The slice is shared; callers must not mutate it.
func (r *Registry) Entities() []string { return r.entities }

// Supports reports whether the registry can produce the given entity type.
func (r *Registry) Supports(entity string) bool {
	for _, e := range r.entities {
		if e == entity {
			return true
		}
	}
	return false
}

// Analyze runs every applicable recognizer over the text and returns the
// merged findings, sorted by start ascending with longer spans first on
// ties. Deny-list entries are injected as GENERIC_PII at score 1.0 after
// base detection; allow-list filtering is applied next, then same-type
// overlaps are resolved so no two findings of one entity type share text.
// Recognizer faults are wrapped as ErrDetectionEngine.
func (r *Registry) Analyze(text string, opts Options) ([]Finding, error) {
	entities := opts.entitySet()
	threshold := opts.threshold()

	var findings []Finding
	for _, rec := range r.recognizers {
		results, err := rec.Analyze(text, entities, opts.ReturnExplanation)
		if err != nil {
			return nil, fmt.Errorf("%w: recognizer %s: %v", ErrDetectionEngine, rec.Name(), err)
		}
		for _, f := range results {
			if f.Score >= threshold {
				findings = append(findings, f)
			}
		}
	}

	// Deny matches bypass the score threshold.
	findings = append(findings, denyListFindings(text, opts.DenyList)...)

	if len(opts.AllowList) > 0 {
		allowed := make(map[string]bool, len(opts.AllowList))
		for _, a := range opts.AllowList {
			allowed[a] = true
		}
		kept := findings[:0]
		for _, f := range findings {
			if !allowed[f.Text] {
				kept = append(kept, f)
			}
		}
		findings = kept
	}

	findings = resolveConflicts(findings)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})

	if len(findings) > 0 {
		r.logger.Debug("PII detected",
			zap.Int("findings", len(findings)),
			zap.Int("text_length", len(text)),
		)
	}
	return findings, nil
}

// resolveConflicts drops every finding whose span overlaps a same-type
// finding that outranks it: higher score first, then longer span, then
// earlier start. Pattern sets routinely produce nested matches for one
// value (a phone number with an extension also matches the bare-number
// rules), and splicing overlapping same-type spans would corrupt the text.
// Overlaps across different entity types are retained; the operator engine
// resolves those at application time.
func resolveConflicts(findings []Finding) []Finding {
	if len(findings) < 2 {
		return findings
	}

	order := make([]int, len(findings))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		fa, fb := findings[order[a]], findings[order[b]]
		if fa.Score != fb.Score {
			return fa.Score > fb.Score
		}
		if la, lb := fa.End-fa.Start, fb.End-fb.Start; la != lb {
			return la > lb
		}
		return fa.Start < fb.Start
	})

	dropped := make([]bool, len(findings))
	for pos, i := range order {
		if dropped[i] {
			continue
		}
		for _, j := range order[pos+1:] {
			if dropped[j] || findings[j].EntityType != findings[i].EntityType {
				continue
			}
			if findings[j].Start < findings[i].End && findings[i].Start < findings[j].End {
				dropped[j] = true
			}
		}
	}

	kept := findings[:0]
	for i, f := range findings {
		if !dropped[i] {
			kept = append(kept, f)
		}
	}
	return kept
}

// denyListFindings injects a GENERIC_PII finding for every substring
// occurrence of every deny-list entry.
func denyListFindings(text string, denyList []string) []Finding {
	var findings []Finding
	for _, term := range denyList {
		if term == "" {
			continue
		}
		for offset := 0; ; {
			idx := strings.Index(text[offset:], term)
			if idx < 0 {
				break
			}
			start := offset + idx
			findings = append(findings, Finding{
				EntityType: EntityGeneric,
				Text:       term,
				Start:      start,
				End:        start + len(term),
				Score:      1.0,
			})
			offset = start + len(term)
		}
	}
	return findings
}
