package detect

import "errors"

// Entity types produced by the built-in recognizers. The NER recognizer
// (when a model backend is available) adds PERSON, LOCATION and DATE_TIME.
const (
	EntityPerson     = "PERSON"
	EntityPhone      = "PHONE_NUMBER"
	EntityEmail      = "EMAIL_ADDRESS"
	EntityCreditCard = "CREDIT_CARD"
	EntityIBAN       = "IBAN_CODE"
	EntitySSN        = "US_SSN"
	EntityLocation   = "LOCATION"
	EntityDateTime   = "DATE_TIME"
	EntityIP         = "IP_ADDRESS"
	EntityURL        = "URL"
	EntityGeneric    = "GENERIC_PII"
)

// DefaultScoreThreshold is applied when Options.ScoreThreshold is zero.
const DefaultScoreThreshold = 0.35

// ErrDetectionEngine wraps any internal recognizer fault. Callers see the
// failure unmodified; no retries happen inside the registry.
var ErrDetectionEngine = errors.New("detection engine failure")

// Finding is a single detected PII occurrence in a text.
// Invariant: 0 <= Start < End <= len(text).
type Finding struct {
	EntityType  string       `json:"entity_type"`
	Text        string       `json:"text"`
	Start       int          `json:"start"`
	End         int          `json:"end"`
	Score       float64      `json:"score"`
	Explanation *Explanation `json:"analysis_explanation,omitempty"`
}

// Options tunes a single Analyze call.
type Options struct {
	// Entities restricts detection to the listed entity types. Nil means all
	// entity types the registry supports.
	Entities []string

	// ScoreThreshold drops findings scored below it. Zero selects
	// DefaultScoreThreshold.
	ScoreThreshold float64

	// AllowList removes findings whose exact detected text matches an entry
	// (case-sensitive), regardless of score.
	AllowList []string

	// DenyList force-injects GENERIC_PII findings at score 1.0 wherever an
	// entry occurs as a substring, bypassing the score threshold.
	DenyList []string

	// ReturnExplanation attaches the recognizer's decision explanation to
	// each finding.
	ReturnExplanation bool
}

func (o Options) threshold() float64 {
	if o.ScoreThreshold <= 0 {
		return DefaultScoreThreshold
	}
	return o.ScoreThreshold
}

// entitySet returns the requested entity types as a set, or nil for all.
func (o Options) entitySet() map[string]bool {
	if len(o.Entities) == 0 {
		return nil
	}
	set := make(map[string]bool, len(o.Entities))
	for _, e := range o.Entities {
		set[e] = true
	}
	return set
}

// Recognizer detects occurrences of one or more entity types in a text.
// Implementations must be safe for concurrent use: the registry is shared
// across request handlers and recognizers hold no per-call state.
type Recognizer interface {
	Name() string
	Entities() []string

	// Analyze returns findings for the requested entity types. The entities
	// set is nil when the caller wants every type this recognizer supports.
	// withExplanation asks for a decision explanation on each finding.
	Analyze(text string, entities map[string]bool, withExplanation bool) ([]Finding, error)
}
