package detect

import "encoding/json"

// Explanation carries the decision process behind a finding. Only fields the
// recognizer actually populated are present; unknown fields exposed by a
// recognizer are preserved in Extra rather than dropped, so new explanation
// fields propagate to API responses without code changes here.
type Explanation struct {
	Recognizer              string   `json:"recognizer,omitempty"`
	OriginalScore           *float64 `json:"original_score,omitempty"`
	PatternName             string   `json:"pattern_name,omitempty"`
	Pattern                 string   `json:"pattern,omitempty"`
	Score                   *float64 `json:"score,omitempty"`
	ValidationResult        *bool    `json:"validation_result,omitempty"`
	ScoreContextImprovement *float64 `json:"score_context_improvement,omitempty"`
	SupportiveContextWord   string   `json:"supportive_context_word,omitempty"`
	TextualExplanation      string   `json:"textual_explanation,omitempty"`

	Extra map[string]any `json:"-"`
}

// AssembleExplanation builds an Explanation from the raw field bag a
// recognizer exposes. Every field present in raw is copied: known fields
// into their typed slots, anything else into Extra. Absent fields stay
// absent; nothing is defaulted to null or placeholder values.
func AssembleExplanation(raw map[string]any) *Explanation {
	if len(raw) == 0 {
		return nil
	}
	e := &Explanation{}
	for key, value := range raw {
		if value == nil {
			continue
		}
		switch key {
		case "recognizer":
			e.Recognizer, _ = value.(string)
		case "original_score":
			if f, ok := toFloat(value); ok {
				e.OriginalScore = &f
			}
		case "pattern_name":
			e.PatternName, _ = value.(string)
		case "pattern":
			e.Pattern, _ = value.(string)
		case "score":
			if f, ok := toFloat(value); ok {
				e.Score = &f
			}
		case "validation_result":
			if b, ok := value.(bool); ok {
				e.ValidationResult = &b
			}
		case "score_context_improvement":
			if f, ok := toFloat(value); ok {
				e.ScoreContextImprovement = &f
			}
		case "supportive_context_word":
			e.SupportiveContextWord, _ = value.(string)
		case "textual_explanation":
			e.TextualExplanation, _ = value.(string)
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			e.Extra[key] = value
		}
	}
	return e
}

// MarshalJSON flattens Extra into the explanation object so consumers see
// one flat field set, matching what the recognizer reported.
func (e *Explanation) MarshalJSON() ([]byte, error) {
	type plain Explanation
	base, err := json.Marshal((*plain)(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}
	merged := make(map[string]any, len(e.Extra)+9)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
