package detect

import "go.uber.org/zap"

// ModelSpan is one entity span produced by the NER model backend.
type ModelSpan struct {
	Entity string
	Start  int
	End    int
	Score  float64
}

// ModelBackend is a pluggable named-entity recognition engine. The default
// build has no backend (NewModelBackend returns nil); compiling with the
// 'onnx' build tag enables the ONNX Runtime implementation.
type ModelBackend interface {
	// Spans runs inference over the text and returns entity spans.
	Spans(text string) ([]ModelSpan, error)
	// IsReady returns whether the backend is initialized and ready.
	IsReady() bool
	// Close releases any native resources.
	Close() error
}

// NERRecognizer adapts a ModelBackend to the Recognizer interface, covering
// the entity types pattern rules cannot express.
type NERRecognizer struct {
	backend ModelBackend
	logger  *zap.Logger
}

// NewNERRecognizer returns a model-backed recognizer, or nil when the
// current build has no model backend or the model failed to load.
func NewNERRecognizer(modelPath string, logger *zap.Logger) *NERRecognizer {
	backend := NewModelBackend(logger, modelPath)
	if backend == nil || !backend.IsReady() {
		logger.Info("NER model backend unavailable, model-backed entities disabled")
		return nil
	}
	return &NERRecognizer{backend: backend, logger: logger}
}

func (r *NERRecognizer) Name() string { return "NERRecognizer" }

func (r *NERRecognizer) Entities() []string {
	return []string{EntityPerson, EntityLocation, EntityDateTime}
}

func (r *NERRecognizer) Analyze(text string, entities map[string]bool, withExplanation bool) ([]Finding, error) {
	wanted := false
	for _, e := range r.Entities() {
		if entities == nil || entities[e] {
			wanted = true
			break
		}
	}
	if !wanted {
		return nil, nil
	}

	spans, err := r.backend.Spans(text)
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, s := range spans {
		if entities != nil && !entities[s.Entity] {
			continue
		}
		f := Finding{
			EntityType: s.Entity,
			Text:       text[s.Start:s.End],
			Start:      s.Start,
			End:        s.End,
			Score:      s.Score,
		}
		if withExplanation {
			f.Explanation = AssembleExplanation(map[string]any{
				"recognizer":     r.Name(),
				"original_score": s.Score,
				"textual_explanation": "Identified as " + s.Entity +
					" by " + r.Name(),
			})
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// Close releases the model backend.
func (r *NERRecognizer) Close() error { return r.backend.Close() }
