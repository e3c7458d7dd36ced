package anonymizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/2bv/prime-anonymizer/internal/detect"
)

// Walker errors.
var (
	ErrUnsupportedType = errors.New("unsupported value type in structure")
	ErrDepthExceeded   = errors.New("maximum recursion depth exceeded")
)

// MaxDepth bounds structure recursion as a defensive guard; payload size is
// already limited at the HTTP boundary.
const MaxDepth = 1000

// Strategy selects how structure anonymization derives tokens. Structural
// anonymization always uses token substitution (never mask/redact/encrypt)
// so repeated values stay referentially consistent across fields; the
// strategy only chooses between counter tokens and hash tokens.
type Strategy string

// Supported structure strategies.
const (
	StrategyReplace Strategy = "replace"
	StrategyHash    Strategy = "hash"
)

// FindingCache is an optional cross-request cache of detection results,
// keyed by a fingerprint of (text, options). Detection is a pure function
// of its inputs, so caching findings is safe; replacement tokens are still
// assigned per request from the request's own TokenCache.
type FindingCache interface {
	Get(ctx context.Context, key string) ([]detect.Finding, bool)
	Set(ctx context.Context, key string, findings []detect.Finding)
}

// Engine ties the recognizer registry, token cache and operators together.
// It holds no per-request state: every Anonymize* call allocates its own
// cache and finding list, so concurrent requests stay fully isolated.
type Engine struct {
	registry *detect.Registry
	cache    FindingCache
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFindingCache attaches a detection-result cache.
func WithFindingCache(cache FindingCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// New creates an anonymization engine over the given registry.
func New(registry *detect.Registry, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the engine's recognizer registry.
func (e *Engine) Registry() *detect.Registry { return e.registry }

// TextResult is the outcome of anonymizing one free-text input.
type TextResult struct {
	AnonymizedText string
	Findings       []detect.Finding
	Summary        map[string]int
}

// StructureResult is the outcome of anonymizing one JSON document.
type StructureResult struct {
	Value    any
	Findings []detect.Finding
	Summary  map[string]int
}

// Segment is one annotated slice of a text; EntityType is empty for
// non-PII segments.
type Segment struct {
	Text       string `json:"text"`
	EntityType string `json:"entity_type,omitempty"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// AnonymizeText detects PII in text and applies the requested operator.
// The full operator set is honored here, unlike the structure path.
func (e *Engine) AnonymizeText(ctx context.Context, text string, opts detect.Options, spec OperatorSpec) (*TextResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	findings, err := e.analyze(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	cache := NewTokenCache()
	anonymized, err := applyOperator(text, findings, spec, cache)
	if err != nil {
		return nil, err
	}

	return &TextResult{
		AnonymizedText: anonymized,
		Findings:       findings,
		Summary:        Summarize(findings),
	}, nil
}

// AnonymizeStructure walks a JSON-like value and anonymizes every string
// leaf, sharing one token cache and one finding list across the whole call
// so identical values anywhere in the structure map to identical tokens.
// Non-string scalars pass through untouched; object keys are never
// inspected; the result is isomorphic to the input.
func (e *Engine) AnonymizeStructure(ctx context.Context, value any, opts detect.Options, strategy Strategy) (*StructureResult, error) {
	spec := OperatorSpec{Kind: OperatorReplace}
	if strategy == StrategyHash {
		spec.Kind = OperatorHash
	}

	w := &walker{engine: e, ctx: ctx, opts: opts, spec: spec, cache: NewTokenCache()}
	anonymized, err := w.walk(value, 0)
	if err != nil {
		return nil, err
	}

	if len(w.findings) > 0 {
		e.logger.Debug("Structure anonymized",
			zap.Int("findings", len(w.findings)),
			zap.Int("distinct_values", w.cache.Len()),
		)
	}
	return &StructureResult{
		Value:    anonymized,
		Findings: w.findings,
		Summary:  Summarize(w.findings),
	}, nil
}

// Analyze runs detection only; the text is never modified. Callers get the
// same findings the anonymization paths act on.
func (e *Engine) Analyze(ctx context.Context, text string, opts detect.Options) ([]detect.Finding, error) {
	return e.analyze(ctx, text, opts)
}

// Annotate splits text into labeled segments for client-side highlighting.
// The text itself is never mutated. The findings that produced the segments
// are returned alongside, including any overlapped ones no segment covers.
func (e *Engine) Annotate(ctx context.Context, text string, opts detect.Options) ([]Segment, []detect.Finding, error) {
	findings, err := e.analyze(ctx, text, opts)
	if err != nil {
		return nil, nil, err
	}
	if len(findings) == 0 {
		return []Segment{{Text: text, Start: 0, End: len(text)}}, nil, nil
	}

	var segments []Segment
	pos := 0
	for _, f := range findings {
		if f.Start < pos {
			// Overlapping finding of another type; already covered.
			continue
		}
		if f.Start > pos {
			segments = append(segments, Segment{Text: text[pos:f.Start], Start: pos, End: f.Start})
		}
		segments = append(segments, Segment{Text: text[f.Start:f.End], EntityType: f.EntityType, Start: f.Start, End: f.End})
		pos = f.End
	}
	if pos < len(text) {
		segments = append(segments, Segment{Text: text[pos:], Start: pos, End: len(text)})
	}
	return segments, findings, nil
}

// analyze runs detection, consulting the finding cache when configured.
func (e *Engine) analyze(ctx context.Context, text string, opts detect.Options) ([]detect.Finding, error) {
	if e.cache == nil {
		return e.registry.Analyze(text, opts)
	}

	key := fingerprint(text, opts)
	if findings, ok := e.cache.Get(ctx, key); ok {
		return findings, nil
	}
	findings, err := e.registry.Analyze(text, opts)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, findings)
	return findings, nil
}

// walker carries the per-call state of one AnonymizeStructure invocation.
type walker struct {
	engine   *Engine
	ctx      context.Context
	opts     detect.Options
	spec     OperatorSpec
	cache    *TokenCache
	findings []detect.Finding
}

func (w *walker) walk(value any, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrDepthExceeded, depth)
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool, float64, int, int64, json.Number:
		return v, nil
	case string:
		return w.anonymizeLeaf(v)
	case *Object:
		out := &Object{Members: make([]Member, 0, len(v.Members))}
		for _, m := range v.Members {
			// Keys are never inspected for PII; only values recurse.
			walked, err := w.walk(m.Value, depth+1)
			if err != nil {
				return nil, err
			}
			out.Members = append(out.Members, Member{Key: m.Key, Value: walked})
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			walked, err := w.walk(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = walked
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			walked, err := w.walk(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = walked
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, value)
	}
}

// anonymizeLeaf runs detection and token substitution on one string leaf,
// accumulating findings into the shared call-wide list.
func (w *walker) anonymizeLeaf(text string) (string, error) {
	findings, err := w.engine.analyze(w.ctx, text, w.opts)
	if err != nil {
		return "", err
	}
	if len(findings) == 0 {
		return text, nil
	}
	w.findings = append(w.findings, findings...)
	return applyOperator(text, findings, w.spec, w.cache)
}

// fingerprint derives a stable cache key from the text and every option
// that can change detection output.
func fingerprint(text string, opts detect.Options) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	for _, part := range [][]string{opts.Entities, opts.AllowList, opts.DenyList} {
		sorted := append([]string(nil), part...)
		sort.Strings(sorted)
		h.Write([]byte(strings.Join(sorted, ",")))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%.4f|%t", opts.ScoreThreshold, opts.ReturnExplanation)
	return hex.EncodeToString(h.Sum(nil))
}

// Summarize counts findings by entity type.
func Summarize(findings []detect.Finding) map[string]int {
	summary := make(map[string]int)
	for _, f := range findings {
		summary[f.EntityType]++
	}
	return summary
}
