//go:build onnx
// +build onnx

package detect

import (
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Label order of the token-classification head. The model is expected to
// emit one logit row per token in this tag order.
var nerLabels = []string{"O", EntityPerson, EntityLocation, EntityDateTime}

const nerMaxTokens = 256

// OnnxBackend implements ModelBackend using ONNX Runtime
// (via yalue/onnxruntime_go). Requires build tag 'onnx'.
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewModelBackend initializes the ONNX Runtime NER backend.
func NewModelBackend(logger *zap.Logger, modelPath string) ModelBackend {
	if modelPath == "" {
		return nil
	}
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		logger.Error("ONNX Runtime environment init failed", zap.Error(err))
		return nil
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	preferredInputs := []string{"input_ids", "attention_mask"}
	available := map[string]bool{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = true
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if available[name] {
			inputNames = append(inputNames, name)
		}
	}
	if len(inputNames) == 0 && len(inputsInfo) > 0 {
		sorted := make([]string, 0, len(inputsInfo))
		for _, ii := range inputsInfo {
			sorted = append(sorted, ii.Name)
		}
		sort.Strings(sorted)
		inputNames = sorted
	}

	if len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no outputs", zap.String("model", modelPath))
		return nil
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX NER backend ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
	)
	return &OnnxBackend{session: sess, inputNames: inputNames, outputName: outputName, logger: logger, ready: true}
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// token is a word-level token with its byte offsets in the source text.
type token struct {
	start, end int
}

// Spans runs token classification over the text and merges consecutive
// same-label tokens into entity spans.
func (b *OnnxBackend) Spans(text string) ([]ModelSpan, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("onnx backend not ready")
	}

	tokens := wordTokens(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) > nerMaxTokens {
		tokens = tokens[:nerMaxTokens]
	}
	seqLen := len(tokens)

	inputIDs := make([]int64, seqLen)
	attention := make([]int64, seqLen)
	for i, t := range tokens {
		inputIDs[i] = hashTokenID(strings.ToLower(text[t.start:t.end]))
		attention[i] = 1
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attention)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inputs := []ort.Value{idsTensor}
	if len(b.inputNames) > 1 {
		inputs = append(inputs, maskTensor)
	}
	outputs := make([]ort.Value, 1)

	b.mu.RLock()
	err = b.session.Run(inputs, outputs)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	defer out.Destroy()

	logits := out.GetData()
	if len(logits) < seqLen*len(nerLabels) {
		return nil, fmt.Errorf("output shape mismatch: got %d values for %d tokens", len(logits), seqLen)
	}

	return mergeSpans(tokens, logits), nil
}

// mergeSpans argmaxes each token's logits and joins runs of the same
// non-O label into one span.
func mergeSpans(tokens []token, logits []float32) []ModelSpan {
	var spans []ModelSpan
	current := -1
	var label string
	var scoreSum float64
	var count int

	flush := func(endIdx int) {
		if current >= 0 {
			spans = append(spans, ModelSpan{
				Entity: label,
				Start:  tokens[current].start,
				End:    tokens[endIdx].end,
				Score:  scoreSum / float64(count),
			})
		}
		current, scoreSum, count = -1, 0, 0
	}

	for i := range tokens {
		row := logits[i*len(nerLabels) : (i+1)*len(nerLabels)]
		best, prob := argmaxSoftmax(row)
		tag := nerLabels[best]
		if tag == "O" {
			flush(i - 1)
			continue
		}
		if current >= 0 && tag == label {
			scoreSum += prob
			count++
			continue
		}
		flush(i - 1)
		current, label, scoreSum, count = i, tag, prob, 1
	}
	flush(len(tokens) - 1)
	return spans
}

func argmaxSoftmax(row []float32) (int, float64) {
	best := 0
	for i := range row {
		if row[i] > row[best] {
			best = i
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - row[best]))
	}
	return best, 1.0 / sum
}

// wordTokens splits text into letter/digit runs with byte offsets.
func wordTokens(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, token{start, i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start, len(text)})
	}
	return tokens
}

// hashTokenID maps a token to a stable vocabulary bucket.
func hashTokenID(word string) int64 {
	h := fnv.New32a()
	h.Write([]byte(word))
	return int64(h.Sum32() % 30522)
}
