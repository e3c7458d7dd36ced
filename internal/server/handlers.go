package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/2bv/prime-anonymizer/internal/anonymizer"
	"github.com/2bv/prime-anonymizer/internal/detect"
)

// handleAnonymize anonymizes an arbitrary JSON payload. Every string leaf is
// scanned; detected values become deterministic tokens. The response body is
// the anonymized document, isomorphic to the input with key order preserved.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	state := stateFrom(r.Context())

	strategy := anonymizer.StrategyReplace
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		strategy = anonymizer.Strategy(raw)
		if strategy != anonymizer.StrategyReplace && strategy != anonymizer.StrategyHash {
			writeError(w, http.StatusBadRequest, "Invalid strategy. Must be 'replace' or 'hash'")
			return
		}
	}

	entities, err := s.parseEntitiesParam(r.URL.Query().Get("entities"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isPayloadTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request payload too large")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	doc, err := anonymizer.DecodeDocument(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	opts := detect.Options{Entities: entities}
	result, err := s.engine.AnonymizeStructure(r.Context(), doc, opts, strategy)
	if err != nil {
		s.writeEngineError(w, state, err)
		return
	}

	state.PIITotal = len(result.Findings)
	state.ByType = result.Summary

	encoded, err := anonymizer.EncodeDocument(result.Value)
	if err != nil {
		s.logger.Error("Failed to encode anonymized document",
			zap.String("request_id", state.RequestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Anonymization processing failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(encoded)
}

// handleAnalyze detects PII without modifying the text
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	state := stateFrom(r.Context())

	var req AnalyzeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	opts := detect.Options{
		Entities:          req.Entities,
		ScoreThreshold:    req.ScoreThreshold,
		AllowList:         req.AllowList,
		DenyList:          req.DenyList,
		ReturnExplanation: req.ReturnDecisionProcess,
	}

	findings, err := s.engine.Analyze(r.Context(), req.Text, opts)
	if err != nil {
		s.writeEngineError(w, state, err)
		return
	}

	state.PIITotal = len(findings)
	state.ByType = anonymizer.Summarize(findings)

	writeJSON(w, http.StatusOK, AnalyzeResponse{
		Text:     req.Text,
		Findings: roundScores(findings),
		Summary:  state.ByType,
	})
}

// handleAnonymizeAdvanced anonymizes free text with a selectable operator
func (s *Server) handleAnonymizeAdvanced(w http.ResponseWriter, r *http.Request) {
	state := stateFrom(r.Context())

	var req AnonymizeAdvancedRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	spec, err := operatorSpecFrom(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := detect.Options{
		Entities:       req.Entities,
		ScoreThreshold: req.ScoreThreshold,
		AllowList:      req.AllowList,
		DenyList:       req.DenyList,
	}

	result, err := s.engine.AnonymizeText(r.Context(), req.Text, opts, spec)
	if err != nil {
		s.writeEngineError(w, state, err)
		return
	}

	state.PIITotal = len(result.Findings)
	state.ByType = result.Summary

	writeJSON(w, http.StatusOK, AnonymizeAdvancedResponse{
		OriginalText:   req.Text,
		AnonymizedText: result.AnonymizedText,
		Operator:       string(spec.Kind),
		Findings:       roundScores(result.Findings),
		Summary:        result.Summary,
	})
}

// handleAnnotate splits text into labeled segments for highlighting
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	state := stateFrom(r.Context())

	var req AnalyzeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	opts := detect.Options{
		Entities:       req.Entities,
		ScoreThreshold: req.ScoreThreshold,
		AllowList:      req.AllowList,
		DenyList:       req.DenyList,
	}

	segments, findings, err := s.engine.Annotate(r.Context(), req.Text, opts)
	if err != nil {
		s.writeEngineError(w, state, err)
		return
	}

	state.PIITotal = len(findings)
	state.ByType = anonymizer.Summarize(findings)

	writeJSON(w, http.StatusOK, AnnotateResponse{
		Text:        req.Text,
		Annotations: segments,
		Summary:     state.ByType,
	})
}

// handleEntities lists the entity types the registry can detect
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.engine.Registry().Entities()
	writeJSON(w, http.StatusOK, EntitiesResponse{
		Entities: entities,
		Count:    len(entities),
	})
}

// parseEntitiesParam parses the comma-separated entities query parameter and
// validates every name against the registry
func (s *Server) parseEntitiesParam(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}

	var entities []string
	var invalid []string
	for _, part := range strings.Split(raw, ",") {
		entity := strings.ToUpper(strings.TrimSpace(part))
		if entity == "" {
			continue
		}
		if !s.engine.Registry().Supports(entity) {
			invalid = append(invalid, entity)
			continue
		}
		entities = append(entities, entity)
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("Invalid entities: %s", strings.Join(invalid, ", "))
	}
	return entities, nil
}

// operatorSpecFrom builds an operator spec from request fields, applying the
// documented defaults
func operatorSpecFrom(req AnonymizeAdvancedRequest) (anonymizer.OperatorSpec, error) {
	spec := anonymizer.DefaultOperatorSpec()

	if req.Operator != "" {
		spec.Kind = anonymizer.Operator(req.Operator)
	}
	if req.MaskChar != "" {
		runes := []rune(req.MaskChar)
		if len(runes) != 1 {
			return spec, errors.New("mask_char must be a single character")
		}
		spec.MaskChar = runes[0]
	}
	if req.NumberOfChars != nil {
		spec.NumberOfChars = *req.NumberOfChars
	}
	if req.EncryptKey != "" {
		spec.EncryptKey = []byte(req.EncryptKey)
	}

	return spec, nil
}

// decodeRequest parses a JSON request body into dst, writing the error
// response itself on failure
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if isPayloadTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request payload too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return false
	}
	return true
}

// writeEngineError maps engine errors to HTTP status codes. Client mistakes
// (bad operators, unsupported structures) become 400s; everything else is a
// 500 with the detail kept out of the response body.
func (s *Server) writeEngineError(w http.ResponseWriter, state *requestState, err error) {
	state.ErrorMsg = err.Error()

	switch {
	case errors.Is(err, anonymizer.ErrInvalidOperator),
		errors.Is(err, anonymizer.ErrInvalidOperatorParams),
		errors.Is(err, anonymizer.ErrMissingKey),
		errors.Is(err, anonymizer.ErrUnsupportedType),
		errors.Is(err, anonymizer.ErrDepthExceeded):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Anonymization failed",
			zap.String("request_id", state.RequestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Anonymization processing failed")
	}
}

// roundScores trims finding scores to three decimals for API responses
func roundScores(findings []detect.Finding) []detect.Finding {
	out := make([]detect.Finding, len(findings))
	for i, f := range findings {
		f.Score = math.Round(f.Score*1000) / 1000
		if f.Explanation != nil {
			rounded := *f.Explanation
			f.Explanation = &rounded
		}
		out[i] = f
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
