package server

import (
	"github.com/2bv/prime-anonymizer/internal/anonymizer"
	"github.com/2bv/prime-anonymizer/internal/detect"
)

// AnalyzeRequest is the body of POST /analyze and POST /annotate
type AnalyzeRequest struct {
	Text                  string   `json:"text"`
	Entities              []string `json:"entities,omitempty"`
	ScoreThreshold        float64  `json:"score_threshold,omitempty"`
	AllowList             []string `json:"allow_list,omitempty"`
	DenyList              []string `json:"deny_list,omitempty"`
	ReturnDecisionProcess bool     `json:"return_decision_process,omitempty"`
}

// AnalyzeResponse is the body returned by POST /analyze
type AnalyzeResponse struct {
	Text     string           `json:"text"`
	Findings []detect.Finding `json:"findings"`
	Summary  map[string]int   `json:"summary"`
}

// AnonymizeAdvancedRequest is the body of POST /anonymize-advanced
type AnonymizeAdvancedRequest struct {
	Text           string   `json:"text"`
	Operator       string   `json:"operator,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
	AllowList      []string `json:"allow_list,omitempty"`
	DenyList       []string `json:"deny_list,omitempty"`
	MaskChar       string   `json:"mask_char,omitempty"`
	NumberOfChars  *int     `json:"number_of_chars,omitempty"`
	EncryptKey     string   `json:"encrypt_key,omitempty"`
}

// AnonymizeAdvancedResponse is the body returned by POST /anonymize-advanced
type AnonymizeAdvancedResponse struct {
	OriginalText   string           `json:"original_text"`
	AnonymizedText string           `json:"anonymized_text"`
	Operator       string           `json:"operator"`
	Findings       []detect.Finding `json:"findings"`
	Summary        map[string]int   `json:"summary"`
}

// AnnotateResponse is the body returned by POST /annotate
type AnnotateResponse struct {
	Text        string               `json:"text"`
	Annotations []anonymizer.Segment `json:"annotations"`
	Summary     map[string]int       `json:"summary"`
}

// EntitiesResponse is the body returned by GET /entities
type EntitiesResponse struct {
	Entities []string `json:"entities"`
	Count    int      `json:"count"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Detail string `json:"detail"`
}
