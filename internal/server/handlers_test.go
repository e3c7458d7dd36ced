package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/2bv/prime-anonymizer/internal/anonymizer"
	"github.com/2bv/prime-anonymizer/internal/config"
	"github.com/2bv/prime-anonymizer/internal/detect"
	"github.com/2bv/prime-anonymizer/internal/logger"
)

func testServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.WebSocket.Enabled = false
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	log := &logger.Logger{Logger: zap.NewNop()}
	registry := detect.NewDefaultRegistry("", zap.NewNop())
	engine := anonymizer.New(registry, zap.NewNop())

	srv, err := New(cfg, log, engine)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleAnonymize(t *testing.T) {
	srv := testServer(t, nil)

	t.Run("ReplacesDetectedValues", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize",
			`{"contact":"john@example.com","id":7}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
		}
		body := rec.Body.String()
		if body != `{"contact":"<EMAIL_ADDRESS_1>","id":7}` {
			t.Errorf("Unexpected body: %s", body)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	})

	t.Run("KeyOrderPreserved", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize",
			`{"zebra":1,"apple":2,"mango":3}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d", rec.Code)
		}
		if rec.Body.String() != `{"zebra":1,"apple":2,"mango":3}` {
			t.Errorf("Key order changed: %s", rec.Body.String())
		}
	})

	t.Run("HashStrategy", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize?strategy=hash",
			`{"contact":"john@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
		}
		sum := sha256.Sum256([]byte("john@example.com"))
		want := fmt.Sprintf(`{"contact":"<EMAIL_ADDRESS_%s>"}`, hex.EncodeToString(sum[:])[:8])
		if rec.Body.String() != want {
			t.Errorf("Body = %s, want %s", rec.Body.String(), want)
		}
	})

	t.Run("InvalidStrategy", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize?strategy=scramble", `{"a":"b"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("EntitiesFilter", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize?entities=email_address",
			`{"mail":"john@example.com","ssn":"123-45-6789"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
		}
		body := rec.Body.String()
		if !strings.Contains(body, "<EMAIL_ADDRESS_1>") {
			t.Errorf("Email not anonymized: %s", body)
		}
		if !strings.Contains(body, "123-45-6789") {
			t.Errorf("Unrequested entity type was anonymized: %s", body)
		}
	})

	t.Run("InvalidEntities", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize?entities=NOT_REAL", `{"a":"b"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Error body is not JSON: %s", rec.Body.String())
		}
		if !strings.Contains(resp.Detail, "NOT_REAL") {
			t.Errorf("Detail should name the bad entity: %q", resp.Detail)
		}
	})

	t.Run("EmptyBody", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize", `{"a":`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleAnalyze(t *testing.T) {
	srv := testServer(t, nil)

	t.Run("ReturnsFindings", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/analyze",
			`{"text":"mail john@example.com please"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp AnalyzeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Findings) != 1 {
			t.Fatalf("Expected one finding: %+v", resp.Findings)
		}
		if resp.Findings[0].EntityType != detect.EntityEmail {
			t.Errorf("Wrong entity type: %s", resp.Findings[0].EntityType)
		}
		if resp.Summary[detect.EntityEmail] != 1 {
			t.Errorf("Wrong summary: %v", resp.Summary)
		}
		if resp.Findings[0].Explanation != nil {
			t.Error("Explanation should be absent unless requested")
		}
	})

	t.Run("DecisionProcess", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/analyze",
			`{"text":"mail john@example.com","return_decision_process":true}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "textual_explanation") {
			t.Errorf("Explanation missing: %s", rec.Body.String())
		}
	})

	t.Run("DenyAndAllowLists", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/analyze",
			`{"text":"Zeus mailed ok@example.com","deny_list":["Zeus"],"allow_list":["ok@example.com"]}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d", rec.Code)
		}
		var resp AnalyzeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Findings) != 1 || resp.Findings[0].EntityType != detect.EntityGeneric {
			t.Errorf("Expected a single GENERIC_PII finding: %+v", resp.Findings)
		}
	})

	t.Run("MissingText", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/analyze", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleAnonymizeAdvanced(t *testing.T) {
	srv := testServer(t, nil)

	t.Run("DefaultReplace", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"mail john@example.com"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp AnonymizeAdvancedResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.AnonymizedText != "mail <EMAIL_ADDRESS_1>" {
			t.Errorf("Unexpected text: %q", resp.AnonymizedText)
		}
		if resp.Operator != "replace" {
			t.Errorf("Operator = %q", resp.Operator)
		}
		if resp.OriginalText != "mail john@example.com" {
			t.Errorf("Original text lost: %q", resp.OriginalText)
		}
	})

	t.Run("MaskOperator", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"mail john@example.com","operator":"mask","mask_char":"#","number_of_chars":4}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp AnonymizeAdvancedResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.AnonymizedText != "mail ####" {
			t.Errorf("Unexpected text: %q", resp.AnonymizedText)
		}
	})

	t.Run("InvalidOperator", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"x","operator":"scramble"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("EncryptNeedsKey", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"mail john@example.com","operator":"encrypt"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("MaskCharTooLong", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"x","operator":"mask","mask_char":"##"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("NegativeMaskChars", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"x","operator":"mask","number_of_chars":-2}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want 400", rec.Code)
		}
	})

	t.Run("HighlightReturnsOriginal", func(t *testing.T) {
		rec := doRequest(t, srv, "POST", "/anonymize-advanced",
			`{"text":"mail john@example.com","operator":"highlight"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Status = %d", rec.Code)
		}
		var resp AnonymizeAdvancedResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.AnonymizedText != resp.OriginalText {
			t.Errorf("Highlight must not modify text: %q", resp.AnonymizedText)
		}
		if len(resp.Findings) != 1 {
			t.Errorf("Findings should still be reported: %+v", resp.Findings)
		}
	})
}

func TestHandleAnnotate(t *testing.T) {
	srv := testServer(t, nil)

	rec := doRequest(t, srv, "POST", "/annotate",
		`{"text":"mail john@example.com please"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp AnnotateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Annotations) != 3 {
		t.Fatalf("Expected three segments: %+v", resp.Annotations)
	}
	if resp.Annotations[1].EntityType != detect.EntityEmail {
		t.Errorf("Middle segment should be labeled: %+v", resp.Annotations[1])
	}

	var rebuilt strings.Builder
	for _, seg := range resp.Annotations {
		rebuilt.WriteString(seg.Text)
	}
	if rebuilt.String() != "mail john@example.com please" {
		t.Errorf("Segments do not reassemble the text: %q", rebuilt.String())
	}
}

func TestHandleEntities(t *testing.T) {
	srv := testServer(t, nil)

	rec := doRequest(t, srv, "GET", "/entities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	var resp EntitiesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != len(resp.Entities) || resp.Count == 0 {
		t.Errorf("Bad entity list: %+v", resp)
	}
	found := false
	for _, e := range resp.Entities {
		if e == detect.EntityGeneric {
			found = true
		}
	}
	if !found {
		t.Error("GENERIC_PII should be listed")
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t, nil)

	rec := doRequest(t, srv, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("Unexpected health body: %s", rec.Body.String())
	}
}

func TestRateLimiting(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 0.001
		cfg.RateLimit.Burst = 1
	})

	first := doRequest(t, srv, "POST", "/analyze", `{"text":"hello"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("First request should pass: %d", first.Code)
	}

	second := doRequest(t, srv, "POST", "/analyze", `{"text":"hello"}`)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Second request should be limited: %d", second.Code)
	}

	// Health stays reachable regardless of the limiter
	health := doRequest(t, srv, "GET", "/health", "")
	if health.Code != http.StatusOK {
		t.Errorf("Health should bypass rate limiting: %d", health.Code)
	}
}

func TestPayloadLimit(t *testing.T) {
	srv := testServer(t, func(cfg *config.Config) {
		cfg.Server.MaxPayloadBytes = 32
	})

	big := `{"text":"` + strings.Repeat("a", 64) + `"}`
	rec := doRequest(t, srv, "POST", "/analyze", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Status = %d, want 413", rec.Code)
	}
}
