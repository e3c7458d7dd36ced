package anonymizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/2bv/prime-anonymizer/internal/detect"
)

// emailFinding builds a finding over the single occurrence of value in text.
func emailFinding(t *testing.T, text, value string) detect.Finding {
	t.Helper()
	start := strings.Index(text, value)
	if start < 0 {
		t.Fatalf("%q not in %q", value, text)
	}
	return detect.Finding{
		EntityType: detect.EntityEmail,
		Text:       value,
		Start:      start,
		End:        start + len(value),
		Score:      0.85,
	}
}

func TestOperatorSpecValidate(t *testing.T) {
	t.Run("UnknownOperator", func(t *testing.T) {
		err := OperatorSpec{Kind: "rot13"}.Validate()
		if !errors.Is(err, ErrInvalidOperator) {
			t.Errorf("Expected ErrInvalidOperator, got %v", err)
		}
	})

	t.Run("NegativeMaskChars", func(t *testing.T) {
		err := OperatorSpec{Kind: OperatorMask, MaskChar: '*', NumberOfChars: -1}.Validate()
		if !errors.Is(err, ErrInvalidOperatorParams) {
			t.Errorf("Expected ErrInvalidOperatorParams, got %v", err)
		}
	})

	t.Run("MaskWithoutChar", func(t *testing.T) {
		err := OperatorSpec{Kind: OperatorMask, NumberOfChars: 4}.Validate()
		if !errors.Is(err, ErrInvalidOperatorParams) {
			t.Errorf("Expected ErrInvalidOperatorParams, got %v", err)
		}
	})

	t.Run("EncryptWithoutKey", func(t *testing.T) {
		err := OperatorSpec{Kind: OperatorEncrypt}.Validate()
		if !errors.Is(err, ErrMissingKey) {
			t.Errorf("Expected ErrMissingKey, got %v", err)
		}
	})

	t.Run("EncryptWrongKeySize", func(t *testing.T) {
		err := OperatorSpec{Kind: OperatorEncrypt, EncryptKey: []byte("short")}.Validate()
		if !errors.Is(err, ErrInvalidOperatorParams) {
			t.Errorf("Expected ErrInvalidOperatorParams, got %v", err)
		}
	})

	t.Run("ValidSpecs", func(t *testing.T) {
		specs := []OperatorSpec{
			{Kind: OperatorRedact},
			{Kind: OperatorReplace},
			{Kind: OperatorMask, MaskChar: '*', NumberOfChars: 4},
			{Kind: OperatorHash},
			{Kind: OperatorEncrypt, EncryptKey: []byte("0123456789abcdef")},
			{Kind: OperatorHighlight},
		}
		for _, spec := range specs {
			if err := spec.Validate(); err != nil {
				t.Errorf("Spec %+v should be valid: %v", spec, err)
			}
		}
	})
}

func TestApplyOperator(t *testing.T) {
	text := "Contact john@example.com now"
	findings := []detect.Finding{emailFinding(t, text, "john@example.com")}

	t.Run("Redact", func(t *testing.T) {
		out, err := applyOperator(text, findings, OperatorSpec{Kind: OperatorRedact}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != "Contact  now" {
			t.Errorf("Redact produced %q", out)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		out, err := applyOperator(text, findings, OperatorSpec{Kind: OperatorReplace}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != "Contact <EMAIL_ADDRESS_1> now" {
			t.Errorf("Replace produced %q", out)
		}
	})

	t.Run("MaskDefaultLength", func(t *testing.T) {
		spec := DefaultOperatorSpec()
		spec.Kind = OperatorMask
		out, err := applyOperator(text, findings, spec, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		want := "Contact " + strings.Repeat("*", DefaultNumberOfChars) + " now"
		if out != want {
			t.Errorf("Mask produced %q, want %q", out, want)
		}
	})

	t.Run("MaskCustomChar", func(t *testing.T) {
		spec := OperatorSpec{Kind: OperatorMask, MaskChar: '#', NumberOfChars: 3}
		out, err := applyOperator(text, findings, spec, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != "Contact ### now" {
			t.Errorf("Mask produced %q", out)
		}
	})

	t.Run("HashDeterministic", func(t *testing.T) {
		first, err := applyOperator(text, findings, OperatorSpec{Kind: OperatorHash}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		second, err := applyOperator(text, findings, OperatorSpec{Kind: OperatorHash}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Errorf("Hash output differs across runs: %q vs %q", first, second)
		}
		if !strings.Contains(first, "<EMAIL_ADDRESS_") {
			t.Errorf("Hash token missing: %q", first)
		}
	})

	t.Run("EncryptRoundTrip", func(t *testing.T) {
		key := []byte("0123456789abcdef")
		out, err := applyOperator(text, findings, OperatorSpec{Kind: OperatorEncrypt, EncryptKey: key}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(out, "john@example.com") {
			t.Errorf("Plaintext survived encryption: %q", out)
		}

		encrypted := strings.TrimSuffix(strings.TrimPrefix(out, "Contact "), " now")
		plain, err := DecryptValue(encrypted, key)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if plain != "john@example.com" {
			t.Errorf("Round trip produced %q", plain)
		}
	})

	t.Run("HighlightLeavesTextUntouched", func(t *testing.T) {
		out, err := applyOperator(text, findings, OperatorSpec{Kind: OperatorHighlight}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != text {
			t.Errorf("Highlight modified text: %q", out)
		}
	})

	t.Run("MultipleFindingsSpliced", func(t *testing.T) {
		multi := "a@x.com and b@x.com and a@x.com"
		findings := []detect.Finding{
			{EntityType: detect.EntityEmail, Text: "a@x.com", Start: 0, End: 7, Score: 0.85},
			{EntityType: detect.EntityEmail, Text: "b@x.com", Start: 12, End: 19, Score: 0.85},
			{EntityType: detect.EntityEmail, Text: "a@x.com", Start: 24, End: 31, Score: 0.85},
		}
		out, err := applyOperator(multi, findings, OperatorSpec{Kind: OperatorReplace}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		// Descending-start splice assigns counters from the last finding
		// backwards, but identical values still share one token.
		if strings.Count(out, "<EMAIL_ADDRESS_") != 3 {
			t.Errorf("Expected three tokens: %q", out)
		}
		parts := strings.Split(out, " and ")
		if len(parts) != 3 || parts[0] != parts[2] {
			t.Errorf("Identical values must share a token: %q", out)
		}
		if parts[0] == parts[1] {
			t.Errorf("Distinct values must not share a token: %q", out)
		}
	})

	t.Run("CrossTypeOverlapNeverCorrupts", func(t *testing.T) {
		// A deny-list finding may straddle a pattern finding of another
		// type; the splice must apply the later-start span and skip the
		// one reaching into the replaced region.
		overlapText := "call 123-4567 now"
		overlapping := []detect.Finding{
			{EntityType: detect.EntityPhone, Text: "123-4567", Start: 5, End: 13, Score: 0.75},
			{EntityType: detect.EntityGeneric, Text: "4567 now", Start: 9, End: 17, Score: 1.0},
		}

		out, err := applyOperator(overlapText, overlapping, OperatorSpec{Kind: OperatorReplace}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != "call 123-<GENERIC_PII_1>" {
			t.Errorf("Replace produced %q", out)
		}

		// Shrinking replacements used to slice past the mutated string.
		out, err = applyOperator(overlapText, overlapping, OperatorSpec{Kind: OperatorRedact}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != "call 123-" {
			t.Errorf("Redact produced %q", out)
		}
	})

	t.Run("EqualStartOverlapKeepsLongerSpan", func(t *testing.T) {
		overlapText := "123-4567 is the line"
		overlapping := []detect.Finding{
			{EntityType: detect.EntityGeneric, Text: "123-4567 is", Start: 0, End: 11, Score: 1.0},
			{EntityType: detect.EntityPhone, Text: "123-4567", Start: 0, End: 8, Score: 0.4},
		}
		out, err := applyOperator(overlapText, overlapping, OperatorSpec{Kind: OperatorReplace}, NewTokenCache())
		if err != nil {
			t.Fatal(err)
		}
		if out != "<GENERIC_PII_1> the line" {
			t.Errorf("Replace produced %q", out)
		}
	})
}
