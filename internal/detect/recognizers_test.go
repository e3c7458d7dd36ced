package detect

import (
	"testing"
)

func analyzeAll(t *testing.T, r Recognizer, text string) []Finding {
	t.Helper()
	findings, err := r.Analyze(text, nil, false)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	return findings
}

func TestPhoneRecognizer(t *testing.T) {
	r := NewPhoneRecognizer()

	t.Run("ParenthesizedAreaCode", func(t *testing.T) {
		findings := analyzeAll(t, r, "Reach me at (555) 123-4567 tomorrow")
		if len(findings) == 0 {
			t.Fatal("No findings for parenthesized phone number")
		}
		if findings[0].Text != "(555) 123-4567" {
			t.Errorf("Wrong match: %q", findings[0].Text)
		}
		if findings[0].Score < 0.7 {
			t.Errorf("Score too low: %f", findings[0].Score)
		}
	})

	t.Run("InternationalPrefix", func(t *testing.T) {
		findings := analyzeAll(t, r, "Dial +1-555-123-4567 from abroad")
		if len(findings) == 0 {
			t.Fatal("No findings for international phone number")
		}
	})

	t.Run("ExtensionSuffix", func(t *testing.T) {
		findings := analyzeAll(t, r, "Office line 555-123-4567 ext 42 rings loud")
		found := false
		for _, f := range findings {
			if f.Text == "555-123-4567 ext 42" {
				found = true
			}
		}
		if !found {
			t.Errorf("Extension pattern did not match: %+v", findings)
		}
	})

	t.Run("SevenDigitWithSeparator", func(t *testing.T) {
		findings := analyzeAll(t, r, "dialed 555-1234 yesterday")
		if len(findings) != 1 {
			t.Fatalf("Expected one finding, got %d", len(findings))
		}
		// No context word nearby, base score only
		if findings[0].Score != 0.4 {
			t.Errorf("Expected base score 0.4, got %f", findings[0].Score)
		}
	})

	t.Run("ContextWordBoostsScore", func(t *testing.T) {
		findings := analyzeAll(t, r, "call me at 555-1234")
		if len(findings) != 1 {
			t.Fatalf("Expected one finding, got %d", len(findings))
		}
		want := 0.4 + DefaultContextBoost
		if findings[0].Score != want {
			t.Errorf("Expected boosted score %f, got %f", want, findings[0].Score)
		}
	})

	t.Run("BoostCappedAtOne", func(t *testing.T) {
		findings := analyzeAll(t, r, "phone: (555) 123-4567")
		if len(findings) == 0 {
			t.Fatal("No findings")
		}
		if findings[0].Score > 1.0 {
			t.Errorf("Score exceeds 1.0: %f", findings[0].Score)
		}
	})

	t.Run("PlainDigitRunIgnored", func(t *testing.T) {
		findings := analyzeAll(t, r, "id 5551234567 is not formatted")
		if len(findings) != 0 {
			t.Errorf("Unformatted digit run should not match: %+v", findings)
		}
	})
}

func TestEmailRecognizer(t *testing.T) {
	r := NewEmailRecognizer()

	findings := analyzeAll(t, r, "Send it to john.doe@example.com please")
	if len(findings) != 1 {
		t.Fatalf("Expected one finding, got %d", len(findings))
	}
	if findings[0].Text != "john.doe@example.com" {
		t.Errorf("Wrong match: %q", findings[0].Text)
	}
	if findings[0].EntityType != EntityEmail {
		t.Errorf("Wrong entity type: %s", findings[0].EntityType)
	}
	if findings[0].Start != 11 || findings[0].End != 31 {
		t.Errorf("Wrong offsets: [%d,%d)", findings[0].Start, findings[0].End)
	}
}

func TestCreditCardRecognizer(t *testing.T) {
	r := NewCreditCardRecognizer()

	t.Run("ValidLuhn", func(t *testing.T) {
		findings := analyzeAll(t, r, "Paid with 4111-1111-1111-1111 online")
		if len(findings) != 1 {
			t.Fatalf("Expected one finding, got %d", len(findings))
		}
	})

	t.Run("InvalidLuhnDropped", func(t *testing.T) {
		findings := analyzeAll(t, r, "Sequence 1234-5678-9012-3456 fails verification")
		if len(findings) != 0 {
			t.Errorf("Invalid checksum should be dropped: %+v", findings)
		}
	})

	t.Run("ValidationResultInExplanation", func(t *testing.T) {
		findings, err := r.Analyze("Paid with 4111111111111111 online", nil, true)
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if len(findings) != 1 {
			t.Fatalf("Expected one finding, got %d", len(findings))
		}
		exp := findings[0].Explanation
		if exp == nil {
			t.Fatal("Explanation missing")
		}
		if exp.ValidationResult == nil || !*exp.ValidationResult {
			t.Error("validation_result should be true")
		}
	})
}

func TestSSNRecognizer(t *testing.T) {
	r := NewSSNRecognizer()

	findings := analyzeAll(t, r, "SSN 123-45-6789 on file")
	if len(findings) != 1 {
		t.Fatalf("Expected one finding, got %d", len(findings))
	}
	if findings[0].Text != "123-45-6789" {
		t.Errorf("Wrong match: %q", findings[0].Text)
	}

	// Undashed 9-digit runs are deliberately not detected
	findings = analyzeAll(t, r, "value 123456789 here")
	if len(findings) != 0 {
		t.Errorf("Undashed digits should not match: %+v", findings)
	}
}

func TestIPRecognizer(t *testing.T) {
	r := NewIPRecognizer()

	t.Run("ValidAddress", func(t *testing.T) {
		findings := analyzeAll(t, r, "connects to 192.168.1.1 on boot")
		if len(findings) != 1 {
			t.Fatalf("Expected one finding, got %d", len(findings))
		}
	})

	t.Run("OutOfRangeOctetDropped", func(t *testing.T) {
		findings := analyzeAll(t, r, "bogus 999.999.999.999 value")
		if len(findings) != 0 {
			t.Errorf("Out-of-range octets should be dropped: %+v", findings)
		}
	})
}

func TestURLRecognizer(t *testing.T) {
	r := NewURLRecognizer()

	findings := analyzeAll(t, r, "docs at https://example.com/guide and more")
	if len(findings) != 1 {
		t.Fatalf("Expected one finding, got %d", len(findings))
	}
	if findings[0].Text != "https://example.com/guide" {
		t.Errorf("Wrong match: %q", findings[0].Text)
	}
}

func TestIBANRecognizer(t *testing.T) {
	r := NewIBANRecognizer()

	t.Run("ValidChecksum", func(t *testing.T) {
		findings := analyzeAll(t, r, "wire to GB82WEST12345698765432 today")
		if len(findings) != 1 {
			t.Fatalf("Expected one finding, got %d", len(findings))
		}
	})

	t.Run("InvalidChecksumDropped", func(t *testing.T) {
		findings := analyzeAll(t, r, "wire to GB99WEST12345698765432 today")
		if len(findings) != 0 {
			t.Errorf("Invalid checksum should be dropped: %+v", findings)
		}
	})
}

func TestEntityFilterSkipsRecognizer(t *testing.T) {
	r := NewEmailRecognizer()
	findings, err := r.Analyze("mail john@example.com", map[string]bool{EntityPhone: true}, false)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("Recognizer should be skipped when its entity is not requested: %+v", findings)
	}
}

func TestLuhnValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"4111111111111111", true},
		{"4111-1111-1111-1111", true},
		{"5500000000000004", true},
		{"1234567890123456", false},
		{"123", false},
	}
	for _, c := range cases {
		if got := luhnValid(c.in); got != c.want {
			t.Errorf("luhnValid(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestIBANChecksum(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"GB82WEST12345698765432", true},
		{"DE89370400440532013000", true},
		{"GB82WEST12345698765431", false},
		{"XX00", false},
	}
	for _, c := range cases {
		if got := ibanValid(c.in); got != c.want {
			t.Errorf("ibanValid(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
