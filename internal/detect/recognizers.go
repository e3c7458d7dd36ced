package detect

import "strings"

// Built-in pattern recognizers for structurally detectable PII. The phone
// rules are deliberately conflict-minimized: every pattern targets a
// structurally distinct phone format instead of a generic digit run, so they
// do not fire on credit cards, IBANs or crypto addresses.

// NewPhoneRecognizer detects phone numbers in five distinct formats:
// parenthesized area code, international plus-prefixed, extension suffix,
// toll-free alpha, and 7-digit with a required separator.
func NewPhoneRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "PhoneRecognizer",
		Entity: EntityPhone,
		Patterns: []Pattern{
			MustPattern("phone_with_parens",
				`\(\d{3}\)[-\s.]?\d{3}[-\s.]?\d{4}`, 0.7),
			MustPattern("phone_with_plus_prefix",
				`\+\d{1,3}[-\s.]?\(?\d{1,4}\)?[-\s.]?\d{1,4}[-\s.]?\d{1,9}`, 0.7),
			MustPattern("phone_with_extension",
				`\(?\d{3}\)?[-\s.]?\d{3}[-\s.]?\d{4}[-\s]?(?:x|ext\.?|extension)[-\s]?\d{1,5}`, 0.7),
			MustPattern("phone_tollfree_alpha",
				`\b1[-\s.]?(?:800|888|877|866)[-\s.]?[A-Z]{3,7}\b`, 0.6),
			MustPattern("phone_simple_seven_digit",
				`\b\d{3}[-.]\d{4}\b`, 0.4),
		},
		Context: []string{
			"phone", "telephone", "cell", "mobile", "fax", "call",
			"number", "contact", "cellphone", "tel", "tel.", "tel:",
			"phone:", "mobile:", "cell:", "fax:", "ph", "ph.", "ph:",
			"mob", "mob.", "mob:",
		},
	})
}

// NewEmailRecognizer detects email addresses.
func NewEmailRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "EmailRecognizer",
		Entity: EntityEmail,
		Patterns: []Pattern{
			MustPattern("email_address",
				`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, 0.85),
		},
		Context: []string{"email", "e-mail", "mail", "contact"},
	})
}

// NewCreditCardRecognizer detects 16-digit card numbers and validates them
// with the Luhn checksum; matches failing the checksum are dropped.
func NewCreditCardRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "CreditCardRecognizer",
		Entity: EntityCreditCard,
		Patterns: []Pattern{
			MustPattern("credit_card",
				`\b(?:\d{4}[-\s]?){3}\d{4}\b`, 0.8),
		},
		Context:  []string{"credit", "card", "visa", "mastercard", "amex", "cc", "payment"},
		Validate: luhnValid,
	})
}

// NewSSNRecognizer detects dash-separated US social security numbers. Plain
// 9-digit runs are excluded to avoid colliding with other numeric formats.
func NewSSNRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "SSNRecognizer",
		Entity: EntitySSN,
		Patterns: []Pattern{
			MustPattern("ssn_dashed", `\b\d{3}-\d{2}-\d{4}\b`, 0.85),
		},
		Context: []string{"ssn", "social", "security", "social security"},
	})
}

// NewIPRecognizer detects IPv4 addresses, validating octet ranges.
func NewIPRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "IPRecognizer",
		Entity: EntityIP,
		Patterns: []Pattern{
			MustPattern("ipv4", `\b(?:\d{1,3}\.){3}\d{1,3}\b`, 0.6),
		},
		Context:  []string{"ip", "ipv4", "address", "host", "server"},
		Validate: ipv4Valid,
	})
}

// NewURLRecognizer detects http(s) URLs.
func NewURLRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "URLRecognizer",
		Entity: EntityURL,
		Patterns: []Pattern{
			MustPattern("url", `\bhttps?://[^\s<>"'\)\]]+`, 0.6),
		},
	})
}

// NewIBANRecognizer detects IBANs and validates the mod-97 checksum;
// matches failing the checksum are dropped.
func NewIBANRecognizer() *PatternRecognizer {
	return NewPatternRecognizer(PatternRecognizerConfig{
		Name:   "IBANRecognizer",
		Entity: EntityIBAN,
		Patterns: []Pattern{
			MustPattern("iban", `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`, 0.5),
		},
		Context:  []string{"iban", "account", "bank", "transfer"},
		Validate: ibanValid,
	})
}

// luhnValid reports whether the digits of s satisfy the Luhn checksum.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 12 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ipv4Valid reports whether every octet of a dotted quad is in range.
func ipv4Valid(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) > 1 && p[0] == '0' {
			return false
		}
		n := 0
		for _, r := range p {
			n = n*10 + int(r-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

// ibanValid checks the ISO 13616 mod-97 checksum.
func ibanValid(s string) bool {
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	rearranged := s[4:] + s[:4]
	rem := 0
	for _, r := range rearranged {
		var v int
		switch {
		case r >= '0' && r <= '9':
			v = int(r - '0')
		case r >= 'A' && r <= 'Z':
			v = int(r-'A') + 10
		default:
			return false
		}
		if v > 9 {
			rem = (rem*100 + v) % 97
		} else {
			rem = (rem*10 + v) % 97
		}
	}
	return rem == 1
}
