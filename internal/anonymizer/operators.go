package anonymizer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/2bv/prime-anonymizer/internal/detect"
)

// Operator is the transformation applied to each detected span.
type Operator string

// Supported operators.
const (
	OperatorRedact    Operator = "redact"
	OperatorReplace   Operator = "replace"
	OperatorMask      Operator = "mask"
	OperatorHash      Operator = "hash"
	OperatorEncrypt   Operator = "encrypt"
	OperatorHighlight Operator = "highlight"
)

// Operator parameter defaults for the mask operator.
const (
	DefaultMaskChar      = '*'
	DefaultNumberOfChars = 15
)

// EncryptKeySize is the required AES key length in bytes.
const EncryptKeySize = 16

// Operator errors.
var (
	ErrInvalidOperator       = errors.New("invalid operator")
	ErrInvalidOperatorParams = errors.New("invalid operator parameters")
	ErrMissingKey            = errors.New("encrypt operator requires a key")
)

// OperatorSpec selects an operator and its parameters. The zero value is not
// valid: start from DefaultOperatorSpec and override fields, or fill every
// parameter the chosen kind needs (the mask operator requires MaskChar,
// Validate rejects a zero rune rather than silently substituting one).
type OperatorSpec struct {
	Kind          Operator
	MaskChar      rune
	NumberOfChars int
	EncryptKey    []byte
}

// DefaultOperatorSpec returns a replace spec with default parameters.
func DefaultOperatorSpec() OperatorSpec {
	return OperatorSpec{Kind: OperatorReplace, MaskChar: DefaultMaskChar, NumberOfChars: DefaultNumberOfChars}
}

// Validate checks the operator kind and its parameters up front, before any
// text is touched, so a bad spec never fails mid-splice.
func (s OperatorSpec) Validate() error {
	switch s.Kind {
	case OperatorRedact, OperatorReplace, OperatorHash, OperatorHighlight:
		return nil
	case OperatorMask:
		if s.MaskChar == 0 {
			return fmt.Errorf("%w: mask operator requires a mask character", ErrInvalidOperatorParams)
		}
		if s.NumberOfChars < 0 {
			return fmt.Errorf("%w: number_of_chars must be >= 0, got %d", ErrInvalidOperatorParams, s.NumberOfChars)
		}
		return nil
	case OperatorEncrypt:
		if len(s.EncryptKey) == 0 {
			return ErrMissingKey
		}
		if len(s.EncryptKey) != EncryptKeySize {
			return fmt.Errorf("%w: encrypt key must be %d bytes, got %d", ErrInvalidOperatorParams, EncryptKeySize, len(s.EncryptKey))
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperator, s.Kind)
	}
}

// applyOperator splices replacements for the findings into text, processing
// in descending start order (longer span first on equal starts) over the
// immutable source so offsets of earlier findings stay valid. Same-type
// findings never overlap after the registry's conflict resolution; retained
// cross-type overlaps are resolved here by skipping any finding that reaches
// into an already-spliced region, so a stale span can never corrupt the
// result or index past its end.
func applyOperator(text string, findings []detect.Finding, spec OperatorSpec, cache *TokenCache) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if spec.Kind == OperatorHighlight || len(findings) == 0 {
		return text, nil
	}

	order := make([]detect.Finding, len(findings))
	copy(order, findings)
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Start != order[j].Start {
			return order[i].Start > order[j].Start
		}
		return order[i].End > order[j].End
	})

	result := text
	spliced := len(text) // start of the lowest span replaced so far
	for _, f := range order {
		if f.End > spliced {
			continue
		}
		replacement, err := replacementFor(text[f.Start:f.End], f.EntityType, spec, cache)
		if err != nil {
			return "", err
		}
		result = result[:f.Start] + replacement + result[f.End:]
		spliced = f.Start
	}
	return result, nil
}

// replacementFor produces the replacement text for one matched span.
func replacementFor(match, entityType string, spec OperatorSpec, cache *TokenCache) (string, error) {
	switch spec.Kind {
	case OperatorRedact:
		return "", nil
	case OperatorReplace:
		return cache.Token(entityType, match), nil
	case OperatorMask:
		return strings.Repeat(string(spec.MaskChar), spec.NumberOfChars), nil
	case OperatorHash:
		return cache.HashToken(entityType, match), nil
	case OperatorEncrypt:
		return encryptValue(match, spec.EncryptKey)
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOperator, spec.Kind)
}

// encryptValue encrypts the matched text with AES-GCM under the caller's
// key and returns base64 ciphertext (nonce prepended).
func encryptValue(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOperatorParams, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptValue reverses encryptValue given the same key. Exposed for
// consumers that hold the key; the service itself never decrypts.
func DecryptValue(encoded string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
