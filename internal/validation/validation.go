// Package validation provides centralized input validation for lexcache.
//
// Requests are validated before any store access so that malformed input is
// rejected with a field-specific message and never causes a partial write.
package validation

import (
	"fmt"
	"strings"
)

// MaxIdentifierLength bounds user and cache identifiers. Identifiers become
// store key segments, so unbounded input would bloat keys.
const MaxIdentifierLength = 255

// MaxWordLength bounds a single vocabulary word.
const MaxWordLength = 128

// DifficultyLevels are the six CEFR difficulty codes tracked by the coarse
// scoring counters, in canonical order.
var DifficultyLevels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// =============================================================================
// Identifier Validation
// =============================================================================

// ValidateUserID validates an opaque user identifier.
// The identifier is treated as opaque (the clients send UUIDs), but it must
// be usable as a store key segment.
func ValidateUserID(uuid string) error {
	return validateKeySegment("uuid", uuid)
}

// ValidateQuestionID validates a question identifier.
func ValidateQuestionID(id string) error {
	return validateKeySegment("questionId", id)
}

// ValidateCacheKey validates an explicit cache key supplied by a caller.
func ValidateCacheKey(key string) error {
	return validateKeySegment("cacheKey", key)
}

func validateKeySegment(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > MaxIdentifierLength {
		return fmt.Errorf("%s too long: maximum %d characters allowed", field, MaxIdentifierLength)
	}
	for i, r := range value {
		if r < 33 || r == 127 {
			return fmt.Errorf("%s cannot contain whitespace or control characters at position %d", field, i)
		}
		if r == ':' || r == '*' {
			return fmt.Errorf("%s cannot contain '%c' at position %d", field, r, i)
		}
	}
	return nil
}

// =============================================================================
// Difficulty Validation
// =============================================================================

// ValidateDifficulty checks that a difficulty is one of the CEFR levels.
func ValidateDifficulty(difficulty string) error {
	if difficulty == "" {
		return fmt.Errorf("difficulty is required")
	}
	for _, level := range DifficultyLevels {
		if difficulty == level {
			return nil
		}
	}
	return fmt.Errorf("difficulty '%s' is not a known level (expected one of %s)",
		difficulty, strings.Join(DifficultyLevels, ", "))
}

// =============================================================================
// Vocabulary Validation
// =============================================================================

// NormalizeWord canonicalizes a vocabulary word for miss counting.
// Counting is case-insensitive: "Chat" and "chat" accumulate together.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// ValidateWords checks a vocabulary word list and returns the normalized
// words. Empty entries are rejected rather than skipped so that callers
// find out their payload was malformed.
func ValidateWords(words []string) ([]string, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("words is required and must not be empty")
	}

	normalized := make([]string, 0, len(words))
	for i, w := range words {
		n := NormalizeWord(w)
		if n == "" {
			return nil, fmt.Errorf("words[%d] is empty", i)
		}
		if len(n) > MaxWordLength {
			return nil, fmt.Errorf("words[%d] too long: maximum %d characters allowed", i, MaxWordLength)
		}
		if strings.ContainsAny(n, ":*") {
			return nil, fmt.Errorf("words[%d] contains reserved characters", i)
		}
		normalized = append(normalized, n)
	}
	return normalized, nil
}
