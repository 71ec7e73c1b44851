package core

import "strings"

// MaxPromptChars bounds a submitted prompt's length. A prompt of exactly
// this many characters is accepted; anything longer is rejected.
const MaxPromptChars = 32768

// MaxSessionIDLen bounds a sessionId's length. 128 characters is accepted.
const MaxSessionIDLen = 128

// ValidatePrompt enforces the non-empty, length-bounded prompt contract.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return NewValidationError("invalid_prompt", "prompt must not be empty")
	}
	if len(prompt) > MaxPromptChars {
		return NewValidationError("invalid_prompt", "prompt exceeds maximum length")
	}
	return nil
}

// ValidateSessionID enforces the sessionId identifier format: 1-128
// characters of [A-Za-z0-9._:-], starting with an alphanumeric character.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return NewValidationError("invalid_session_id", "sessionId must not be empty")
	}
	if len(sessionID) > MaxSessionIDLen {
		return NewValidationError("invalid_session_id", "sessionId exceeds maximum length")
	}
	if !isAlphanumeric(rune(sessionID[0])) {
		return NewValidationError("invalid_session_id", "sessionId must start with an alphanumeric character")
	}
	for _, r := range sessionID {
		if !isSessionIDRune(r) {
			return NewValidationError("invalid_session_id", "sessionId contains an invalid character")
		}
	}
	return nil
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isSessionIDRune(r rune) bool {
	if isAlphanumeric(r) {
		return true
	}
	return strings.ContainsRune("._:-", r)
}
