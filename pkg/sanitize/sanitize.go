package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	emailUnsafe   = regexp.MustCompile(`[<>;\\]`)
	emailFormat   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	filenameCtrl  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	objectKeyPart = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
)

// SanitizeEmail sanitizes email input
func SanitizeEmail(email string) string {
	email = strings.TrimSpace(email)
	email = strings.ToLower(email)
	return emailUnsafe.ReplaceAllString(email, "")
}

// ValidateEmailFormat checks if email format is valid
func ValidateEmailFormat(email string) bool {
	return emailFormat.MatchString(email)
}

// SanitizeFilename strips path traversal and control characters
func SanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "../", "")
	filename = strings.ReplaceAll(filename, "./", "")
	filename = strings.ReplaceAll(filename, "..\\", "")
	filename = strings.ReplaceAll(filename, ".\\", "")
	return filenameCtrl.ReplaceAllString(filename, "")
}

// ObjectKeySegment reduces s to characters safe inside an object storage key
func ObjectKeySegment(s string) string {
	return objectKeyPart.ReplaceAllString(SanitizeFilename(s), "_")
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SanitizeMessage removes control characters but keeps line breaks and tabs,
// then trims surrounding whitespace
func SanitizeMessage(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
