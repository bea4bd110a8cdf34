package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", SanitizeEmail("  Alice@Example.com<> "))
	assert.True(t, ValidateEmailFormat("alice@example.com"))
	assert.False(t, ValidateEmailFormat("alice@"))
}

func TestSanitizeMessage(t *testing.T) {
	assert.Equal(t, "line one\nline\ttwo", SanitizeMessage("  line one\n\x00line\ttwo\x07  "))
	assert.Equal(t, "", SanitizeMessage("\x01\x02 "))
}

func TestStripControlCharacters(t *testing.T) {
	assert.Equal(t, "ab", StripControlCharacters("a\nb"))
}

func TestObjectKeySegment(t *testing.T) {
	assert.Equal(t, "etc_passwd", ObjectKeySegment("../etc/passwd"))
	assert.Equal(t, "room-1_a.mp4", ObjectKeySegment("room-1 a.mp4"))
}
