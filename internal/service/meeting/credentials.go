package meeting

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// accessCodeAlphabet leaves out characters that are easy to misread (0/O, 1/I)
const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const accessCodeLength = 9

func generateAccessCode() (string, error) {
	buf := make([]byte, accessCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access code: %w", err)
	}
	var b strings.Builder
	for i, v := range buf {
		if i > 0 && i%3 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(accessCodeAlphabet[int(v)%len(accessCodeAlphabet)])
	}
	return b.String(), nil
}

// NormalizeAccessCode accepts codes typed without dashes or in lower case
func NormalizeAccessCode(code string) string {
	var raw strings.Builder
	for _, c := range strings.ToUpper(code) {
		if c == '-' || c == ' ' {
			continue
		}
		raw.WriteRune(c)
	}
	s := raw.String()
	if len(s) != accessCodeLength {
		return s
	}
	return s[0:3] + "-" + s[3:6] + "-" + s[6:9]
}

func generateHostKey() (string, []byte, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	key := hex.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash host key: %w", err)
	}
	return key, hash, nil
}

func verifyHostKey(hash []byte, key string) bool {
	if len(hash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil
}
