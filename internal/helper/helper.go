package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash8 is a short stable fingerprint used in logs in place of emails.
func Hash8(s string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(s)))
	return hex.EncodeToString(sum[:8])
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail is a shape check only; deliverability is the mailer's problem.
func ValidEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
