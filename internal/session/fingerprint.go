package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeObjective trims the objective and collapses internal whitespace
// runs to a single space.
func NormalizeObjective(objective string) string {
	return strings.Join(strings.Fields(objective), " ")
}

// Fingerprint returns the session id for an objective: the hex SHA-256 of
// its normalized text.
func Fingerprint(objective string) string {
	sum := sha256.Sum256([]byte(NormalizeObjective(objective)))
	return hex.EncodeToString(sum[:])
}
