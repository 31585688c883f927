package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// digest normalizes content (lowercase, collapsed whitespace) and returns a
// short fingerprint, used to detect a sender repeating itself across
// rounds.
func digest(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
