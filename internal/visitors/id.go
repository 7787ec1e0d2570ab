package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashLength is the stored prefix of the hex-encoded visitor hash.
const HashLength = 32

// BuildVisitorHash derives the deterministic visitor identity for a client.
// It is a pure function of (website id, client IP, user agent) plus the
// server salt, so the same client always resolves to the same visitor
// without a store round trip once cached. IP addresses are never stored,
// only hashed.
func BuildVisitorHash(websiteID uint, ipAddress, userAgent, salt string) string {
	if ipAddress == "" {
		ipAddress = "unknown"
	}
	if userAgent == "" {
		userAgent = "unknown"
	}

	data := fmt.Sprintf("%s.%d:%s:%s", salt, websiteID, ipAddress, userAgent)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])[:HashLength]
}
