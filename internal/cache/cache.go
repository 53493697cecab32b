package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"roofline/internal/domain"
)

// Key identifies a cached measurement by normalized address and tier.
func Key(address string, tier domain.Tier) string {
	sum := sha256.Sum256([]byte(domain.NormalizeAddress(address)))
	return fmt.Sprintf("t%d:%s", tier, hex.EncodeToString(sum[:]))
}
