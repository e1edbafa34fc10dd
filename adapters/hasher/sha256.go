package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/satriahrh/landuse-agentic/domain"
)

// New returns a domain.Hasher producing "sha256:<hex>" digests.
func New() domain.Hasher { return sha256Hasher{} }

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
