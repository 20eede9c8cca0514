package insight

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
)

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 16 hex characters of a digest, as used in
// cache keys.
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16]
}

// HashedInput pairs an input artifact's natural key with the digest of its
// stored body.
type HashedInput struct {
	Key      string
	BodyHash string
}

// ExtractionInputHash derives an extraction job's input hash from the prompt
// version and the manifest content hash, so prompt changes invalidate caches
// without manual eviction.
func ExtractionInputHash(promptVersion, contentHash string) string {
	h := sha256.New()
	io.WriteString(h, promptVersion)
	io.WriteString(h, "\n")
	io.WriteString(h, contentHash)
	return hex.EncodeToString(h.Sum(nil))
}

// AggregationInputHash derives an aggregation job's input hash from the
// prompt version, the tier, the range id, and the sorted (key, body-hash)
// pairs of every input consumed.
func AggregationInputHash(promptVersion string, tier Tier, rangeID string, inputs []HashedInput) string {
	sorted := make([]HashedInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := sha256.New()
	io.WriteString(h, promptVersion)
	io.WriteString(h, "\n")
	io.WriteString(h, string(tier))
	io.WriteString(h, "\n")
	io.WriteString(h, rangeID)
	for _, in := range sorted {
		io.WriteString(h, "\n")
		io.WriteString(h, in.Key)
		io.WriteString(h, ":")
		io.WriteString(h, in.BodyHash)
	}
	return hex.EncodeToString(h.Sum(nil))
}
