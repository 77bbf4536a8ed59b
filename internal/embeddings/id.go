package embeddings

import (
	"crypto/md5"
	"encoding/hex"
	"math"
)

// ContentID derives a deterministic record id from the embedded text. The
// same text under the same prefix always yields the same id, which makes
// saves idempotent at the store level.
func ContentID(text, prefix string) string {
	sum := md5.Sum([]byte(prefix + "_" + text))
	return hex.EncodeToString(sum[:])
}

// Normalize scales v to unit length in place. Zero vectors are left
// untouched. Models are configured to normalize server-side already; this
// keeps cosine scores meaningful even when they do not.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
