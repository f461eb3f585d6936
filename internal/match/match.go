// Package match holds the pure hashing and title-similarity helpers shared
// by the reconciler and the upload pipeline.
package match

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Extensions stripped before fuzzy comparison, so that a filename-style
// title and a plain title normalize identically.
var strippedExts = []string{
	".pdf", ".mp4", ".mov", ".webm", ".m4v", ".m4a", ".mp3", ".wav",
	".md", ".markdown",
}

// ContentHash returns the lowercase hex SHA-256 of b. Used for knowledge
// document identity and upload idempotency verification.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Normalize lowercases, replaces hyphens/underscores with spaces, strips
// known binary extensions and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, ext := range strippedExts {
		s = strings.TrimSuffix(s, ext)
	}
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize splits normalized text into a set of words.
func Tokenize(normalized string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(normalized) {
		out[w] = struct{}{}
	}
	return out
}

// Jaccard returns |A∩B| / |A∪B|, defined as 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// SimilarityScore scores two titles in [0,1]. Pure Jaccard over normalized
// tokens, boosted to at least 0.8 when one normalized title contains the
// other: short keyword-style titles score poorly under Jaccard alone.
func SimilarityScore(titleA, titleB string) float64 {
	na := Normalize(titleA)
	nb := Normalize(titleB)
	score := Jaccard(Tokenize(na), Tokenize(nb))
	if na != "" && nb != "" && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		if score < 0.8 {
			score = 0.8
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
