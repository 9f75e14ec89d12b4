package guard

import (
	"encoding/base64"
	"math"
	"unicode"
	"unicode/utf8"
)

// shannonEntropy computes the entropy of the rune distribution in bits.
// High values indicate encoded or obfuscated payloads.
func shannonEntropy(text string) float64 {
	if text == "" {
		return 0
	}
	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		counts[r]++
		total++
	}
	var entropy float64
	for _, n := range counts {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// specialCharRatio returns the fraction of runes that are neither
// alphanumeric nor whitespace.
func specialCharRatio(text string) float64 {
	if text == "" {
		return 0
	}
	special, total := 0, 0
	for _, r := range text {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	return float64(special) / float64(total)
}

// decodeBase64 strictly decodes a candidate token. Tokens that are not
// valid base64 or do not decode to valid UTF-8 are skipped rather than
// treated as threats on their own.
func decodeBase64(token string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}
