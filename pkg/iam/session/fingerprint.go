package session

import "strings"

// ParseFingerprint tokenizes a raw User-Agent string for Jaccard comparison.
// Tokenization is intentionally crude (split on common UA delimiters) —
// the comparison only needs rough drift detection, not a full UA parser.
func ParseFingerprint(ua string) DeviceFingerprint {
	replacer := strings.NewReplacer("/", " ", "(", " ", ")", " ", ";", " ", ",", " ")
	fields := strings.Fields(replacer.Replace(ua))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return DeviceFingerprint{Raw: ua, Tokens: tokens}
}

// jaccardSimilarity returns |a ∩ b| / |a ∪ b| over token sets. Two empty
// fingerprints are treated as identical (similarity 1).
func jaccardSimilarity(a, b DeviceFingerprint) float64 {
	if len(a.Tokens) == 0 && len(b.Tokens) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a.Tokens))
	for _, t := range a.Tokens {
		setA[t] = struct{}{}
	}
	union := make(map[string]struct{}, len(a.Tokens)+len(b.Tokens))
	for _, t := range a.Tokens {
		union[t] = struct{}{}
	}
	intersection := 0
	for _, t := range b.Tokens {
		union[t] = struct{}{}
		if _, ok := setA[t]; ok {
			intersection++
		}
	}
	if len(union) == 0 {
		return 1
	}
	return float64(intersection) / float64(len(union))
}
