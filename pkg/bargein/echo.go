// Package bargein watches the caller's inbound audio while the agent is
// speaking, so a caller who talks over a prompt gets the floor. The monitor
// runs in its own goroutine and never touches the call-control channel; it
// only probes the recording file and calls the transcriber.
package bargein

import (
	"strings"
	"unicode"
)

// DefaultEchoSimilarity is the word-overlap ratio at or above which a
// detected utterance is judged to be the agent hearing itself.
const DefaultEchoSimilarity = 0.65

// IsEcho reports whether transcript is likely the agent's own playback
// leaking back through the caller's microphone or the telephony path, rather
// than genuine caller speech. Two signals, either sufficient: one normalized
// string containing the other, or word-set overlap at or above threshold.
//
// An empty transcript is treated as echo: voice energy that produced no
// words is noise, not an interruption.
func IsEcho(transcript, agentText string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultEchoSimilarity
	}

	tWords := normalizeWords(transcript)
	aWords := normalizeWords(agentText)
	if len(tWords) == 0 {
		return true
	}
	if len(aWords) == 0 {
		return false
	}

	tNorm := strings.Join(tWords, " ")
	aNorm := strings.Join(aWords, " ")
	if strings.Contains(aNorm, tNorm) || strings.Contains(tNorm, aNorm) {
		return true
	}

	return jaccard(tWords, aWords) >= threshold
}

// normalizeWords lowercases, strips punctuation, and splits into words.
func normalizeWords(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}

	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
