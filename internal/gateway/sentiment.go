package gateway

import (
	"strings"
	"unicode"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// Keyword lists for the turn mood heuristic. Coarse on purpose: the session
// context wants a rough mood reading, not sentiment analysis.
var (
	positiveWords = map[string]bool{
		"amazing": true, "awesome": true, "delicious": true, "excellent": true,
		"excited": true, "fantastic": true, "glad": true, "good": true,
		"great": true, "happy": true, "love": true, "loved": true,
		"nice": true, "perfect": true, "tasty": true, "thank": true,
		"thanks": true, "wonderful": true, "yummy": true,
	}
	negativeWords = map[string]bool{
		"awful": true, "bad": true, "bland": true, "disgusting": true,
		"gross": true, "hate": true, "hated": true, "horrible": true,
		"nasty": true, "sad": true, "sick": true, "stale": true,
		"stressed": true, "terrible": true, "tired": true, "worst": true,
	}
)

// classifySentiment buckets free text into a session mood value by counting
// keyword hits. Ties and silence read as neutral.
func classifySentiment(text string) string {
	pos, neg := 0, 0
	for _, w := range strings.FieldsFunc(strings.ToLower(text), notLetter) {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	switch {
	case pos > neg:
		return store.MoodPositive
	case neg > pos:
		return store.MoodNegative
	default:
		return store.MoodNeutral
	}
}

func notLetter(r rune) bool { return !unicode.IsLetter(r) }

// engagementDelta scores one turn for the 0-10 engagement gauge: a completed
// intent and a positive read each add a point, a negative read takes one.
func engagementDelta(completed bool, mood string) int {
	d := 0
	if completed {
		d++
	}
	switch mood {
	case store.MoodPositive:
		d++
	case store.MoodNegative:
		d--
	}
	return d
}

// clampEngagement keeps the gauge on its 0-10 scale.
func clampEngagement(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
