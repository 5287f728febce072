package gateway

import (
	"testing"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// TestClassifySentiment buckets transcripts by keyword balance; ties and
// silence come out neutral.
func TestClassifySentiment(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"That was delicious, I loved it!", store.MoodPositive},
		{"GREAT, thanks", store.MoodPositive},
		{"I feel tired and stressed today", store.MoodNegative},
		{"the soup was bland", store.MoodNegative},
		{"I had eggs and toast", store.MoodNeutral},
		{"good but also terrible", store.MoodNeutral},
		{"", store.MoodNeutral},
		{"love,love...hate", store.MoodPositive},
	}
	for _, c := range cases {
		if got := classifySentiment(c.in); got != c.want {
			t.Errorf("classifySentiment(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestEngagementDelta scores a turn from its completion flag and mood read.
func TestEngagementDelta(t *testing.T) {
	cases := []struct {
		completed bool
		mood      string
		want      int
	}{
		{true, store.MoodPositive, 2},
		{true, store.MoodNeutral, 1},
		{true, store.MoodNegative, 0},
		{false, store.MoodPositive, 1},
		{false, store.MoodNeutral, 0},
		{false, store.MoodNegative, -1},
	}
	for _, c := range cases {
		if got := engagementDelta(c.completed, c.mood); got != c.want {
			t.Errorf("engagementDelta(%v, %q) = %d, want %d", c.completed, c.mood, got, c.want)
		}
	}
}

// TestClampEngagement pins the gauge to its 0-10 scale.
func TestClampEngagement(t *testing.T) {
	for _, c := range []struct{ in, want int }{
		{-3, 0}, {0, 0}, {7, 7}, {10, 10}, {14, 10},
	} {
		if got := clampEngagement(c.in); got != c.want {
			t.Errorf("clampEngagement(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
