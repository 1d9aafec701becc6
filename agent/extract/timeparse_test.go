package extract

import (
	"testing"
	"time"
)

func TestResolveRelativeTime(t *testing.T) {
	t.Parallel()

	// Monday 2 June 2025, 10:00 UTC
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		text string
		want time.Time
		ok   bool
	}{
		{
			name: "tomorrow afternoon",
			text: "tomorrow afternoon works",
			want: time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "tomorrow morning",
			text: "can you do tomorrow morning",
			want: time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "today with explicit clock",
			text: "today at 3pm please",
			want: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "weekday with clock",
			text: "friday at 10:30am",
			want: time.Date(2025, 6, 6, 10, 30, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "same weekday rolls a week",
			text: "monday at 9am",
			want: time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "next weekday",
			text: "next tuesday at 2pm",
			want: time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "bare clock in the past rolls to next day",
			text: "9am is good",
			want: time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "noon",
			text: "tomorrow at noon",
			want: time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "evening daypart",
			text: "tomorrow evening",
			want: time.Date(2025, 6, 3, 17, 0, 0, 0, time.UTC),
			ok:   true,
		},
		{
			name: "no time signal",
			text: "whenever suits you",
			ok:   false,
		},
		{
			name: "day without a clock",
			text: "some day next week maybe friday",
			ok:   false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ResolveRelativeTime(tc.text, now, time.UTC)
			if ok != tc.ok {
				t.Fatalf("ResolveRelativeTime(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("ResolveRelativeTime(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestResolveRelativeTimeUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("AEST", 10*3600)
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC) // 10:00 local

	got, ok := ResolveRelativeTime("tomorrow at 2pm", now, loc)
	if !ok {
		t.Fatal("expected a resolved time")
	}
	want := time.Date(2025, 6, 3, 14, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}
