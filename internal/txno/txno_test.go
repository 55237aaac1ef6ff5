package txno

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	day := time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)
	cases := []struct {
		n    int64
		want string
	}{
		{1, "202603070001"},
		{42, "202603070042"},
		{9999, "202603079999"},
		{10000, "2026030710000"},
	}
	for _, tc := range cases {
		if got := Format(day, tc.n); got != tc.want {
			t.Errorf("Format(%d) = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestFormatUsesUTCDay(t *testing.T) {
	tashkent := time.FixedZone("UTC+5", 5*60*60)
	local := time.Date(2026, 3, 8, 2, 0, 0, 0, tashkent)
	if got := Format(local, 1); got != "202603070001" {
		t.Fatalf("got %s", got)
	}
}

func TestFormatOrdersWithinDay(t *testing.T) {
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := ""
	for n := int64(1); n <= 9999; n += 137 {
		cur := Format(day, n)
		if prev != "" && cur <= prev {
			t.Fatalf("%s not after %s", cur, prev)
		}
		prev = cur
	}
}
