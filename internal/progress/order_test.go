package progress

import "testing"

func TestLessJobID(t *testing.T) {
	testCases := []struct {
		a, b     string
		expected bool
	}{
		{"batch", "ch1", true},
		{"ch1", "batch", false},
		{"batch", "aaa", true},
		{"ch2", "ch10", true},
		{"ch10", "ch2", false},
		{"Chapter 3", "chapter 12", true},
		{"vol1-ch9", "vol1-ch10", true},
		{"vol2-ch1", "vol1-ch10", false},
		{"ch", "ch1", true},
		{"ch1", "ch", false},
		{"7", "ch1", true},
		{"ch007", "ch8", true},
		{"ch99999999999999999999", "ch100000000000000000000", true},
		{"ch1", "ch1", false},
		{"batch", "batch", false},
		{"batch", "batch-generate", true},
		{"batch-generate", "batch", false},
		{"batch-generate", "aaa", true},
	}
	for _, tc := range testCases {
		if got := lessJobID(tc.a, tc.b); got != tc.expected {
			t.Errorf("lessJobID(%q, %q) = %v; want %v", tc.a, tc.b, got, tc.expected)
		}
	}
}
