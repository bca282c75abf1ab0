package progress

import (
	"strings"
	"unicode"

	"github.com/narrate-go/narrate/internal/models"
)

// lessJobID orders job ids for display: the batch entries first, then chapter
// ids in natural order, so "ch2" sorts before "ch10". Letters compare
// case-insensitively; digit runs compare by value.
func lessJobID(a, b string) bool {
	if a == b {
		return false
	}
	if ba, bb := models.IsBatchJob(a), models.IsBatchJob(b); ba || bb {
		if ba && bb {
			return a == models.BatchJobID
		}
		return ba
	}

	for a != "" && b != "" {
		var ca, cb string
		ca, a = nextChunk(a)
		cb, b = nextChunk(b)

		da, db := isDigits(ca), isDigits(cb)
		switch {
		case da && !db:
			return true
		case !da && db:
			return false
		case da && db:
			if c := compareNumeric(ca, cb); c != 0 {
				return c < 0
			}
		default:
			if la, lb := strings.ToLower(ca), strings.ToLower(cb); la != lb {
				return la < lb
			}
		}
	}
	return a == "" && b != ""
}

// nextChunk splits off the leading run of digits or non-digits.
func nextChunk(s string) (chunk, rest string) {
	digit := unicode.IsDigit(rune(s[0]))
	i := 1
	for i < len(s) && unicode.IsDigit(rune(s[i])) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigits(s string) bool {
	return s != "" && unicode.IsDigit(rune(s[0]))
}

// compareNumeric compares digit runs of any length without overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
