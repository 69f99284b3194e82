package corpus

import (
	"sort"
	"strings"
)

// naturalLess orders keys by their natural sort key: the key is split into
// alternating text and number chunks, always starting with a (possibly
// empty) text chunk, and the chunk sequences are compared element by
// element. Text chunks compare bytewise, number chunks by value, and a
// sequence that runs out first sorts first, so "01" < "1a" < "2" < "10".
// Keys whose chunk sequences are equal ("1" and "01") fall back to plain
// string order so the ordering is total.
func naturalLess(a, b string) bool {
	if c := naturalCompare(a, b); c != 0 {
		return c < 0
	}
	return a < b
}

// naturalCompare compares the chunk sequences of a and b.
func naturalCompare(a, b string) int {
	i, j := 0, 0
	for {
		ea, eb := runEnd(a, i, false), runEnd(b, j, false)
		if c := strings.Compare(a[i:ea], b[j:eb]); c != 0 {
			return c
		}
		i, j = ea, eb
		if i == len(a) || j == len(b) {
			break
		}

		ea, eb = runEnd(a, i, true), runEnd(b, j, true)
		if c := compareDigits(a[i:ea], b[j:eb]); c != 0 {
			return c
		}
		i, j = ea, eb
		if i == len(a) || j == len(b) {
			break
		}
	}

	switch {
	case i == len(a) && j == len(b):
		return 0
	case i == len(a):
		return -1
	default:
		return 1
	}
}

// runEnd returns the end of the run of digits (or non-digits) starting at i.
func runEnd(s string, i int, digits bool) int {
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return i
}

// compareDigits compares two ASCII digit runs by numeric value. Runs of any
// length are supported.
func compareDigits(a, b string) int {
	a, b = trimZeros(a), trimZeros(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// naturalSort sorts keys in place in natural order.
func naturalSort(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		return naturalLess(keys[i], keys[j])
	})
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}
