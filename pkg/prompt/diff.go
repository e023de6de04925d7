package prompt

import (
	"bytes"
	"fmt"
	"strings"
)

// UnifiedDiff returns a line diff of a and b: shared lines prefixed with a
// space, removals with '-', additions with '+'. Equal inputs give "".
func UnifiedDiff(a, b string) string {
	if a == b {
		return ""
	}
	al := strings.Split(a, "\n")
	bl := strings.Split(b, "\n")

	// lcs[i][j] is the common subsequence length of al[i:] and bl[j:].
	lcs := make([][]int, len(al)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(bl)+1)
	}
	for i := len(al) - 1; i >= 0; i-- {
		for j := len(bl) - 1; j >= 0; j-- {
			if al[i] == bl[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString("--- a\n")
	buf.WriteString("+++ b\n")
	i, j := 0, 0
	for i < len(al) && j < len(bl) {
		switch {
		case al[i] == bl[j]:
			fmt.Fprintf(&buf, " %s\n", al[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			fmt.Fprintf(&buf, "-%s\n", al[i])
			i++
		default:
			fmt.Fprintf(&buf, "+%s\n", bl[j])
			j++
		}
	}
	for ; i < len(al); i++ {
		fmt.Fprintf(&buf, "-%s\n", al[i])
	}
	for ; j < len(bl); j++ {
		fmt.Fprintf(&buf, "+%s\n", bl[j])
	}
	return buf.String()
}

// Diff compares two versions of a prompt. ok is false when either is missing.
func (s *Store) Diff(name string, v1, v2 int) (diff string, ok bool) {
	p1, ok1 := s.Get(name, v1)
	p2, ok2 := s.Get(name, v2)
	if !ok1 || !ok2 {
		return "", false
	}
	return UnifiedDiff(p1.Body, p2.Body), true
}
