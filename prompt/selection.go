package prompt

import (
	"slices"
	"strconv"
	"strings"
)

// ParseSelection turns user input like "1,3,5-7" into sorted list of unique
// 1 based positions in range [1, count]. Empty input, "all" and "a" select
// everything. Malformed parts and numbers out of range are ignored.
func ParseSelection(input string, count int) []int {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "", "all", "a":
		all := make([]int, count)
		for i := range all {
			all[i] = i + 1
		}
		return all
	}

	var out []int
	add := func(n int) {
		if n >= 1 && n <= count {
			out = append(out, n)
		}
	}
	for part := range strings.SplitSeq(input, ",") {
		part = strings.TrimSpace(part)
		if from, to, ok := strings.Cut(part, "-"); ok {
			a, err1 := strconv.Atoi(strings.TrimSpace(from))
			b, err2 := strconv.Atoi(strings.TrimSpace(to))
			if err1 != nil || err2 != nil {
				continue
			}
			for n := max(a, 1); n <= min(b, count); n++ {
				out = append(out, n)
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			add(n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
