package prompt

import (
	"slices"
	"testing"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
		want  []int
	}{
		{"empty selects all", "", 3, []int{1, 2, 3}},
		{"all", "all", 2, []int{1, 2}},
		{"a", " A ", 2, []int{1, 2}},
		{"single", "2", 5, []int{2}},
		{"list", "1,3,5", 5, []int{1, 3, 5}},
		{"range", "2-4", 5, []int{2, 3, 4}},
		{"mixed", "1,3,5-7", 8, []int{1, 3, 5, 6, 7}},
		{"spaces", " 1 , 2 - 3 ", 5, []int{1, 2, 3}},
		{"unsorted and duplicated", "4,1,2-4,1", 5, []int{1, 2, 3, 4}},
		{"out of range ignored", "0,2,9", 3, []int{2}},
		{"range clipped", "2-10", 3, []int{2, 3}},
		{"huge range clipped", "2-9223372036854775807", 3, []int{2, 3}},
		{"range clipped both ways", "0-3000000000", 2, []int{1, 2}},
		{"reversed range is empty", "3-1", 3, nil},
		{"malformed ignored", "x,2,1-y,,-", 3, []int{2}},
		{"nothing valid", "foo", 3, nil},
		{"no entries", "", 0, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSelection(tt.input, tt.count)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ParseSelection(%q, %d) = %v, want %v", tt.input, tt.count, got, tt.want)
			}
		})
	}
}
