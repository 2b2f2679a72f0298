// Package util contains misc internal utilities.
package util

import (
	"strconv"
	"strings"
)

// Clamp limits x to the range [low, high].
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// Linspace returns n evenly spaced integers from start to stop inclusive.
// e.g., Linspace(-300, 300, 7) => [-300 -200 -100 0 100 200 300]
func Linspace(start, stop, n int) []int {
	if n < 2 {
		return []int{start}
	}
	out := make([]int, n)
	span := float64(stop - start)
	for i := range out {
		out[i] = start + int(span*float64(i)/float64(n-1))
	}
	return out
}

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}
