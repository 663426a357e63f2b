package projects

import (
	"cmp"
	"slices"
)

// DefaultTopLanguages is how many detected languages are kept per project.
const DefaultTopLanguages = 3

// topLanguages returns the n languages with the most bytes. Ties break by
// name so the result is deterministic.
func topLanguages[V int | int64 | float64](bytes map[string]V, n int) []string {
	names := make([]string, 0, len(bytes))
	for name := range bytes {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(bytes[b], bytes[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if n >= 0 && len(names) > n {
		names = names[:n]
	}
	return names
}
