package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoMatch is returned when a wildcard pattern matches no files.
var ErrNoMatch = errors.New("pattern matched no files")

// ExpandGlobs expands file paths and glob patterns into a deduplicated
// list. Order follows the patterns as given, with the matches of each
// pattern sorted, so concatenated sources read in a predictable order.
// Literal paths are kept even when the file does not exist yet; a
// wildcard pattern without matches is an error.
func ExpandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}

		if len(matches) == 0 {
			if hasMeta(pattern) {
				return nil, fmt.Errorf("%q: %w", pattern, ErrNoMatch)
			}
			add(pattern)
			continue
		}

		sort.Strings(matches)
		for _, match := range matches {
			add(match)
		}
	}

	return result, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}
