package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you
// mean?" suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid keys per section. Provider sections share one
// key set regardless of the provider id.
var knownKeys = map[string]map[string]bool{
	"storage":   {"db_path": true},
	"logging":   {"level": true, "format": true, "file": true},
	"transfers": {"workers": true},
	"provider":  {"client_id": true, "client_secret": true, "redirect_uri": true},
}

// knownKeyLists is the sorted slice form for Levenshtein matching.
// Sorted for deterministic suggestions when two candidates tie.
var knownKeyLists = func() map[string][]string {
	out := make(map[string][]string, len(knownKeys))

	for section, keys := range knownKeys {
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}

		sort.Strings(list)

		out[section] = list
	}

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and
// returns an error with suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key,
// suggesting the closest known key in its section when one is near.
func buildKeyError(key toml.Key) error {
	section, field := splitKey(key)

	known, ok := knownKeys[section]
	if !ok {
		return fmt.Errorf("config: unknown section %q", section)
	}

	if known[field] {
		// A known field undecoded means a nested structure mismatch.
		return fmt.Errorf("config: malformed value for %q", key.String())
	}

	if suggestion := closestMatch(field, knownKeyLists[section]); suggestion != "" {
		return fmt.Errorf("config: unknown key %q — did you mean %q?", key.String(), suggestion)
	}

	return fmt.Errorf("config: unknown key %q", key.String())
}

// splitKey maps a dotted TOML key to (section, leaf). Provider sections
// are three levels deep (provider.<id>.<field>); everything else two.
func splitKey(key toml.Key) (string, string) {
	parts := []string(key)

	if len(parts) == 0 {
		return "", ""
	}

	section := parts[0]
	field := parts[len(parts)-1]

	if section == "provider" && len(parts) < 3 {
		// A bare [provider.<id>] table decodes fully; an undecoded
		// two-part provider key is a stray assignment.
		field = strings.Join(parts[1:], ".")
	}

	return section, field
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
