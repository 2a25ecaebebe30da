package cloud

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SameName compares two entry names the way backends do: case
// preserved but Unicode-normalized. Backends disagree on NFC vs NFD
// for accented names (notably after round-trips through macOS
// clients), so a bytewise compare reports spurious conflicts.
func SameName(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}

// SameNameFold is SameName plus ASCII case folding, for backends with
// case-insensitive namespaces.
func SameNameFold(a, b string) bool {
	return strings.EqualFold(norm.NFC.String(a), norm.NFC.String(b))
}
