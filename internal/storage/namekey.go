package storage

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent strips combining marks after NFD decomposition, so "Peñarrubia"
// folds to "Penarrubia" and "Dueñas" to "Duenas".
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CleanNameKey converts a name-key value (typically a barangay or
// municipality name) into an identifier-safe token used to derive partition
// names: accents folded, lowercased, non-alphanumerics collapsed to single
// underscores.
//
// Partition names must be stable across runs; callers rely on the same input
// always producing the same token so that lazy partition creation stays
// idempotent.
func CleanNameKey(v string) string {
	folded, _, err := transform.String(deaccent, v)
	if err != nil {
		// Transform failures fall back to the raw value; worse partition
		// names beat lost rows.
		folded = v
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastUnderscore := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}

// NormalizeKey converts a raw property value to a canonical trimmed string.
// It keeps key handling consistent between the gjson scanner and loaders,
// which see values of differing dynamic types.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
