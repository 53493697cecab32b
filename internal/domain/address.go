package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxAddressLength is the longest address, in characters, the order and
// usage tables can store.
const MaxAddressLength = 512

// NormalizeAddress case-folds an address and collapses whitespace so that
// "123 Main St,  Springfield" and "123 MAIN ST , springfield" are the same
// property.
func NormalizeAddress(address string) string {
	parts := strings.Split(address, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Join(strings.Fields(strings.ToLower(p)), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// AddressTooLong reports whether either the address as given or its
// normalized form exceeds MaxAddressLength.
func AddressTooLong(address, normalized string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(address)) > MaxAddressLength ||
		utf8.RuneCountInString(normalized) > MaxAddressLength
}
