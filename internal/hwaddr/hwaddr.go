// Package hwaddr canonicalizes the hardware identifiers clients report
// during attendance marking (Wi-Fi BSSIDs and Bluetooth device addresses).
// Different platforms report them with colons, dashes, or mixed case.
package hwaddr

import "strings"

// Normalize strips ':' and '-' separators and uppercases the remainder.
// An empty input normalizes to "", which never matches a registered
// identifier. Normalize is idempotent.
func Normalize(addr string) string {
	if addr == "" {
		return ""
	}
	addr = strings.ReplaceAll(addr, ":", "")
	addr = strings.ReplaceAll(addr, "-", "")
	return strings.ToUpper(addr)
}

// Equal reports whether two raw identifiers refer to the same hardware
// address once normalized. Two empty identifiers are never equal.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}
