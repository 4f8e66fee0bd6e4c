package msnp

import (
	"net/url"
	"strings"
)

// Escape percent-encodes a protocol argument. Spaces become %20, never +,
// as MSNP servers do not understand form encoding.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Unescape reverses Escape. Malformed input is returned unchanged, some
// servers send display names with stray percent signs.
func Unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}
