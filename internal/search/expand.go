package search

import (
	"strings"

	"github.com/JakeFAU/engine-proxy/internal/engine"
)

const upperhex = "0123456789ABCDEF"

// Expand substitutes the encoded query for the first {query} placeholder.
// Templates without a placeholder are returned unchanged.
func Expand(template, query string) string {
	return strings.Replace(template, engine.QueryPlaceholder, EncodeComponent(query), 1)
}

// EncodeComponent percent-encodes s as a URI component. Only ASCII letters,
// digits and -_.!~*'() pass through; every other byte of the UTF-8 encoding
// is escaped, so a space becomes %20.
func EncodeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
