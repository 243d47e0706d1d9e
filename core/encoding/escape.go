// Package encoding provides text sanitising and XML escaping for XMI output.
package encoding

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// SanitizeControl replaces every code point below U+0020 except TAB, LF and
// CR with a single space. XML 1.0 cannot carry the other C0 characters, and a
// one-for-one replacement keeps all annotation offsets valid.
func SanitizeControl(s string) string {
	if !hasInvalidControl(s) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isInvalidControl(r) {
			return ' '
		}
		return r
	}, s)
}

func hasInvalidControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if isInvalidControl(rune(s[i])) {
			return true
		}
	}
	return false
}

func isInvalidControl(r rune) bool {
	return r < 0x20 && r != '\t' && r != '\n' && r != '\r'
}

// EscapeXML escapes s for XML character data or attribute values.
// TAB, LF and CR become character references, so attribute-value
// normalisation in the reading parser leaves them untouched.
func EscapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// EscapeXMLText escapes only the basic XML entities for text content.
// This is a lighter-weight alternative to EscapeXML used for debug output.
func EscapeXMLText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// EscapeXMLAttr escapes text for use in double-quoted XML attributes.
func EscapeXMLAttr(s string) string {
	s = EscapeXMLText(s)
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "\t", "&#x9;")
	s = strings.ReplaceAll(s, "\n", "&#xA;")
	s = strings.ReplaceAll(s, "\r", "&#xD;")
	return s
}
