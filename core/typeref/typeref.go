// Package typeref parses references to annotation types and one of their
// attributes, such as "wikidragon:HtmlTag@order" or
// "{http:///my/types.ecore}Heading@level".
package typeref

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
)

// Ref names an annotation type (namespace URI and local name) and,
// optionally, an attribute of it.
type Ref struct {
	URI  string
	Name string
	Attr string
}

// Defaults used for pooled documents.
var (
	// OrderRef identifies the ordinal-bearing annotation and its ordinal.
	OrderRef = Ref{URI: fastdoc.NSWikiDragon, Name: "HtmlTag", Attr: "order"}
	// DelimiterRef identifies the per-record delimiter and its record key.
	DelimiterRef = Ref{URI: fastdoc.NSWikiDragon, Name: "WikiTextSpan", Attr: "uid"}
)

//nolint:govet // participle grammar tags are not standard struct tags
type refGrammar struct {
	URI    *string `(  @URI`
	Prefix *string ` | @Ident ":" )`
	Name   string  `@Ident`
	Attr   *string `( "@" @Ident )?`
}

var refLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "URI", Pattern: `\{[^{}\s]+\}`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
	{Name: "Punct", Pattern: `[:@]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var refParser = participle.MustBuild[refGrammar](
	participle.Lexer(refLexer),
	participle.Elide("Whitespace"),
)

// Parse parses a type reference. Supported forms:
//   - "seg:Token" (reserved prefix, see fastdoc.FixedNamespaces)
//   - "wikidragon:HtmlTag@order" (with attribute)
//   - "{http:///my/types.ecore}Heading@level" (explicit namespace URI)
func Parse(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty type reference")
	}

	parsed, err := refParser.ParseString("", s)
	if err != nil {
		return Ref{}, fmt.Errorf("invalid type reference %q: %w", s, err)
	}

	ref := Ref{Name: parsed.Name}
	switch {
	case parsed.URI != nil:
		ref.URI = strings.TrimSuffix(strings.TrimPrefix(*parsed.URI, "{"), "}")
	case parsed.Prefix != nil:
		uri, ok := fastdoc.URIFor(*parsed.Prefix)
		if !ok {
			return Ref{}, fmt.Errorf("invalid type reference %q: unknown prefix %q", s, *parsed.Prefix)
		}
		ref.URI = uri
	}
	if parsed.Attr != nil {
		ref.Attr = *parsed.Attr
	}
	return ref, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Ref {
	ref, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// Matches reports whether a is of the referenced type.
func (r Ref) Matches(a *fastdoc.Annotation) bool {
	return a.TypeURI() == r.URI && a.Name() == r.Name
}

// String renders the reference, preferring a reserved prefix over the URI.
func (r Ref) String() string {
	var sb strings.Builder
	if prefix, ok := fastdoc.PrefixFor(r.URI); ok {
		sb.WriteString(prefix)
		sb.WriteByte(':')
	} else {
		sb.WriteString("{" + r.URI + "}")
	}
	sb.WriteString(r.Name)
	if r.Attr != "" {
		sb.WriteString("@" + r.Attr)
	}
	return sb.String()
}

// UnmarshalText implements encoding.TextUnmarshaler so refs can be used
// directly as command-line flag values.
func (r *Ref) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
