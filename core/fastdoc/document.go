package fastdoc

import (
	"slices"
	"unicode/utf16"

	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
)

// Document is a text plus the annotations laid over it.
type Document struct {
	text        string
	ascii       bool
	units       []uint16 // UTF-16 view of a non-ASCII text, built on demand
	language    string
	typeURIs    []string
	typeSet     map[string]struct{}
	annotations []*Annotation
}

// New returns an empty document in the given language.
func New(language string) *Document {
	return NewWithText(language, "")
}

// NewWithText returns a document with the given language and text.
func NewWithText(language, text string) *Document {
	d := &Document{
		language: language,
		typeSet:  make(map[string]struct{}),
	}
	d.SetText(text)
	return d
}

// AddAnnotation registers typeURI, appends a new annotation and returns it
// for attribute population. Offsets are not validated.
func (d *Document) AddAnnotation(typeURI, name string, begin, end int) *Annotation {
	if checkOffsets && (begin < 0 || end < begin || end > d.Len()) {
		panic(&errors.OffsetError{TypeURI: typeURI, Name: name, Begin: begin, End: end, Length: d.Len()})
	}
	if _, ok := d.typeSet[typeURI]; !ok {
		d.typeSet[typeURI] = struct{}{}
		d.typeURIs = append(d.typeURIs, typeURI)
	}
	a := &Annotation{
		doc:     d,
		typeURI: typeURI,
		name:    name,
		begin:   begin,
		end:     end,
	}
	d.annotations = append(d.annotations, a)
	return a
}

func (d *Document) remove(a *Annotation) {
	if i := slices.Index(d.annotations, a); i >= 0 {
		d.annotations = slices.Delete(d.annotations, i, i+1)
	}
}

// Annotations returns all annotations, in insertion order or sorted.
func (d *Document) Annotations(sorted bool) []*Annotation {
	out := slices.Clone(d.annotations)
	if sorted {
		Sort(out)
	}
	return out
}

// AnnotationsOf returns the annotations whose type URI and name match exactly.
func (d *Document) AnnotationsOf(typeURI, name string, sorted bool) []*Annotation {
	var out []*Annotation
	for _, a := range d.annotations {
		if a.typeURI == typeURI && a.name == name {
			out = append(out, a)
		}
	}
	if sorted {
		Sort(out)
	}
	return out
}

// Subsumed returns the annotations lying entirely within [begin, end],
// boundaries included.
func (d *Document) Subsumed(begin, end int, sorted bool) []*Annotation {
	var out []*Annotation
	for _, a := range d.annotations {
		if a.begin >= begin && a.end <= end {
			out = append(out, a)
		}
	}
	if sorted {
		Sort(out)
	}
	return out
}

// SubsumedBy returns the annotations lying entirely within parent's span,
// parent itself included.
func (d *Document) SubsumedBy(parent *Annotation, sorted bool) []*Annotation {
	return d.Subsumed(parent.begin, parent.end, sorted)
}

// Text returns the document text.
func (d *Document) Text() string {
	return d.text
}

// SetText replaces the text. Annotation offsets are left as they are.
func (d *Document) SetText(text string) {
	d.text = text
	d.units = nil
	d.ascii = isASCII(text)
}

// Len returns the text length in UTF-16 code units.
func (d *Document) Len() int {
	if d.ascii {
		return len(d.text)
	}
	return len(d.utf16())
}

// Substring returns the text in [begin, end). It panics when the range is
// outside the text, like a slice expression.
func (d *Document) Substring(begin, end int) string {
	if d.ascii {
		return d.text[begin:end]
	}
	return string(utf16.Decode(d.utf16()[begin:end]))
}

func (d *Document) utf16() []uint16 {
	if d.units == nil {
		d.units = utf16.Encode([]rune(d.text))
	}
	return d.units
}

// Language returns the document language tag.
func (d *Document) Language() string {
	return d.language
}

// SetLanguage replaces the language tag.
func (d *Document) SetLanguage(language string) {
	d.language = language
}

// TypeURIs returns the distinct annotation type URIs in first-seen order.
// The set keeps URIs of removed annotations.
func (d *Document) TypeURIs() []string {
	return slices.Clone(d.typeURIs)
}

// Validate returns an *errors.OffsetError for the first annotation (in
// insertion order) whose span is not within [0, Len()].
func (d *Document) Validate() error {
	n := d.Len()
	for _, a := range d.annotations {
		if a.begin < 0 || a.end < a.begin || a.end > n {
			return &errors.OffsetError{
				TypeURI: a.typeURI,
				Name:    a.name,
				Begin:   a.begin,
				End:     a.end,
				Length:  n,
			}
		}
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
