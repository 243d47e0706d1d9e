package fastdoc

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
)

// Annotation is a labelled span over the text of its owning Document.
// Annotations are created with Document.AddAnnotation only.
type Annotation struct {
	doc      *Document
	typeURI  string
	name     string
	begin    int
	end      int
	attrs    map[string]string
	detached bool
}

// Document returns the owning document.
func (a *Annotation) Document() *Document {
	return a.doc
}

// TypeURI returns the namespace URI of the annotation type.
func (a *Annotation) TypeURI() string {
	return a.typeURI
}

// Name returns the local type name.
func (a *Annotation) Name() string {
	return a.name
}

// Begin returns the inclusive start offset.
func (a *Annotation) Begin() int {
	return a.begin
}

// End returns the exclusive end offset.
func (a *Annotation) End() int {
	return a.end
}

// SetBegin moves the start offset.
func (a *Annotation) SetBegin(begin int) {
	a.begin = begin
}

// SetEnd moves the end offset.
func (a *Annotation) SetEnd(end int) {
	a.end = end
}

// Attribute returns the value stored under key, or def when absent.
func (a *Annotation) Attribute(key, def string) string {
	if v, ok := a.attrs[key]; ok {
		return v
	}
	return def
}

// HasAttribute reports whether key is set.
func (a *Annotation) HasAttribute(key string) bool {
	_, ok := a.attrs[key]
	return ok
}

// SetAttribute stores value under key, replacing any previous value.
func (a *Annotation) SetAttribute(key, value string) {
	if a.attrs == nil {
		a.attrs = make(map[string]string)
	}
	a.attrs[key] = value
}

// IntAttribute parses the attribute stored under key as a decimal integer.
func (a *Annotation) IntAttribute(key string) (int, error) {
	v, ok := a.attrs[key]
	if !ok {
		return 0, &errors.ValidationError{
			Field:   key,
			Message: "missing on " + a.name + " at " + a.span(),
		}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &errors.ValidationError{
			Field:   key,
			Value:   v,
			Message: "not an integer on " + a.name + " at " + a.span(),
		}
	}
	return n, nil
}

// Attributes returns a copy of the attribute map.
func (a *Annotation) Attributes() map[string]string {
	out := make(map[string]string, len(a.attrs))
	for k, v := range a.attrs {
		out[k] = v
	}
	return out
}

// AttributeKeys returns the attribute keys in lexicographic order.
func (a *Annotation) AttributeKeys() []string {
	keys := make([]string, 0, len(a.attrs))
	for k := range a.attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Text returns the covered text of the owning document.
func (a *Annotation) Text() string {
	return a.doc.Substring(a.begin, a.end)
}

// String returns the covered text.
func (a *Annotation) String() string {
	return a.Text()
}

// Remove detaches the annotation from its document. Removing an annotation
// that is already detached does nothing.
func (a *Annotation) Remove() {
	if a.detached {
		return
	}
	a.doc.remove(a)
	a.detached = true
}

// Detached reports whether Remove has been called.
func (a *Annotation) Detached() bool {
	return a.detached
}

func (a *Annotation) span() string {
	return "[" + strconv.Itoa(a.begin) + "," + strconv.Itoa(a.end) + ")"
}

// Compare orders annotations by begin, then by end.
func Compare(a, b *Annotation) int {
	if c := cmp.Compare(a.begin, b.begin); c != 0 {
		return c
	}
	return cmp.Compare(a.end, b.end)
}

// Sort sorts annotations in place by Compare, keeping the relative order of
// equal spans.
func Sort(annotations []*Annotation) {
	slices.SortStableFunc(annotations, Compare)
}
