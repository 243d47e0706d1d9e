// Package fastdoc is a lightweight in-memory model of a text document carrying
// stand-off annotations.
//
// A Document owns its text and an insertion-ordered collection of
// Annotations. Annotations are labelled, attributed spans over the text; they
// may overlap freely and several may share the same span.
//
// # Offsets
//
// Begin and end offsets are half-open and counted in UTF-16 code units, the
// unit used by the annotation pipeline that consumes the XMI payloads. For
// ASCII text this is the byte offset. Documents never clamp offsets: callers
// that replace the text must fix up annotation offsets themselves. Building
// with the textimager_debug tag turns out-of-range offsets passed to
// AddAnnotation into panics.
//
// # Ordering
//
// Every sorted view orders annotations by begin ascending, then end
// ascending, using a stable sort so that equal spans keep insertion order.
//
// A Document and its Annotations must not be shared between goroutines
// without external synchronisation.
package fastdoc
