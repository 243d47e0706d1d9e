// Package xmi converts fastdoc Documents to and from the XMI interchange
// format read and written by the annotation pipeline.
//
// The element names, namespace prefixes and structural attributes written
// here are a wire contract with the pipeline and must not change.
package xmi

import (
	"bytes"
	"io"
	"strconv"

	"github.com/oakenshield/TextImagerCassandraDriver/core/encoding"
	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
)

// Reserved xmi:id values.
const (
	nullID     = 0
	sofaID     = 1
	documentID = 2
)

const (
	sofaRef     = "1"
	xmlHeader   = `<?xml version="1.0" encoding="UTF-8"?>`
	typePrefix  = "type"
	xmiVersion  = "2.0"
	initialView = "_InitialView"
)

// structural attributes are written by the encoder itself and never taken
// from an annotation's attribute map.
var structural = map[string]bool{
	"sofa":   true,
	"begin":  true,
	"end":    true,
	"xmi:id": true,
}

type options struct {
	labels bool
}

// Option configures Encode.
type Option func(*options)

// WithLabels writes each annotation's covered text as element content.
// Intended for human-readable dumps; the pipeline ignores the content.
func WithLabels(on bool) Option {
	return func(o *options) {
		o.labels = on
	}
}

// Encode serialises doc as XMI.
func Encode(doc *fastdoc.Document, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, doc, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serialises doc as XMI to w.
func Write(w io.Writer, doc *fastdoc.Document, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &encoder{opts: o}
	e.encode(doc)
	_, err := w.Write(e.buf.Bytes())
	return err
}

type encoder struct {
	buf      bytes.Buffer
	opts     options
	prefixes map[string]string
}

// namespaces returns the namespace declarations of doc: the fixed namespaces
// followed by type1, type2, ... for every other type URI in first-seen order.
func namespaces(doc *fastdoc.Document) []fastdoc.FixedNamespace {
	decls := append([]fastdoc.FixedNamespace(nil), fastdoc.FixedNamespaces...)
	n := 0
	for _, uri := range doc.TypeURIs() {
		if uri == "" {
			continue
		}
		if _, ok := fastdoc.PrefixFor(uri); ok {
			continue
		}
		n++
		decls = append(decls, fastdoc.FixedNamespace{URI: uri, Prefix: typePrefix + strconv.Itoa(n)})
	}
	return decls
}

func (e *encoder) encode(doc *fastdoc.Document) {
	decls := namespaces(doc)
	e.prefixes = make(map[string]string, len(decls))
	for _, ns := range decls {
		e.prefixes[ns.URI] = ns.Prefix
	}

	e.buf.WriteString(xmlHeader)

	// Root element
	e.buf.WriteString("<xmi:XMI")
	for _, ns := range decls {
		e.attr("xmlns:"+ns.Prefix, ns.URI)
	}
	e.attr("xmi:version", xmiVersion)
	e.buf.WriteByte('>')

	e.buf.WriteString("<cas:NULL")
	e.attr("xmi:id", strconv.Itoa(nullID))
	e.buf.WriteString("/>")

	e.buf.WriteString("<tcas:DocumentAnnotation")
	e.attr("xmi:id", strconv.Itoa(documentID))
	e.attr("sofa", sofaRef)
	e.attr("begin", "0")
	e.attr("end", strconv.Itoa(doc.Len()))
	e.attr("language", doc.Language())
	e.buf.WriteString("/>")

	var members bytes.Buffer
	members.WriteString(strconv.Itoa(documentID))

	id := documentID
	for _, a := range doc.Annotations(true) {
		id++
		e.annotation(a, id)
		members.WriteByte(' ')
		members.WriteString(strconv.Itoa(id))
	}

	e.buf.WriteString("<cas:Sofa")
	e.attr("xmi:id", strconv.Itoa(sofaID))
	e.attr("sofaNum", "1")
	e.attr("sofaID", initialView)
	e.attr("mimeType", "text")
	e.attr("sofaString", doc.Text())
	e.buf.WriteString("/>")

	e.buf.WriteString("<cas:View")
	e.attr("sofa", sofaRef)
	e.attr("members", members.String())
	e.buf.WriteString("/>")

	e.buf.WriteString("</xmi:XMI>")
}

func (e *encoder) annotation(a *fastdoc.Annotation, id int) {
	qname := e.qname(a)
	e.buf.WriteByte('<')
	e.buf.WriteString(qname)
	e.attr("xmi:id", strconv.Itoa(id))
	e.attr("sofa", sofaRef)
	e.attr("begin", strconv.Itoa(a.Begin()))
	e.attr("end", strconv.Itoa(a.End()))
	for _, key := range a.AttributeKeys() {
		if structural[key] {
			continue
		}
		e.attr(key, a.Attribute(key, ""))
	}

	if !e.opts.labels {
		e.buf.WriteString("/>")
		return
	}
	e.buf.WriteByte('>')
	e.buf.WriteString(encoding.EscapeXML(encoding.SanitizeControl(a.Text())))
	e.buf.WriteString("</")
	e.buf.WriteString(qname)
	e.buf.WriteByte('>')
}

func (e *encoder) qname(a *fastdoc.Annotation) string {
	if a.TypeURI() == "" {
		return a.Name()
	}
	return e.prefixes[a.TypeURI()] + ":" + a.Name()
}

func (e *encoder) attr(name, value string) {
	e.buf.WriteByte(' ')
	e.buf.WriteString(name)
	e.buf.WriteString(`="`)
	e.buf.WriteString(encoding.EscapeXML(encoding.SanitizeControl(value)))
	e.buf.WriteByte('"')
}
