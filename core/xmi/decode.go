package xmi

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/oakenshield/TextImagerCassandraDriver/core/errors"
	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
)

// nodeKind is the closed set of element kinds the decoder distinguishes.
type nodeKind int

const (
	nodeIgnored nodeKind = iota
	nodeDocument
	nodeSofa
	nodeAnnotation
)

type pendingAnnotation struct {
	typeURI string
	name    string
	begin   int
	end     int
	attrs   []xml.Attr
}

type decoder struct {
	language string
	text     string
	pending  []pendingAnnotation
	prefixes map[string]string // namespace URI -> prefix, from xmlns declarations
}

// DecodeBytes parses an XMI payload held in memory.
func DecodeBytes(data []byte) (*fastdoc.Document, error) {
	return Decode(bytes.NewReader(data))
}

// Decode parses an XMI payload from r as a token stream. Any element that
// carries some of sofa/begin/end but not all of them, or a non-integer
// offset, fails the whole decode with an *errors.MalformedInterchangeError.
func Decode(r io.Reader) (*fastdoc.Document, error) {
	dec := newXMLDecoder(r)
	d := &decoder{prefixes: make(map[string]string)}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errors.MalformedInterchangeError{Message: "invalid xml", Err: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if err := d.start(se); err != nil {
			return nil, err
		}
	}
	return d.build(), nil
}

// newXMLDecoder returns a namespace-aware decoder with entity expansion
// disabled (CWE-611).
func newXMLDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Entity = map[string]string{}
	return dec
}

func classify(se xml.StartElement) nodeKind {
	switch se.Name.Space {
	case fastdoc.NSTCAS:
		if se.Name.Local == "DocumentAnnotation" {
			return nodeDocument
		}
	case fastdoc.NSCAS:
		if se.Name.Local == "Sofa" {
			return nodeSofa
		}
		return nodeIgnored
	}
	for _, at := range se.Attr {
		if at.Name.Space == "" {
			switch at.Name.Local {
			case "sofa", "begin", "end":
				return nodeAnnotation
			}
		}
	}
	return nodeIgnored
}

func (d *decoder) start(se xml.StartElement) error {
	for _, at := range se.Attr {
		if at.Name.Space == "xmlns" {
			d.prefixes[at.Value] = at.Name.Local
		}
	}

	switch classify(se) {
	case nodeDocument:
		d.language = attrValue(se, "language")
	case nodeSofa:
		d.text = attrValue(se, "sofaString")
	case nodeAnnotation:
		return d.annotation(se)
	}
	return nil
}

func (d *decoder) annotation(se xml.StartElement) error {
	p := pendingAnnotation{typeURI: se.Name.Space, name: se.Name.Local}
	var haveSofa, haveBegin, haveEnd bool

	for _, at := range se.Attr {
		switch {
		case at.Name.Space == "" && at.Name.Local == "sofa":
			haveSofa = true
		case at.Name.Space == "" && at.Name.Local == "begin":
			n, err := strconv.Atoi(at.Value)
			if err != nil {
				return d.malformed(se, "begin", at.Value, err)
			}
			p.begin, haveBegin = n, true
		case at.Name.Space == "" && at.Name.Local == "end":
			n, err := strconv.Atoi(at.Value)
			if err != nil {
				return d.malformed(se, "end", at.Value, err)
			}
			p.end, haveEnd = n, true
		case at.Name.Space == fastdoc.NSXMI && at.Name.Local == "id":
		case at.Name.Space == "xmlns", at.Name.Space == "" && at.Name.Local == "xmlns":
		default:
			p.attrs = append(p.attrs, xml.Attr{Name: xml.Name{Local: d.attrKey(at.Name)}, Value: at.Value})
		}
	}

	for _, missing := range []struct {
		name string
		ok   bool
	}{{"sofa", haveSofa}, {"begin", haveBegin}, {"end", haveEnd}} {
		if !missing.ok {
			return errors.NewMalformed(d.elementName(se.Name), "missing "+missing.name+" attribute")
		}
	}

	d.pending = append(d.pending, p)
	return nil
}

func (d *decoder) malformed(se xml.StartElement, attr, value string, err error) error {
	return &errors.MalformedInterchangeError{
		Element:   d.elementName(se.Name),
		Attribute: attr,
		Value:     value,
		Err:       err,
	}
}

// attrKey renders an attribute name as written: local name, or prefix:local
// for namespaced attributes.
func (d *decoder) attrKey(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	if prefix, ok := d.prefixes[n.Space]; ok {
		return prefix + ":" + n.Local
	}
	return n.Space + ":" + n.Local
}

func (d *decoder) elementName(n xml.Name) string {
	return d.attrKey(n)
}

func (d *decoder) build() *fastdoc.Document {
	doc := fastdoc.NewWithText(d.language, d.text)
	for _, p := range d.pending {
		a := doc.AddAnnotation(p.typeURI, p.name, p.begin, p.end)
		for _, at := range p.attrs {
			a.SetAttribute(at.Name.Local, at.Value)
		}
	}
	return doc
}

func attrValue(se xml.StartElement, local string) string {
	for _, at := range se.Attr {
		if at.Name.Space == "" && at.Name.Local == local {
			return at.Value
		}
	}
	return ""
}

// SniffLanguage returns the language of an XMI payload without decoding the
// rest of it. It reports false when the payload has no document node or is
// not well-formed up to it.
func SniffLanguage(payload []byte) (string, bool) {
	dec := newXMLDecoder(bytes.NewReader(payload))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		if se, ok := tok.(xml.StartElement); ok && classify(se) == nodeDocument {
			return attrValue(se, "language"), true
		}
	}
}
