// Package xml provides XPath queries, pretty-printing and summaries over
// XMI payloads for human inspection.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities, and entity expansion is
//     disabled in Validate.
//   - The xmlquery library is used for parsing, which uses Go's encoding/xml
//     internally and inherits its security properties.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/oakenshield/TextImagerCassandraDriver/core/encoding"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element.
type Node struct {
	node *xmlquery.Node
}

// ValidationResult contains the result of a well-formedness check.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Offset  int64
	Message string
}

// FormatOptions controls XML formatting behavior.
type FormatOptions struct {
	Indent string // Indentation string (e.g., "  " or "\t")
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that data is well-formed XML.
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	// XXE Protection (CWE-611)
	decoder.Entity = map[string]string{}

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Offset:  decoder.InputOffset(),
				Message: err.Error(),
			})
			break
		}
	}

	return result
}

// Format pretty-prints XML data, one element per line.
func Format(data []byte, opts FormatOptions) ([]byte, error) {
	if opts.Indent == "" {
		opts.Indent = "  "
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	formatNode(&buf, doc.root, 0, opts.Indent)
	return buf.Bytes(), nil
}

func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			formatNode(w, child, depth, indent)
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, attr := range n.Attr {
			writeAttr(w, attr)
		}
		w.WriteString("?>\n")

	case xmlquery.ElementNode:
		writeIndent(w, depth, indent)
		w.WriteString("<")
		w.WriteString(qualifiedName(n))
		for _, attr := range n.Attr {
			writeAttr(w, attr)
		}

		hasElementChildren := false
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				hasElementChildren = true
				break
			}
		}

		if n.FirstChild == nil {
			w.WriteString("/>\n")
			return
		}
		w.WriteString(">")
		if hasElementChildren {
			w.WriteString("\n")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			switch child.Type {
			case xmlquery.ElementNode:
				formatNode(w, child, depth+1, indent)
			case xmlquery.TextNode:
				if strings.TrimSpace(child.Data) == "" {
					continue
				}
				if hasElementChildren {
					writeIndent(w, depth+1, indent)
				}
				w.WriteString(encoding.EscapeXMLText(child.Data))
				if hasElementChildren {
					w.WriteString("\n")
				}
			case xmlquery.CharDataNode:
				w.WriteString("<![CDATA[")
				w.WriteString(child.Data)
				w.WriteString("]]>")
			}
		}
		if hasElementChildren {
			writeIndent(w, depth, indent)
		}
		w.WriteString("</")
		w.WriteString(qualifiedName(n))
		w.WriteString(">\n")

	case xmlquery.CommentNode:
		writeIndent(w, depth, indent)
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->\n")
	}
}

func writeAttr(w *bytes.Buffer, attr xmlquery.Attr) {
	w.WriteString(" ")
	if attr.Name.Space != "" {
		w.WriteString(attr.Name.Space)
		w.WriteString(":")
	}
	w.WriteString(attr.Name.Local)
	w.WriteString("=\"")
	w.WriteString(encoding.EscapeXMLAttr(attr.Value))
	w.WriteString("\"")
}

func writeIndent(w *bytes.Buffer, depth int, indent string) {
	for i := 0; i < depth; i++ {
		w.WriteString(indent)
	}
}

func qualifiedName(n *xmlquery.Node) string {
	if n.Prefix == "" {
		return n.Data
	}
	return n.Prefix + ":" + n.Data
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	nodes := xmlquery.QuerySelectorAll(d.root, compiled)
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst executes an XPath query and returns the first matching node,
// or nil when nothing matches.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	node := xmlquery.QuerySelector(d.root, compiled)
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// Name returns the local element name.
func (n *Node) Name() string {
	if n.node == nil {
		return ""
	}
	return n.node.Data
}

// QName returns the element name with its namespace prefix.
func (n *Node) QName() string {
	if n.node == nil {
		return ""
	}
	return qualifiedName(n.node)
}

// InnerText returns all text content of the node and its descendants.
func (n *Node) InnerText() string {
	if n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Attributes returns all attributes of the node keyed by their written
// name (prefix:local for namespaced attributes).
func (n *Node) Attributes() map[string]string {
	if n.node == nil {
		return nil
	}

	attrs := make(map[string]string, len(n.node.Attr))
	for _, attr := range n.node.Attr {
		key := attr.Name.Local
		if attr.Name.Space != "" {
			key = attr.Name.Space + ":" + key
		}
		attrs[key] = attr.Value
	}
	return attrs
}

// Attr returns the value of a specific attribute.
func (n *Node) Attr(name string) string {
	if n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// Summary describes the content of an XMI payload.
type Summary struct {
	Language    string
	TextLength  int
	Annotations int
	// Types counts annotations per prefixed element name.
	Types map[string]int
	// Namespaces maps declared prefixes to namespace URIs.
	Namespaces map[string]string
}

// TypeNames returns the keys of Types in sorted order.
func (s Summary) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summarize parses an XMI payload and counts its annotations by type.
func Summarize(data []byte) (Summary, error) {
	doc, err := Parse(data)
	if err != nil {
		return Summary{}, err
	}
	root := doc.Root()
	if root == nil {
		return Summary{}, fmt.Errorf("summarize: document has no root element")
	}

	s := Summary{
		Types:      make(map[string]int),
		Namespaces: make(map[string]string),
	}
	for _, attr := range root.node.Attr {
		if attr.Name.Space == "xmlns" {
			s.Namespaces[attr.Name.Local] = attr.Value
		}
	}

	docNode, err := doc.XPathFirst("/*/*[local-name()='DocumentAnnotation']")
	if err != nil {
		return Summary{}, err
	}
	if docNode != nil {
		s.Language = docNode.Attr("language")
		if end := docNode.Attr("end"); end != "" {
			if s.TextLength, err = strconv.Atoi(end); err != nil {
				return Summary{}, fmt.Errorf("summarize: document end %q: %w", end, err)
			}
		}
	}

	annotations, err := doc.XPath("/*/*[@sofa and @begin and @end and local-name()!='DocumentAnnotation']")
	if err != nil {
		return Summary{}, err
	}
	for _, n := range annotations {
		s.Types[n.QName()]++
	}
	s.Annotations = len(annotations)
	return s, nil
}
