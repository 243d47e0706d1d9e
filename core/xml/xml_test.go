package xml

import (
	"reflect"
	"strings"
	"testing"

	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/core/xmi"
)

func samplePayload(t *testing.T) []byte {
	t.Helper()
	doc := fastdoc.NewWithText("de", "Ein\tkleiner\nText")
	doc.AddAnnotation(fastdoc.NSSegmentation, "Token", 0, 3)
	doc.AddAnnotation(fastdoc.NSSegmentation, "Token", 4, 11)
	doc.AddAnnotation(fastdoc.NSWikiDragon, "HtmlTag", 4, 11).SetAttribute("order", "0")
	doc.AddAnnotation("urn:custom", "Thing", 12, 16).SetAttribute("note", `a "quoted" <value>`)
	data, err := xmi.Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

// TestParseInvalidXML verifies error handling for malformed XML.
func TestParseInvalidXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"unclosed tag", "<root><element></root>"},
		{"mismatched tags", "<root></other>"},
		{"invalid chars", "<root>\x00</root>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.xml)); err == nil {
				t.Error("Parse should fail for invalid XML")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if result := Validate(samplePayload(t)); !result.Valid {
		t.Errorf("encoded payload should be well-formed: %v", result.Errors)
	}

	result := Validate([]byte("<root><child></root>"))
	if result.Valid {
		t.Fatal("mismatched tags should not validate")
	}
	if len(result.Errors) != 1 || result.Errors[0].Message == "" {
		t.Errorf("Errors = %+v", result.Errors)
	}
}

func TestValidateRejectsEntities(t *testing.T) {
	data := `<?xml version="1.0"?><!DOCTYPE r [<!ENTITY x "boom">]><r>&x;</r>`
	if Validate([]byte(data)).Valid {
		t.Error("entity references must not be expanded")
	}
}

func TestXPath(t *testing.T) {
	doc, err := Parse(samplePayload(t))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	tokens, err := doc.XPath("//seg:Token")
	if err != nil {
		t.Fatalf("XPath failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(tokens))
	}
	if tokens[1].Attr("begin") != "4" || tokens[1].QName() != "seg:Token" || tokens[1].Name() != "Token" {
		t.Errorf("second token = %s begin=%s", tokens[1].QName(), tokens[1].Attr("begin"))
	}

	sofa, err := doc.XPathFirst("//cas:Sofa")
	if err != nil || sofa == nil {
		t.Fatalf("XPathFirst(sofa) = %v, %v", sofa, err)
	}
	if got := sofa.Attr("sofaString"); got != "Ein\tkleiner\nText" {
		t.Errorf("sofaString = %q", got)
	}

	missing, err := doc.XPathFirst("//nothing")
	if err != nil || missing != nil {
		t.Errorf("XPathFirst(missing) = %v, %v", missing, err)
	}
}

func TestXPathInvalidExpression(t *testing.T) {
	doc, err := Parse([]byte(`<root/>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := doc.XPath("[invalid"); err == nil {
		t.Error("Invalid XPath should return error")
	}
	if _, err := doc.XPathFirst("[invalid"); err == nil {
		t.Error("Invalid XPath should return error")
	}
}

func TestNodeAttributes(t *testing.T) {
	doc, err := Parse([]byte(`<r xmlns:xmi="http://www.omg.org/XMI"><e xmi:id="3" begin="0"/></r>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	e, _ := doc.XPathFirst("//e")
	want := map[string]string{"xmi:id": "3", "begin": "0"}
	if got := e.Attributes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Attributes = %v, want %v", got, want)
	}

	var empty Node
	if empty.Name() != "" || empty.Attr("x") != "" || empty.Attributes() != nil || empty.InnerText() != "" {
		t.Error("zero Node accessors should return zero values")
	}
}

func TestDocumentRoot(t *testing.T) {
	doc, err := Parse(samplePayload(t))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if root := doc.Root(); root == nil || root.QName() != "xmi:XMI" {
		t.Errorf("Root = %v", root)
	}
	if (&Document{}).Root() != nil {
		t.Error("empty document should have no root")
	}
}

func TestFormat(t *testing.T) {
	formatted, err := Format([]byte(`<?xml version="1.0"?><ns:root xmlns:ns="urn:x"><ns:child a="1"/><leaf>text</leaf></ns:root>`), FormatOptions{})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	want := "<?xml version=\"1.0\"?>\n" +
		"<ns:root xmlns:ns=\"urn:x\">\n" +
		"  <ns:child a=\"1\"/>\n" +
		"  <leaf>text</leaf>\n" +
		"</ns:root>\n"
	if string(formatted) != want {
		t.Errorf("Format =\n%s\nwant\n%s", formatted, want)
	}
}

func TestFormatInvalidXML(t *testing.T) {
	if _, err := Format([]byte("<root>"), FormatOptions{}); err == nil {
		t.Error("Format should fail for invalid XML")
	}
}

func TestFormatKeepsPayloadDecodable(t *testing.T) {
	data := samplePayload(t)
	formatted, err := Format(data, FormatOptions{Indent: "\t"})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if !strings.Contains(string(formatted), "\n\t<seg:Token ") {
		t.Errorf("expected one element per line:\n%s", formatted)
	}

	orig, err := xmi.DecodeBytes(data)
	if err != nil {
		t.Fatalf("Decode(original) failed: %v", err)
	}
	pretty, err := xmi.DecodeBytes(formatted)
	if err != nil {
		t.Fatalf("Decode(formatted) failed: %v", err)
	}
	if pretty.Text() != orig.Text() || pretty.Language() != orig.Language() {
		t.Errorf("formatted payload decodes to %q/%q", pretty.Text(), pretty.Language())
	}
	if len(pretty.Annotations(false)) != len(orig.Annotations(false)) {
		t.Errorf("annotation count %d, want %d", len(pretty.Annotations(false)), len(orig.Annotations(false)))
	}
	thing := pretty.AnnotationsOf("urn:custom", "Thing", false)
	if len(thing) != 1 || thing[0].Attribute("note", "") != `a "quoted" <value>` {
		t.Errorf("custom annotation lost its attribute: %v", thing)
	}
}

func TestSummarize(t *testing.T) {
	s, err := Summarize(samplePayload(t))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.Language != "de" || s.TextLength != 16 || s.Annotations != 4 {
		t.Errorf("Summary = %+v", s)
	}
	wantTypes := map[string]int{"seg:Token": 2, "wikidragon:HtmlTag": 1, "type1:Thing": 1}
	if !reflect.DeepEqual(s.Types, wantTypes) {
		t.Errorf("Types = %v, want %v", s.Types, wantTypes)
	}
	if got := s.TypeNames(); !reflect.DeepEqual(got, []string{"seg:Token", "type1:Thing", "wikidragon:HtmlTag"}) {
		t.Errorf("TypeNames = %v", got)
	}
	if s.Namespaces["type1"] != "urn:custom" || s.Namespaces["cas"] != fastdoc.NSCAS {
		t.Errorf("Namespaces = %v", s.Namespaces)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s, err := Summarize([]byte(`<root/>`))
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.Annotations != 0 || s.Language != "" {
		t.Errorf("Summary = %+v", s)
	}
	if _, err := Summarize([]byte("not xml")); err == nil {
		t.Error("Summarize should fail for invalid input")
	}
}
