package batch

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/core/typeref"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
)

// unit builds a document with a delimiter over its whole text, one token
// per word and an HtmlTag per given ordinal.
func unit(key, lang, text string, ordinals ...int) *fastdoc.Document {
	doc := fastdoc.NewWithText(lang, text)
	doc.AddAnnotation(fastdoc.NSWikiDragon, "WikiTextSpan", 0, doc.Len()).SetAttribute("uid", key)
	pos := 0
	for _, w := range strings.Fields(text) {
		idx := strings.Index(text[pos:], w) + pos
		begin := u16len(text[:idx])
		tok := doc.AddAnnotation(fastdoc.NSSegmentation, "Token", begin, begin+u16len(w))
		tok.SetAttribute("form", w)
		pos = idx + len(w)
	}
	for i, o := range ordinals {
		tag := doc.AddAnnotation(fastdoc.NSWikiDragon, "HtmlTag", 0, min(i+1, doc.Len()))
		tag.SetAttribute("order", fmt.Sprint(o))
		tag.SetAttribute("name", "b")
	}
	return doc
}

func u16len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

type annTuple struct {
	URI, Name  string
	Begin, End int
	Attrs      string
}

func annotationSet(doc *fastdoc.Document, skipOrdinals bool) []annTuple {
	var out []annTuple
	for _, a := range doc.Annotations(false) {
		if skipOrdinals && typeref.OrderRef.Matches(a) {
			continue
		}
		var kv []string
		for _, k := range a.AttributeKeys() {
			kv = append(kv, k+"="+a.Attribute(k, ""))
		}
		out = append(out, annTuple{a.TypeURI(), a.Name(), a.Begin(), a.End(), strings.Join(kv, ",")})
	}
	sort.Slice(out, func(i, j int) bool { return fmt.Sprint(out[i]) < fmt.Sprint(out[j]) })
	return out
}

func ordinals(doc *fastdoc.Document) []int {
	var out []int
	for _, a := range doc.AnnotationsOf(fastdoc.NSWikiDragon, "HtmlTag", true) {
		n, err := a.IntAttribute("order")
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func TestJoinSplitInverse(t *testing.T) {
	docs := []*fastdoc.Document{
		unit("k1", "en", "The quick fox", 0, 1, 2),
		unit("k2", "en", "jumps over", 0, 1),
		unit("k3", "en", "the lazy dög 😀"),
	}

	joined, err := Join(docs, DefaultOptions())
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := joined.Validate(); err != nil {
		t.Fatalf("joined document invalid: %v", err)
	}
	if want := "The quick fox jumps over the lazy dög 😀 "; joined.Text() != want {
		t.Errorf("joined text = %q, want %q", joined.Text(), want)
	}

	units, err := Split(joined, DefaultOptions())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(units) != len(docs) {
		t.Fatalf("got %d units, want %d", len(units), len(docs))
	}
	for i, u := range units {
		if u.Text() != docs[i].Text() {
			t.Errorf("unit %d text = %q, want %q", i, u.Text(), docs[i].Text())
		}
		if u.Language() != docs[i].Language() {
			t.Errorf("unit %d language = %q", i, u.Language())
		}
		if got, want := annotationSet(u, false), annotationSet(docs[i], false); !reflect.DeepEqual(got, want) {
			t.Errorf("unit %d annotations differ\n got: %v\nwant: %v", i, got, want)
		}
	}
}

func TestOrdinalRenumbering(t *testing.T) {
	d1 := unit("k1", "en", "abc", 0, 1, 2)
	d2 := unit("k2", "en", "de", 0, 1)

	joined, err := Join([]*fastdoc.Document{d1, d2}, DefaultOptions())
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if got := ordinals(joined); !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Errorf("joined ordinals = %v, want [0 1 2 3 4]", got)
	}
	// The second unit's tags start at offset 4 ("abc ").
	for _, a := range joined.AnnotationsOf(fastdoc.NSWikiDragon, "HtmlTag", true) {
		n, _ := a.IntAttribute("order")
		if n >= 3 && a.Begin() != 4 {
			t.Errorf("tag with order %d at %d, want 4", n, a.Begin())
		}
	}

	units, err := Split(joined, DefaultOptions())
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if got := ordinals(units[0]); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("unit 0 ordinals = %v", got)
	}
	if got := ordinals(units[1]); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("unit 1 ordinals = %v", got)
	}
}

func TestJoinOrderOffsetWithoutOrdinals(t *testing.T) {
	docs := []*fastdoc.Document{
		unit("k1", "en", "a"),
		unit("k2", "en", "b", 0),
	}
	joined, err := Join(docs, DefaultOptions())
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	// A unit without ordinals still advances the offset by one.
	if got := ordinals(joined); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("ordinals = %v, want [1]", got)
	}
}

func TestJoinInvalidOrdinal(t *testing.T) {
	doc := unit("k1", "en", "abc")
	doc.AddAnnotation(fastdoc.NSWikiDragon, "HtmlTag", 0, 1).SetAttribute("order", "first")
	if _, err := Join([]*fastdoc.Document{doc}, DefaultOptions()); err == nil {
		t.Error("Join should fail for a non-integer ordinal")
	}

	missing := unit("k2", "en", "abc")
	missing.AddAnnotation(fastdoc.NSWikiDragon, "HtmlTag", 0, 1)
	if _, err := Join([]*fastdoc.Document{missing}, DefaultOptions()); err == nil {
		t.Error("Join should fail for a missing ordinal")
	}
}

func TestJoinNilDocument(t *testing.T) {
	if _, err := Join([]*fastdoc.Document{unit("k", "en", "x"), nil}, DefaultOptions()); err == nil {
		t.Error("Join should reject nil documents")
	}
}

func TestJoinEmpty(t *testing.T) {
	joined, err := Join(nil, DefaultOptions())
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if joined.Text() != "" || len(joined.Annotations(false)) != 0 {
		t.Errorf("empty join = %q", joined.Text())
	}
}

func TestJoinLanguageLastWins(t *testing.T) {
	var buf bytes.Buffer
	logging.InitLoggerTo(&buf, logging.LevelWarn, logging.FormatJSON)
	defer logging.InitLogger(logging.LevelInfo, logging.FormatJSON)

	joined, err := Join([]*fastdoc.Document{unit("k1", "de", "a"), unit("k2", "en", "b")}, DefaultOptions())
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if joined.Language() != "en" {
		t.Errorf("language = %q, want en", joined.Language())
	}
	if !strings.Contains(buf.String(), "differing languages") {
		t.Errorf("expected a language warning, got %q", buf.String())
	}

	buf.Reset()
	if _, err := Join([]*fastdoc.Document{unit("k1", "de", "a"), unit("k2", "de", "b")}, DefaultOptions()); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected warning: %s", buf.String())
	}
}

func TestSplitCustomTypes(t *testing.T) {
	opts := Options{
		Ordinal:   typeref.MustParse("{urn:t}Heading@level"),
		Delimiter: typeref.MustParse("{urn:t}Record@id"),
	}
	mk := func(id string, levels ...int) *fastdoc.Document {
		doc := fastdoc.NewWithText("en", "text "+id)
		doc.AddAnnotation("urn:t", "Record", 0, doc.Len()).SetAttribute("id", id)
		for _, l := range levels {
			doc.AddAnnotation("urn:t", "Heading", 0, 4).SetAttribute("level", fmt.Sprint(l))
		}
		return doc
	}

	joined, err := Join([]*fastdoc.Document{mk("a", 0, 3), mk("b", 0)}, opts)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	units, err := Split(joined, opts)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(units) != 2 || units[1].Text() != "text b" {
		t.Fatalf("units = %d", len(units))
	}
	levels := units[0].AnnotationsOf("urn:t", "Heading", true)
	if levels[0].Attribute("level", "") != "0" || levels[1].Attribute("level", "") != "3" {
		t.Errorf("levels = %v, %v", levels[0].Attributes(), levels[1].Attributes())
	}
}

func TestSplitWithoutDelimiters(t *testing.T) {
	doc := fastdoc.NewWithText("en", "no delimiters")
	doc.AddAnnotation(fastdoc.NSSegmentation, "Token", 0, 2)
	units, err := Split(doc, DefaultOptions())
	if err != nil || len(units) != 0 {
		t.Errorf("Split = %d units, %v", len(units), err)
	}
}

func TestPoolFits(t *testing.T) {
	p := NewPool(10)
	if !p.Fits(10) {
		t.Error("a candidate equal to the budget should fit an empty pool")
	}
	p.Add(fastdoc.New("en"), 6)
	if p.Fits(5) {
		t.Error("6+5 should exceed a budget of 10")
	}
	if !p.Fits(4) {
		t.Error("6+4 should fit a budget of 10")
	}
	if p.Len() != 1 || p.Size() != 6 || p.Budget() != 10 {
		t.Errorf("pool = len %d size %d budget %d", p.Len(), p.Size(), p.Budget())
	}
	p.Add(nil, 3)
	if p.Len() != 1 || p.Size() != 9 || p.Fits(2) {
		t.Errorf("nil doc should count toward the budget only: len %d size %d", p.Len(), p.Size())
	}

	unlimited := NewPool(0)
	unlimited.Add(fastdoc.New("en"), 1<<40)
	if !unlimited.Fits(1 << 40) {
		t.Error("unlimited pool should admit any size")
	}
}

func TestPackRespectsBudget(t *testing.T) {
	cands := []Candidate{
		{unit("k1", "en", "one"), 40},
		{unit("k2", "en", "two"), 40},
		{unit("k3", "en", "three"), 40},
		{unit("k4", "en", "four"), 1},
	}

	tests := []struct {
		budget   int
		wantN    int
		wantText string
	}{
		{39, 0, ""},
		{40, 1, "one "},
		{100, 2, "one two "},
		{120, 3, "one two three "},
		{Unlimited, 4, "one two three four "},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.budget), func(t *testing.T) {
			doc, n, err := Pack(cands, tt.budget, DefaultOptions())
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			if n != tt.wantN {
				t.Fatalf("consumed %d, want %d", n, tt.wantN)
			}
			if n == 0 {
				if doc != nil {
					t.Error("expected nil document when nothing fits")
				}
				return
			}
			if doc.Text() != tt.wantText {
				t.Errorf("text = %q, want %q", doc.Text(), tt.wantText)
			}
		})
	}
}

func TestPackStopsAtFirstMisfit(t *testing.T) {
	cands := []Candidate{
		{unit("k1", "en", "big"), 8},
		{unit("k2", "en", "huge"), 50},
		{unit("k3", "en", "small"), 1},
	}
	_, n, err := Pack(cands, 10, DefaultOptions())
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if n != 1 {
		t.Errorf("consumed %d, want 1: later candidates must wait for the next batch", n)
	}
}
