// Package batch pools several small documents into one larger document for
// batch processing and splits a processed pooled document back into its
// original units.
//
// Each unit carries one delimiter annotation covering its whole text. Join
// shifts annotation offsets by the unit's position in the pooled text and
// renumbers ordinal-bearing annotations so that ordinals stay strictly
// increasing across the pool. Split undoes both.
package batch

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/oakenshield/TextImagerCassandraDriver/core/fastdoc"
	"github.com/oakenshield/TextImagerCassandraDriver/core/typeref"
	"github.com/oakenshield/TextImagerCassandraDriver/internal/logging"
)

// Unlimited is a budget that admits every candidate.
const Unlimited = math.MaxInt

// separator follows every unit's text in a pooled document.
const separator = " "

// Options names the annotation kinds Join and Split work with.
type Options struct {
	// Ordinal identifies ordinal-bearing annotations and their integer
	// attribute. An empty Attr disables renumbering.
	Ordinal typeref.Ref
	// Delimiter identifies the annotation marking one unit and the attribute
	// holding the unit's record key.
	Delimiter typeref.Ref
}

// DefaultOptions returns the wikidragon HtmlTag/WikiTextSpan configuration.
func DefaultOptions() Options {
	return Options{
		Ordinal:   typeref.OrderRef,
		Delimiter: typeref.DelimiterRef,
	}
}

func (o Options) isOrdinal(a *fastdoc.Annotation) bool {
	return o.Ordinal.Attr != "" && o.Ordinal.Matches(a)
}

func (o Options) ordinal(a *fastdoc.Annotation) (int, error) {
	n, err := a.IntAttribute(o.Ordinal.Attr)
	if err != nil {
		return 0, fmt.Errorf("ordinal of %s: %w", a, err)
	}
	return n, nil
}

// Candidate is a document offered to the pool together with the byte
// length of its encoded form.
type Candidate struct {
	Doc  *fastdoc.Document
	Size int
}

// Pool accumulates documents while their total encoded size stays within
// a byte budget.
type Pool struct {
	budget int
	size   int
	docs   []*fastdoc.Document
}

// NewPool returns an empty pool. A budget <= 0 means Unlimited.
func NewPool(budget int) *Pool {
	if budget <= 0 {
		budget = Unlimited
	}
	return &Pool{budget: budget}
}

// Fits reports whether a document of the given size can be admitted.
func (p *Pool) Fits(size int) bool {
	return size <= p.budget-p.size
}

// Add admits doc unconditionally; callers check Fits first. The size is
// always charged to the budget, while a nil doc is not kept.
func (p *Pool) Add(doc *fastdoc.Document, size int) {
	if doc != nil {
		p.docs = append(p.docs, doc)
	}
	p.size += size
}

// Len returns the number of admitted non-nil documents.
func (p *Pool) Len() int {
	return len(p.docs)
}

// Size returns the total encoded size of the admitted documents.
func (p *Pool) Size() int {
	return p.size
}

// Budget returns the pool's byte budget.
func (p *Pool) Budget() int {
	return p.budget
}

// Documents returns the admitted documents in admission order.
func (p *Pool) Documents() []*fastdoc.Document {
	return p.docs
}

// Pack admits the longest prefix of cands that fits the budget and joins
// it. It returns the pooled document and the number of candidates consumed;
// the rest are left for the next batch. When not even the first candidate
// fits, Pack returns nil, 0, nil.
func Pack(cands []Candidate, budget int, opts Options) (*fastdoc.Document, int, error) {
	pool := NewPool(budget)
	for _, c := range cands {
		if !pool.Fits(c.Size) {
			break
		}
		pool.Add(c.Doc, c.Size)
	}
	if pool.Len() == 0 {
		return nil, 0, nil
	}

	doc, err := Join(pool.Documents(), opts)
	if err != nil {
		return nil, 0, err
	}
	return doc, pool.Len(), nil
}

// Join concatenates docs into a new document. Every unit's text is followed
// by one space. The pooled document takes the language of the last unit; a
// warning is logged when the units disagree.
func Join(docs []*fastdoc.Document, opts Options) (*fastdoc.Document, error) {
	var text strings.Builder
	offsets := make([]int, len(docs))
	offset := 0
	for i, d := range docs {
		if d == nil {
			return nil, fmt.Errorf("join: document %d is nil", i)
		}
		offsets[i] = offset
		text.WriteString(d.Text())
		text.WriteString(separator)
		offset += d.Len() + 1
	}

	joined := fastdoc.NewWithText("", text.String())
	languages := make(map[string]bool)
	orderOffset := 0
	for i, d := range docs {
		joined.SetLanguage(d.Language())
		languages[d.Language()] = true

		maxOrder := 0
		for _, a := range d.Annotations(true) {
			na := joined.AddAnnotation(a.TypeURI(), a.Name(), a.Begin()+offsets[i], a.End()+offsets[i])
			for k, v := range a.Attributes() {
				na.SetAttribute(k, v)
			}
			if !opts.isOrdinal(a) {
				continue
			}
			order, err := opts.ordinal(a)
			if err != nil {
				return nil, fmt.Errorf("join: document %d: %w", i, err)
			}
			maxOrder = max(maxOrder, order)
			na.SetAttribute(opts.Ordinal.Attr, strconv.Itoa(order+orderOffset))
		}
		orderOffset += maxOrder + 1
	}

	if len(languages) > 1 {
		langs := make([]string, 0, len(languages))
		for l := range languages {
			langs = append(langs, l)
		}
		slices.Sort(langs)
		logging.Warn("pooled documents have differing languages",
			"languages", langs, "chosen", joined.Language(), "documents", len(docs))
	}
	return joined, nil
}

// Split cuts a pooled document at its delimiter annotations, in sorted
// order. Each unit gets the delimiter's covered text and copies of every
// annotation the delimiter subsumes, shifted to the unit's start, with
// ordinals re-based to the smallest ordinal in the unit.
func Split(doc *fastdoc.Document, opts Options) ([]*fastdoc.Document, error) {
	var units []*fastdoc.Document
	for _, delim := range doc.AnnotationsOf(opts.Delimiter.URI, opts.Delimiter.Name, true) {
		unit, err := splitUnit(doc, delim, opts)
		if err != nil {
			return nil, fmt.Errorf("split: %w", err)
		}
		units = append(units, unit)
	}
	return units, nil
}

func splitUnit(doc *fastdoc.Document, delim *fastdoc.Annotation, opts Options) (*fastdoc.Document, error) {
	shift := delim.Begin()
	subsumed := doc.SubsumedBy(delim, true)

	minOrder := math.MaxInt
	for _, a := range subsumed {
		if !opts.isOrdinal(a) {
			continue
		}
		order, err := opts.ordinal(a)
		if err != nil {
			return nil, err
		}
		minOrder = min(minOrder, order)
	}
	if minOrder == math.MaxInt {
		minOrder = 0
	}

	unit := fastdoc.NewWithText(doc.Language(), delim.Text())
	for _, a := range subsumed {
		na := unit.AddAnnotation(a.TypeURI(), a.Name(), a.Begin()-shift, a.End()-shift)
		for k, v := range a.Attributes() {
			na.SetAttribute(k, v)
		}
		if opts.isOrdinal(a) {
			order, _ := opts.ordinal(a)
			na.SetAttribute(opts.Ordinal.Attr, strconv.Itoa(order-minOrder))
		}
	}
	return unit, nil
}
