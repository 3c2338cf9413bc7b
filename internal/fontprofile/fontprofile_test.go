package fontprofile

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// docWithSizes builds a one-page document holding one block per entry, each
// with chars characters at the given size.
func docWithSizes(sizes map[float64]int) *doctree.Document {
	var blocks []doctree.RawBlock
	for size, chars := range sizes {
		blocks = append(blocks, doctree.RawText(doctree.BBox{0, 0, 100, 10},
			doctree.Line{Spans: []doctree.Span{{Text: strings.Repeat("x", chars), Size: size}}}))
	}
	return &doctree.Document{Pages: []doctree.Page{{Number: 1, Blocks: blocks}}}
}

func TestAnalyze_TwoSizes(t *testing.T) {
	p, err := Analyze(docWithSizes(map[float64]int{12: 95, 18: 5}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("expected 2 sizes, got %d", p.Len())
	}
	if r, _ := p.Role(12); r != RoleBodyText {
		t.Errorf("expected 12 to be body_text, got %q", r)
	}
	if r, _ := p.Role(18); r != RoleHeading {
		t.Errorf("expected 18 to be heading, got %q", r)
	}
	if e, _ := p.Entry(12); e.Frequency != 95 {
		t.Errorf("expected frequency 95, got %v", e.Frequency)
	}
	if p.BodySize() != 12 {
		t.Errorf("expected body size 12, got %d", p.BodySize())
	}
}

func TestAnalyze_RoleAssignment(t *testing.T) {
	p, err := Analyze(docWithSizes(map[float64]int{
		6: 5, 8: 10, 9: 10, 11: 100, 13: 10, 16: 10, 24: 5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[int]Role{
		6:  RoleFootnote,
		8:  RoleOther,
		9:  RoleOther,
		11: RoleBodyText,
		13: RoleSubHeading,
		16: RoleSubHeading,
		24: RoleHeading,
	}
	for size, role := range want {
		got, ok := p.Role(size)
		if !ok {
			t.Errorf("size %d missing from profile", size)
			continue
		}
		if got != role {
			t.Errorf("size %d: expected %q, got %q", size, role, got)
		}
	}
}

func TestAnalyze_RoleInvariants(t *testing.T) {
	docs := []map[float64]int{
		{10: 1},
		{10: 50, 12: 50},
		{7: 3, 10: 40, 12: 41, 14: 2, 20: 9, 30: 5},
		{9.7: 33, 9.2: 33, 14: 34},
	}
	for i, sizes := range docs {
		p, err := Analyze(docWithSizes(sizes))
		if err != nil {
			t.Fatalf("doc %d: unexpected error: %v", i, err)
		}

		counts := map[Role]int{}
		sum := 0.0
		for _, size := range p.Sizes() {
			e, _ := p.Entry(size)
			counts[e.Role]++
			sum += e.Frequency
		}
		if counts[RoleBodyText] != 1 {
			t.Errorf("doc %d: expected exactly one body_text, got %d", i, counts[RoleBodyText])
		}
		if counts[RoleFootnote] > 1 || counts[RoleHeading] > 1 {
			t.Errorf("doc %d: expected at most one footnote and heading, got %v", i, counts)
		}
		if eps := 0.01 * float64(p.Len()); math.Abs(sum-100) > eps {
			t.Errorf("doc %d: frequencies sum to %v, want 100 within %v", i, sum, eps)
		}

		body := p.BodySize()
		for _, size := range p.Sizes() {
			r, _ := p.Role(size)
			switch {
			case size < body && size == p.Sizes()[0]:
				if r != RoleFootnote {
					t.Errorf("doc %d size %d: expected footnote, got %q", i, size, r)
				}
			case size < body:
				if r != RoleOther {
					t.Errorf("doc %d size %d: expected other, got %q", i, size, r)
				}
			case size > body && size == p.Sizes()[p.Len()-1]:
				if r != RoleHeading {
					t.Errorf("doc %d size %d: expected heading, got %q", i, size, r)
				}
			case size > body:
				if r != RoleSubHeading {
					t.Errorf("doc %d size %d: expected sub_heading, got %q", i, size, r)
				}
			}
		}
	}
}

func TestAnalyze_TieBreaksToSmallestSize(t *testing.T) {
	p, err := Analyze(docWithSizes(map[float64]int{10: 50, 12: 50}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.BodySize() != 10 {
		t.Errorf("expected tie to resolve to 10, got %d", p.BodySize())
	}
	if r, _ := p.Role(12); r != RoleHeading {
		t.Errorf("expected 12 to be heading, got %q", r)
	}
}

func TestAnalyze_TruncatesFractionalSizes(t *testing.T) {
	p, err := Analyze(docWithSizes(map[float64]int{11.2: 30, 11.9: 30, 14.5: 5}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("expected sizes 11 and 14, got %v", p.Sizes())
	}
	if e, _ := p.Entry(11); e.Role != RoleBodyText {
		t.Errorf("expected 11 to be body_text, got %q", e.Role)
	}
}

func TestAnalyze_EmptyDocument(t *testing.T) {
	doc := &doctree.Document{Pages: []doctree.Page{{
		Number: 1,
		Blocks: []doctree.RawBlock{doctree.RawImage(doctree.BBox{0, 0, 10, 10}, []byte{1})},
	}}}
	_, err := Analyze(doc)
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestAnalyze_StructuralError(t *testing.T) {
	text := "no size"
	spans := []doctree.RawSpan{{Text: &text}}
	lines := []doctree.RawLine{{Spans: &spans}}
	doc := &doctree.Document{Pages: []doctree.Page{
		{Number: 1, Blocks: []doctree.RawBlock{doctree.RawText(doctree.BBox{}, doctree.Line{Spans: []doctree.Span{{Text: "fine", Size: 12}}})}},
		{Number: 2, Blocks: []doctree.RawBlock{{Lines: &lines}}},
	}}

	p, err := Analyze(doc)
	var se *doctree.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if se.Page != 2 || se.Field != "size" {
		t.Errorf("unexpected error detail: %+v", se)
	}
	if p.Len() != 0 {
		t.Errorf("expected no partial profile, got %d sizes", p.Len())
	}
}

func TestProfile_UnknownSize(t *testing.T) {
	p, _ := Analyze(docWithSizes(map[float64]int{12: 10}))
	if _, ok := p.Role(99); ok {
		t.Error("expected unobserved size to be reported missing")
	}
}
