package doctree

import (
	"fmt"
	"math"
	"sort"
)

// BBox is a rectangle in page coordinates: x0, y0, x1, y1.
type BBox [4]float64

// Span flag bits as reported by MuPDF-style decoders.
const (
	FlagItalic = 2
	FlagBold   = 16
)

// Span is the smallest text run carrying one font size and one style.
type Span struct {
	Text  string
	Size  float64
	Flags int
}

// Style returns the style tag derived from the span flags.
func (s Span) Style() Style {
	return StyleOf(s.Flags)
}

// Line is an ordered sequence of spans.
type Line struct {
	Spans []Span
}

// RawSpan is a span as it arrives from a decoder. Missing fields stay nil.
type RawSpan struct {
	Text  *string
	Size  *float64
	Flags int
}

// RawLine is a line as it arrives from a decoder.
type RawLine struct {
	Spans *[]RawSpan
}

// RawBlock is a decoder block record. Which optional field is set decides its
// kind: Lines for text, Image for an embedded raster, neither for unknown.
type RawBlock struct {
	BBox  BBox
	Index int
	Lines *[]RawLine
	Image *[]byte
}

// Page is one decoded page, blocks in reading order.
type Page struct {
	Number int // 1-based
	Blocks []RawBlock
}

// Document is the decoded structure of a paginated document.
type Document struct {
	Title string
	Pages []Page
}

// RawText builds a text block record from well-formed lines.
func RawText(bbox BBox, lines ...Line) RawBlock {
	raw := make([]RawLine, 0, len(lines))
	for _, l := range lines {
		spans := make([]RawSpan, 0, len(l.Spans))
		for _, s := range l.Spans {
			text, size := s.Text, s.Size
			spans = append(spans, RawSpan{Text: &text, Size: &size, Flags: s.Flags})
		}
		raw = append(raw, RawLine{Spans: &spans})
	}
	return RawBlock{BBox: bbox, Lines: &raw}
}

// RawImage builds an image block record.
func RawImage(bbox BBox, data []byte) RawBlock {
	return RawBlock{BBox: bbox, Image: &data}
}

// Record is the tagged form of a RawBlock: TextRecord, ImageRecord or UnknownRecord.
type Record interface {
	record()
}

type TextRecord struct {
	BBox  BBox
	Index int
	Lines []Line
}

type ImageRecord struct {
	BBox  BBox
	Index int
	Image []byte
}

type UnknownRecord struct {
	BBox  BBox
	Index int
}

func (TextRecord) record()    {}
func (ImageRecord) record()   {}
func (UnknownRecord) record() {}

// StructuralError reports a text block whose lines or spans are malformed.
// It invalidates the whole document.
type StructuralError struct {
	Page  int
	Block int
	Line  int
	Span  int // -1 when the line itself is malformed
	Field string
	// Invalid is set when Field is present but unusable, such as a
	// non-positive size.
	Invalid bool
}

func (e *StructuralError) Error() string {
	problem := "missing"
	if e.Invalid {
		problem = "invalid"
	}
	if e.Span < 0 {
		return fmt.Sprintf("structural error: page %d block %d line %d: %s %q", e.Page, e.Block, e.Line, problem, e.Field)
	}
	return fmt.Sprintf("structural error: page %d block %d line %d span %d: %s %q", e.Page, e.Block, e.Line, e.Span, problem, e.Field)
}

// Record tags the block. Text blocks are validated span by span.
func (b RawBlock) Record() (Record, error) {
	switch {
	case b.Lines != nil:
		lines := make([]Line, 0, len(*b.Lines))
		for li, rl := range *b.Lines {
			if rl.Spans == nil {
				return nil, &StructuralError{Block: b.Index, Line: li, Span: -1, Field: "spans"}
			}
			spans := make([]Span, 0, len(*rl.Spans))
			for si, rs := range *rl.Spans {
				if rs.Text == nil {
					return nil, &StructuralError{Block: b.Index, Line: li, Span: si, Field: "text"}
				}
				if rs.Size == nil {
					return nil, &StructuralError{Block: b.Index, Line: li, Span: si, Field: "size"}
				}
				if size := *rs.Size; !(size > 0) || math.IsInf(size, 1) {
					return nil, &StructuralError{Block: b.Index, Line: li, Span: si, Field: "size", Invalid: true}
				}
				spans = append(spans, Span{Text: *rs.Text, Size: *rs.Size, Flags: rs.Flags})
			}
			lines = append(lines, Line{Spans: spans})
		}
		return TextRecord{BBox: b.BBox, Index: b.Index, Lines: lines}, nil
	case b.Image != nil:
		return ImageRecord{BBox: b.BBox, Index: b.Index, Image: *b.Image}, nil
	default:
		return UnknownRecord{BBox: b.BBox, Index: b.Index}, nil
	}
}

// SortBlocks orders blocks top-to-bottom then left-to-right by their lower
// edge and renumbers Index to the sorted position.
func SortBlocks(blocks []RawBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i].BBox, blocks[j].BBox
		if a[3] != b[3] {
			return a[3] < b[3]
		}
		return a[0] < b[0]
	})
	for i := range blocks {
		blocks[i].Index = i
	}
}
