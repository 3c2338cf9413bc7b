package parser

import (
	"math"
	"unicode/utf8"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// US Letter in points with one-inch margins.
const (
	pageWidth  = 612.0
	pageHeight = 792.0
	margin     = 72.0
	blockGap   = 6.0
	lineLead   = 1.2
	// average glyph advance as a fraction of the font size
	glyphAdvance = 0.5
)

// flow assigns page geometry to reflowable documents (Markdown, DOCX, HTML,
// plain text) that carry no coordinates of their own. Blocks stack top to
// bottom and spill onto a new page when the current one is full.
type flow struct {
	doc  *doctree.Document
	page *doctree.Page
	y    float64
}

func newFlow(title string) *flow {
	f := &flow{doc: &doctree.Document{Title: title}}
	f.newPage()
	return f
}

func (f *flow) newPage() {
	if f.page != nil && len(f.page.Blocks) == 0 {
		return
	}
	f.doc.Pages = append(f.doc.Pages, doctree.Page{Number: len(f.doc.Pages) + 1})
	f.page = &f.doc.Pages[len(f.doc.Pages)-1]
	f.y = margin
}

// place reserves a box of height h and returns it.
func (f *flow) place(width, h float64) doctree.BBox {
	if f.y+h > pageHeight-margin && len(f.page.Blocks) > 0 {
		f.newPage()
	}
	box := doctree.BBox{margin, f.y, margin + width, f.y + h}
	f.y += h + blockGap
	return box
}

// text adds a text block. Lines without spans are skipped; a block with no
// lines left is dropped.
func (f *flow) text(lines ...doctree.Line) {
	var kept []doctree.Line
	height, width := 0.0, 0.0
	for _, l := range lines {
		if len(l.Spans) == 0 {
			continue
		}
		kept = append(kept, l)
		size, runes := 0.0, 0
		for _, s := range l.Spans {
			size = max(size, s.Size)
			runes += utf8.RuneCountInString(s.Text) + 1
		}
		natural := float64(runes) * size * glyphAdvance
		rows := max(math.Ceil(natural/(pageWidth-2*margin)), 1)
		height += rows * size * lineLead
		width = max(width, min(natural, pageWidth-2*margin))
	}
	if len(kept) == 0 {
		return
	}
	f.page.Blocks = append(f.page.Blocks, doctree.RawText(f.place(width, height), kept...))
}

// image adds an image block scaled to the text width when wider.
func (f *flow) image(data []byte, w, h float64) {
	if w <= 0 || h <= 0 {
		w, h = 200, 150
	}
	if limit := pageWidth - 2*margin; w > limit {
		h = h * limit / w
		w = limit
	}
	f.page.Blocks = append(f.page.Blocks, doctree.RawImage(f.place(w, h), data))
}

// unknown adds a block that is neither text nor image, such as an image
// reference whose bytes are not available.
func (f *flow) unknown(h float64) {
	f.page.Blocks = append(f.page.Blocks, doctree.RawBlock{BBox: f.place(pageWidth-2*margin, h)})
}

func (f *flow) finish() *doctree.Document {
	if n := len(f.doc.Pages); n > 1 && len(f.doc.Pages[n-1].Blocks) == 0 {
		f.doc.Pages = f.doc.Pages[:n-1]
	}
	for i := range f.doc.Pages {
		doctree.SortBlocks(f.doc.Pages[i].Blocks)
	}
	return f.doc
}
