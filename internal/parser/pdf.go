package parser

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// PDFDecoder reconstructs lines and blocks from positioned glyphs. Glyphs on
// one baseline form a line, a change of font or size starts a new span, and
// vertically adjacent lines of similar size form a block. Bold and italic
// come from the font name. When the document yields no text and
// FallbackPdftotext is set, pdftotext output is laid out at body size.
type PDFDecoder struct {
	FallbackPdftotext bool
}

func (d *PDFDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	doc, err := decodePDF(data, titleFromFilename(filename))
	if err == nil && hasText(doc) {
		return doc, nil
	}
	if !d.FallbackPdftotext {
		if err != nil {
			return nil, fmt.Errorf("extract pdf text: %w", err)
		}
		return doc, nil
	}

	fallback, ferr := pdftotextDocument(data, titleFromFilename(filename))
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("extract pdf text: %w (fallback: %v)", err, ferr)
		}
		return doc, nil
	}
	return fallback, nil
}

func decodePDF(data []byte, title string) (doc *doctree.Document, err error) {
	// The pdf library panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	doc = &doctree.Document{Title: title}
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		page := doctree.Page{Number: i}
		if !p.V.IsNull() {
			page.Blocks = pdfBlocks(p.Content().Text, mediaHeight(p))
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func mediaHeight(p pdflib.Page) float64 {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if box := v.Key("MediaBox"); box.Len() == 4 {
			return box.Index(3).Float64() - box.Index(1).Float64()
		}
	}
	return pageHeight
}

func hasText(doc *doctree.Document) bool {
	for _, p := range doc.Pages {
		if len(p.Blocks) > 0 {
			return true
		}
	}
	return false
}

type pdfLine struct {
	spans          spanBuilder
	x0, x1         float64
	baseline, size float64
	lastX          float64
}

func (l *pdfLine) box() doctree.BBox {
	return doctree.BBox{l.x0, l.baseline - l.size*0.8, l.x1, l.baseline + l.size*0.2}
}

// pdfBlocks groups glyphs into text blocks in top-to-bottom coordinates.
func pdfBlocks(glyphs []pdflib.Text, height float64) []doctree.RawBlock {
	var lines []*pdfLine
	var cur *pdfLine
	lastFont := ""

	for _, g := range glyphs {
		if g.S == "" || g.FontSize <= 0 {
			continue
		}
		baseline := height - g.Y
		if cur == nil || math.Abs(baseline-cur.baseline) > 0.5*max(g.FontSize, cur.size) || g.X < cur.lastX-g.FontSize {
			cur = &pdfLine{x0: g.X, x1: g.X + g.W, baseline: baseline, size: g.FontSize, lastX: g.X}
			lines = append(lines, cur)
			lastFont = ""
		}
		flags := fontFlags(g.Font)
		if lastFont != "" && g.X-cur.x1 > 0.25*g.FontSize {
			cur.spans.add(" ", g.FontSize, flags)
		}
		cur.spans.add(g.S, g.FontSize, flags)
		cur.x0 = min(cur.x0, g.X)
		cur.x1 = max(cur.x1, g.X+g.W)
		cur.size = max(cur.size, g.FontSize)
		cur.lastX = g.X
		lastFont = g.Font
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].baseline < lines[j].baseline })

	var blocks []doctree.RawBlock
	var group []doctree.Line
	var box doctree.BBox
	var prev *pdfLine
	flush := func() {
		if len(group) > 0 {
			blocks = append(blocks, doctree.RawText(box, group...))
			group = nil
		}
	}
	for _, l := range lines {
		line, ok := l.spans.line()
		if !ok {
			continue
		}
		b := l.box()
		if prev != nil && !sameBlock(prev, l) {
			flush()
		}
		if len(group) == 0 {
			box = b
		} else {
			box = doctree.BBox{min(box[0], b[0]), min(box[1], b[1]), max(box[2], b[2]), max(box[3], b[3])}
		}
		group = append(group, line)
		prev = l
	}
	flush()

	doctree.SortBlocks(blocks)
	return blocks
}

// sameBlock reports whether next continues prev's paragraph: similar size and
// a vertical gap under about one line.
func sameBlock(prev, next *pdfLine) bool {
	if math.Abs(prev.size-next.size) >= 1 {
		return false
	}
	gap := next.baseline - prev.baseline
	return gap > 0 && gap <= prev.size*1.6
}

func fontFlags(font string) int {
	name := strings.ToLower(font)
	flags := 0
	if strings.Contains(name, "bold") || strings.Contains(name, "black") || strings.Contains(name, "heavy") {
		flags |= doctree.FlagBold
	}
	if strings.Contains(name, "italic") || strings.Contains(name, "oblique") {
		flags |= doctree.FlagItalic
	}
	return flags
}

func pdftotextDocument(data []byte, title string) (*doctree.Document, error) {
	tmp, err := os.CreateTemp("", "docblocks-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmpPath, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	f := newFlow(title)
	if err := flowText(f, bytes.NewReader(out)); err != nil {
		return nil, err
	}
	return f.finish(), nil
}
