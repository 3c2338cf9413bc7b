package parser

import (
	"fmt"
	"io"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// Point sizes used when rendering reflowable formats.
const (
	bodySize = 12.0
	codeSize = 10.0
)

// headingSizes maps heading level 1-6 to a point size.
var headingSizes = [...]float64{0, 24, 20, 16, 14, 13, 13}

func headingSize(level int) float64 {
	if level < 1 || level >= len(headingSizes) {
		return bodySize
	}
	return headingSizes[level]
}

// MarkdownDecoder renders Markdown with goldmark. Headings get larger bold
// sizes, emphasis sets style flags and list items keep their markers so the
// classifier can see them. Images are kept only when embedded as data URLs.
type MarkdownDecoder struct{}

func (d *MarkdownDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	src = utf8Bytes(src)

	root := goldmark.New().Parser().Parse(text.NewReader(src))
	w := &mdWalker{src: src, flow: newFlow(titleFromFilename(filename))}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		w.block(n)
	}
	return w.flow.finish(), nil
}

type mdWalker struct {
	src    []byte
	flow   *flow
	images []string
}

func (w *mdWalker) block(n ast.Node) {
	switch node := n.(type) {
	case *ast.Heading:
		w.inlineBlock(node, "", headingSize(node.Level), doctree.FlagBold)
	case *ast.Paragraph, *ast.TextBlock:
		w.inlineBlock(node, "", bodySize, 0)
	case *ast.List:
		w.list(node)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		w.code(node)
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			w.block(c)
		}
	}
}

func (w *mdWalker) list(l *ast.List) {
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = strconv.Itoa(num) + ". "
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				prefix := ""
				if first {
					prefix = marker
				}
				w.inlineBlock(c, prefix, bodySize, 0)
				first = false
			default:
				w.block(c)
			}
		}
	}
}

func (w *mdWalker) code(n ast.Node) {
	var lines []doctree.Line
	segs := n.Lines()
	for i := range segs.Len() {
		seg := segs.At(i)
		var b spanBuilder
		b.add(string(seg.Value(w.src)), codeSize, 0)
		if l, ok := b.line(); ok {
			lines = append(lines, l)
		}
	}
	w.flow.text(lines...)
}

// inlineBlock emits one text block for n's inline content followed by any
// images referenced inside it.
func (w *mdWalker) inlineBlock(n ast.Node, prefix string, size float64, flags int) {
	var b spanBuilder
	b.add(prefix, size, flags)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		w.inline(c, &b, size, flags)
	}
	if l, ok := b.line(); ok {
		w.flow.text(l)
	}

	for _, dest := range w.images {
		if data, ok := decodeDataURL(dest); ok {
			w.flow.image(data, 0, 0)
		} else {
			w.flow.unknown(bodySize * lineLead)
		}
	}
	w.images = w.images[:0]
}

func (w *mdWalker) inline(n ast.Node, b *spanBuilder, size float64, flags int) {
	switch node := n.(type) {
	case *ast.Text:
		b.add(string(node.Segment.Value(w.src)), size, flags)
		if node.SoftLineBreak() || node.HardLineBreak() {
			b.add(" ", size, flags)
		}
		return
	case *ast.String:
		b.add(string(node.Value), size, flags)
		return
	case *ast.Emphasis:
		if node.Level >= 2 {
			flags |= doctree.FlagBold
		} else {
			flags |= doctree.FlagItalic
		}
	case *ast.Image:
		w.images = append(w.images, string(node.Destination))
		return
	case *ast.AutoLink:
		b.add(string(node.Label(w.src)), size, flags)
		return
	case *ast.RawHTML:
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		w.inline(c, b, size, flags)
	}
}
