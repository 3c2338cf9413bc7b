package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// HOCRDecoder reads OCR output in hOCR format (Tesseract, OCRopus, ...).
// ocr_page elements become pages, ocr_par blocks, ocr_line lines and
// ocrx_word spans. Word size comes from x_fsize, falling back to the line's
// x_size; strong/em inside a word set the style flags. Photo and image
// regions carry no pixels and become unknown blocks. Pixel coordinates are
// converted to points using the page's scan_res when present.
type HOCRDecoder struct{}

func (d *HOCRDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hocr: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(utf8Bytes(data)))
	if err != nil {
		return nil, fmt.Errorf("parse hocr: %w", err)
	}

	doc := &doctree.Document{Title: titleFromFilename(filename)}
	if t := findTitle(root); t != "" {
		doc.Title = t
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if hasClass(n, "ocr_page") {
			doc.Pages = append(doc.Pages, hocrPage(n, len(doc.Pages)+1))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("parse hocr: no ocr_page elements")
	}
	return doc, nil
}

type hocrScale struct {
	factor float64 // points per pixel
}

func (s hocrScale) box(props map[string][]string) doctree.BBox {
	var b doctree.BBox
	v := props["bbox"]
	for i := 0; i < 4 && i < len(v); i++ {
		f, _ := strconv.ParseFloat(v[i], 64)
		b[i] = f * s.factor
	}
	return b
}

func hocrPage(n *html.Node, number int) doctree.Page {
	props := hocrProps(attr(n, "title"))
	scale := hocrScale{factor: 1}
	if res := props["scan_res"]; len(res) > 0 {
		if dpi, err := strconv.ParseFloat(res[0], 64); err == nil && dpi > 0 {
			scale.factor = 72 / dpi
		}
	}

	page := doctree.Page{Number: number}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case hasClass(n, "ocr_par"):
			if b, ok := hocrBlock(n, scale); ok {
				page.Blocks = append(page.Blocks, b)
			}
			return
		case isHOCRLine(n):
			// A line outside any paragraph is a block of its own.
			if l, ok := hocrLine(n, scale); ok {
				page.Blocks = append(page.Blocks, doctree.RawText(scale.box(hocrProps(attr(n, "title"))), l))
			}
			return
		case hasClass(n, "ocr_photo"), hasClass(n, "ocr_image"), hasClass(n, "ocr_graphic"):
			page.Blocks = append(page.Blocks, doctree.RawBlock{BBox: scale.box(hocrProps(attr(n, "title")))})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	doctree.SortBlocks(page.Blocks)
	return page
}

func hocrBlock(par *html.Node, scale hocrScale) (doctree.RawBlock, bool) {
	var lines []doctree.Line
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isHOCRLine(n) {
			if l, ok := hocrLine(n, scale); ok {
				lines = append(lines, l)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(par)
	if len(lines) == 0 {
		return doctree.RawBlock{}, false
	}
	return doctree.RawText(scale.box(hocrProps(attr(par, "title"))), lines...), true
}

func hocrLine(n *html.Node, scale hocrScale) (doctree.Line, bool) {
	lineSize := bodySize
	if xs := hocrProps(attr(n, "title"))["x_size"]; len(xs) > 0 {
		if v, err := strconv.ParseFloat(xs[0], 64); err == nil && v > 0 {
			lineSize = v * scale.factor
		}
	}

	var b spanBuilder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if hasClass(n, "ocrx_word") {
			size := lineSize
			if fs := hocrProps(attr(n, "title"))["x_fsize"]; len(fs) > 0 {
				if v, err := strconv.ParseFloat(fs[0], 64); err == nil && v > 0 {
					size = v
				}
			}
			b.add(textContent(n)+" ", size, wordFlags(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.line()
}

func wordFlags(n *html.Node) int {
	flags := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Strong, atom.B:
				flags |= doctree.FlagBold
			case atom.Em, atom.I:
				flags |= doctree.FlagItalic
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return flags
}

func isHOCRLine(n *html.Node) bool {
	return hasClass(n, "ocr_line") || hasClass(n, "ocr_header") ||
		hasClass(n, "ocr_caption") || hasClass(n, "ocr_textfloat")
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// hocrProps splits an hOCR title attribute ("bbox 0 0 10 10; x_wconf 95")
// into property name and values.
func hocrProps(title string) map[string][]string {
	props := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		props[fields[0]] = fields[1:]
	}
	return props
}
