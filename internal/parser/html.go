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

// HTMLDecoder renders h1-h6, p, li, td, blockquote, pre and img elements as
// blocks. b/strong and i/em set style flags; list items get a bullet marker.
type HTMLDecoder struct{}

func (d *HTMLDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(utf8Bytes(data)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromFilename(filename)
	if t := findTitle(root); t != "" {
		title = t
	}
	w := &htmlWalker{flow: newFlow(title)}
	if body := findElement(root, atom.Body); body != nil {
		w.walk(body)
	} else {
		w.walk(root)
	}
	return w.flow.finish(), nil
}

type htmlWalker struct {
	flow *flow
}

func (w *htmlWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Nav, atom.Head, atom.Noscript, atom.Template:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(n.Data[1] - '0')
			w.textBlock(n, "", headingSize(level), doctree.FlagBold)
			return
		case atom.P, atom.Td, atom.Th, atom.Blockquote, atom.Figcaption, atom.Dt, atom.Dd:
			w.textBlock(n, "", bodySize, 0)
			return
		case atom.Pre:
			w.textBlock(n, "", codeSize, 0)
			return
		case atom.Li:
			w.textBlock(n, "• ", bodySize, 0)
			return
		case atom.Img:
			w.img(n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *htmlWalker) textBlock(n *html.Node, prefix string, size float64, flags int) {
	var b spanBuilder
	b.add(prefix, size, flags)
	var imgs []*html.Node
	collectInline(n, &b, size, flags, &imgs)
	if l, ok := b.line(); ok {
		w.flow.text(l)
	}
	for _, img := range imgs {
		w.img(img)
	}
}

func (w *htmlWalker) img(n *html.Node) {
	width, _ := strconv.ParseFloat(attr(n, "width"), 64)
	height, _ := strconv.ParseFloat(attr(n, "height"), 64)
	if data, ok := decodeDataURL(attr(n, "src")); ok {
		w.flow.image(data, width, height)
		return
	}
	w.flow.unknown(max(height, bodySize*lineLead))
}

func collectInline(n *html.Node, b *spanBuilder, size float64, flags int, imgs *[]*html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.add(c.Data, size, flags)
		case html.ElementNode:
			f := flags
			switch c.DataAtom {
			case atom.Script, atom.Style:
				continue
			case atom.Img:
				*imgs = append(*imgs, c)
				continue
			case atom.Br:
				b.add(" ", size, f)
				continue
			case atom.B, atom.Strong:
				f |= doctree.FlagBold
			case atom.I, atom.Em:
				f |= doctree.FlagItalic
			}
			collectInline(c, b, size, f, imgs)
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func findTitle(n *html.Node) string {
	if t := findElement(n, atom.Title); t != nil {
		return textContent(t)
	}
	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
