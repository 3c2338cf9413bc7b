package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// TextDecoder handles plain text. Blank lines separate paragraphs, each
// paragraph is one block and every source line one line at body size.
// A form feed starts a new page.
type TextDecoder struct{}

func (d *TextDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	f := newFlow(titleFromFilename(filename))
	if err := flowText(f, r); err != nil {
		return nil, err
	}
	return f.finish(), nil
}

// flowText lays out plain text paragraphs onto f.
func flowText(f *flow, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var para []doctree.Line
	flush := func() {
		if len(para) > 0 {
			f.text(para...)
			para = nil
		}
	}

	for scanner.Scan() {
		raw := scanner.Text()
		for i, segment := range strings.Split(raw, "\f") {
			if i > 0 {
				flush()
				f.newPage()
			}
			if strings.TrimSpace(segment) == "" {
				if i == 0 {
					flush()
				}
				continue
			}
			var b spanBuilder
			b.add(string(utf8Bytes([]byte(segment))), bodySize, 0)
			if l, ok := b.line(); ok {
				para = append(para, l)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	flush()
	return nil
}
