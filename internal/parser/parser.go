// Package parser decodes uploaded documents into page/block/span records.
package parser

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// ErrUnsupportedFormat is returned by ForFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Decoder converts raw document bytes into pages of block records sorted in
// reading order.
type Decoder interface {
	Decode(r io.Reader, filename string) (*doctree.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".docx":     true,
	".hocr":     true,
	".html":     true,
	".htm":      true,
	".json":     true,
	".txt":      true,
	".csv":      true,
}

// Options tune decoders that have alternatives.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the decoder for a filename.
func ForFile(filename string, opts Options) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFDecoder{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".md", ".markdown":
		return &MarkdownDecoder{}, nil
	case ".docx":
		return &DOCXDecoder{}, nil
	case ".hocr":
		return &HOCRDecoder{}, nil
	case ".html", ".htm":
		return &HTMLDecoder{}, nil
	case ".json":
		return &BlockJSONDecoder{}, nil
	case ".txt":
		return &TextDecoder{}, nil
	case ".csv":
		return &CSVDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// utf8Bytes converts legacy single-byte markup to UTF-8. Data declaring a
// Latin-1 charset, or failing UTF-8 validation, is decoded as Windows-1252
// (a superset of ISO-8859-1's printable range); anything else passes through.
func utf8Bytes(data []byte) []byte {
	if utf8.Valid(data) && !declaresLatin1(data) {
		return data
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

func declaresLatin1(data []byte) bool {
	head := strings.ToLower(string(data[:min(len(data), 1024)]))
	i := strings.Index(head, "charset=")
	if i < 0 {
		return false
	}
	enc := strings.FieldsFunc(head[i+len("charset="):], func(r rune) bool {
		return r == '"' || r == '\'' || r == ';' || r == '>' || r == ' ' || r == '/'
	})
	if len(enc) == 0 {
		return false
	}
	switch enc[0] {
	case "iso-8859-1", "latin1", "latin-1", "windows-1252", "cp1252":
		return true
	}
	return false
}

func span(text string, size float64, flags int) doctree.Span {
	return doctree.Span{Text: doctree.CleanText(text), Size: size, Flags: flags}
}

// spanBuilder merges adjacent runs that share size and flags.
type spanBuilder struct {
	spans []doctree.Span
}

func (b *spanBuilder) add(text string, size float64, flags int) {
	if text == "" {
		return
	}
	if n := len(b.spans); n > 0 && b.spans[n-1].Size == size && b.spans[n-1].Flags == flags {
		b.spans[n-1].Text += text
		return
	}
	b.spans = append(b.spans, doctree.Span{Text: text, Size: size, Flags: flags})
}

// line finalizes the collected runs: whitespace is collapsed, empty spans
// dropped and text NFC-normalized.
func (b *spanBuilder) line() (doctree.Line, bool) {
	var out []doctree.Span
	for _, s := range b.spans {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		out = append(out, span(text, s.Size, s.Flags))
	}
	b.spans = nil
	return doctree.Line{Spans: out}, len(out) > 0
}

// decodeDataURL returns the payload of a base64 data: URL.
func decodeDataURL(src string) ([]byte, bool) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return nil, false
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
