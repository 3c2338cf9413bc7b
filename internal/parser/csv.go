package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// CSVDecoder renders the header row as one bold block and every data row as
// a block of "header: value" pairs.
type CSVDecoder struct{}

func (d *CSVDecoder) Decode(r io.Reader, filename string) (*doctree.Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	f := newFlow(titleFromFilename(filename))
	if len(records) == 0 {
		return f.finish(), nil
	}

	headers := records[0]
	var hb spanBuilder
	hb.add(strings.Join(headers, ", "), bodySize, doctree.FlagBold)
	if l, ok := hb.line(); ok {
		f.text(l)
	}

	for _, row := range records[1:] {
		cells := make([]string, 0, len(row))
		for j, cell := range row {
			if cell == "" {
				continue
			}
			if j < len(headers) && headers[j] != "" {
				cells = append(cells, headers[j]+": "+cell)
			} else {
				cells = append(cells, cell)
			}
		}
		var b spanBuilder
		b.add(strings.Join(cells, ", "), bodySize, 0)
		if l, ok := b.line(); ok {
			f.text(l)
		}
	}
	return f.finish(), nil
}
