// Package fontprofile builds the per-document font-size histogram that drives
// text classification.
package fontprofile

import (
	"errors"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/dgallion1/docblocks/internal/doctree"
)

// ErrEmptyDocument is returned when a document has no text to profile.
var ErrEmptyDocument = errors.New("fontprofile: document contains no text spans")

// Role is the structural role inferred for a font size.
type Role string

const (
	RoleBodyText   Role = "body_text"
	RoleHeading    Role = "heading"
	RoleSubHeading Role = "sub_heading"
	RoleFootnote   Role = "footnote"
	RoleOther      Role = "other"
)

// Entry is the profile record for one font size.
type Entry struct {
	Frequency float64 `json:"frequency"` // percent of all characters, 2 decimals
	Role      Role    `json:"role"`
}

// Profile maps integer font sizes to their frequency and role. It is
// immutable once built.
type Profile struct {
	entries  map[int]Entry
	bodySize int
}

// Analyze scans every span of every text block in the document once.
func Analyze(doc *doctree.Document) (Profile, error) {
	counts := make(map[int]int)
	total := 0

	for _, page := range doc.Pages {
		for _, raw := range page.Blocks {
			rec, err := raw.Record()
			if err != nil {
				return Profile{}, withPage(err, page.Number)
			}
			tr, ok := rec.(doctree.TextRecord)
			if !ok {
				continue
			}
			for _, line := range tr.Lines {
				for _, span := range line.Spans {
					n := utf8.RuneCountInString(span.Text)
					counts[int(span.Size)] += n
					total += n
				}
			}
		}
	}

	if total == 0 {
		return Profile{}, ErrEmptyDocument
	}
	return fromCounts(counts, total), nil
}

func fromCounts(counts map[int]int, total int) Profile {
	sizes := make([]int, 0, len(counts))
	for size := range counts {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	freq := make(map[int]float64, len(sizes))
	body := sizes[0]
	for _, size := range sizes {
		freq[size] = math.Round(float64(counts[size])/float64(total)*100*100) / 100
		// Ascending scan with strict > keeps the smallest size on ties.
		if freq[size] > freq[body] {
			body = size
		}
	}

	entries := make(map[int]Entry, len(sizes))
	smallest, largest := sizes[0], sizes[len(sizes)-1]
	for _, size := range sizes {
		var role Role
		switch {
		case size == body:
			role = RoleBodyText
		case size < body && size == smallest:
			role = RoleFootnote
		case size < body:
			role = RoleOther
		case size == largest:
			role = RoleHeading
		default:
			role = RoleSubHeading
		}
		entries[size] = Entry{Frequency: freq[size], Role: role}
	}
	return Profile{entries: entries, bodySize: body}
}

func withPage(err error, page int) error {
	var se *doctree.StructuralError
	if errors.As(err, &se) {
		se.Page = page
	}
	return err
}

// Role returns the role for a size and whether the size was observed.
func (p Profile) Role(size int) (Role, bool) {
	e, ok := p.entries[size]
	return e.Role, ok
}

// Entry returns the full record for a size.
func (p Profile) Entry(size int) (Entry, bool) {
	e, ok := p.entries[size]
	return e, ok
}

// BodySize is the font size with the largest character share. It is zero
// for an empty profile.
func (p Profile) BodySize() int { return p.bodySize }

// Len is the number of distinct sizes.
func (p Profile) Len() int { return len(p.entries) }

// Sizes returns all observed sizes in ascending order.
func (p Profile) Sizes() []int {
	sizes := make([]int, 0, len(p.entries))
	for s := range p.entries {
		sizes = append(sizes, s)
	}
	sort.Ints(sizes)
	return sizes
}

// Entries returns a copy of the size map, suitable for serialization.
func (p Profile) Entries() map[int]Entry {
	out := make(map[int]Entry, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}
