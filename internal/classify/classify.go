// Package classify assigns a content type to a block of text.
package classify

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docblocks/internal/doctree"
	"github.com/dgallion1/docblocks/internal/fontprofile"
)

// ShortBoldMaxWords is the word limit for treating bold body-size text as a
// sub-heading.
const ShortBoldMaxWords = 5

var bulletGlyphs = []string{"•", "-", "*", "◦"}

// Numbers 1-50 or a single lowercase letter, as N, N., N) or (N), followed by
// whitespace or the end of the text.
var listPrefix = regexp.MustCompile(
	`^(?:\((?:[1-9]|[1-4][0-9]|50|[a-z])\)|(?:[1-9]|[1-4][0-9]|50|[a-z])[.)]?)(?:\s|$)`,
)

// Word characters are Unicode letters, marks, digits and underscore. Go's \w
// is ASCII only.
var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]+`)

// Classify returns the content type for one text block. Rules are checked in
// order and the first match wins.
func Classify(text string, styles doctree.StyleSet, fontSize int, p fontprofile.Profile) doctree.ContentType {
	if IsListItem(text) {
		return doctree.ContentListItem
	}
	if fontSize == doctree.MixedFontSize || len(styles) > 1 {
		return doctree.ContentMixed
	}

	role, ok := p.Role(fontSize)
	if !ok {
		return doctree.ContentOther
	}
	if role == fontprofile.RoleBodyText && styles.Has(doctree.StyleBold) && WordCount(text) <= ShortBoldMaxWords {
		return doctree.ContentSubHeading
	}
	return doctree.ContentType(role)
}

// IsListItem reports whether text opens with a bullet glyph or a numbered or
// lettered list marker.
func IsListItem(text string) bool {
	for _, g := range bulletGlyphs {
		if strings.HasPrefix(text, g) {
			return true
		}
	}
	return listPrefix.MatchString(text)
}

// WordCount counts runs of word characters after collapsing whitespace.
func WordCount(text string) int {
	normalized := strings.Join(strings.Fields(text), " ")
	return len(wordPattern.FindAllStringIndex(normalized, -1))
}
