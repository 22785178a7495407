// Package pafid builds the fixed-width structured identifiers assigned to
// user accounts and fully-validated PAFs.
//
// An identifier is the concatenation of a scope code (4, space-padded), a
// classification code (6, space-padded), for PAF identifiers a two-digit
// sequence/frequency code, and a unique suffix: the zero-padded decimal
// primary key of the record. Primary keys are store-assigned and
// monotonically increasing, so the suffix alone guarantees uniqueness; no
// central sequence coordination exists or is needed.
package pafid

import "strconv"

// Class selects the identifier layout.
type Class int

const (
	// ClassUser is the 16-character account identifier: scope(4) +
	// classification(6) + suffix(4), right-padded to width.
	ClassUser Class = iota
	// ClassPAF is the 18-character validated-PAF identifier: scope(4) +
	// classification(6) + sequence(2) + suffix(6).
	ClassPAF
)

// Width returns the fixed total width for the class.
func (c Class) Width() int {
	if c == ClassPAF {
		return 18
	}
	return 16
}

func (c Class) suffixWidth() int {
	if c == ClassPAF {
		return 6
	}
	return 4
}

// Generate builds an identifier. It never fails: missing components default
// to blank/zero and oversized components are truncated to their field width.
// Truncation is a documented limitation, not a validated contract - callers
// own keeping scope and classification codes within their widths.
func Generate(scope, classification, sequence string, primaryKey int64, class Class) string {
	out := padAlpha(scope, 4) + padAlpha(classification, 6)
	if class == ClassPAF {
		out += padNumeric(sequence, 2)
	}
	out += suffix(primaryKey, class.suffixWidth())

	// Fix the total width regardless of what the components added up to.
	if len(out) > class.Width() {
		return out[:class.Width()]
	}
	return padAlpha(out, class.Width())
}

// padAlpha space-pads an alphanumeric field on the right, truncating oversize input.
func padAlpha(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	for len(s) < width {
		s += " "
	}
	return s
}

// padNumeric zero-pads a numeric field on the left, truncating oversize input.
func padNumeric(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	out := ""
	for i := len(s); i < width; i++ {
		out += "0"
	}
	return out + s
}

// suffix renders the primary key as a zero-padded decimal of the given width.
// Keys wider than the field keep their least significant digits.
func suffix(primaryKey int64, width int) string {
	if primaryKey < 0 {
		primaryKey = 0
	}
	s := strconv.FormatInt(primaryKey, 10)
	if len(s) > width {
		return s[len(s)-width:]
	}
	out := ""
	for i := len(s); i < width; i++ {
		out += "0"
	}
	return out + s
}
