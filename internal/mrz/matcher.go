package mrz

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Wire-level patterns. They must stay byte-for-byte identical to what the
// capture clients were built against.
const (
	PatternFormatA      = `[A-Z0-9<]{9}[0-9]{1}[A-Z<]{3}[0-9]{6}[0-9]{1}[FM<]{1}[0-9]{6}[0-9]{1}`
	PatternFormatBLine1 = `\bIP[A-Z<]{3}[A-Z0-9<]{9}[0-9]{1}`
	PatternFormatBLine2 = `[0-9]{6}[0-9]{1}[FM<]{1}[0-9]{6}[0-9]{1}[A-Z<]{3}`
)

// Format identifies which MRZ layout produced a match
type Format int

const (
	FormatNone Format = iota
	// FormatA is the single composite 28-character "old passport" run
	FormatA
	// FormatB is the two-line "IP passport" layout
	FormatB
)

func (f Format) String() string {
	switch f {
	case FormatA:
		return "old-passport"
	case FormatB:
		return "ip-passport"
	default:
		return "none"
	}
}

// MarshalText lets records and events carry the format by name
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses a name produced by MarshalText
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormat maps a format name back to its Format
func ParseFormat(name string) (Format, error) {
	switch name {
	case "old-passport":
		return FormatA, nil
	case "ip-passport":
		return FormatB, nil
	case "none", "":
		return FormatNone, nil
	default:
		return FormatNone, fmt.Errorf("unknown MRZ format %q", name)
	}
}

// RawFields are the substrings sliced out of a match, before normalization
type RawFields struct {
	DocumentNumber string
	DateOfBirth    string
	DateOfExpiry   string
}

// MatchResult is either no match (Format == FormatNone) or a format with
// the raw substrings it matched
type MatchResult struct {
	Format Format
	Raw    RawFields
	Line1  string // the Format A run, or the Format B line-1 token
	Line2  string // the Format B line-2 token; empty for Format A
}

// Matched reports whether any format matched
func (m MatchResult) Matched() bool {
	return m.Format != FormatNone
}

// span is a half-open byte range inside one matched token
type span struct {
	token      int
	start, end int
}

func (s span) slice(tokens []string) string {
	return tokens[s.token][s.start:s.end]
}

// definition describes one layout: every pattern must match, and each
// field is cut from a fixed offset of one of the matched tokens
type definition struct {
	format   Format
	patterns []*regexp.Regexp
	number   span
	birth    span
	expiry   span
}

var definitions = []definition{
	{
		format:   FormatA,
		patterns: []*regexp.Regexp{regexp.MustCompile(PatternFormatA)},
		number:   span{0, 0, 9},
		birth:    span{0, 13, 19},
		expiry:   span{0, 21, 27},
	},
	{
		format: FormatB,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(PatternFormatBLine1),
			regexp.MustCompile(PatternFormatBLine2),
		},
		number: span{0, 5, 14},
		birth:  span{1, 0, 6},
		expiry: span{1, 8, 14},
	},
}

// Match tries Format A, then Format B, against the candidate string. Each
// pattern takes its leftmost occurrence; no other occurrences are considered.
func Match(candidate string) MatchResult {
	for _, def := range definitions {
		tokens, ok := def.find(candidate)
		if !ok {
			continue
		}

		result := MatchResult{
			Format: def.format,
			Raw: RawFields{
				DocumentNumber: def.number.slice(tokens),
				DateOfBirth:    def.birth.slice(tokens),
				DateOfExpiry:   def.expiry.slice(tokens),
			},
			Line1: tokens[0],
		}
		if len(tokens) > 1 {
			result.Line2 = tokens[1]
		}
		return result
	}

	return MatchResult{}
}

func (d definition) find(candidate string) ([]string, bool) {
	tokens := make([]string, 0, len(d.patterns))
	for _, re := range d.patterns {
		loc := leftmost(re, candidate)
		if loc == nil {
			return nil, false
		}
		tokens = append(tokens, candidate[loc[0]:loc[1]])
	}
	return tokens, true
}

// leftmost returns the first occurrence of re in candidate. RE2 only treats
// ASCII as word characters; a leading \b here follows the capture clients,
// where any Unicode letter or digit counts, so an occurrence preceded by one
// is skipped.
func leftmost(re *regexp.Regexp, candidate string) []int {
	wordStart := strings.HasPrefix(re.String(), `\b`)
	for offset := 0; offset < len(candidate); {
		loc := re.FindStringIndex(candidate[offset:])
		if loc == nil {
			return nil
		}
		start, end := offset+loc[0], offset+loc[1]
		if !wordStart || !wordBefore(candidate, start) {
			return []int{start, end}
		}
		_, size := utf8.DecodeRuneInString(candidate[start:])
		offset = start + size
	}
	return nil
}

func wordBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
