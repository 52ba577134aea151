// Package mrz turns recognized passport text into a travel document record.
//
// The pipeline is Candidate -> Match -> NormalizeFields. Every step is a pure
// function; nothing in this package keeps state between calls.
package mrz

import (
	"strings"

	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// Separator is appended after every line and again after every block
const Separator = "-"

var controlStripper = strings.NewReplacer("\r", "", "\n", "", "\t", "")

// Candidate flattens a recognition result into the single buffer the format
// patterns run against. Block and line order is kept as recognized; no
// trimming or deduplication happens.
func Candidate(result *processor.OCRResult) string {
	if result == nil {
		return ""
	}

	var b strings.Builder
	for _, block := range result.Blocks {
		for _, line := range block.Lines {
			b.WriteString(controlStripper.Replace(line.Text))
			b.WriteString(Separator)
		}
		b.WriteString(Separator)
	}
	return b.String()
}
