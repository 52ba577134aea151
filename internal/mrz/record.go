package mrz

import (
	"strings"

	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// Placeholder values for the fields the scanner does not read. A record
// carrying them is always marked Partial.
const (
	PlaceholderDocumentCode  = "P"
	PlaceholderIssuingState  = "ESP"
	PlaceholderNationality   = "ESP"
	PlaceholderPrimaryName   = "DUMMY"
	PlaceholderSecondaryName = "DUMMY"
	PlaceholderSex           = SexMale
)

// Sex as printed in the MRZ
type Sex string

const (
	SexMale        Sex = "M"
	SexFemale      Sex = "F"
	SexUnspecified Sex = "<"
)

// Record is a travel document record. When Partial is true only the fields
// listed by DerivedFields were read from the document; the others hold the
// placeholder constants above.
type Record struct {
	DocumentCode        string `json:"documentCode"`
	IssuingState        string `json:"issuingState"`
	PrimaryIdentifier   string `json:"primaryIdentifier"`
	SecondaryIdentifier string `json:"secondaryIdentifier"`
	DocumentNumber      string `json:"documentNumber"`
	Nationality         string `json:"nationality"`
	DateOfBirth         string `json:"dateOfBirth"`  // YYMMDD
	Sex                 Sex    `json:"sex"`
	DateOfExpiry        string `json:"dateOfExpiry"` // YYMMDD
	PersonalNumber      string `json:"personalNumber,omitempty"`

	Format  Format `json:"format"`
	Partial bool   `json:"partial"`
}

// DerivedFields names the fields that came from OCR
func (r Record) DerivedFields() []string {
	if !r.Partial {
		return nil
	}
	return []string{"documentNumber", "dateOfBirth", "dateOfExpiry"}
}

// NormalizeDocumentNumber replaces every letter O with the digit 0. Digits
// and other characters are left untouched.
func NormalizeDocumentNumber(number string) string {
	return strings.ReplaceAll(number, "O", "0")
}

// NormalizeFields builds a partial record from raw matched fields. Dates are
// passed through as-is: no checksum, calendar or century handling.
func NormalizeFields(raw RawFields) Record {
	return Record{
		DocumentCode:        PlaceholderDocumentCode,
		IssuingState:        PlaceholderIssuingState,
		PrimaryIdentifier:   PlaceholderPrimaryName,
		SecondaryIdentifier: PlaceholderSecondaryName,
		DocumentNumber:      NormalizeDocumentNumber(raw.DocumentNumber),
		Nationality:         PlaceholderNationality,
		DateOfBirth:         raw.DateOfBirth,
		Sex:                 PlaceholderSex,
		DateOfExpiry:        raw.DateOfExpiry,
		Partial:             true,
	}
}

// Extract runs the whole pipeline on one recognition result. It is the
// single entry point shared by the live scanner and the still-image path.
func Extract(result *processor.OCRResult) (Record, MatchResult, bool) {
	match := Match(Candidate(result))
	if !match.Matched() {
		return Record{}, match, false
	}

	record := NormalizeFields(match.Raw)
	record.Format = match.Format
	return record, match, true
}
