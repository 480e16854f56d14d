// Package sequence issues year-scoped, human-readable record identifiers of
// the form PREFIX_yyyy_nnnnn.
package sequence

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "oncocentre/pkg/domain-errors"
)

const (
	MinYear     = 1000
	MaxYear     = 9999
	MaxSequence = 99999

	yearDigits     = 4
	sequenceDigits = 5
)

// Format renders an identifier. The width is fixed; a sequence past
// MaxSequence is refused rather than widened.
func Format(prefix string, year, seq int) (string, error) {
	if year < MinYear || year > MaxYear {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("year %d out of range", year))
	}
	if seq < 1 || seq > MaxSequence {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("sequence %d out of range for year %d", seq, year))
	}
	return fmt.Sprintf("%s%05d", YearPrefix(prefix, year), seq), nil
}

// YearPrefix is the identifier prefix shared by every id of year.
func YearPrefix(prefix string, year int) string {
	return fmt.Sprintf("%s_%04d_", prefix, year)
}

// Parse splits an identifier issued with prefix. ok is false for anything
// Format could not have produced.
func Parse(prefix, externalID string) (year, seq int, ok bool) {
	rest, found := strings.CutPrefix(externalID, prefix+"_")
	if !found || len(rest) != yearDigits+1+sequenceDigits || rest[yearDigits] != '_' {
		return 0, 0, false
	}
	yearPart, seqPart := rest[:yearDigits], rest[yearDigits+1:]
	if !allDigits(yearPart) || !allDigits(seqPart) {
		return 0, 0, false
	}
	year, _ = strconv.Atoi(yearPart)
	seq, _ = strconv.Atoi(seqPart)
	if year < MinYear || seq < 1 {
		return 0, 0, false
	}
	return year, seq, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
