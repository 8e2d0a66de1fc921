package msa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/msakit/core/errors"
)

// Region selects a column range of an alignment, optionally restricted to a
// single record. Columns are 1-based and inclusive.
type Region struct {
	// Record is the record identifier, empty for all records.
	Record string `json:"record,omitempty"`

	// Start is the first column (1-based).
	Start int `json:"start"`

	// End is the last column (inclusive). Equal to Start for one column.
	End int `json:"end"`
}

// regionGrammar accepts "12", "12-40", "seq1:12-40" and `"1abc":12-40`.
//
//nolint:govet // participle grammar tags are not standard struct tags
type regionGrammar struct {
	Record *string `parser:"( ( @Ident | @String ) \":\" )?"`
	Start  int     `parser:"@Int"`
	End    *int    `parser:"( \"-\" @Int )?"`
}

// Ident starts with a letter so that a bare column range lexes as Int.
var regionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][^\s:"]*`},
	{Name: "Punct", Pattern: `[:\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var regionParser = participle.MustBuild[regionGrammar](
	participle.Lexer(regionLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// ParseRegion parses a region expression.
// Supported forms:
//   - "12" (one column)
//   - "12-40" (columns 12 through 40)
//   - "seq1:12-40" (one record)
//   - `"1abc":12-40` (quoted record identifier)
func ParseRegion(s string) (*Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.NewValidation("region", "empty region string")
	}

	parsed, err := regionParser.ParseString("", s)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "region",
			Value:   s,
			Message: fmt.Sprintf("invalid region format %q", s),
			Err:     err,
		}
	}

	r := &Region{Start: parsed.Start, End: parsed.Start}
	if parsed.Record != nil {
		r.Record = *parsed.Record
	}
	if parsed.End != nil {
		r.End = *parsed.End
	}
	if r.Start < 1 {
		return nil, errors.NewValidation("region", "columns are numbered from 1")
	}
	if r.End < r.Start {
		return nil, errors.NewValidation("region", fmt.Sprintf("end %d before start %d", r.End, r.Start))
	}
	return r, nil
}

// Apply returns the part of a that the region selects.
func (r *Region) Apply(a *Alignment) (*Alignment, error) {
	if r.End > a.ColumnLen() {
		return nil, &errors.ValidationError{
			Field:   "region",
			Value:   r.String(),
			Message: fmt.Sprintf("column %d beyond alignment of %d columns", r.End, a.ColumnLen()),
		}
	}
	out, err := a.Slice(r.Start-1, r.End)
	if err != nil {
		return nil, err
	}
	if r.Record == "" {
		return out, nil
	}
	return out.Select(r.Record)
}

// String returns the canonical region expression.
func (r *Region) String() string {
	var sb strings.Builder
	if r.Record != "" {
		if strings.ContainsAny(r.Record, ": \t") || (r.Record[0] >= '0' && r.Record[0] <= '9') {
			sb.WriteString(strconv.Quote(r.Record))
		} else {
			sb.WriteString(r.Record)
		}
		sb.WriteString(":")
	}
	sb.WriteString(strconv.Itoa(r.Start))
	if r.End != r.Start {
		sb.WriteString("-")
		sb.WriteString(strconv.Itoa(r.End))
	}
	return sb.String()
}
