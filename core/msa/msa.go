// Package msa models a multiple sequence alignment: an ordered set of
// equal-length records plus whole-alignment and per-column annotations.
//
// An Alignment is built block by block. Each call to AddOrExtend contributes
// one fragment of the open block; EndBlock closes the block once every record
// has received a fragment of the same width. Mutations validate before they
// change anything, so a rejected call leaves the alignment as it was.
package msa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FocuswithJustin/msakit/core/errors"
)

// Alignment is a multiple sequence alignment.
type Alignment struct {
	records           []*Record
	index             map[string]int
	annotations       map[string]string
	columnAnnotations map[string]string

	// committed is the column count closed by EndBlock; pending is the
	// width of the open block, 0 until its first fragment arrives.
	committed int
	pending   int
}

// New returns an empty alignment.
func New() *Alignment {
	return &Alignment{
		index:             make(map[string]int),
		annotations:       make(map[string]string),
		columnAnnotations: make(map[string]string),
	}
}

// FromRecords builds a closed single-block alignment from records of equal
// length. Records are copied.
func FromRecords(records ...*Record) (*Alignment, error) {
	a := New()
	for _, r := range records {
		if err := a.AddOrExtend(r.ID(), r.Sequence()); err != nil {
			return nil, err
		}
		rec := a.records[len(a.records)-1]
		for k, v := range r.annotations {
			rec.annotations[k] = v
		}
	}
	if err := a.EndBlock(); err != nil {
		return nil, err
	}
	return a, nil
}

// AddOrExtend appends fragment to the record id, creating the record at the
// end of the alignment if it does not exist yet.
//
// Every fragment of a block must have the width of the block's first
// fragment, a record may be extended once per block, and new records may only
// appear in the first block.
func (a *Alignment) AddOrExtend(id, fragment string) error {
	if id == "" || fragment == "" {
		return &errors.AlignmentError{
			Kind:    errors.ErrMalformedLine,
			ID:      id,
			Message: "empty identifier or residue fragment",
		}
	}
	width := len(fragment)
	if a.pending > 0 && width != a.pending {
		return &errors.AlignmentError{
			Kind: errors.ErrLengthMismatch,
			ID:   id,
			Got:  width,
			Want: a.pending,
		}
	}

	if i, ok := a.index[id]; ok {
		rec := a.records[i]
		if rec.Len() != a.committed {
			return &errors.AlignmentError{
				Kind:    errors.ErrDuplicateID,
				ID:      id,
				Message: fmt.Sprintf("appears more than once in the block starting at column %d", a.committed),
			}
		}
		rec.extend(fragment)
	} else {
		if a.committed > 0 {
			return &errors.AlignmentError{
				Kind:    errors.ErrLengthMismatch,
				ID:      id,
				Got:     width,
				Want:    a.committed + width,
				Message: fmt.Sprintf("first appears at column %d, after the first block", a.committed),
			}
		}
		if a.index == nil {
			a.index = make(map[string]int)
		}
		a.index[id] = len(a.records)
		a.records = append(a.records, NewRecord(id, fragment))
	}
	a.pending = width
	return nil
}

// EndBlock closes the open block. Every record must have received exactly
// one fragment. Column annotations that did not receive the block are
// padded with spaces so they stay in step with the sequence columns.
func (a *Alignment) EndBlock() error {
	if a.pending == 0 {
		return nil
	}
	want := a.committed + a.pending
	for _, r := range a.records {
		if r.Len() != want {
			return &errors.AlignmentError{
				Kind:    errors.ErrLengthMismatch,
				ID:      r.id,
				Got:     r.Len(),
				Want:    want,
				Message: fmt.Sprintf("has %d columns at the end of the block, want %d", r.Len(), want),
			}
		}
	}
	for name, v := range a.columnAnnotations {
		if len(v) > want {
			return &errors.AlignmentError{
				Kind:    errors.ErrLengthMismatch,
				Got:     len(v),
				Want:    want,
				Message: fmt.Sprintf("column annotation %q has %d columns, want %d", name, len(v), want),
			}
		}
	}

	a.committed = want
	a.pending = 0
	for name, v := range a.columnAnnotations {
		if len(v) < want {
			a.columnAnnotations[name] = v + strings.Repeat(" ", want-len(v))
		}
	}
	return nil
}

// BlockStart returns the number of columns closed by EndBlock, which is the
// column at which the open block starts.
func (a *Alignment) BlockStart() int {
	return a.committed
}

// SetAnnotation stores whole-alignment metadata, replacing any previous value.
func (a *Alignment) SetAnnotation(name, value string) {
	if a.annotations == nil {
		a.annotations = make(map[string]string)
	}
	a.annotations[name] = value
}

// Annotation returns the whole-alignment value stored under name.
func (a *Alignment) Annotation(name string) (string, bool) {
	v, ok := a.annotations[name]
	return v, ok
}

// Annotations returns a copy of the whole-alignment annotations.
func (a *Alignment) Annotations() map[string]string {
	return copyMap(a.annotations)
}

// AppendColumnAnnotation concatenates fragment onto the named per-column
// annotation, creating it empty on first use.
func (a *Alignment) AppendColumnAnnotation(name, fragment string) {
	if a.columnAnnotations == nil {
		a.columnAnnotations = make(map[string]string)
	}
	a.columnAnnotations[name] += fragment
}

// ColumnAnnotation returns the per-column annotation stored under name.
func (a *Alignment) ColumnAnnotation(name string) (string, bool) {
	v, ok := a.columnAnnotations[name]
	return v, ok
}

// ColumnAnnotations returns a copy of the per-column annotations.
func (a *Alignment) ColumnAnnotations() map[string]string {
	return copyMap(a.columnAnnotations)
}

// Contains reports whether a record with the given id exists.
func (a *Alignment) Contains(id string) bool {
	_, ok := a.index[id]
	return ok
}

// Len returns the number of records.
func (a *Alignment) Len() int {
	return len(a.records)
}

// IsEmpty reports whether the alignment has no records.
func (a *Alignment) IsEmpty() bool {
	return len(a.records) == 0
}

// ColumnLen returns the length of the first record, 0 when empty.
func (a *Alignment) ColumnLen() int {
	if len(a.records) == 0 {
		return 0
	}
	return a.records[0].Len()
}

// Records returns the records in order of first appearance.
func (a *Alignment) Records() []*Record {
	out := make([]*Record, len(a.records))
	copy(out, a.records)
	return out
}

// Record returns the record with the given id.
func (a *Alignment) Record(id string) (*Record, bool) {
	i, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return a.records[i], true
}

// Validate checks the alignment invariants: no open block, equal record
// lengths, unique identifiers and column annotations as long as the
// sequences.
func (a *Alignment) Validate() error {
	if a.pending != 0 {
		return &errors.AlignmentError{
			Kind:    errors.ErrLengthMismatch,
			Message: fmt.Sprintf("block starting at column %d is still open", a.committed),
		}
	}
	cols := a.ColumnLen()
	seen := make(map[string]bool, len(a.records))
	for _, r := range a.records {
		if seen[r.id] {
			return &errors.AlignmentError{
				Kind:    errors.ErrDuplicateID,
				ID:      r.id,
				Message: "identifier is used by more than one record",
			}
		}
		seen[r.id] = true
		if r.Len() != cols {
			return &errors.AlignmentError{Kind: errors.ErrLengthMismatch, ID: r.id, Got: r.Len(), Want: cols}
		}
	}
	for _, name := range sortedKeys(a.columnAnnotations) {
		if n := len(a.columnAnnotations[name]); n != cols {
			return &errors.AlignmentError{
				Kind:    errors.ErrLengthMismatch,
				Got:     n,
				Want:    cols,
				Message: fmt.Sprintf("column annotation %q has %d columns, want %d", name, n, cols),
			}
		}
	}
	return nil
}

// Slice returns a detached copy of columns [start,end), including the
// matching part of every column annotation.
func (a *Alignment) Slice(start, end int) (*Alignment, error) {
	if a.pending != 0 {
		return nil, errors.NewValidation("alignment", "cannot slice while a block is open")
	}
	if start < 0 || end > a.ColumnLen() || start >= end {
		return nil, &errors.ValidationError{
			Field:   "columns",
			Value:   fmt.Sprintf("%d-%d", start, end),
			Message: fmt.Sprintf("range [%d,%d) outside alignment of %d columns", start, end, a.ColumnLen()),
		}
	}

	out := New()
	for _, r := range a.records {
		out.index[r.id] = len(out.records)
		out.records = append(out.records, r.slice(start, end))
	}
	for k, v := range a.annotations {
		out.annotations[k] = v
	}
	for k, v := range a.columnAnnotations {
		if len(v) >= end {
			out.columnAnnotations[k] = v[start:end]
		}
	}
	out.committed = end - start
	return out, nil
}

// Select returns a detached copy holding only the named records, in the
// order given.
func (a *Alignment) Select(ids ...string) (*Alignment, error) {
	if a.pending != 0 {
		return nil, errors.NewValidation("alignment", "cannot select while a block is open")
	}
	out := New()
	for _, id := range ids {
		r, ok := a.Record(id)
		if !ok {
			return nil, errors.NewNotFound("record", id)
		}
		if out.Contains(id) {
			continue
		}
		out.index[id] = len(out.records)
		out.records = append(out.records, r.slice(0, r.Len()))
	}
	for k, v := range a.annotations {
		out.annotations[k] = v
	}
	for k, v := range a.columnAnnotations {
		out.columnAnnotations[k] = v
	}
	out.committed = a.committed
	return out, nil
}

// String renders a short summary: the dimensions followed by up to ten rows
// with sequences truncated to 30 residues.
func (a *Alignment) String() string {
	if a.IsEmpty() {
		return "No sequence in alignment"
	}

	var sb strings.Builder
	rows, cols := a.Len(), a.ColumnLen()
	if rows == 1 {
		fmt.Fprintf(&sb, "Alignment with %d row", rows)
	} else {
		fmt.Fprintf(&sb, "Alignment with %d rows", rows)
	}
	if cols == 1 {
		fmt.Fprintf(&sb, " and %d column\n", cols)
	} else {
		fmt.Fprintf(&sb, " and %d columns\n", cols)
	}

	for i, r := range a.records {
		if i > 9 {
			sb.WriteString("\n...")
			break
		}
		seq := r.Sequence()
		if len(seq) > 30 {
			seq = seq[:30] + "..."
		}
		fmt.Fprintf(&sb, "%s\t%s\n", r.id, seq)
	}
	return sb.String()
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
