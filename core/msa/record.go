package msa

// Record is one named sequence of an alignment.
type Record struct {
	id          string
	seq         []byte
	annotations map[string]string
}

// NewRecord creates a record with the given identifier and initial sequence.
func NewRecord(id, sequence string) *Record {
	return &Record{
		id:          id,
		seq:         []byte(sequence),
		annotations: make(map[string]string),
	}
}

// ID returns the record identifier.
func (r *Record) ID() string {
	return r.id
}

// Sequence returns the residues accumulated so far.
func (r *Record) Sequence() string {
	return string(r.seq)
}

// Len returns the sequence length.
func (r *Record) Len() int {
	return len(r.seq)
}

// Annotation returns the value stored under name.
func (r *Record) Annotation(name string) (string, bool) {
	v, ok := r.annotations[name]
	return v, ok
}

// SetAnnotation stores value under name, replacing any previous value.
func (r *Record) SetAnnotation(name, value string) {
	if r.annotations == nil {
		r.annotations = make(map[string]string)
	}
	r.annotations[name] = value
}

// Annotations returns a copy of the record annotations.
func (r *Record) Annotations() map[string]string {
	out := make(map[string]string, len(r.annotations))
	for k, v := range r.annotations {
		out[k] = v
	}
	return out
}

func (r *Record) extend(fragment string) {
	r.seq = append(r.seq, fragment...)
}

// slice returns a detached copy of columns [start,end).
func (r *Record) slice(start, end int) *Record {
	out := NewRecord(r.id, string(r.seq[start:end]))
	for k, v := range r.annotations {
		out.annotations[k] = v
	}
	return out
}
