package msa

import "encoding/json"

type recordJSON struct {
	ID          string            `json:"id"`
	Sequence    string            `json:"sequence"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type alignmentJSON struct {
	Rows              int               `json:"rows"`
	Columns           int               `json:"columns"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	ColumnAnnotations map[string]string `json:"column_annotations,omitempty"`
	Records           []recordJSON      `json:"records"`
}

// MarshalJSON encodes the alignment with its records in order.
func (a *Alignment) MarshalJSON() ([]byte, error) {
	out := alignmentJSON{
		Rows:              a.Len(),
		Columns:           a.ColumnLen(),
		Annotations:       a.annotations,
		ColumnAnnotations: a.columnAnnotations,
		Records:           make([]recordJSON, 0, len(a.records)),
	}
	for _, r := range a.records {
		rj := recordJSON{ID: r.id, Sequence: r.Sequence()}
		if len(r.annotations) > 0 {
			rj.Annotations = r.annotations
		}
		out.Records = append(out.Records, rj)
	}
	return json.Marshal(out)
}
