// Package catalog persists parsed alignments in a SQLite database.
//
// Each saved alignment gets a UUID and is keyed by its content fingerprint,
// so saving the same alignment twice returns the entry created first.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/msakit/core/cas"
	"github.com/FocuswithJustin/msakit/core/errors"
	"github.com/FocuswithJustin/msakit/core/msa"
	"github.com/FocuswithJustin/msakit/core/sqlite"
	"github.com/FocuswithJustin/msakit/internal/logging"
	"github.com/FocuswithJustin/msakit/internal/validation"
)

// alignmentLevel marks an annotation row that belongs to the alignment
// rather than to one of its records.
const alignmentLevel = -1

const schema = `
CREATE TABLE IF NOT EXISTS alignments (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	fingerprint   TEXT NOT NULL UNIQUE,
	source_sha256 TEXT NOT NULL DEFAULT '',
	row_count     INTEGER NOT NULL,
	column_count  INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	alignment_id TEXT NOT NULL REFERENCES alignments(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	record_id    TEXT NOT NULL,
	sequence     TEXT NOT NULL,
	PRIMARY KEY (alignment_id, position)
);
CREATE TABLE IF NOT EXISTS annotations (
	alignment_id TEXT NOT NULL REFERENCES alignments(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	name         TEXT NOT NULL,
	value        TEXT NOT NULL,
	PRIMARY KEY (alignment_id, position, name)
);
CREATE TABLE IF NOT EXISTS column_annotations (
	alignment_id TEXT NOT NULL REFERENCES alignments(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	value        TEXT NOT NULL,
	PRIMARY KEY (alignment_id, name)
);
CREATE INDEX IF NOT EXISTS idx_alignments_created ON alignments(created_at, name);
`

// Entry describes a saved alignment without its residues.
type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Fingerprint  string    `json:"fingerprint"`
	SourceSHA256 string    `json:"source_sha256,omitempty"`
	Rows         int       `json:"rows"`
	Columns      int       `json:"columns"`
	CreatedAt    time.Time `json:"created_at"`
}

// Catalog is a SQLite-backed alignment store. It is safe for concurrent use.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, errors.Wrap(err, "catalog path")
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return &Catalog{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// OpenReadOnly opens an existing catalog for reading. A missing database
// is reported as a *errors.NotFoundError.
func OpenReadOnly(path string) (*Catalog, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, errors.Wrap(err, "catalog path")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("catalog", path)
		}
		return nil, errors.NewIO("stat", path, err)
	}
	db, err := sqlite.OpenReadOnly(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	return &Catalog{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Save stores aln under name. If an alignment with the same fingerprint is
// already stored, its entry is returned and nothing is written.
func (c *Catalog) Save(ctx context.Context, name string, aln *msa.Alignment, sourceSHA string) (Entry, error) {
	if err := validation.ValidateName(name); err != nil {
		return Entry{}, &errors.ValidationError{Field: "name", Value: name, Message: err.Error(), Err: err}
	}
	if aln == nil {
		return Entry{}, errors.NewValidation("alignment", "nil alignment")
	}
	if err := aln.Validate(); err != nil {
		return Entry{}, err
	}

	fingerprint := cas.Fingerprint(aln)

	// The pool holds a single connection, so the transaction serializes the
	// fingerprint check with the insert.
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	existing, err := byFingerprint(ctx, tx, fingerprint)
	if err == nil {
		logging.CatalogEvent(ctx, "deduplicated", existing.ID, "name", name)
		return existing, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return Entry{}, err
	}

	entry := Entry{
		ID:           uuid.NewString(),
		Name:         name,
		Fingerprint:  fingerprint,
		SourceSHA256: sourceSHA,
		Rows:         aln.Len(),
		Columns:      aln.ColumnLen(),
		CreatedAt:    c.now().Truncate(time.Second),
	}
	if err := insertAlignment(ctx, tx, entry, aln); err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("commit save: %w", err)
	}

	logging.CatalogEvent(ctx, "saved", entry.ID,
		"name", entry.Name, "rows", entry.Rows, "columns", entry.Columns)
	return entry, nil
}

func insertAlignment(ctx context.Context, tx *sql.Tx, e Entry, aln *msa.Alignment) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO alignments (id, name, fingerprint, source_sha256, row_count, column_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Fingerprint, e.SourceSHA256, e.Rows, e.Columns,
		e.CreatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert alignment: %w", err)
	}

	for pos, r := range aln.Records() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (alignment_id, position, record_id, sequence) VALUES (?, ?, ?, ?)`,
			e.ID, pos, r.ID(), r.Sequence()); err != nil {
			return fmt.Errorf("insert record %q: %w", r.ID(), err)
		}
		if err := insertAnnotations(ctx, tx, e.ID, pos, r.Annotations()); err != nil {
			return err
		}
	}
	if err := insertAnnotations(ctx, tx, e.ID, alignmentLevel, aln.Annotations()); err != nil {
		return err
	}

	for name, value := range aln.ColumnAnnotations() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO column_annotations (alignment_id, name, value) VALUES (?, ?, ?)`,
			e.ID, name, value); err != nil {
			return fmt.Errorf("insert column annotation %q: %w", name, err)
		}
	}
	return nil
}

func insertAnnotations(ctx context.Context, tx *sql.Tx, id string, pos int, m map[string]string) error {
	for name, value := range m {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO annotations (alignment_id, position, name, value) VALUES (?, ?, ?, ?)`,
			id, pos, name, value); err != nil {
			return fmt.Errorf("insert annotation %q: %w", name, err)
		}
	}
	return nil
}

const entryColumns = `id, name, fingerprint, source_sha256, row_count, column_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var created string
	if err := s.Scan(&e.ID, &e.Name, &e.Fingerprint, &e.SourceSHA256, &e.Rows, &e.Columns, &created); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: bad created_at %q: %w", e.ID, created, err)
	}
	e.CreatedAt = t
	return e, nil
}

func byFingerprint(ctx context.Context, tx *sql.Tx, fingerprint string) (Entry, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM alignments WHERE fingerprint = ?`, fingerprint)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, errors.NewNotFound("alignment", fingerprint)
	}
	return e, err
}

// Get returns the entry with the given ID.
func (c *Catalog) Get(ctx context.Context, id string) (Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Entry{}, errors.NewNotFound("alignment", id)
	}
	row := c.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM alignments WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, errors.NewNotFound("alignment", id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get alignment %s: %w", id, err)
	}
	return e, nil
}

// List returns all entries, oldest first.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM alignments ORDER BY created_at, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list alignments: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Load rebuilds the alignment stored under id and checks it against the
// stored fingerprint.
func (c *Catalog) Load(ctx context.Context, id string) (*msa.Alignment, error) {
	entry, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	records, err := c.loadRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	aln, err := msa.FromRecords(records...)
	if err != nil {
		return nil, fmt.Errorf("alignment %s: %w", id, err)
	}

	alnAnnotations, err := c.loadAnnotations(ctx, id, alignmentLevel)
	if err != nil {
		return nil, err
	}
	for name, value := range alnAnnotations {
		aln.SetAnnotation(name, value)
	}

	colRows, err := c.db.QueryContext(ctx,
		`SELECT name, value FROM column_annotations WHERE alignment_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load column annotations: %w", err)
	}
	defer colRows.Close()
	for colRows.Next() {
		var name, value string
		if err := colRows.Scan(&name, &value); err != nil {
			return nil, err
		}
		aln.AppendColumnAnnotation(name, value)
	}
	if err := colRows.Err(); err != nil {
		return nil, err
	}

	if got := cas.Fingerprint(aln); got != entry.Fingerprint {
		return nil, fmt.Errorf("alignment %s: fingerprint mismatch: stored %s, loaded %s",
			id, entry.Fingerprint, got)
	}
	return aln, nil
}

func (c *Catalog) loadRecords(ctx context.Context, id string) ([]*msa.Record, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT record_id, sequence FROM records WHERE alignment_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	var records []*msa.Record
	for rows.Next() {
		var rid, seq string
		if err := rows.Scan(&rid, &seq); err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, msa.NewRecord(rid, seq))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// The pool holds one connection, so annotations are read after the
	// record cursor is closed.
	for pos, r := range records {
		ann, err := c.loadAnnotations(ctx, id, pos)
		if err != nil {
			return nil, err
		}
		for name, value := range ann {
			r.SetAnnotation(name, value)
		}
	}
	return records, nil
}

func (c *Catalog) loadAnnotations(ctx context.Context, id string, pos int) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, value FROM annotations WHERE alignment_id = ? AND position = ?`, id, pos)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Delete removes the alignment stored under id.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NewNotFound("alignment", id)
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM alignments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alignment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alignment %s: %w", id, err)
	}
	if n == 0 {
		return errors.NewNotFound("alignment", id)
	}
	logging.CatalogEvent(ctx, "deleted", id)
	return nil
}
