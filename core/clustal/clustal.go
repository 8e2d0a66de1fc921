// Package clustal reads alignments in the CLUSTAL block format, as written by
// CLUSTAL, PROBCONS, MUSCLE, MSAPROBS and Kalign.
//
// The format is a program header line followed by blocks separated by blank
// lines. Each block holds one "id residues" line per sequence and an
// optional consensus line whose symbols sit under the residue columns:
//
//	CLUSTAL W (1.83) multiple sequence alignment
//
//	seq1      ACGTACGT
//	seq2      ACGAACGT
//	          *** ****
//
// Sequences are stitched across blocks in order of first appearance and the
// consensus rows are accumulated under a single column annotation key.
package clustal

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/FocuswithJustin/msakit/core/errors"
	"github.com/FocuswithJustin/msakit/core/msa"
)

// ConsensusKey is the column annotation that accumulates consensus lines.
const ConsensusKey = "cons"

// Annotation names set from the header line.
const (
	AnnotationProgram = "program"
	AnnotationVersion = "version"
)

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for parse diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResidueCounts accepts a trailing cumulative residue count after the
// residues of a sequence line, as written by clustalw -SEQNOS=ON.
func WithResidueCounts() Option {
	return func(r *Reader) {
		r.residueCounts = true
	}
}

// WithConsensusKey stores consensus lines under name instead of ConsensusKey.
func WithConsensusKey(name string) Option {
	return func(r *Reader) {
		if name != "" {
			r.consensusKey = name
		}
	}
}

// Reader reads one alignment from a line-oriented source.
type Reader struct {
	br            *bufio.Reader
	logger        *slog.Logger
	residueCounts bool
	consensusKey  string
}

// NewReader returns a Reader that consumes r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	rd := &Reader{
		br:           br,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		consensusKey: ConsensusKey,
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Read is shorthand for NewReader(r, opts...).Read().
func Read(r io.Reader, opts ...Option) (*msa.Alignment, error) {
	return NewReader(r, opts...).Read()
}

// ReadFile reads the alignment stored at path.
func ReadFile(path string, opts ...Option) (*msa.Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()
	return Read(f, opts...)
}

// Read consumes the source to the end and returns the alignment. Any
// malformed line aborts the read; on error no alignment is returned.
func (r *Reader) Read() (*msa.Alignment, error) {
	p := &parser{
		aln:           msa.New(),
		logger:        r.logger,
		residueCounts: r.residueCounts,
		consensusKey:  r.consensusKey,
	}

	st := stateHeader
	var blk block
	for lineNo := 1; ; lineNo++ {
		line, err := r.br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.NewIO("read", "", err)
		}
		if line == "" && err == io.EOF {
			break
		}

		line = trimEOL(line)
		var stepErr error
		st, blk, stepErr = p.step(st, blk, lineNo, line)
		if stepErr != nil {
			return nil, stepErr
		}
		if err == io.EOF {
			break
		}
	}

	if err := p.finish(st); err != nil {
		return nil, err
	}
	return p.aln, nil
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
