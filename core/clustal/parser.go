package clustal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/FocuswithJustin/msakit/core/errors"
	"github.com/FocuswithJustin/msakit/core/msa"
)

type state int

const (
	stateHeader  state = iota // expecting the program header
	stateBetween              // between blocks, no block open
	stateBlock                // inside a block
	stateDone
)

func (s state) String() string {
	switch s {
	case stateHeader:
		return "header"
	case stateBetween:
		return "between-blocks"
	case stateBlock:
		return "block"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// block is the bookkeeping of the open block. It lives only from the first
// sequence line of a block to the blank line that closes it.
type block struct {
	// start and end delimit the residues of the last sequence line; the
	// consensus line is sliced with the same offsets.
	start, end int

	// column is the alignment column at which the block starts.
	column int

	consensus bool
}

type parser struct {
	aln           *msa.Alignment
	logger        *slog.Logger
	residueCounts bool
	consensusKey  string
	blocks        int
}

// step consumes one line and returns the next state and block bookkeeping.
func (p *parser) step(st state, blk block, lineNo int, line string) (state, block, error) {
	if st == stateHeader {
		return p.header(lineNo, line)
	}

	switch {
	case line == "":
		return p.closeBlock(st, blk, lineNo, line)

	case line[0] == ' ' || line[0] == '\t':
		if strings.TrimSpace(line) != "" {
			return p.consensusLine(st, blk, lineNo, line)
		}
		// A blank consensus line (no conserved columns) also ends its block.
		if st == stateBlock && !blk.consensus {
			var err error
			if st, blk, err = p.consensusLine(st, blk, lineNo, line); err != nil {
				return st, blk, err
			}
		}
		return p.closeBlock(st, blk, lineNo, line)

	default:
		return p.sequenceLine(st, blk, lineNo, line)
	}
}

func (p *parser) header(lineNo int, line string) (state, block, error) {
	program, ok := DetectHeader(line)
	if !ok {
		return stateHeader, block{}, errors.NewHeader(line, Programs())
	}
	p.aln.SetAnnotation(AnnotationProgram, program)
	attrs := []any{"program", program}
	if version, ok := HeaderVersion(line); ok {
		p.aln.SetAnnotation(AnnotationVersion, version)
		attrs = append(attrs, "version", version)
	}
	p.logger.Debug("alignment header", attrs...)
	return stateBetween, block{}, nil
}

func (p *parser) sequenceLine(st state, blk block, lineNo int, line string) (state, block, error) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 2:
	case len(fields) == 3 && p.residueCounts && isDigits(fields[2]):
	default:
		return st, blk, errors.NewLine(errors.ErrMalformedLine, lineNo, line,
			fmt.Sprintf("expected an identifier and a residue fragment, got %d fields", len(fields)))
	}
	id, fragment := fields[0], fields[1]

	if st != stateBlock {
		blk = block{column: p.aln.BlockStart()}
		p.blocks++
	} else if blk.consensus {
		return st, blk, errors.NewLine(errors.ErrMalformedLine, lineNo, line,
			"sequence line after the consensus line of its block")
	}

	// Padding between the identifier and the residues varies from line to
	// line, so locate the fragment in the raw line.
	start := len(id) + strings.Index(line[len(id):], fragment)
	end := start + len(fragment)

	if err := p.aln.AddOrExtend(id, fragment); err != nil {
		return st, blk, errors.AtLine(err, lineNo, line)
	}
	blk.start, blk.end = start, end
	return stateBlock, blk, nil
}

func (p *parser) consensusLine(st state, blk block, lineNo int, line string) (state, block, error) {
	if st != stateBlock {
		return st, blk, errors.NewLine(errors.ErrMalformedLine, lineNo, line,
			"consensus line before any sequence line of its block")
	}
	if blk.consensus {
		return st, blk, errors.NewLine(errors.ErrMalformedLine, lineNo, line,
			"more than one consensus line in a block")
	}

	// Writers often trim trailing blanks from consensus lines.
	if len(line) < blk.end {
		line += strings.Repeat(" ", blk.end-len(line))
	}
	cur, _ := p.aln.ColumnAnnotation(p.consensusKey)
	if len(cur) < blk.column {
		p.aln.AppendColumnAnnotation(p.consensusKey, strings.Repeat(" ", blk.column-len(cur)))
	}
	p.aln.AppendColumnAnnotation(p.consensusKey, line[blk.start:blk.end])
	blk.consensus = true
	return stateBlock, blk, nil
}

func (p *parser) closeBlock(st state, blk block, lineNo int, line string) (state, block, error) {
	if st != stateBlock {
		return st, blk, nil
	}
	if err := p.aln.EndBlock(); err != nil {
		return st, blk, errors.AtLine(err, lineNo, line)
	}
	p.logger.Debug("block closed",
		"block", p.blocks,
		"start_column", blk.column,
		"columns", p.aln.ColumnLen()-blk.column,
		"consensus", blk.consensus)
	return stateBetween, block{}, nil
}

// finish closes the last block at end of input and checks the invariants.
func (p *parser) finish(st state) error {
	if st == stateHeader {
		return errors.NewHeader("", Programs())
	}
	if st == stateBlock {
		if err := p.aln.EndBlock(); err != nil {
			return errors.Wrap(err, "at end of input")
		}
	}
	if err := p.aln.Validate(); err != nil {
		return errors.Wrap(err, "at end of input")
	}
	p.logger.Debug("alignment read",
		"state", stateDone,
		"records", p.aln.Len(),
		"columns", p.aln.ColumnLen(),
		"blocks", p.blocks)
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
