package clustal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	msaerrors "github.com/FocuswithJustin/msakit/core/errors"
	"github.com/FocuswithJustin/msakit/core/msa"
)

func mustRead(t *testing.T, input string, opts ...Option) *msa.Alignment {
	t.Helper()
	a, err := Read(strings.NewReader(input), opts...)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	return a
}

func sequences(a *msa.Alignment) map[string]string {
	out := make(map[string]string, a.Len())
	for _, r := range a.Records() {
		out[r.ID()] = r.Sequence()
	}
	return out
}

func TestReadFile(t *testing.T) {
	a, err := ReadFile(filepath.Join("testdata", "clustalw.aln"))
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if a.Len() != 3 || a.ColumnLen() != 77 {
		t.Errorf("ReadFile() = %dx%d, want 3x77", a.Len(), a.ColumnLen())
	}

	_, err = ReadFile(filepath.Join("testdata", "missing.aln"))
	var ioErr *msaerrors.IOError
	if !errors.As(err, &ioErr) {
		t.Errorf("ReadFile(missing) error = %v, want *IOError", err)
	}
}

func TestReadClustalW(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "clustalw.aln"))
	if err != nil {
		t.Fatalf("failed to open fixture: %v", err)
	}
	defer f.Close()

	a, err := NewReader(bufio.NewReader(f)).Read()
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	if got, _ := a.Annotation(AnnotationProgram); got != "CLUSTAL" {
		t.Errorf("program = %q, want CLUSTAL", got)
	}
	if got, _ := a.Annotation(AnnotationVersion); got != "1.81" {
		t.Errorf("version = %q, want 1.81", got)
	}
	if a.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", a.Len())
	}
	if a.ColumnLen() != 77 {
		t.Errorf("ColumnLen() = %d, want 77", a.ColumnLen())
	}

	want := []struct{ id, seq string }{
		{"gi|4959044|gb|AAD34209.1|AF069", "MENSDSNDKGSDQSAAQRRSQMDRLDREEAFYQFVNNLSEEDYRLMRDNNLLGTPGESTEEELLRRLQQIKEGPPPQ"},
		{"gi|671626|emb|CAA85685.1|", "---------MSPQTETKASVGFKAGVKEYKLTYYTPEYETKDTDILAAFRVTPQPGVPPEEAGAAVAAESSTGTW--"},
		{"gi|4959045|gb|AAD34210.1", "MENSDSNDKGSDQSAAQRRSQMDRLDREEAFYQFVNNLSEEDYRLMRDNNLLGTPGESTEEELLRRLQQIKEGP---"},
	}
	for i, r := range a.Records() {
		if r.ID() != want[i].id {
			t.Errorf("record %d id = %q, want %q", i, r.ID(), want[i].id)
		}
		if r.Sequence() != want[i].seq {
			t.Errorf("record %d sequence = %q, want %q", i, r.Sequence(), want[i].seq)
		}
	}

	wantCons := "..........*.*..............*.............*............**...**...........*.   "
	if got, _ := a.ColumnAnnotation(ConsensusKey); got != wantCons {
		t.Errorf("consensus = %q, want %q", got, wantCons)
	}
}

func TestHeaderRejected(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"fasta", ">seq1\nACGT\n"},
		{"stockholm", "# STOCKHOLM 1.0\n\nid1 ACGT\nid2 ACGT\n"},
		{"lowercase", "clustal W (1.83) multiple sequence alignment\n\nid1 ACGT\n"},
		{"leading blank", "\nCLUSTAL W (1.83)\n\nid1 ACGT\n"},
		{"indented", "  MUSCLE (3.8)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Read(strings.NewReader(tt.input))
			if a != nil {
				t.Errorf("Read() returned an alignment on failure")
			}
			if !errors.Is(err, msaerrors.ErrUnrecognizedHeader) {
				t.Fatalf("Read() error = %v, want ErrUnrecognizedHeader", err)
			}
			if !strings.Contains(err.Error(), "CLUSTAL,PROBCONS,MUSCLE,MSAPROBS,Kalign") {
				t.Errorf("error %q does not list the accepted headers", err.Error())
			}
		})
	}
}

func TestHeaderPrograms(t *testing.T) {
	tests := []struct {
		header      string
		program     string
		version     string
		wantVersion bool
	}{
		{"CLUSTAL X (1.81) multiple sequence alignment", "CLUSTAL", "1.81", true},
		{"CLUSTAL W (1.83) multiple sequence alignment", "CLUSTAL", "1.83", true},
		{"CLUSTAL 2.1 multiple sequence alignment", "CLUSTAL", "2.1", true},
		{"CLUSTAL O(1.2.4) multiple sequence alignment", "CLUSTAL", "1.2.4", true},
		{"MUSCLE (3.8) multiple sequence alignment", "MUSCLE", "3.8", true},
		{"PROBCONS version 1.12 multiple sequence alignment", "PROBCONS", "1.12", true},
		{"MSAPROBS version 0.9.7 multiple sequence alignment", "MSAPROBS", "0.9.7", true},
		{"Kalign (2.0) alignment in ClustalW format", "Kalign", "2.0", true},
		{"CLUSTAL multiple sequence alignment", "CLUSTAL", "", false},
		{"MUSCLE 3 alignment", "MUSCLE", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			a := mustRead(t, tt.header+"\n\nid1 ACGT\nid2 ACGA\n")
			if got, _ := a.Annotation(AnnotationProgram); got != tt.program {
				t.Errorf("program = %q, want %q", got, tt.program)
			}
			got, ok := a.Annotation(AnnotationVersion)
			if ok != tt.wantVersion || got != tt.version {
				t.Errorf("version = %q, %v; want %q, %v", got, ok, tt.version, tt.wantVersion)
			}
		})
	}
}

func TestDetectHeader(t *testing.T) {
	if p, ok := DetectHeader("MSAPROBS version 0.9.7"); !ok || p != "MSAPROBS" {
		t.Errorf("DetectHeader() = %q, %v; want MSAPROBS, true", p, ok)
	}
	if _, ok := DetectHeader("kalign"); ok {
		t.Error("DetectHeader() should be case-sensitive")
	}

	progs := Programs()
	progs[0] = "changed"
	if Programs()[0] != "CLUSTAL" {
		t.Error("Programs() should return a copy")
	}
}

func TestConsensusUsesBlockOffsets(t *testing.T) {
	input := "CLUSTAL W (1.83) multiple sequence alignment\n" +
		"\n" +
		"id1   ACGT\n" +
		"id2   TGCA\n" +
		"        **\n"
	a := mustRead(t, input)
	if got, _ := a.ColumnAnnotation(ConsensusKey); got != "  **" {
		t.Errorf("consensus = %q, want %q", got, "  **")
	}
}

func TestConsensusIndependentOfIDWidth(t *testing.T) {
	input := "CLUSTAL W (1.83) multiple sequence alignment\n" +
		"\n" +
		"a           ACGTAC\n" +
		"much_longer ACGAAC\n" +
		"            *** **\n" +
		"\n" +
		"a           GG\n" +
		"much_longer GC\n" +
		"             *\n"
	a := mustRead(t, input)
	if got, _ := a.ColumnAnnotation(ConsensusKey); got != "*** ** *" {
		t.Errorf("consensus = %q, want %q", got, "*** ** *")
	}
	seqs := sequences(a)
	if seqs["a"] != "ACGTACGG" || seqs["much_longer"] != "ACGAACGC" {
		t.Errorf("sequences = %v", seqs)
	}
}

func TestCrossBlockStitching(t *testing.T) {
	input := "CLUSTAL W (1.83) multiple sequence alignment\n\n" +
		"id1 ACGT\n" +
		"id2 TGCA\n" +
		"\n" +
		"id1 TTTT\n" +
		"id2 GGGG\n"
	a := mustRead(t, input)
	seqs := sequences(a)
	if seqs["id1"] != "ACGTTTTT" {
		t.Errorf("id1 = %q, want ACGTTTTT", seqs["id1"])
	}
	if seqs["id2"] != "TGCAGGGG" {
		t.Errorf("id2 = %q, want TGCAGGGG", seqs["id2"])
	}
	if _, ok := a.ColumnAnnotation(ConsensusKey); ok {
		t.Error("no consensus lines were given, annotation should be absent")
	}
}

func TestLineEndings(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"crlf", "CLUSTAL W (1.83)\r\n\r\nid1   ACGT\r\nid2   ACGA\r\n      *** \r\n"},
		{"no final newline", "CLUSTAL W (1.83)\n\nid1   ACGT\nid2   ACGA\n      ***"},
		{"extra blank lines", "CLUSTAL W (1.83)\n\n\n\nid1   ACGT\nid2   ACGA\n      ***\n\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustRead(t, tt.input)
			if seqs := sequences(a); seqs["id1"] != "ACGT" || seqs["id2"] != "ACGA" {
				t.Errorf("sequences = %v", seqs)
			}
			if got, _ := a.ColumnAnnotation(ConsensusKey); got != "*** " {
				t.Errorf("consensus = %q, want %q", got, "*** ")
			}
		})
	}
}

func TestConsensusPadding(t *testing.T) {
	t.Run("blank consensus line", func(t *testing.T) {
		input := "CLUSTAL\n\nid1 ACGT\nid2 TGCA\n        \n"
		a := mustRead(t, input)
		if got, _ := a.ColumnAnnotation(ConsensusKey); got != "    " {
			t.Errorf("consensus = %q, want four spaces", got)
		}
	})

	t.Run("blank consensus line ends its block", func(t *testing.T) {
		input := "CLUSTAL W\n\nid1 ACGT\nid2 ACGA\n   \nid1 TT\nid2 TT\n"
		a := mustRead(t, input)
		if seqs := sequences(a); seqs["id1"] != "ACGTTT" || seqs["id2"] != "ACGATT" {
			t.Errorf("sequences = %v", seqs)
		}
		if got, _ := a.ColumnAnnotation(ConsensusKey); got != "      " {
			t.Errorf("consensus = %q, want six spaces", got)
		}
	})

	t.Run("first block without consensus", func(t *testing.T) {
		input := "CLUSTAL\n\nid1 ACGT\nid2 ACGA\n\nid1 TT\nid2 TT\n    **\n"
		a := mustRead(t, input)
		if got, _ := a.ColumnAnnotation(ConsensusKey); got != "    **" {
			t.Errorf("consensus = %q, want %q", got, "    **")
		}
	})

	t.Run("later block without consensus", func(t *testing.T) {
		input := "CLUSTAL\n\nid1 ACGT\nid2 ACGA\n    ***\n\nid1 TT\nid2 TT\n"
		a := mustRead(t, input)
		if got, _ := a.ColumnAnnotation(ConsensusKey); got != "***   " {
			t.Errorf("consensus = %q, want %q", got, "***   ")
		}
		if err := a.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestWithConsensusKey(t *testing.T) {
	a := mustRead(t, "CLUSTAL\n\nid1 AC\nid2 AC\n    **\n", WithConsensusKey("clustal_consensus"))
	if _, ok := a.ColumnAnnotation(ConsensusKey); ok {
		t.Error("default key should not be used")
	}
	if got, _ := a.ColumnAnnotation("clustal_consensus"); got != "**" {
		t.Errorf("consensus = %q, want **", got)
	}
}

func TestHeaderOnly(t *testing.T) {
	a := mustRead(t, "MUSCLE (3.8) multiple sequence alignment\n\n\n")
	if a.Len() != 0 || a.ColumnLen() != 0 {
		t.Errorf("dimensions = %dx%d, want 0x0", a.Len(), a.ColumnLen())
	}
	if got, _ := a.Annotation(AnnotationProgram); got != "MUSCLE" {
		t.Errorf("program = %q, want MUSCLE", got)
	}
}

func TestReadErrors(t *testing.T) {
	const header = "CLUSTAL W (1.83) multiple sequence alignment\n\n"
	tests := []struct {
		name     string
		body     string
		opts     []Option
		wantKind error
		wantLine int // 0 when the failure is reported at end of input
	}{
		{
			name:     "one field",
			body:     "id1\n",
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 3,
		},
		{
			name:     "three fields",
			body:     "id1 AC GT\n",
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 3,
		},
		{
			name:     "residue count without option",
			body:     "id1 ACGT 4\n",
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 3,
		},
		{
			name:     "non numeric count with option",
			body:     "id1 ACGT x4\n",
			opts:     []Option{WithResidueCounts()},
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 3,
		},
		{
			name:     "width mismatch in first block",
			body:     "id1 ACGT\nid2 ACG\n",
			wantKind: msaerrors.ErrLengthMismatch,
			wantLine: 4,
		},
		{
			name:     "width mismatch in later block",
			body:     "id1   ACGT\nid2   TGCA\n\nid1   TTTT\nid2   TT\n",
			wantKind: msaerrors.ErrLengthMismatch,
			wantLine: 7,
		},
		{
			name:     "record missing from later block",
			body:     "id1 ACGT\nid2 TGCA\n\nid1 TTTT\n\n",
			wantKind: msaerrors.ErrLengthMismatch,
			wantLine: 7,
		},
		{
			name:     "record missing at end of input",
			body:     "id1 ACGT\nid2 TGCA\n\nid1 TTTT\n",
			wantKind: msaerrors.ErrLengthMismatch,
		},
		{
			name:     "new record in later block",
			body:     "id1 ACGT\n\nid1 TTTT\nid2 TTTT\n",
			wantKind: msaerrors.ErrLengthMismatch,
			wantLine: 6,
		},
		{
			name:     "duplicate id in first block",
			body:     "id1 ACGT\nid2 TGCA\nid1 ACGT\n",
			wantKind: msaerrors.ErrDuplicateID,
			wantLine: 5,
		},
		{
			name:     "consensus before sequences",
			body:     "    ****\nid1 ACGT\n",
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 3,
		},
		{
			name:     "two consensus lines",
			body:     "id1 ACGT\n    ****\n    ****\n",
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 5,
		},
		{
			name:     "sequence after consensus",
			body:     "id1 ACGT\n    ****\nid2 ACGT\n",
			wantKind: msaerrors.ErrMalformedLine,
			wantLine: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Read(strings.NewReader(header+tt.body), tt.opts...)
			if a != nil {
				t.Errorf("Read() returned an alignment on failure")
			}
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("Read() error = %v, want %v", err, tt.wantKind)
			}
			var le *msaerrors.LineError
			if tt.wantLine == 0 {
				if errors.As(err, &le) {
					t.Errorf("end-of-input failure reported at line %d", le.LineNo)
				}
				return
			}
			if !errors.As(err, &le) {
				t.Fatalf("error %v carries no line context", err)
			}
			if le.LineNo != tt.wantLine {
				t.Errorf("LineNo = %d, want %d", le.LineNo, tt.wantLine)
			}
			if !strings.Contains(err.Error(), fmt.Sprintf("line %d", tt.wantLine)) {
				t.Errorf("error %q does not name the line", err.Error())
			}
		})
	}
}

func TestWithResidueCounts(t *testing.T) {
	input := "CLUSTAL W (1.83) multiple sequence alignment\n\n" +
		"id1      AC-T 3\n" +
		"id2      ACGT 4\n" +
		"         ** *\n" +
		"\n" +
		"id1      GG 5\n" +
		"id2      G- 5\n"
	a := mustRead(t, input, WithResidueCounts())
	seqs := sequences(a)
	if seqs["id1"] != "AC-TGG" || seqs["id2"] != "ACGTG-" {
		t.Errorf("sequences = %v", seqs)
	}
	if got, _ := a.ColumnAnnotation(ConsensusKey); got != "** *  " {
		t.Errorf("consensus = %q, want %q", got, "** *  ")
	}
}

// renderClustal writes seqs in blocks of width columns with padding that
// varies per line.
func renderClustal(ids, seqs []string, width int) string {
	var sb strings.Builder
	sb.WriteString("CLUSTAL W (1.83) multiple sequence alignment\n\n\n")
	for b := 0; b < len(seqs[0]); b += width {
		end := b + width
		if end > len(seqs[0]) {
			end = len(seqs[0])
		}
		for i, id := range ids {
			fmt.Fprintf(&sb, "%s%s%s\n", id, strings.Repeat(" ", 1+(i+b)%5), seqs[i][b:end])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestFragmentsReassemble(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const residues = "ACDEFGHIKLMNPQRSTVWY-"

	for trial := 0; trial < 20; trial++ {
		rows := 1 + rng.Intn(8)
		cols := 1 + rng.Intn(300)
		width := 1 + rng.Intn(70)

		ids := make([]string, rows)
		seqs := make([]string, rows)
		for i := range ids {
			ids[i] = fmt.Sprintf("seq%d_%s", i, strings.Repeat("x", rng.Intn(6)))
			b := make([]byte, cols)
			for j := range b {
				b[j] = residues[rng.Intn(len(residues))]
			}
			seqs[i] = string(b)
		}

		a, err := Read(strings.NewReader(renderClustal(ids, seqs, width)))
		if err != nil {
			t.Fatalf("trial %d: Read() failed: %v", trial, err)
		}
		if a.Len() != rows {
			t.Fatalf("trial %d: Len() = %d, want %d", trial, a.Len(), rows)
		}
		seen := map[string]bool{}
		for i, r := range a.Records() {
			if r.ID() != ids[i] {
				t.Errorf("trial %d: record %d id = %q, want %q", trial, i, r.ID(), ids[i])
			}
			if r.Sequence() != seqs[i] {
				t.Errorf("trial %d: record %q sequence differs from its fragments", trial, r.ID())
			}
			if r.Len() != a.ColumnLen() {
				t.Errorf("trial %d: record %q has %d columns, want %d", trial, r.ID(), r.Len(), a.ColumnLen())
			}
			if seen[r.ID()] {
				t.Errorf("trial %d: duplicate id %q", trial, r.ID())
			}
			seen[r.ID()] = true
		}
	}
}

func TestConcurrentReads(t *testing.T) {
	inputs := []string{
		"CLUSTAL\n\na ACGT\nb ACGA\n",
		"MUSCLE (3.8)\n\nx  TT\ny  TA\n   *\n\nx  GG\ny  GG\n   **\n",
		"Kalign\n\nk1 A\n",
	}
	want := []int{4, 4, 1}

	var wg sync.WaitGroup
	errs := make([]error, len(inputs)*10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := Read(strings.NewReader(inputs[i%len(inputs)]))
			if err != nil {
				errs[i] = err
				return
			}
			if a.ColumnLen() != want[i%len(inputs)] {
				errs[i] = fmt.Errorf("ColumnLen() = %d, want %d", a.ColumnLen(), want[i%len(inputs)])
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("read %d: %v", i, err)
		}
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mustRead(t, "CLUSTAL W (1.83)\n\nid1 AC\nid2 AC\n\nid1 GT\nid2 GT\n", WithLogger(logger))

	out := buf.String()
	for _, want := range []string{`"msg":"alignment header"`, `"msg":"block closed"`, `"msg":"alignment read"`, `"blocks":2`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestReadIOError(t *testing.T) {
	a, err := Read(failingReader{})
	if a != nil {
		t.Error("Read() returned an alignment on failure")
	}
	var ioErr *msaerrors.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Read() error = %v, want IOError", err)
	}
}
