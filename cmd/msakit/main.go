// Command msakit reads CLUSTAL-family multiple sequence alignments and keeps
// them in a local catalog.
package main

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/FocuswithJustin/msakit/core/cas"
	"github.com/FocuswithJustin/msakit/core/clustal"
	"github.com/FocuswithJustin/msakit/core/errors"
	"github.com/FocuswithJustin/msakit/core/msa"
	"github.com/FocuswithJustin/msakit/core/sqlite"
	"github.com/FocuswithJustin/msakit/internal/archive"
	"github.com/FocuswithJustin/msakit/internal/catalog"
	"github.com/FocuswithJustin/msakit/internal/logging"
	"github.com/FocuswithJustin/msakit/internal/validation"
)

const version = "0.1.0"

// Globals are the settings shared by every command. Each can also come from
// the environment or from the JSON configuration file.
type Globals struct {
	Config        kong.ConfigFlag `help:"Load configuration from a JSON file."`
	DB            string          `name:"db" help:"Catalog database path." default:"~/.local/share/msakit/catalog.db" type:"path" env:"MSAKIT_DB"`
	Blobs         string          `help:"Directory for raw alignment sources." default:"~/.local/share/msakit/blobs" type:"path" env:"MSAKIT_BLOBS"`
	LogLevel      string          `help:"Log level (debug, info, warn, error)." default:"warn" enum:"debug,info,warn,error" env:"MSAKIT_LOG_LEVEL"`
	LogFormat     string          `help:"Log format (text, json, pretty)." default:"text" enum:"text,json,pretty" env:"MSAKIT_LOG_FORMAT"`
	ResidueCounts bool            `help:"Accept a trailing residue count on sequence lines." env:"MSAKIT_RESIDUE_COUNTS"`
}

// CLI defines the command-line interface for msakit.
type CLI struct {
	Globals

	Parse   ParseCmd   `cmd:"" help:"Parse an alignment and print a summary"`
	Import  ImportCmd  `cmd:"" help:"Parse an alignment and save it in the catalog"`
	List    ListCmd    `cmd:"" help:"List catalog entries"`
	Show    ShowCmd    `cmd:"" help:"Print a catalog entry"`
	Source  SourceCmd  `cmd:"" help:"Print a raw alignment source from the blob store"`
	Delete  DeleteCmd  `cmd:"" help:"Remove a catalog entry"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// configPaths are read in order; missing files are skipped.
var configPaths = []string{
	"/etc/msakit/config.json",
	"~/.config/msakit/config.json",
}

func cliOptions() []kong.Option {
	return []kong.Option{
		kong.Name("msakit"),
		kong.Description("Multiple sequence alignment reader and catalog"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON, configPaths...),
	}
}

// App carries what commands need at run time.
type App struct {
	ctx     context.Context
	out     io.Writer
	globals *Globals
}

func newApp(g *Globals, out io.Writer) (*App, error) {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(level, format)

	return &App{
		ctx:     logging.WithRunID(context.Background(), uuid.NewString()),
		out:     out,
		globals: g,
	}, nil
}

func (a *App) readerOptions() []clustal.Option {
	opts := []clustal.Option{clustal.WithLogger(logging.LoggerFromContext(a.ctx))}
	if a.globals.ResidueCounts {
		opts = append(opts, clustal.WithResidueCounts())
	}
	return opts
}

func (a *App) openCatalog() (*catalog.Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(a.globals.DB), 0o755); err != nil {
		return nil, errors.NewIO("create", filepath.Dir(a.globals.DB), err)
	}
	return catalog.Open(a.globals.DB)
}

func (a *App) openCatalogReadOnly() (*catalog.Catalog, error) {
	return catalog.OpenReadOnly(a.globals.DB)
}

// source is one alignment file, or one member of a tar bundle.
type source struct {
	name string
	data []byte
}

// readSources returns the alignments stored at path. A tar bundle yields
// one source per regular file.
func readSources(path string) ([]source, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}
	r, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if !r.IsTar {
		data, err := readLimited(r, path)
		if err != nil {
			return nil, err
		}
		return []source{{name: archive.SourceName(path), data: data}}, nil
	}

	var sources []source
	err = r.Iterate(func(h *tar.Header, content io.Reader) (bool, error) {
		if err := validation.ValidateSize(h.Size); err != nil {
			return true, fmt.Errorf("%s: %w", h.Name, err)
		}
		data, err := readLimited(content, h.Name)
		if err != nil {
			return true, err
		}
		name, err := validation.SanitizeName(archive.SourceName(h.Name))
		if err != nil {
			return true, fmt.Errorf("%s: %w", h.Name, err)
		}
		sources = append(sources, source{name: name, data: data})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.NewValidation("input", fmt.Sprintf("%s contains no files", path))
	}
	return sources, nil
}

func readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, validation.MaxFileSize+1))
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	if err := validation.ValidateSize(int64(len(data))); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return data, nil
}

func (a *App) parse(src source) (*msa.Alignment, error) {
	aln, err := clustal.Read(bytes.NewReader(src.data), a.readerOptions()...)
	if err != nil {
		logging.ParseFailed(a.ctx, src.name, err)
		return nil, fmt.Errorf("%s: %w", src.name, err)
	}
	program, _ := aln.Annotation(clustal.AnnotationProgram)
	logging.AlignmentParsed(a.ctx, src.name, aln.Len(), aln.ColumnLen(), "program", program)
	return aln, nil
}

func applyRegion(aln *msa.Alignment, region string) (*msa.Alignment, error) {
	if region == "" {
		return aln, nil
	}
	r, err := msa.ParseRegion(region)
	if err != nil {
		return nil, err
	}
	return r.Apply(aln)
}

func (a *App) printAlignment(aln *msa.Alignment, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(aln)
	}
	_, err := fmt.Fprintln(a.out, aln.String())
	return err
}

// ParseCmd parses an alignment without saving it.
type ParseCmd struct {
	File   string `arg:"" help:"Alignment file, optionally xz or gzip compressed, or - for stdin"`
	JSON   bool   `help:"Print the alignment as JSON"`
	Region string `help:"Only print a region, as [id:]start[-end] with 1-based columns"`
}

func (c *ParseCmd) Run(app *App) error {
	sources, err := readSources(c.File)
	if err != nil {
		return err
	}
	for _, src := range sources {
		aln, err := app.parse(src)
		if err != nil {
			return err
		}
		if aln, err = applyRegion(aln, c.Region); err != nil {
			return fmt.Errorf("%s: %w", src.name, err)
		}
		if len(sources) > 1 && !c.JSON {
			fmt.Fprintf(app.out, "# %s\n", src.name)
		}
		if err := app.printAlignment(aln, c.JSON); err != nil {
			return err
		}
	}
	return nil
}

// ImportCmd parses alignments and saves them in the catalog. The raw source
// is kept in the blob store.
type ImportCmd struct {
	File string `arg:"" help:"Alignment file or tar bundle, optionally compressed, or - for stdin"`
	Name string `help:"Catalog name (default: derived from the file name)"`
}

func (c *ImportCmd) Run(app *App) error {
	sources, err := readSources(c.File)
	if err != nil {
		return err
	}

	store, err := cas.NewStore(app.globals.Blobs)
	if err != nil {
		return err
	}
	cat, err := app.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	for _, src := range sources {
		aln, err := app.parse(src)
		if err != nil {
			return err
		}
		hashes, err := store.PutWithBlake3(src.data)
		if err != nil {
			return err
		}

		name := src.name
		if c.Name != "" {
			name = c.Name
			if len(sources) > 1 {
				name = c.Name + "/" + src.name
			}
		}
		entry, err := cat.Save(app.ctx, name, aln, hashes.SHA256)
		if err != nil {
			return fmt.Errorf("%s: %w", src.name, err)
		}
		fmt.Fprintf(app.out, "%s  %s  %d x %d\n", entry.ID, entry.Name, entry.Rows, entry.Columns)
	}
	return nil
}

// ListCmd lists catalog entries.
type ListCmd struct {
	JSON bool `help:"Print entries as JSON"`
}

func (c *ListCmd) Run(app *App) error {
	var entries []catalog.Entry
	cat, err := app.openCatalogReadOnly()
	switch {
	case errors.Is(err, errors.ErrNotFound):
		// Nothing has been imported yet.
	case err != nil:
		return err
	default:
		defer cat.Close()
		if entries, err = cat.List(app.ctx); err != nil {
			return err
		}
	}
	if c.JSON {
		if entries == nil {
			entries = []catalog.Entry{}
		}
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(app.out, "No alignments in catalog")
		return nil
	}
	fmt.Fprintf(app.out, "%-36s  %-24s %6s %8s  %s\n", "ID", "NAME", "ROWS", "COLUMNS", "CREATED")
	for _, e := range entries {
		fmt.Fprintf(app.out, "%-36s  %-24s %6d %8d  %s\n",
			e.ID, e.Name, e.Rows, e.Columns, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// ShowCmd prints one catalog entry.
type ShowCmd struct {
	ID     string `arg:"" help:"Catalog entry ID"`
	Region string `help:"Only print a region, as [id:]start[-end] with 1-based columns"`
	JSON   bool   `help:"Print the alignment as JSON"`
	Source bool   `help:"Print the raw source the entry was imported from"`
}

func (c *ShowCmd) Run(app *App) error {
	cat, err := app.openCatalogReadOnly()
	if err != nil {
		return err
	}
	defer cat.Close()

	entry, err := cat.Get(app.ctx, c.ID)
	if err != nil {
		return err
	}
	store, err := cas.NewStore(app.globals.Blobs)
	if err != nil {
		return err
	}

	if c.Source {
		if entry.SourceSHA256 == "" {
			return errors.NewNotFound("source", entry.ID)
		}
		data, err := store.Get(entry.SourceSHA256)
		if err != nil {
			return fmt.Errorf("source of %s: %w", entry.ID, err)
		}
		_, err = app.out.Write(data)
		return err
	}

	aln, err := cat.Load(app.ctx, c.ID)
	if err != nil {
		return err
	}
	if aln, err = applyRegion(aln, c.Region); err != nil {
		return err
	}

	if !c.JSON {
		fmt.Fprintf(app.out, "ID:          %s\n", entry.ID)
		fmt.Fprintf(app.out, "Name:        %s\n", entry.Name)
		fmt.Fprintf(app.out, "Fingerprint: %s\n", entry.Fingerprint)
		if entry.SourceSHA256 != "" {
			missing := ""
			if !store.Exists(entry.SourceSHA256) {
				missing = " (missing from blob store)"
			}
			fmt.Fprintf(app.out, "Source:      sha256:%s%s\n", entry.SourceSHA256, missing)
		}
		fmt.Fprintln(app.out)
	}
	return app.printAlignment(aln, c.JSON)
}

// SourceCmd prints a stored source by hash. A hash prefixed with blake3: is
// resolved through the BLAKE3 pointer written at import time; a bare hash
// is taken as SHA-256.
type SourceCmd struct {
	Hash    string `arg:"" help:"Source hash, as sha256:<hex>, blake3:<hex> or <hex>"`
	Resolve bool   `help:"Print the SHA-256 a BLAKE3 hash points to instead of the content"`
}

func (c *SourceCmd) Run(app *App) error {
	store, err := cas.NewStore(app.globals.Blobs)
	if err != nil {
		return err
	}

	var data []byte
	switch algo, hash, _ := strings.Cut(c.Hash, ":"); {
	case hash == "":
		data, err = store.Get(algo)
	case algo == "sha256":
		data, err = store.Get(hash)
	case algo == "blake3" && c.Resolve:
		sha, err := store.LookupBlake3(hash)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(app.out, "sha256:"+sha)
		return err
	case algo == "blake3":
		data, err = store.GetByBlake3(hash)
	default:
		return errors.NewUnsupported("hash algorithm", algo)
	}
	if err != nil {
		return err
	}
	_, err = app.out.Write(data)
	return err
}

// DeleteCmd removes a catalog entry.
type DeleteCmd struct {
	ID string `arg:"" help:"Catalog entry ID"`
}

func (c *DeleteCmd) Run(app *App) error {
	cat, err := app.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	if err := cat.Delete(app.ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "Deleted %s\n", c.ID)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(app *App) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(app.out, "msakit version %s\n", version)
	fmt.Fprintf(app.out, "sqlite driver: %s (%s, %s)\n", info.DriverName, info.DriverType, info.Package)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, cliOptions()...)
	app, err := newApp(&cli.Globals, os.Stdout)
	ctx.FatalIfErrorf(err)
	err = ctx.Run(app)
	ctx.FatalIfErrorf(err)
}
