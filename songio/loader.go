package songio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/vsariola/kappale"
	"golang.org/x/sync/errgroup"
)

type (
	// Loader loads and saves songs through the formats of a Registry.
	Loader struct {
		Registry  *Registry
		Logger    *slog.Logger
		ProbeSize int
	}

	// Result is a loaded song with the warnings found while loading it.
	Result struct {
		Song     *kappale.Song
		Warnings []Warning
		Format   string
		Path     string
		Version  int // document version the file was written in
	}

	LoaderOption func(*Loader)
)

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.Logger = logger }
}

// WithProbeSize sets how many bytes of a file the format probes see.
func WithProbeSize(n int) LoaderOption {
	return func(l *Loader) { l.ProbeSize = n }
}

func NewLoader(registry *Registry, opts ...LoaderOption) *Loader {
	l := &Loader{Registry: registry, Logger: slog.Default(), ProbeSize: DefaultProbeSize}
	for _, o := range opts {
		o(l)
	}
	return l
}

// DefaultRegistry returns a registry with all the built-in formats.
func DefaultRegistry() *Registry {
	r := NewRegistry(DefaultMinConfidence)
	native := WithVersions(func(v int) bool { return v >= 2 })
	must(r.Register("kappale-yaml", YAMLCodec{}, WithExtensions(".kap", ".yml", ".yaml"), native))
	must(r.Register("kappale-json", JSONCodec{}, WithExtensions(".json"), native))
	must(r.Register("kappale-xml", XMLCodec{}, WithExtensions(".xml"), native))
	must(r.Register("kappale-archive", ArchiveCodec{}, WithExtensions(".kpz"), native))
	must(r.Register("kappale-v1", LegacyCodec{}, WithReadOnly(), WithVersions(func(v int) bool { return v == 1 })))
	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Load reads the song at path. An empty hint lets the registry pick the
// format from the contents of the file.
func (l *Loader) Load(ctx context.Context, path, hint string) (*Result, error) {
	data, err := readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	prefix := data[:min(len(data), l.probeSize())]
	format, err := l.Registry.Resolve(path, hint, prefix)
	if err != nil {
		return nil, err
	}
	song, warnings, err := format.Codec.Load(ctx, bytes.NewReader(data))
	if err != nil {
		var c *CorruptSongError
		switch {
		case ctx.Err() != nil:
			return nil, &IOError{Op: "load", Path: path, Err: ctx.Err()}
		case errors.As(err, &c):
			c.Path, c.Format = path, format.ID
			return nil, c
		default:
			return nil, &CorruptSongError{Path: path, Format: format.ID, Location: Location{Section: "document"}, Err: err}
		}
	}
	for _, w := range warnings {
		l.logger().Warn("song loaded with warning", "path", path, "format", format.ID, "warning", w.String())
	}
	l.logger().Debug("song loaded", "path", path, "format", format.ID, "warnings", len(warnings))
	return &Result{Song: song, Warnings: warnings, Format: format.ID, Path: path, Version: song.DocumentVersion()}, nil
}

// LoadMany loads several files concurrently. The results are in the order
// of paths; the first failure cancels the remaining loads.
func (l *Loader) LoadMany(ctx context.Context, hint string, paths ...string) ([]*Result, error) {
	results := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			r, err := l.Load(ctx, path, hint)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Save writes song to path. The song is validated first; the file is
// replaced only once the whole document has been written.
func (l *Loader) Save(ctx context.Context, song *kappale.Song, path, hint string) error {
	if err := song.Validate(); err != nil {
		return err
	}
	format, err := l.Registry.ForSave(path, hint)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := format.Codec.Save(ctx, &buf, song); err != nil {
		if ctx.Err() != nil {
			return &IOError{Op: "save", Path: path, Err: ctx.Err()}
		}
		return fmt.Errorf("%s: %s save failed: %w", path, format.ID, err)
	}
	if err := writeFile(ctx, path, buf.Bytes()); err != nil {
		return err
	}
	l.logger().Debug("song saved", "path", path, "format", format.ID, "bytes", buf.Len())
	return nil
}

func (l *Loader) probeSize() int {
	if l.ProbeSize <= 0 {
		return DefaultProbeSize
	}
	return l.ProbeSize
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// ctxReader fails reads once its context is done, so that reading a large
// or slow file can be cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(ctxReader{ctx: ctx, r: f})
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

func writeFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &IOError{Op: "save", Path: path, Err: err}
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return &IOError{Op: "create", Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
