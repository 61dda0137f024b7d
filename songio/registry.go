package songio

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/vsariola/kappale"
	"golang.org/x/text/cases"
)

type (
	// Codec reads and writes songs in one file format.
	Codec interface {
		// Probe tells how confident the codec is that a file with the given
		// name, starting with prefix, is in its format. prefix may be
		// shorter than the file.
		Probe(name string, prefix []byte) Confidence
		Load(ctx context.Context, r io.Reader) (*kappale.Song, []Warning, error)
		Save(ctx context.Context, w io.Writer, song *kappale.Song) error
	}

	// Confidence is a probe result between 0 (certainly not) and 1
	// (certainly).
	Confidence float64

	// Format is a codec registered under a format id.
	Format struct {
		ID         string
		Codec      Codec
		Extensions []string
		ReadOnly   bool
		versions   func(version int) bool
	}

	// Registry maps format ids to codecs and picks the codec for a file.
	// Resolution only depends on the registered formats, never on the order
	// they were registered in.
	Registry struct {
		formats       map[string]*Format
		minConfidence Confidence
	}

	FormatOption func(*Format)
)

const (
	// DefaultMinConfidence is the confidence a probe must reach for a
	// format to be picked without a hint.
	DefaultMinConfidence Confidence = 0.25
	// DefaultProbeSize is how many bytes of a file are given to the probes.
	DefaultProbeSize = 4096
)

// WithVersions restricts the document versions a format accepts in a hint
// like "kappale-yaml@2".
func WithVersions(accepts func(version int) bool) FormatOption {
	return func(f *Format) { f.versions = accepts }
}

// WithExtensions sets the file extensions used to pick the format when
// saving, e.g. ".kap".
func WithExtensions(ext ...string) FormatOption {
	return func(f *Format) {
		for _, e := range ext {
			f.Extensions = append(f.Extensions, fold(e))
		}
	}
}

// WithReadOnly marks a format that can be loaded but not saved.
func WithReadOnly() FormatOption {
	return func(f *Format) { f.ReadOnly = true }
}

func NewRegistry(minConfidence Confidence) *Registry {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Registry{formats: map[string]*Format{}, minConfidence: minConfidence}
}

// Register adds a codec under id. Ids are case-insensitive and unique.
func (r *Registry) Register(id string, codec Codec, opts ...FormatOption) error {
	key := fold(id)
	if key == "" || strings.ContainsAny(key, "@ ") {
		return fmt.Errorf("invalid format id %q", id)
	}
	if _, ok := r.formats[key]; ok {
		return fmt.Errorf("format %q already registered", id)
	}
	f := &Format{ID: key, Codec: codec}
	for _, o := range opts {
		o(f)
	}
	r.formats[key] = f
	return nil
}

// Accepts tells whether the format reads documents of the given version.
func (f *Format) Accepts(version int) bool {
	return f.versions == nil || f.versions(version)
}

// Formats returns the registered formats sorted by id.
func (r *Registry) Formats() []*Format {
	ret := make([]*Format, 0, len(r.formats))
	for _, f := range r.formats {
		ret = append(ret, f)
	}
	slices.SortFunc(ret, func(a, b *Format) int { return strings.Compare(a.ID, b.ID) })
	return ret
}

// Lookup returns the format named by a hint of the form "id" or
// "id@version".
func (r *Registry) Lookup(hint string) (*Format, error) {
	id, version, hasVersion := strings.Cut(hint, "@")
	f, ok := r.formats[fold(id)]
	if !ok {
		return nil, &UnsupportedFormatError{Hint: hint, Reason: "no such format registered"}
	}
	if hasVersion {
		v, err := strconv.Atoi(version)
		if err != nil {
			return nil, &UnsupportedFormatError{Hint: hint, Reason: "version is not a number"}
		}
		if !f.Accepts(v) {
			return nil, &UnsupportedFormatError{Hint: hint, Reason: fmt.Sprintf("version %d not supported", v)}
		}
	}
	return f, nil
}

// Resolve picks the format of a file. A non-empty hint decides the format;
// otherwise every codec probes the prefix of the file and the single most
// confident one is picked.
func (r *Registry) Resolve(path, hint string, prefix []byte) (*Format, error) {
	if hint != "" {
		f, err := r.Lookup(hint)
		if err != nil {
			err.(*UnsupportedFormatError).Path = path
			return nil, err
		}
		return f, nil
	}
	name := filepath.Base(path)
	var best Confidence
	var tied []string
	var pick *Format
	for _, f := range r.Formats() {
		c := min(max(f.Codec.Probe(name, prefix), 0), 1)
		switch {
		case c > best:
			best, pick, tied = c, f, []string{f.ID}
		case c == best && pick != nil:
			tied = append(tied, f.ID)
		}
	}
	if pick == nil || best < r.minConfidence {
		return nil, &UnsupportedFormatError{Path: path, Reason: fmt.Sprintf("no format matches with confidence %.2f or more", float64(r.minConfidence))}
	}
	if len(tied) > 1 {
		return nil, &AmbiguousFormatError{Path: path, Formats: tied, Confidence: best}
	}
	return pick, nil
}

// ForSave picks the format to save a file in: the hinted one, or else the
// one registered for the extension of path. Read-only formats are never
// picked.
func (r *Registry) ForSave(path, hint string) (*Format, error) {
	if hint != "" {
		f, err := r.Lookup(hint)
		if err != nil {
			err.(*UnsupportedFormatError).Path = path
			return nil, err
		}
		if f.ReadOnly {
			return nil, &UnsupportedWriteError{Format: f.ID}
		}
		return f, nil
	}
	ext := fold(filepath.Ext(path))
	for _, f := range r.Formats() {
		if !f.ReadOnly && slices.Contains(f.Extensions, ext) {
			return f, nil
		}
	}
	return nil, &UnsupportedFormatError{Path: path, Reason: fmt.Sprintf("no writable format for extension %q", ext)}
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
