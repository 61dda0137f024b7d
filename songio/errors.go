package songio

import (
	"fmt"
	"strings"
)

// UnsupportedFormatError is returned when no registered format matches a
// file or a format hint.
type UnsupportedFormatError struct {
	Path   string
	Hint   string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: unsupported format %q: %s", e.Path, e.Hint, e.Reason)
	}
	return fmt.Sprintf("%s: unsupported format: %s", e.Path, e.Reason)
}

// AmbiguousFormatError is returned when several formats match a file equally
// well. Formats lists the tied format ids, sorted.
type AmbiguousFormatError struct {
	Path       string
	Formats    []string
	Confidence Confidence
}

func (e *AmbiguousFormatError) Error() string {
	return fmt.Sprintf("%s: ambiguous format, %s all match with confidence %.2f; give a format hint", e.Path, strings.Join(e.Formats, ", "), float64(e.Confidence))
}

// Location points to an element of a song document.
type Location struct {
	Section string // "document", "meta", "timing", "machine", "wire", "pattern", "track", "song", "loop", "label" or "setup"
	ID      string
	Tick    int
	HasTick bool
}

func (l Location) String() string {
	var b strings.Builder
	b.WriteString(l.Section)
	if l.ID != "" {
		fmt.Fprintf(&b, " %q", l.ID)
	}
	if l.HasTick {
		fmt.Fprintf(&b, " at tick %d", l.Tick)
	}
	return b.String()
}

// CorruptSongError is returned when a document can be read but does not
// describe a valid song. Err is usually a *kappale.ValidationError.
type CorruptSongError struct {
	Path     string
	Format   string
	Location Location
	Err      error
}

func (e *CorruptSongError) Error() string {
	return fmt.Sprintf("%s: corrupt song, %s: %v", e.Path, e.Location, e.Err)
}

func (e *CorruptSongError) Unwrap() error { return e.Err }

// IOError is returned when reading or writing the underlying file fails,
// including when the operation was cancelled.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// UnsupportedWriteError is returned when saving through a format that can
// only be read.
type UnsupportedWriteError struct {
	Format string
}

func (e *UnsupportedWriteError) Error() string {
	return fmt.Sprintf("write not supported for %s", e.Format)
}

// Warning is a non-fatal issue found while loading, typically an element
// written by a newer version that was skipped.
type Warning struct {
	Location string
	Message  string
}

func (w Warning) String() string {
	if w.Location == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Location, w.Message)
}

func corrupt(loc Location, err error) *CorruptSongError {
	return &CorruptSongError{Location: loc, Err: err}
}
