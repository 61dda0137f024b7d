package songio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/mholt/archives"
	"github.com/vsariola/kappale"
)

// ArchiveSongName is the entry holding the song inside an archive.
const ArchiveSongName = "song.xml"

// ArchiveCodec stores the XML document in a zip container, next to any
// other files the song might come with. Entries other than the song are
// skipped with a warning.
type ArchiveCodec struct{}

func (ArchiveCodec) Probe(name string, prefix []byte) Confidence {
	m, err := archives.Zip{}.Match(context.Background(), name, bytes.NewReader(prefix))
	if err != nil {
		return 0
	}
	switch {
	case m.ByStream && bytes.Contains(prefix, []byte(ArchiveSongName)):
		return 0.95
	case m.ByStream:
		return 0.5
	case m.ByName:
		return 0.2
	}
	return 0
}

func (ArchiveCodec) Load(ctx context.Context, r io.Reader) (*kappale.Song, []Warning, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	var song []byte
	var warnings []Warning
	err = archives.Zip{}.Extract(ctx, bytes.NewReader(data), func(ctx context.Context, f archives.FileInfo) error {
		if f.IsDir() {
			return nil
		}
		if f.NameInArchive != ArchiveSongName {
			warnings = append(warnings, Warning{Location: "archive", Message: fmt.Sprintf("unknown entry %q skipped", f.NameInArchive)})
			return nil
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		song, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("zip.Extract failed: %w", err))
	}
	if song == nil {
		return nil, nil, corrupt(Location{Section: "document"}, errors.New("archive has no "+ArchiveSongName))
	}
	s, more, err := XMLCodec{}.Load(ctx, bytes.NewReader(song))
	if err != nil {
		return nil, nil, err
	}
	return s, append(warnings, more...), nil
}

func (ArchiveCodec) Save(ctx context.Context, w io.Writer, song *kappale.Song) error {
	var buf bytes.Buffer
	if err := (XMLCodec{}).Save(ctx, &buf, song); err != nil {
		return err
	}
	entry := memEntry{name: ArchiveSongName, data: buf.Bytes()}
	files := []archives.FileInfo{{
		FileInfo:      entry,
		NameInArchive: ArchiveSongName,
		Open:          func() (fs.File, error) { return &memFile{Reader: bytes.NewReader(entry.data), entry: entry}, nil },
	}}
	if err := (archives.Zip{}).Archive(ctx, w, files); err != nil {
		return fmt.Errorf("zip.Archive failed: %w", err)
	}
	return nil
}

// archiveTime is the modification time of archive entries, so that saving
// the same song twice gives the same bytes.
var archiveTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type memEntry struct {
	name string
	data []byte
}

func (e memEntry) Name() string       { return e.name }
func (e memEntry) Size() int64        { return int64(len(e.data)) }
func (e memEntry) Mode() fs.FileMode  { return 0o644 }
func (e memEntry) ModTime() time.Time { return archiveTime }
func (e memEntry) IsDir() bool        { return false }
func (e memEntry) Sys() any           { return nil }

type memFile struct {
	*bytes.Reader
	entry memEntry
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.entry, nil }
func (f *memFile) Close() error               { return nil }
