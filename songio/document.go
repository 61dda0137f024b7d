package songio

import (
	"context"
	"fmt"
	"slices"

	"github.com/vsariola/kappale"
)

// FormatName is the marker written in the "format" field of native
// documents.
const FormatName = "kappale"

// Document is the tree written by the native YAML and JSON codecs. The
// order of the fields is the order the sections are written and read in.
type Document struct {
	Format   string            `yaml:"format" json:"format"`
	Version  int               `yaml:"version" json:"version"`
	Meta     kappale.Meta      `yaml:"meta,omitempty" json:"meta"`
	Timing   kappale.Timing    `yaml:"timing" json:"timing"`
	Length   int               `yaml:"length" json:"length"`
	Loop     *kappale.Loop     `yaml:"loop,omitempty" json:"loop,omitempty"`
	Labels   []kappale.Label   `yaml:"labels,omitempty" json:"labels,omitempty"`
	Machines []kappale.Machine `yaml:"machines,omitempty" json:"machines,omitempty"`
	Wires    []kappale.Wire    `yaml:"wires,omitempty" json:"wires,omitempty"`
	Patterns []kappale.Pattern `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Tracks   []kappale.Track   `yaml:"tracks,omitempty" json:"tracks,omitempty"`
}

// FromSong returns the document describing song, in the current version.
func FromSong(song *kappale.Song) *Document {
	doc := &Document{
		Format:   FormatName,
		Version:  kappale.FormatVersion,
		Meta:     song.Meta(),
		Timing:   song.Timing(),
		Length:   song.Length(),
		Labels:   slices.Collect(song.Labels()),
		Machines: slices.Collect(song.Machines()),
		Wires:    slices.Collect(song.Wires()),
		Patterns: slices.Collect(song.Patterns()),
		Tracks:   slices.Collect(song.Tracks()),
	}
	if l, ok := song.Loop(); ok {
		doc.Loop = &l
	}
	return doc
}

// Assemble builds a song from a document, element by element, in the order
// meta, timing, machines, wires, patterns, tracks, length, loop, labels. The
// first element breaking an invariant aborts with a *CorruptSongError
// pointing to it; no song is returned then. Machines of an unknown type and
// parameters of an unknown kind are skipped with a warning.
func Assemble(ctx context.Context, doc *Document) (*kappale.Song, []Warning, error) {
	var warnings []Warning
	warn := func(loc Location, format string, args ...any) {
		warnings = append(warnings, Warning{Location: loc.String(), Message: fmt.Sprintf(format, args...)})
	}
	song := kappale.NewSong()
	song.SetMeta(doc.Meta)
	song.SetDocumentVersion(doc.Version)
	if doc.Timing != (kappale.Timing{}) {
		if err := song.SetTiming(doc.Timing); err != nil {
			return nil, nil, corrupt(Location{Section: "timing"}, err)
		}
	}
	for _, m := range doc.Machines {
		loc := Location{Section: "machine", ID: m.ID}
		if m.Type == kappale.MachineTypeUnknown {
			warn(loc, "skipped machine of unknown type")
			continue
		}
		if slices.ContainsFunc(m.Params, func(p kappale.Parameter) bool { return p.Kind == kappale.ParamKindUnknown }) {
			m = m.Copy()
			m.Params = slices.DeleteFunc(m.Params, func(p kappale.Parameter) bool {
				if p.Kind != kappale.ParamKindUnknown {
					return false
				}
				warn(loc, "skipped parameter %q of unknown kind", p.Name)
				delete(m.Values, p.Name)
				return true
			})
		}
		if err := song.AddMachine(m); err != nil {
			return nil, nil, corrupt(loc, err)
		}
	}
	for _, w := range doc.Wires {
		if err := song.Connect(w); err != nil {
			return nil, nil, corrupt(Location{Section: "wire", ID: w.Src + "->" + w.Dst}, err)
		}
	}
	for _, p := range doc.Patterns {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		header := p
		header.Events = nil
		if err := song.AddPattern(header); err != nil {
			return nil, nil, corrupt(Location{Section: "pattern", ID: p.ID}, err)
		}
		for _, e := range p.Events {
			if err := song.AddEvent(p.ID, e); err != nil {
				return nil, nil, corrupt(Location{Section: "pattern", ID: p.ID, Tick: e.Tick, HasTick: true}, err)
			}
		}
	}
	for _, t := range doc.Tracks {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		header := t
		header.Placements = nil
		if err := song.AddTrack(header); err != nil {
			return nil, nil, corrupt(Location{Section: "track", ID: t.ID}, err)
		}
		for _, pl := range t.Placements {
			if err := song.AddPlacement(t.ID, pl); err != nil {
				return nil, nil, corrupt(Location{Section: "track", ID: t.ID, Tick: pl.Start, HasTick: true}, err)
			}
		}
	}
	if doc.Length != 0 {
		if err := song.SetLength(doc.Length); err != nil {
			return nil, nil, corrupt(Location{Section: "song"}, err)
		}
	}
	if doc.Loop != nil {
		if err := song.SetLoop(*doc.Loop); err != nil {
			return nil, nil, corrupt(Location{Section: "loop"}, err)
		}
	}
	for _, l := range doc.Labels {
		if err := song.AddLabel(l); err != nil {
			return nil, nil, corrupt(Location{Section: "label", ID: l.Name, Tick: l.Tick, HasTick: true}, err)
		}
	}
	if err := song.Validate(); err != nil {
		return nil, nil, corrupt(Location{Section: "setup"}, err)
	}
	if doc.Version > kappale.FormatVersion {
		warn(Location{Section: "document"}, "version %d is newer than %d, some content may have been skipped", doc.Version, kappale.FormatVersion)
	}
	return song, warnings, nil
}
