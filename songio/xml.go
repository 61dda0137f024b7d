package songio

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/vsariola/kappale"
)

// XMLCodec reads and writes songs as a tagged tree: a <kappale> root with
// the sections meta, timing, setup (machines and wires), patterns and
// sequence (loop, labels and tracks). Elements and attributes it does not
// know are skipped with a warning.
type XMLCodec struct{}

type (
	xmlUnknown struct {
		Elements []xmlElement `xml:",any"`
		Attrs    []xml.Attr   `xml:",any,attr"`
	}

	xmlElement struct {
		XMLName xml.Name
	}

	xmlSong struct {
		XMLName  xml.Name    `xml:"kappale"`
		Version  int         `xml:"version,attr"`
		Meta     xmlMeta     `xml:"meta"`
		Timing   *xmlTiming  `xml:"timing"`
		Setup    xmlSetup    `xml:"setup"`
		Patterns xmlPatterns `xml:"patterns"`
		Sequence xmlSequence `xml:"sequence"`
		xmlUnknown
	}

	xmlMeta struct {
		ID      string `xml:"id,attr,omitempty"`
		Name    string `xml:"name,attr,omitempty"`
		Author  string `xml:"author,attr,omitempty"`
		Genre   string `xml:"genre,attr,omitempty"`
		Created string `xml:"created,attr,omitempty"`
		Changed string `xml:"changed,attr,omitempty"`
		Info    string `xml:"info,omitempty"`
		xmlUnknown
	}

	xmlTiming struct {
		BPM          int `xml:"bpm,attr"`
		TicksPerBeat int `xml:"tpb,attr"`
		BeatsPerBar  int `xml:"beats-per-bar,attr"`
		BeatUnit     int `xml:"beat-unit,attr"`
		SampleRate   int `xml:"sample-rate,attr"`
		xmlUnknown
	}

	xmlSetup struct {
		Machines xmlMachines `xml:"machines"`
		Wires    xmlWires    `xml:"wires"`
		xmlUnknown
	}

	// The list sections are decoded as elements of their own so that
	// unknown declarations inside them are reported too.
	xmlMachines struct {
		List []xmlMachine `xml:"machine"`
		xmlUnknown
	}

	xmlWires struct {
		List []xmlWire `xml:"wire"`
		xmlUnknown
	}

	xmlPatterns struct {
		List []xmlPattern `xml:"pattern"`
		xmlUnknown
	}

	xmlLabels struct {
		List []xmlLabel `xml:"label"`
		xmlUnknown
	}

	xmlTracks struct {
		List []xmlTrack `xml:"track"`
		xmlUnknown
	}

	xmlMachine struct {
		ID       string              `xml:"id,attr"`
		Kind     string              `xml:"kind,attr"`
		Type     kappale.MachineType `xml:"type,attr"`
		Feedback bool                `xml:"feedback,attr,omitempty"`
		Params   []xmlParam          `xml:"param"`
		xmlUnknown
	}

	xmlParam struct {
		Name    string            `xml:"name,attr"`
		Kind    kappale.ParamKind `xml:"kind,attr"`
		Min     float64           `xml:"min,attr"`
		Max     float64           `xml:"max,attr"`
		Default float64           `xml:"default,attr"`
		Value   *float64          `xml:"value,attr,omitempty"`
		Choices []string          `xml:"choice"`
		xmlUnknown
	}

	xmlWire struct {
		Src  string  `xml:"src,attr"`
		Dst  string  `xml:"dst,attr"`
		Gain float64 `xml:"gain,attr"`
		Pan  float64 `xml:"pan,attr,omitempty"`
		xmlUnknown
	}

	xmlPattern struct {
		ID      string    `xml:"id,attr"`
		Machine string    `xml:"machine,attr"`
		Name    string    `xml:"name,attr,omitempty"`
		Length  int       `xml:"length,attr"`
		Ticks   []xmlTick `xml:"tick"`
		xmlUnknown
	}

	xmlTick struct {
		Time   int        `xml:"time,attr"`
		Events []xmlEvent `xml:"event"`
		xmlUnknown
	}

	xmlEvent struct {
		Param string  `xml:"param,attr"`
		Value float64 `xml:"value,attr"`
		xmlUnknown
	}

	xmlSequence struct {
		Length    int       `xml:"length,attr"`
		Loop      string    `xml:"loop,attr,omitempty"`
		LoopStart int       `xml:"loop-start,attr,omitempty"`
		LoopEnd   int       `xml:"loop-end,attr,omitempty"`
		Labels    xmlLabels `xml:"labels"`
		Tracks    xmlTracks `xml:"tracks"`
		xmlUnknown
	}

	xmlLabel struct {
		Time int    `xml:"time,attr"`
		Name string `xml:"name,attr"`
		xmlUnknown
	}

	xmlTrack struct {
		ID        string        `xml:"id,attr"`
		Name      string        `xml:"name,attr,omitempty"`
		Offset    int           `xml:"offset,attr,omitempty"`
		Muted     bool          `xml:"muted,attr,omitempty"`
		Positions []xmlPosition `xml:"position"`
		xmlUnknown
	}

	xmlPosition struct {
		Time    int    `xml:"time,attr"`
		End     int    `xml:"end,attr"`
		Pattern string `xml:"pattern,attr"`
		xmlUnknown
	}
)

func (XMLCodec) Probe(name string, prefix []byte) Confidence {
	trimmed := bytes.TrimLeft(prefix, " \t\r\n\uFEFF")
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return 0
	}
	if xmlRoot(trimmed) == FormatName {
		return 0.95
	}
	if strings.ToLower(filepath.Ext(name)) == ".xml" {
		return 0.4
	}
	return 0.2
}

// xmlRoot returns the name of the first element of an XML prefix, or "" if
// the prefix does not get that far.
func xmlRoot(prefix []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(prefix))
	for {
		tok, err := dec.RawToken()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t.Name.Local
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return ""
			}
		}
	}
}

func (XMLCodec) Load(ctx context.Context, r io.Reader) (*kappale.Song, []Warning, error) {
	var x xmlSong
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("xml.Decode failed: %w", err))
	}
	if x.Version < 2 {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("version %d is not a native document version", x.Version))
	}
	var warnings []Warning
	doc := x.document(func(loc string, u xmlUnknown) {
		for _, a := range u.Attrs {
			warnings = append(warnings, Warning{Location: loc, Message: fmt.Sprintf("unknown attribute %q skipped", a.Name.Local)})
		}
		for _, e := range u.Elements {
			warnings = append(warnings, Warning{Location: loc, Message: fmt.Sprintf("unknown element <%s> skipped", e.XMLName.Local)})
		}
	})
	song, more, err := Assemble(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return song, append(warnings, more...), nil
}

func (XMLCodec) Save(ctx context.Context, w io.Writer, song *kappale.Song) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(songToXML(FromSong(song))); err != nil {
		return fmt.Errorf("xml.Encode failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// document converts the tree to the native document, reporting the unknown
// parts of every element to unknown.
func (x *xmlSong) document(unknown func(loc string, u xmlUnknown)) *Document {
	unknown("kappale", x.xmlUnknown)
	unknown("meta", x.Meta.xmlUnknown)
	unknown("setup", x.Setup.xmlUnknown)
	unknown("sequence", x.Sequence.xmlUnknown)
	unknown("machines", x.Setup.Machines.xmlUnknown)
	unknown("wires", x.Setup.Wires.xmlUnknown)
	unknown("patterns", x.Patterns.xmlUnknown)
	unknown("labels", x.Sequence.Labels.xmlUnknown)
	unknown("tracks", x.Sequence.Tracks.xmlUnknown)
	doc := &Document{
		Format:  FormatName,
		Version: x.Version,
		Meta: kappale.Meta{ID: x.Meta.ID, Name: x.Meta.Name, Author: x.Meta.Author, Genre: x.Meta.Genre,
			Info: x.Meta.Info, Created: x.Meta.Created, Changed: x.Meta.Changed},
		Length: x.Sequence.Length,
	}
	if t := x.Timing; t != nil {
		unknown("timing", t.xmlUnknown)
		doc.Timing = kappale.Timing{BPM: t.BPM, TicksPerBeat: t.TicksPerBeat, BeatsPerBar: t.BeatsPerBar, BeatUnit: t.BeatUnit, SampleRate: t.SampleRate}
	}
	for _, xm := range x.Setup.Machines.List {
		loc := fmt.Sprintf("machine %q", xm.ID)
		unknown(loc, xm.xmlUnknown)
		m := kappale.Machine{ID: xm.ID, Kind: xm.Kind, Type: xm.Type, Feedback: xm.Feedback}
		for _, xp := range xm.Params {
			unknown(fmt.Sprintf("%s param %q", loc, xp.Name), xp.xmlUnknown)
			m.Params = append(m.Params, kappale.Parameter{Name: xp.Name, Kind: xp.Kind, Min: xp.Min, Max: xp.Max, Default: xp.Default, Choices: xp.Choices})
			if xp.Value != nil {
				if m.Values == nil {
					m.Values = map[string]float64{}
				}
				m.Values[xp.Name] = *xp.Value
			}
		}
		doc.Machines = append(doc.Machines, m)
	}
	for _, xw := range x.Setup.Wires.List {
		unknown(fmt.Sprintf("wire %q -> %q", xw.Src, xw.Dst), xw.xmlUnknown)
		doc.Wires = append(doc.Wires, kappale.Wire{Src: xw.Src, Dst: xw.Dst, Gain: xw.Gain, Pan: xw.Pan})
	}
	for _, xp := range x.Patterns.List {
		loc := fmt.Sprintf("pattern %q", xp.ID)
		unknown(loc, xp.xmlUnknown)
		p := kappale.Pattern{ID: xp.ID, Machine: xp.Machine, Name: xp.Name, Length: xp.Length}
		for _, xt := range xp.Ticks {
			unknown(fmt.Sprintf("%s tick %d", loc, xt.Time), xt.xmlUnknown)
			for _, xe := range xt.Events {
				unknown(fmt.Sprintf("%s tick %d", loc, xt.Time), xe.xmlUnknown)
				p.Events = append(p.Events, kappale.Event{Tick: xt.Time, Param: xe.Param, Value: xe.Value})
			}
		}
		doc.Patterns = append(doc.Patterns, p)
	}
	seq := &x.Sequence
	if seq.Loop == "on" {
		doc.Loop = &kappale.Loop{Start: seq.LoopStart, End: seq.LoopEnd}
	}
	for _, xl := range seq.Labels.List {
		unknown(fmt.Sprintf("label %q", xl.Name), xl.xmlUnknown)
		doc.Labels = append(doc.Labels, kappale.Label{Tick: xl.Time, Name: xl.Name})
	}
	for _, xt := range seq.Tracks.List {
		loc := fmt.Sprintf("track %q", xt.ID)
		unknown(loc, xt.xmlUnknown)
		t := kappale.Track{ID: xt.ID, Name: xt.Name, Offset: xt.Offset, Muted: xt.Muted}
		for _, pos := range xt.Positions {
			unknown(fmt.Sprintf("%s position %d", loc, pos.Time), pos.xmlUnknown)
			t.Placements = append(t.Placements, kappale.Placement{Start: pos.Time, End: pos.End, Pattern: pos.Pattern})
		}
		doc.Tracks = append(doc.Tracks, t)
	}
	return doc
}

func songToXML(doc *Document) *xmlSong {
	m := doc.Meta
	t := doc.Timing
	x := &xmlSong{
		Version:  doc.Version,
		Meta:     xmlMeta{ID: m.ID, Name: m.Name, Author: m.Author, Genre: m.Genre, Created: m.Created, Changed: m.Changed, Info: m.Info},
		Timing:   &xmlTiming{BPM: t.BPM, TicksPerBeat: t.TicksPerBeat, BeatsPerBar: t.BeatsPerBar, BeatUnit: t.BeatUnit, SampleRate: t.SampleRate},
		Sequence: xmlSequence{Length: doc.Length},
	}
	for _, dm := range doc.Machines {
		xm := xmlMachine{ID: dm.ID, Kind: dm.Kind, Type: dm.Type, Feedback: dm.Feedback}
		for _, p := range dm.Params {
			xp := xmlParam{Name: p.Name, Kind: p.Kind, Min: p.Min, Max: p.Max, Default: p.Default, Choices: p.Choices}
			if v, ok := dm.Values[p.Name]; ok {
				xp.Value = &v
			}
			xm.Params = append(xm.Params, xp)
		}
		x.Setup.Machines.List = append(x.Setup.Machines.List, xm)
	}
	for _, w := range doc.Wires {
		x.Setup.Wires.List = append(x.Setup.Wires.List, xmlWire{Src: w.Src, Dst: w.Dst, Gain: w.Gain, Pan: w.Pan})
	}
	for _, p := range doc.Patterns {
		xp := xmlPattern{ID: p.ID, Machine: p.Machine, Name: p.Name, Length: p.Length}
		for _, e := range p.Events {
			if n := len(xp.Ticks); n == 0 || xp.Ticks[n-1].Time != e.Tick {
				xp.Ticks = append(xp.Ticks, xmlTick{Time: e.Tick})
			}
			last := &xp.Ticks[len(xp.Ticks)-1]
			last.Events = append(last.Events, xmlEvent{Param: e.Param, Value: e.Value})
		}
		x.Patterns.List = append(x.Patterns.List, xp)
	}
	if doc.Loop != nil {
		x.Sequence.Loop, x.Sequence.LoopStart, x.Sequence.LoopEnd = "on", doc.Loop.Start, doc.Loop.End
	}
	for _, l := range doc.Labels {
		x.Sequence.Labels.List = append(x.Sequence.Labels.List, xmlLabel{Time: l.Tick, Name: l.Name})
	}
	for _, t := range doc.Tracks {
		xt := xmlTrack{ID: t.ID, Name: t.Name, Offset: t.Offset, Muted: t.Muted}
		for _, pl := range t.Placements {
			xt.Positions = append(xt.Positions, xmlPosition{Time: pl.Start, End: pl.End, Pattern: pl.Pattern})
		}
		x.Sequence.Tracks.List = append(x.Sequence.Tracks.List, xt)
	}
	return x
}
