// Package report renders human-readable summaries of songs and formats.
package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/songio"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type (
	// Summary is what the song header template sees.
	Summary struct {
		Path     string
		Format   string
		Meta     kappale.Meta
		Timing   kappale.Timing
		Length   int
		Duration time.Duration
		Loop     *kappale.Loop
		Labels   []kappale.Label
		Machines int
		Wires    int
		Patterns int
		Tracks   int
		Warnings []songio.Warning
	}

	// Check is the outcome of validating one file.
	Check struct {
		Path   string
		Result *songio.Result
		Err    error
	}
)

const songTemplate = `{{ .Meta.Name | default "Untitled" | title }}{{ with .Meta.Author }} by {{ . }}{{ end }}
{{- with .Path }}
File:     {{ . }} ({{ $.Format }}){{ end }}
Tempo:    {{ .Timing.BPM }} bpm, {{ .Timing.BeatsPerBar }}/{{ .Timing.BeatUnit }}, {{ .Timing.TicksPerBeat }} ticks per beat
Length:   {{ .Length }} ticks ({{ .Duration }}){{ with .Loop }}, loop {{ .Start }}..{{ .End }}{{ end }}
Contents: {{ .Machines }} machines, {{ .Wires }} wires, {{ .Patterns }} patterns, {{ .Tracks }} tracks
{{- with .Labels }}
Labels:   {{ range $i, $l := . }}{{ if $i }}, {{ end }}{{ $l.Name }}@{{ $l.Tick }}{{ end }}{{ end }}
{{- with .Meta.Info }}
{{ . | trim | indent 2 }}{{ end }}
{{- range .Warnings }}
warning: {{ . }}{{ end }}
`

var (
	songTmpl = template.Must(template.New("song").Funcs(sprig.TxtFuncMap()).Parse(songTemplate))
	caser    = cases.Title(language.English)
)

// Summarize collects the summary of a song. Path, format and warnings are
// taken from res, which may be nil.
func Summarize(song *kappale.Song, res *songio.Result) Summary {
	s := Summary{
		Meta:     song.Meta(),
		Timing:   song.Timing(),
		Length:   song.Length(),
		Duration: (time.Duration(song.Length()) * song.Timing().TickDuration()).Round(time.Millisecond),
		Labels:   slices.Collect(song.Labels()),
	}
	if l, ok := song.Loop(); ok {
		s.Loop = &l
	}
	s.Machines, s.Wires, s.Patterns, s.Tracks = song.Counts()
	if res != nil {
		s.Path, s.Format, s.Warnings = res.Path, res.Format, res.Warnings
	}
	return s
}

// Song writes a header describing the song followed by tables of its
// machines and tracks.
func Song(w io.Writer, song *kappale.Song, res *songio.Result) error {
	if err := songTmpl.Execute(w, Summarize(song, res)); err != nil {
		return fmt.Errorf("executing song template failed: %w", err)
	}
	machines := newTable(w)
	machines.AppendHeader(table.Row{"Machine", "Kind", "Type", "Inputs", "Outputs", "Parameters"})
	wires := slices.Collect(song.Wires())
	for _, m := range slices.Collect(song.Machines()) {
		machines.AppendRow(table.Row{
			m.ID,
			m.Kind,
			caser.String(m.Type.String()),
			lo.CountBy(wires, func(w kappale.Wire) bool { return w.Dst == m.ID }),
			lo.CountBy(wires, func(w kappale.Wire) bool { return w.Src == m.ID }),
			strings.Join(lo.Map(m.Params, func(p kappale.Parameter, _ int) string { return p.Name }), " "),
		})
	}
	machines.Render()
	tracks := newTable(w)
	tracks.AppendHeader(table.Row{"Track", "Offset", "Muted", "Placements", "Patterns", "Ticks"})
	for _, t := range slices.Collect(song.Tracks()) {
		tracks.AppendRow(table.Row{
			t.ID,
			t.Offset,
			yesNo(t.Muted),
			len(t.Placements),
			strings.Join(lo.Uniq(lo.Map(t.Placements, func(p kappale.Placement, _ int) string { return p.Pattern })), " "),
			lo.SumBy(t.Placements, kappale.Placement.Len),
		})
	}
	tracks.Render()
	return nil
}

// Formats writes a table of the formats in r.
func Formats(w io.Writer, r *songio.Registry) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Format", "Extensions", "Versions", "Save"})
	for _, f := range r.Formats() {
		versions := lo.Filter(lo.RangeFrom(1, kappale.FormatVersion), func(v, _ int) bool { return f.Accepts(v) })
		v := strings.Join(lo.Map(versions, func(v, _ int) string { return fmt.Sprint(v) }), ", ")
		if f.Accepts(kappale.FormatVersion + 1) {
			v += "+"
		}
		t.AppendRow(table.Row{f.ID, strings.Join(f.Extensions, " "), v, yesNo(!f.ReadOnly)})
	}
	t.Render()
}

// Checks writes a table of validation outcomes and returns how many of them
// failed.
func Checks(w io.Writer, checks []Check) int {
	t := newTable(w)
	t.AppendHeader(table.Row{"File", "Format", "Status", "Warnings"})
	for _, c := range checks {
		switch {
		case c.Err != nil:
			t.AppendRow(table.Row{c.Path, "", "error: " + c.Err.Error(), 0})
		default:
			t.AppendRow(table.Row{c.Path, c.Result.Format, "ok", len(c.Result.Warnings)})
		}
	}
	failed := lo.CountBy(checks, func(c Check) bool { return c.Err != nil })
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d of %d failed", failed, len(checks)), lo.SumBy(checks, func(c Check) int {
		if c.Result == nil {
			return 0
		}
		return len(c.Result.Warnings)
	})})
	t.Render()
	return failed
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
