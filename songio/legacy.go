package songio

import (
	"context"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"

	"github.com/vsariola/kappale"
	"gopkg.in/yaml.v2"
)

// LegacyCodec loads version 1 documents. Version 1 songs had built-in
// machines only, one pattern length for the whole song and tracks that were
// a sequence of pattern slots; loading migrates them to placements. The
// format cannot be saved anymore.
type LegacyCodec struct{}

type (
	v1Song struct {
		Format         string      `yaml:"format"`
		Version        int         `yaml:"version"`
		Name           string      `yaml:"name,omitempty"`
		Author         string      `yaml:"author,omitempty"`
		BPM            int         `yaml:"bpm"`
		RowsPerBeat    int         `yaml:"rowsperbeat"`
		RowsPerPattern int         `yaml:"rowsperpattern"`
		Machines       []v1Machine `yaml:"machines"`
		Connections    [][]string  `yaml:"connections,flow"`
		Patterns       []v1Pattern `yaml:"patterns"`
		Tracks         []v1Track   `yaml:"tracks"`
	}

	v1Machine struct {
		ID     string             `yaml:"id"`
		Kind   string             `yaml:"kind"`
		Params map[string]float64 `yaml:"params,flow"`
	}

	v1Pattern struct {
		Machine string          `yaml:"machine"`
		Events  []kappale.Event `yaml:"events"`
	}

	v1Track struct {
		Name     string `yaml:"name"`
		Sequence []int  `yaml:"sequence,flow"`
	}
)

func (LegacyCodec) Probe(name string, prefix []byte) Confidence {
	if startsLikeJSON(prefix) {
		return 0
	}
	h := scanYAMLHeader(prefix)
	if h.format == FormatName && h.hasVersion && h.version == 1 {
		return 0.9
	}
	return 0
}

func (LegacyCodec) Load(ctx context.Context, r io.Reader) (*kappale.Song, []Warning, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	var top map[string]interface{}
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("yaml.Unmarshal failed: %w", err))
	}
	var v1 v1Song
	if err := yaml.Unmarshal(data, &v1); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("yaml.Unmarshal failed: %w", err))
	}
	if v1.Format != FormatName || v1.Version != 1 {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("not a version 1 %s document", FormatName))
	}
	var warnings []Warning
	known := fieldsByKey(reflect.TypeOf(v1), "yaml")
	for _, key := range slices.Sorted(maps.Keys(top)) {
		if _, ok := known[key]; !ok {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("unknown element %q skipped", key)})
		}
	}
	doc, err := v1.migrate()
	if err != nil {
		return nil, nil, err
	}
	song, more, err := Assemble(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return song, append(warnings, more...), nil
}

func (LegacyCodec) Save(ctx context.Context, w io.Writer, song *kappale.Song) error {
	return &UnsupportedWriteError{Format: "kappale-v1"}
}

// migrate converts a version 1 song to the current document. Patterns get
// the ids p0, p1, ... and tracks t0, t1, ... by their position.
func (v1 *v1Song) migrate() (*Document, error) {
	doc := &Document{
		Format:  FormatName,
		Version: 1,
		Meta:    kappale.Meta{Name: v1.Name, Author: v1.Author},
		Timing:  kappale.DefaultTiming,
	}
	if v1.BPM > 0 {
		doc.Timing.BPM = v1.BPM
	}
	if v1.RowsPerBeat > 0 {
		doc.Timing.TicksPerBeat = v1.RowsPerBeat
	}
	if v1.RowsPerPattern <= 0 {
		return nil, corrupt(Location{Section: "document"}, fmt.Errorf("rowsperpattern %d is not positive", v1.RowsPerPattern))
	}
	for _, vm := range v1.Machines {
		m, err := kappale.NewMachine(vm.ID, vm.Kind)
		if err != nil {
			return nil, corrupt(Location{Section: "machine", ID: vm.ID}, err)
		}
		if len(vm.Params) > 0 {
			m.Values = maps.Clone(vm.Params)
		}
		doc.Machines = append(doc.Machines, m)
	}
	for _, c := range v1.Connections {
		if len(c) != 2 {
			return nil, corrupt(Location{Section: "wire"}, fmt.Errorf("connection %v does not have two ends", c))
		}
		doc.Wires = append(doc.Wires, kappale.NewWire(c[0], c[1]))
	}
	for i, vp := range v1.Patterns {
		doc.Patterns = append(doc.Patterns, kappale.Pattern{
			ID:      fmt.Sprintf("p%d", i),
			Machine: vp.Machine,
			Length:  v1.RowsPerPattern,
			Events:  vp.Events,
		})
	}
	for i, vt := range v1.Tracks {
		t := kappale.Track{ID: fmt.Sprintf("t%d", i), Name: vt.Name}
		for slot, p := range vt.Sequence {
			if p < 0 {
				continue
			}
			start := slot * v1.RowsPerPattern
			t.Placements = append(t.Placements, kappale.Placement{Start: start, End: start + v1.RowsPerPattern, Pattern: fmt.Sprintf("p%d", p)})
		}
		doc.Tracks = append(doc.Tracks, t)
		doc.Length = max(doc.Length, len(vt.Sequence)*v1.RowsPerPattern)
	}
	return doc, nil
}
