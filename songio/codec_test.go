package songio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mholt/archives"
	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/songio"
	"gopkg.in/yaml.v3"
)

var savingCodecs = map[string]songio.Codec{
	"yaml":    songio.YAMLCodec{},
	"json":    songio.JSONCodec{},
	"xml":     songio.XMLCodec{},
	"archive": songio.ArchiveCodec{},
}

func demoSong(t *testing.T) *kappale.Song {
	t.Helper()
	song, err := kappale.NewDemoSong()
	if err != nil {
		t.Fatalf("NewDemoSong failed: %v", err)
	}
	song.SetMeta(kappale.Meta{ID: "7b6e0c52-3f3c-4c7d-9d55-0d2f1f0b1a10", Name: "Demo", Author: "kappale", Info: "two tracks\nand a loop"})
	return song
}

func save(t *testing.T, codec songio.Codec, song *kappale.Song) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := codec.Save(context.Background(), &buf, song); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return buf.Bytes()
}

func load(t *testing.T, codec songio.Codec, data []byte) (*kappale.Song, []songio.Warning) {
	t.Helper()
	song, warnings, err := codec.Load(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return song, warnings
}

func TestRoundTrip(t *testing.T) {
	for name, codec := range savingCodecs {
		t.Run(name, func(t *testing.T) {
			song := demoSong(t)
			loaded, warnings := load(t, codec, save(t, codec, song))
			if len(warnings) > 0 {
				t.Errorf("round trip gave warnings: %v", warnings)
			}
			if !reflect.DeepEqual(songio.FromSong(loaded), songio.FromSong(song)) {
				t.Errorf("round trip changed the song:\n%v\n%v", songio.FromSong(loaded), songio.FromSong(song))
			}
			if !reflect.DeepEqual(loaded.Meta(), song.Meta()) {
				t.Errorf("loaded meta %+v, expected %+v", loaded.Meta(), song.Meta())
			}
			if v := loaded.DocumentVersion(); v != kappale.FormatVersion {
				t.Errorf("loaded document version %d, expected %d", v, kappale.FormatVersion)
			}
		})
	}
}

func TestRoundTripKeepsEmptyID(t *testing.T) {
	for name, codec := range savingCodecs {
		t.Run(name, func(t *testing.T) {
			song := demoSong(t)
			song.SetMeta(kappale.Meta{Name: "no id"})
			loaded, _ := load(t, codec, save(t, codec, song))
			if got := loaded.Meta(); got != (kappale.Meta{Name: "no id"}) {
				t.Errorf("loaded meta %+v, expected only the name", got)
			}
		})
	}
}

func TestSaveIsStable(t *testing.T) {
	for name, codec := range savingCodecs {
		t.Run(name, func(t *testing.T) {
			song := demoSong(t)
			rev := song.Revision()
			first := save(t, codec, song)
			if !bytes.Equal(first, save(t, codec, song)) {
				t.Error("saving the same song twice gave different bytes")
			}
			if song.Revision() != rev {
				t.Error("saving changed the song")
			}
		})
	}
}

func TestNegativeEventTickIsCorrupt(t *testing.T) {
	doc := songio.FromSong(demoSong(t))
	doc.Patterns[0].Events[0].Tick = -1
	yamlData, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}
	xmlData := strings.Replace(string(save(t, songio.XMLCodec{}, demoSong(t))), `<tick time="0">`, `<tick time="-1">`, 1)
	tests := []struct {
		name  string
		codec songio.Codec
		data  []byte
	}{
		{"yaml", songio.YAMLCodec{}, yamlData},
		{"json", songio.JSONCodec{}, jsonData},
		{"xml", songio.XMLCodec{}, []byte(xmlData)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			song, _, err := tt.codec.Load(context.Background(), bytes.NewReader(tt.data))
			if song != nil {
				t.Error("a corrupt document should not give a song")
			}
			var cerr *songio.CorruptSongError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected CorruptSongError, got %v", err)
			}
			want := songio.Location{Section: "pattern", ID: "lead", Tick: -1, HasTick: true}
			if cerr.Location != want {
				t.Errorf("error location %v, expected %v", cerr.Location, want)
			}
			var verr *kappale.ValidationError
			if !errors.As(err, &verr) || verr.Invariant != kappale.InvariantEventBounds {
				t.Errorf("expected an %s violation, got %v", kappale.InvariantEventBounds, err)
			}
		})
	}
}

// addMachineKey adds an undeclared key to the first machine of a YAML or
// JSON document.
func addMachineKey(t *testing.T, data []byte, unmarshal func([]byte, any) error, marshal func(any) ([]byte, error)) []byte {
	t.Helper()
	var tree map[string]any
	if err := unmarshal(data, &tree); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	tree["machines"].([]any)[0].(map[string]any)["color"] = "red"
	ret, err := marshal(tree)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return ret
}

func TestUnknownDeclarationWarnsOnce(t *testing.T) {
	song := demoSong(t)
	xmlData := string(save(t, songio.XMLCodec{}, song))
	tests := []struct {
		name    string
		codec   songio.Codec
		data    []byte
		message string
	}{
		{"yaml", songio.YAMLCodec{}, addMachineKey(t, save(t, songio.YAMLCodec{}, song), yaml.Unmarshal, yaml.Marshal), `"color"`},
		{"json", songio.JSONCodec{}, addMachineKey(t, save(t, songio.JSONCodec{}, song), json.Unmarshal, json.Marshal), `"color"`},
		{"xml attribute", songio.XMLCodec{}, []byte(strings.Replace(xmlData, `<machine id="osc"`, `<machine color="red" id="osc"`, 1)), `"color"`},
		{"xml element", songio.XMLCodec{}, []byte(strings.Replace(xmlData, "</kappale>", "<effects><reverb/></effects></kappale>", 1)), "<effects>"},
		{"xml machine list", songio.XMLCodec{}, []byte(strings.Replace(xmlData, "<machines>", `<machines><sampler id="smp"/>`, 1)), "<sampler>"},
		{"xml pattern list", songio.XMLCodec{}, []byte(strings.Replace(xmlData, "<patterns>", `<patterns><automation id="a1"/>`, 1)), "<automation>"},
		{"xml track list", songio.XMLCodec{}, []byte(strings.Replace(xmlData, "<tracks>", `<tracks><folder id="f1"/>`, 1)), "<folder>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loaded, warnings := load(t, tt.codec, tt.data)
			if len(warnings) != 1 {
				t.Fatalf("expected exactly one warning, got %v", warnings)
			}
			if !strings.Contains(warnings[0].Message, tt.message) {
				t.Errorf("warning %q does not mention %s", warnings[0], tt.message)
			}
			if !reflect.DeepEqual(songio.FromSong(loaded), songio.FromSong(song)) {
				t.Error("skipping the unknown declaration changed the song")
			}
		})
	}
}

func TestUnknownParameterKindIsSkipped(t *testing.T) {
	doc := songio.FromSong(demoSong(t))
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		t.Fatalf("yaml.Unmarshal failed: %v", err)
	}
	for _, p := range tree["machines"].([]any)[0].(map[string]any)["params"].([]any) {
		if param := p.(map[string]any); param["name"] == "detune" {
			param["kind"] = "granular"
		}
	}
	if data, err = yaml.Marshal(tree); err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}
	song, warnings := load(t, songio.YAMLCodec{}, data)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	osc, _ := song.Machine("osc")
	if _, _, ok := osc.Param("detune"); ok {
		t.Error("parameter of unknown kind was not skipped")
	}
	if _, _, ok := osc.Param("waveform"); !ok {
		t.Error("known parameters should be kept")
	}
}

func TestUnknownMachineTypeBreaksReferences(t *testing.T) {
	data := strings.Replace(string(save(t, songio.YAMLCodec{}, demoSong(t))), "type: effect", "type: spectral", 1)
	_, _, err := songio.YAMLCodec{}.Load(context.Background(), strings.NewReader(data))
	var cerr *songio.CorruptSongError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CorruptSongError, got %v", err)
	}
	if cerr.Location.Section != "wire" {
		t.Errorf("error location %v, expected a wire", cerr.Location)
	}
}

func TestNewerVersionLoadsWithWarning(t *testing.T) {
	doc := songio.FromSong(demoSong(t))
	doc.Version = kappale.FormatVersion + 1
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("yaml.Marshal failed: %v", err)
	}
	song, warnings := load(t, songio.YAMLCodec{}, data)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	if v := song.DocumentVersion(); v != kappale.FormatVersion+1 {
		t.Errorf("document version %d, expected %d", v, kappale.FormatVersion+1)
	}
}

func TestArchiveSkipsOtherEntries(t *testing.T) {
	song := demoSong(t)
	dir := t.TempDir()
	files := map[string]string{
		filepath.Join(dir, "song.xml"):   songio.ArchiveSongName,
		filepath.Join(dir, "readme.txt"): "readme.txt",
	}
	if err := os.WriteFile(filepath.Join(dir, "song.xml"), save(t, songio.XMLCodec{}, song), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("made with kappale"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	ctx := context.Background()
	infos, err := archives.FilesFromDisk(ctx, nil, files)
	if err != nil {
		t.Fatalf("FilesFromDisk failed: %v", err)
	}
	var buf bytes.Buffer
	if err := (archives.Zip{}).Archive(ctx, &buf, infos); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	loaded, warnings := load(t, songio.ArchiveCodec{}, buf.Bytes())
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "readme.txt") {
		t.Errorf("expected one warning about readme.txt, got %v", warnings)
	}
	if !reflect.DeepEqual(songio.FromSong(loaded), songio.FromSong(song)) {
		t.Error("archive changed the song")
	}
}

func TestXMLDetection(t *testing.T) {
	archive := save(t, songio.ArchiveCodec{}, demoSong(t))
	tests := []struct {
		name   string
		file   string
		prefix string
		want   songio.Confidence
	}{
		{"song", "song.bin", string(save(t, songio.XMLCodec{}, demoSong(t))), 0.95},
		{"bom and comment", "song.bin", "\uFEFF\n<!-- x -->\n<kappale version=\"2\">", 0.95},
		{"other root", "song.xml", "<?xml version=\"1.0\"?><project><kappale/></project>", 0.4},
		{"other root without extension", "song.bin", "<project/>", 0.2},
		{"not xml", "song.xml", "text <kappale>", 0},
		{"zip", "song.kpz", string(archive[:min(len(archive), songio.DefaultProbeSize)]), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (songio.XMLCodec{}).Probe(tt.file, []byte(tt.prefix)); got != tt.want {
				t.Errorf("confidence %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestArchiveWithoutSong(t *testing.T) {
	empty := "PK\x05\x06" + strings.Repeat("\x00", 18)
	_, _, err := songio.ArchiveCodec{}.Load(context.Background(), strings.NewReader(empty))
	var cerr *songio.CorruptSongError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CorruptSongError, got %v", err)
	}
}

const legacySong = `format: kappale
version: 1
name: Old
bpm: 140
rowsperbeat: 4
rowsperpattern: 4
machines:
  - id: osc
    kind: oscillator
    params: {volume: 0.5}
  - id: master
    kind: master
connections:
  - [osc, master]
patterns:
  - machine: osc
    events:
      - {tick: 0, param: note, value: 60}
      - {tick: 2, param: note, value: 62}
tracks:
  - name: lead
    sequence: [0, -1, 0]
`

func TestLegacyMigration(t *testing.T) {
	song, warnings := load(t, songio.LegacyCodec{}, []byte(legacySong))
	if len(warnings) > 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if got := song.Meta(); got.Name != "Old" || song.DocumentVersion() != 1 {
		t.Errorf("meta %+v version %d, expected name Old and version 1", got, song.DocumentVersion())
	}
	if bpm := song.Timing().BPM; bpm != 140 {
		t.Errorf("bpm %d, expected 140", bpm)
	}
	if song.Length() != 12 {
		t.Errorf("length %d, expected 12", song.Length())
	}
	track, ok := song.Track("t0")
	if !ok {
		t.Fatal("migrated track t0 missing")
	}
	want := []kappale.Placement{{Start: 0, End: 4, Pattern: "p0"}, {Start: 8, End: 12, Pattern: "p0"}}
	if !reflect.DeepEqual(track.Placements, want) {
		t.Errorf("placements %v, expected %v", track.Placements, want)
	}
	osc, _ := song.Machine("osc")
	if v := osc.Value("volume"); v != 0.5 {
		t.Errorf("osc volume %v, expected 0.5", v)
	}
	if err := (songio.LegacyCodec{}).Save(context.Background(), &bytes.Buffer{}, song); err == nil {
		t.Error("saving a legacy document should fail")
	}
}

func TestLegacyUnknownKeyWarns(t *testing.T) {
	_, warnings := load(t, songio.LegacyCodec{}, []byte(legacySong+"swing: 0.2\n"))
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
}
