package songio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/vsariola/kappale"
)

// JSONCodec reads and writes the native document as JSON.
type JSONCodec struct{}

func (JSONCodec) Probe(name string, prefix []byte) Confidence {
	if !startsLikeJSON(prefix) {
		return 0
	}
	if bytes.Contains(prefix, []byte(`"format"`)) && bytes.Contains(prefix, []byte(`"`+FormatName+`"`)) {
		return 0.95
	}
	if strings.ToLower(filepath.Ext(name)) == ".json" {
		return 0.5
	}
	return 0.2
}

func (JSONCodec) Load(ctx context.Context, r io.Reader) (*kappale.Song, []Warning, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("json.Unmarshal failed: %w", err))
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("json.Unmarshal failed: %w", err))
	}
	if err := checkHeader(&doc); err != nil {
		return nil, nil, err
	}
	warnings := unknownKeys(tree, reflect.TypeOf(doc), "json", "")
	song, more, err := Assemble(ctx, &doc)
	if err != nil {
		return nil, nil, err
	}
	return song, append(warnings, more...), nil
}

func (JSONCodec) Save(ctx context.Context, w io.Writer, song *kappale.Song) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromSong(song)); err != nil {
		return fmt.Errorf("json.Encode failed: %w", err)
	}
	return nil
}
