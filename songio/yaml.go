package songio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/vsariola/kappale"
	"gopkg.in/yaml.v3"
)

// YAMLCodec reads and writes the native document as YAML. It is the primary
// format of kappale songs.
type YAMLCodec struct{}

func (YAMLCodec) Probe(name string, prefix []byte) Confidence {
	if startsLikeJSON(prefix) {
		return 0.1
	}
	h := scanYAMLHeader(prefix)
	if h.format == FormatName {
		if h.hasVersion && h.version < 2 {
			return 0.1
		}
		return 0.9
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".kap", ".yml", ".yaml":
		return 0.3
	}
	return 0
}

func (YAMLCodec) Load(ctx context.Context, r io.Reader) (*kappale.Song, []Warning, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("yaml.Unmarshal failed: %w", err))
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, corrupt(Location{Section: "document"}, fmt.Errorf("yaml.Unmarshal failed: %w", err))
	}
	if err := checkHeader(&doc); err != nil {
		return nil, nil, err
	}
	warnings := unknownKeys(tree, reflect.TypeOf(doc), "yaml", "")
	song, more, err := Assemble(ctx, &doc)
	if err != nil {
		return nil, nil, err
	}
	return song, append(warnings, more...), nil
}

func (YAMLCodec) Save(ctx context.Context, w io.Writer, song *kappale.Song) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(FromSong(song)); err != nil {
		return fmt.Errorf("yaml.Encode failed: %w", err)
	}
	return enc.Close()
}

// checkHeader checks the format marker and version of a native document.
func checkHeader(doc *Document) error {
	if doc.Format != FormatName {
		return corrupt(Location{Section: "document"}, fmt.Errorf("format is %q, not %q", doc.Format, FormatName))
	}
	if doc.Version < 2 {
		return corrupt(Location{Section: "document"}, fmt.Errorf("version %d is not a native document version", doc.Version))
	}
	return nil
}

type yamlHeader struct {
	format     string
	version    int
	hasVersion bool
}

// scanYAMLHeader looks for the top level "format" and "version" keys in
// the first lines of a YAML document without parsing it; the prefix may end
// in the middle of the document.
func scanYAMLHeader(prefix []byte) yamlHeader {
	var h yamlHeader
	s := bufio.NewScanner(bytes.NewReader(prefix))
	for s.Scan() {
		line := s.Text()
		if line == "" || line[0] == ' ' || line[0] == '#' || line[0] == '\t' {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "format":
			h.format = value
		case "version":
			if v, err := strconv.Atoi(value); err == nil {
				h.version, h.hasVersion = v, true
			}
		}
	}
	return h
}

func startsLikeJSON(prefix []byte) bool {
	trimmed := bytes.TrimLeft(prefix, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
