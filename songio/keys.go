package songio

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// unknownKeys walks a generically decoded document tree next to the Go type
// it is decoded into, and warns about every mapping key the type has no
// field for. tag selects the struct tag giving the key names.
func unknownKeys(tree any, t reflect.Type, tag, path string) []Warning {
	var warnings []Warning
	var walk func(tree any, t reflect.Type, path string)
	walk = func(tree any, t reflect.Type, path string) {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		switch t.Kind() {
		case reflect.Struct:
			node, ok := tree.(map[string]any)
			if !ok {
				return
			}
			fields := fieldsByKey(t, tag)
			for _, key := range slices.Sorted(maps.Keys(node)) {
				f, ok := fields[key]
				if !ok {
					warnings = append(warnings, Warning{Location: path, Message: fmt.Sprintf("unknown element %q skipped", key)})
					continue
				}
				walk(node[key], f.Type, join(path, key))
			}
		case reflect.Slice:
			list, ok := tree.([]any)
			if !ok {
				return
			}
			for i, item := range list {
				walk(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i))
			}
		}
	}
	walk(tree, t, path)
	return warnings
}

func fieldsByKey(t reflect.Type, tag string) map[string]reflect.StructField {
	ret := map[string]reflect.StructField{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		ret[name] = f
	}
	return ret
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
