package marshal

import (
	"sort"
	"strconv"

	"mini-rdp/message"
)

// found is a placeholder discovered in a template together with the path of
// keys (string) and array positions (int) leading to it from the root.
type found[P any] struct {
	ph   P
	path []any
}

// key is the name an Option uses for its property: the last path element.
func (f found[P]) key() string {
	switch last := f.path[len(f.path)-1].(type) {
	case string:
		return last
	case int:
		return strconv.Itoa(last)
	}
	return ""
}

// collect walks v depth first, visiting object keys in sorted order, and
// returns every value of type P with its path.
func collect[P any](v any, path []any, out []found[P]) []found[P] {
	if ph, ok := v.(P); ok {
		return append(out, found[P]{ph: ph, path: append([]any(nil), path...)})
	}
	switch node := v.(type) {
	case Template:
		return collectObject(map[string]any(node), path, out)
	case map[string]any:
		return collectObject(node, path, out)
	case []any:
		for i, item := range node {
			out = collect(item, append(path, i), out)
		}
	}
	return out
}

func collectObject[P any](obj map[string]any, path []any, out []found[P]) []found[P] {
	for _, k := range sortedKeys(obj) {
		out = collect(obj[k], append(path, k), out)
	}
	return out
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lookup fetches the value at path within a packet. ok is false when any step
// is missing or has the wrong shape.
func lookup(pkt message.Packet, path []any) (any, bool) {
	var cur any = map[string]any(pkt)
	for _, step := range path {
		switch s := step.(type) {
		case string:
			obj, isObj := asObject(cur)
			if !isObj {
				return nil, false
			}
			v, present := obj[s]
			if !present {
				return nil, false
			}
			cur = v
		case int:
			arr, isArr := cur.([]any)
			if !isArr || s >= len(arr) {
				return nil, false
			}
			cur = arr[s]
		}
	}
	return cur, true
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case message.Packet:
		return o, true
	case Template:
		return o, true
	}
	return nil, false
}
