// Package extract recovers a flat natural-language answer from an arbitrarily
// nested, heterogeneous pipeline result.
package extract

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// MaxDepth bounds the recursion so cyclic or pathologically deep values
// terminate instead of overflowing the stack.
const MaxDepth = 10

// priorityKeys is the fixed accessor/key resolution order. The first present,
// non-empty text wins; siblings are never merged.
var priorityKeys = []string{
	"content", "result", "output", "answer", "response", "data", "raw", "text", "message",
}

// Answer is the extraction outcome handed to the presentation layer.
type Answer struct {
	Text                     string
	WasFallbackSerialization bool
}

// Extract resolves value to displayable text. When no text can be found within
// the depth bound, it falls back to a structured serialization of the original
// value and flags the answer accordingly.
func Extract(value any) Answer {
	if text := walk(value, 0); text != "" {
		return Answer{Text: text}
	}
	return Answer{
		Text:                     serialize(value),
		WasFallbackSerialization: true,
	}
}

// walk implements the resolution order: verbatim text, accessor fields, mapping
// keys (short-circuit), then sequences (concatenated). Empty string means
// exhausted.
func walk(value any, depth int) string {
	if depth >= MaxDepth || value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return s
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Struct:
		return walkStruct(rv, depth)
	case reflect.Map:
		return walkMap(rv, depth)
	case reflect.Slice, reflect.Array:
		return walkSequence(rv, depth)
	default:
		return ""
	}
}

// walkStruct treats exported fields whose lowercased name matches a priority
// key as accessors, probed in priority order.
func walkStruct(rv reflect.Value, depth int) string {
	rt := rv.Type()
	byName := make(map[string]reflect.Value, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		byName[strings.ToLower(field.Name)] = rv.Field(i)
	}

	for _, key := range priorityKeys {
		fv, ok := byName[key]
		if !ok {
			continue
		}
		if text := walk(fv.Interface(), depth+1); text != "" {
			return text
		}
	}
	return ""
}

func walkMap(rv reflect.Value, depth int) string {
	if rv.Type().Key().Kind() != reflect.String {
		return ""
	}

	for _, key := range priorityKeys {
		mv := rv.MapIndex(reflect.ValueOf(key))
		if !mv.IsValid() {
			continue
		}
		if text := walk(mv.Interface(), depth+1); text != "" {
			return text
		}
	}

	// No priority key matched: sweep every value. Keys are sorted so the
	// result does not depend on Go's randomized map iteration.
	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		keys = append(keys, iter.Key().String())
	}
	sort.Strings(keys)

	for _, key := range keys {
		if isPriorityKey(key) {
			continue // already probed above
		}
		mv := rv.MapIndex(reflect.ValueOf(key))
		if !mv.IsValid() {
			continue
		}
		if text := walk(mv.Interface(), depth+1); text != "" {
			return text
		}
	}
	return ""
}

// walkSequence concatenates every non-empty element with newlines. Unlike
// keyed structures, sequences represent independent findings worth preserving,
// so they do not short-circuit.
func walkSequence(rv reflect.Value, depth int) string {
	var parts []string
	for i := 0; i < rv.Len(); i++ {
		if text := walk(rv.Index(i).Interface(), depth+1); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func isPriorityKey(key string) bool {
	for _, pk := range priorityKeys {
		if pk == key {
			return true
		}
	}
	return false
}

func serialize(value any) string {
	if value == nil {
		return "null"
	}
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		// fmt's %v verb has no cycle detection and would overflow the stack
		// on the self-referential values json rejects; report the type only.
		return fmt.Sprintf("<unserializable %T>", value)
	}
	return string(raw)
}
