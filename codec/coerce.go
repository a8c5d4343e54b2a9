// Package codec provides the built-in wire-format plugins: JSON and YAML
// text codecs, a canonical CBOR binary codec, a schema-based Avro binary
// codec and a flat-record CSV codec. Each implements the adapt.Format
// contract; none is known to the dispatch core until the hosting
// application registers it (see RegisterAll).
package codec

import (
	"encoding/base64"
	"sort"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	adapt "github.com/reoring/adapt"
)

// coerceNative lifts driver-decoded native data into a Value, using the
// schema (when present) to disambiguate what the text grammar cannot
// express: int vs float, text vs base64 bytes. Shapes the schema does not
// predict fall back to the schema-less lifting; the converter layer reports
// the mismatch with a precise path.
func coerceNative(x any, s *adapt.Schema) (adapt.Value, error) {
	if s == nil {
		return liftNative(x)
	}
	if x == nil {
		return adapt.Null(), nil
	}
	switch s.Kind {
	case adapt.TypeBool:
		if b, ok := x.(bool); ok {
			return adapt.Bool(b), nil
		}
	case adapt.TypeInt:
		if v, ok, err := nativeInt(x); ok || err != nil {
			return v, err
		}
	case adapt.TypeFloat:
		if v, ok := nativeFloat(x); ok {
			return v, nil
		}
	case adapt.TypeString:
		if str, ok := x.(string); ok {
			return adapt.String(str), nil
		}
	case adapt.TypeBytes:
		switch t := x.(type) {
		case []byte:
			return adapt.Bytes(t), nil
		case string:
			raw, err := base64.StdEncoding.DecodeString(t)
			if err != nil {
				return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "invalid base64 byte field", Cause: err}}
			}
			return adapt.Bytes(raw), nil
		}
	case adapt.TypeList:
		if items, ok := x.([]any); ok {
			out := make([]adapt.Value, len(items))
			for i, e := range items {
				ev, err := coerceNative(e, s.Elem)
				if err != nil {
					return adapt.Null(), err
				}
				out[i] = ev
			}
			return adapt.List(out...), nil
		}
	case adapt.TypeMap:
		if m, ok := x.(map[string]any); ok {
			keys := sortedKeys(m)
			entries := make([]adapt.Entry, 0, len(keys))
			for _, k := range keys {
				ev, err := coerceNative(m[k], s.Elem)
				if err != nil {
					return adapt.Null(), err
				}
				entries = append(entries, adapt.Entry{Key: k, Value: ev})
			}
			return adapt.Map(entries...), nil
		}
	case adapt.TypeRecord:
		if m, ok := x.(map[string]any); ok {
			return coerceRecord(m, s)
		}
	}
	return liftNative(x)
}

func coerceRecord(m map[string]any, s *adapt.Schema) (adapt.Value, error) {
	entries := make([]adapt.Entry, 0, len(m))
	known := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		known[f.Name] = true
		raw, ok := m[f.Name]
		if !ok {
			continue
		}
		ev, err := coerceNative(raw, f.Schema)
		if err != nil {
			return adapt.Null(), err
		}
		entries = append(entries, adapt.Entry{Key: f.Name, Value: ev})
	}
	// Keys the schema does not declare survive so the converter layer can
	// report them instead of silently dropping data.
	extra := make([]string, 0)
	for k := range m {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		ev, err := liftNative(m[k])
		if err != nil {
			return adapt.Null(), err
		}
		entries = append(entries, adapt.Entry{Key: k, Value: ev})
	}
	return adapt.Map(entries...), nil
}

// liftNative is the schema-less path: numbers keep their driver kind, with
// json.Number split on its textual form.
func liftNative(x any) (adapt.Value, error) {
	switch t := x.(type) {
	case gojson.Number:
		return liftNumber(string(t))
	case time.Time:
		// Some text drivers resolve timestamp scalars natively; the
		// intermediate model carries them as canonical text.
		return adapt.String(t.UTC().Format(time.RFC3339Nano)), nil
	case map[string]any:
		keys := sortedKeys(t)
		entries := make([]adapt.Entry, 0, len(keys))
		for _, k := range keys {
			ev, err := liftNative(t[k])
			if err != nil {
				return adapt.Null(), err
			}
			entries = append(entries, adapt.Entry{Key: k, Value: ev})
		}
		return adapt.Map(entries...), nil
	case []any:
		out := make([]adapt.Value, len(t))
		for i, e := range t {
			ev, err := liftNative(e)
			if err != nil {
				return adapt.Null(), err
			}
			out[i] = ev
		}
		return adapt.List(out...), nil
	default:
		return adapt.FromNative(x)
	}
}

func liftNumber(s string) (adapt.Value, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "invalid number literal", Cause: err}}
		}
		return adapt.Float(f), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeRange, Message: "integer literal exceeds 64-bit signed range", Cause: err}}
	}
	return adapt.Int(i), nil
}

func nativeInt(x any) (adapt.Value, bool, error) {
	switch t := x.(type) {
	case gojson.Number:
		v, err := liftNumber(string(t))
		if err != nil {
			return adapt.Null(), false, err
		}
		if v.Kind() == adapt.KindInt {
			return v, true, nil
		}
		return adapt.Null(), false, nil
	case int:
		return adapt.Int(int64(t)), true, nil
	case int64:
		return adapt.Int(t), true, nil
	case uint64:
		if t > 1<<63-1 {
			return adapt.Null(), false, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeRange, Message: "integer exceeds 64-bit signed range"}}
		}
		return adapt.Int(int64(t)), true, nil
	case float64:
		if t == float64(int64(t)) {
			return adapt.Int(int64(t)), true, nil
		}
		return adapt.Null(), false, nil
	default:
		return adapt.Null(), false, nil
	}
}

func nativeFloat(x any) (adapt.Value, bool) {
	switch t := x.(type) {
	case gojson.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return adapt.Null(), false
		}
		return adapt.Float(f), true
	case float64:
		return adapt.Float(t), true
	case float32:
		return adapt.Float(float64(t)), true
	case int:
		return adapt.Float(float64(t)), true
	case int64:
		return adapt.Float(float64(t)), true
	case uint64:
		return adapt.Float(float64(t)), true
	default:
		return adapt.Null(), false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
