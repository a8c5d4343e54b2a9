package codec

import (
	"context"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"
	adapt "github.com/reoring/adapt"
)

// Avro returns the schema-based binary codec. The byte grammar is entirely
// goavro's; this plugin projects the engine Schema into an Avro schema
// document and bridges Values to goavro's native form (unions for nullable
// nodes, map-wrapped branch values).
func Avro() adapt.Format { return &avroFormat{} }

type avroFormat struct {
	codecs sync.Map // schema document JSON -> *goavro.Codec
}

func (*avroFormat) Name() string         { return "avro" }
func (*avroFormat) RequiresSchema() bool { return true }

func (f *avroFormat) Encode(ctx context.Context, v adapt.Value, s *adapt.Schema) ([]byte, error) {
	c, err := f.codecFor(s)
	if err != nil {
		return nil, err
	}
	native, err := avroNative(v, s, "Root")
	if err != nil {
		return nil, err
	}
	data, err := c.BinaryFromNative(nil, native)
	if err != nil {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaMismatch, Message: "value does not fit Avro schema", Cause: err}}
	}
	return data, nil
}

func (f *avroFormat) Decode(ctx context.Context, data []byte, s *adapt.Schema) (adapt.Value, error) {
	c, err := f.codecFor(s)
	if err != nil {
		return adapt.Null(), err
	}
	native, rest, err := c.NativeFromBinary(data)
	if err != nil {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "malformed Avro binary", Cause: err}}
	}
	if len(rest) > 0 {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "trailing bytes after Avro payload"}}
	}
	return valueFromAvro(native, s)
}

func (f *avroFormat) codecFor(s *adapt.Schema) (*goavro.Codec, error) {
	if s == nil {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaError, Message: "avro requires a schema"}}
	}
	doc, err := avroSchemaJSON(s)
	if err != nil {
		return nil, err
	}
	if c, ok := f.codecs.Load(doc); ok {
		return c.(*goavro.Codec), nil
	}
	c, err := goavro.NewCodec(doc)
	if err != nil {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaError, Message: "cannot build Avro schema", Cause: err}}
	}
	got, _ := f.codecs.LoadOrStore(doc, c)
	return got.(*goavro.Codec), nil
}

// avroSchemaJSON renders the engine schema as an Avro schema document.
// Record names come from the nominal type name when present (sanitized to
// the Avro name grammar) and from the field path otherwise, so derivation
// stays deterministic; a record type appearing twice is emitted once and
// referenced by name after that, as Avro requires.
func avroSchemaJSON(s *adapt.Schema) (string, error) {
	b := &avroBuilder{defined: map[string]bool{}}
	tree, err := b.typeOf(s, "Root")
	if err != nil {
		return "", err
	}
	doc, err := gojson.Marshal(tree)
	if err != nil {
		return "", adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaError, Message: "cannot render Avro schema", Cause: err}}
	}
	return string(doc), nil
}

type avroBuilder struct {
	defined map[string]bool
}

func (b *avroBuilder) typeOf(s *adapt.Schema, path string) (any, error) {
	base, err := b.baseType(s, path)
	if err != nil {
		return nil, err
	}
	if s.Nullable {
		return []any{"null", base}, nil
	}
	return base, nil
}

func (b *avroBuilder) baseType(s *adapt.Schema, path string) (any, error) {
	switch s.Kind {
	case adapt.TypeBool:
		return "boolean", nil
	case adapt.TypeInt:
		return "long", nil
	case adapt.TypeFloat:
		return "double", nil
	case adapt.TypeString:
		return "string", nil
	case adapt.TypeBytes:
		return "bytes", nil
	case adapt.TypeList:
		items, err := b.typeOf(s.Elem, path+"_item")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case adapt.TypeMap:
		values, err := b.typeOf(s.Elem, path+"_value")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "map", "values": values}, nil
	case adapt.TypeRecord:
		name := recordName(s, path)
		if b.defined[name] {
			return name, nil
		}
		b.defined[name] = true
		fields := make([]any, 0, len(s.Fields))
		for _, f := range s.Fields {
			ft, err := b.fieldType(f, name+"_"+sanitizeAvroName(f.Name))
			if err != nil {
				return nil, err
			}
			fd := map[string]any{"name": sanitizeAvroName(f.Name), "type": ft}
			if f.HasDefault && avroDefaultFits(f.Schema, f.Default) {
				fd["default"] = avroDefaultNative(f.Default)
			}
			fields = append(fields, fd)
		}
		return map[string]any{"type": "record", "name": name, "fields": fields}, nil
	default:
		return nil, adapt.Issues{adapt.Issue{
			Path:    "/",
			Code:    adapt.CodeSchemaError,
			Message: "schema node has no Avro representation: " + s.Kind.String(),
		}}
	}
}

// fieldType renders a record field's declared type. Avro requires a field
// default to match the first union branch, so a nullable field with a
// non-null default puts the value branch ahead of "null".
func (b *avroBuilder) fieldType(f adapt.SchemaField, path string) (any, error) {
	base, err := b.baseType(f.Schema, path)
	if err != nil {
		return nil, err
	}
	if !f.Schema.Nullable {
		return base, nil
	}
	if f.HasDefault && !f.Default.IsNull() {
		return []any{base, "null"}, nil
	}
	return []any{"null", base}, nil
}

// avroDefaultFits reports whether the declared default can be spelled in the
// Avro schema document for this node. Mismatched spellings (a text default
// against an integer wire form, as unix-milli timestamps produce) are left
// out; load-time infill still applies them.
func avroDefaultFits(s *adapt.Schema, v adapt.Value) bool {
	if v.IsNull() {
		return s.Nullable
	}
	switch s.Kind {
	case adapt.TypeBool:
		return v.Kind() == adapt.KindBool
	case adapt.TypeInt:
		return v.Kind() == adapt.KindInt
	case adapt.TypeFloat:
		return v.Kind() == adapt.KindFloat || v.Kind() == adapt.KindInt
	case adapt.TypeString:
		return v.Kind() == adapt.KindString
	case adapt.TypeBytes:
		return v.Kind() == adapt.KindBytes
	case adapt.TypeList:
		return v.Kind() == adapt.KindList
	case adapt.TypeMap, adapt.TypeRecord:
		return v.Kind() == adapt.KindMap
	default:
		return false
	}
}

// avroDefaultNative lowers a default value for the schema document. Byte
// defaults are spelled as codepoint text per the Avro schema grammar.
func avroDefaultNative(v adapt.Value) any {
	switch v.Kind() {
	case adapt.KindBytes:
		return string(v.Bytes())
	case adapt.KindList:
		out := make([]any, v.Len())
		for i, e := range v.Items() {
			out[i] = avroDefaultNative(e)
		}
		return out
	case adapt.KindMap:
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out[k] = avroDefaultNative(e)
		}
		return out
	default:
		return v.Native()
	}
}

func recordName(s *adapt.Schema, path string) string {
	if s.Name != "" {
		return sanitizeAvroName(s.Name)
	}
	return sanitizeAvroName(path)
}

// sanitizeAvroName maps an arbitrary identifier into the Avro name grammar
// [A-Za-z_][A-Za-z0-9_]*.
func sanitizeAvroName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || (i > 0 && '0' <= c && c <= '9')
		if ok {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	if '0' <= out[0] && out[0] <= '9' {
		out[0] = '_'
	}
	return string(out)
}

// avroNative lowers a Value into goavro's native form. Nullable nodes
// become unions: nil for null, a single-entry map keyed by the branch name
// otherwise.
func avroNative(v adapt.Value, s *adapt.Schema, path string) (any, error) {
	if s.Nullable {
		if v.IsNull() {
			return nil, nil
		}
		inner, err := avroNativeBase(v, s, path)
		if err != nil {
			return nil, err
		}
		return map[string]any{avroBranchName(s, path): inner}, nil
	}
	if v.IsNull() {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaMismatch, Message: "null for non-nullable Avro node"}}
	}
	return avroNativeBase(v, s, path)
}

func avroBranchName(s *adapt.Schema, path string) string {
	switch s.Kind {
	case adapt.TypeBool:
		return "boolean"
	case adapt.TypeInt:
		return "long"
	case adapt.TypeFloat:
		return "double"
	case adapt.TypeString:
		return "string"
	case adapt.TypeBytes:
		return "bytes"
	case adapt.TypeList:
		return "array"
	case adapt.TypeMap:
		return "map"
	case adapt.TypeRecord:
		return recordName(s, path)
	default:
		return "null"
	}
}

func avroNativeBase(v adapt.Value, s *adapt.Schema, path string) (any, error) {
	switch s.Kind {
	case adapt.TypeBool:
		if v.Kind() != adapt.KindBool {
			return nil, avroKindMismatch("boolean", v)
		}
		return v.Bool(), nil
	case adapt.TypeInt:
		if v.Kind() != adapt.KindInt {
			return nil, avroKindMismatch("long", v)
		}
		return v.Int(), nil
	case adapt.TypeFloat:
		switch v.Kind() {
		case adapt.KindFloat:
			return v.Float(), nil
		case adapt.KindInt:
			return float64(v.Int()), nil
		default:
			return nil, avroKindMismatch("double", v)
		}
	case adapt.TypeString:
		if v.Kind() != adapt.KindString {
			return nil, avroKindMismatch("string", v)
		}
		return v.Str(), nil
	case adapt.TypeBytes:
		if v.Kind() != adapt.KindBytes {
			return nil, avroKindMismatch("bytes", v)
		}
		return v.Bytes(), nil
	case adapt.TypeList:
		if v.Kind() != adapt.KindList {
			return nil, avroKindMismatch("array", v)
		}
		out := make([]any, v.Len())
		for i, e := range v.Items() {
			ev, err := avroNative(e, s.Elem, path+"_item")
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case adapt.TypeMap:
		if v.Kind() != adapt.KindMap {
			return nil, avroKindMismatch("map", v)
		}
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			ev, err := avroNative(e, s.Elem, path+"_value")
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case adapt.TypeRecord:
		if v.Kind() != adapt.KindMap {
			return nil, avroKindMismatch("record", v)
		}
		name := recordName(s, path)
		out := make(map[string]any, len(s.Fields))
		declared := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			declared[f.Name] = true
			e, ok := v.Get(f.Name)
			switch {
			case ok:
			case f.HasDefault:
				e = f.Default
			case f.Schema.Nullable:
				e = adapt.Null()
			default:
				return nil, adapt.Issues{adapt.Issue{Path: "/" + f.Name, Code: adapt.CodeSchemaMismatch, Message: "required field missing"}}
			}
			ev, err := avroNative(e, f.Schema, name+"_"+sanitizeAvroName(f.Name))
			if err != nil {
				return nil, err
			}
			out[sanitizeAvroName(f.Name)] = ev
		}
		for _, k := range v.Keys() {
			if !declared[k] {
				return nil, adapt.Issues{adapt.Issue{Path: "/" + k, Code: adapt.CodeSchemaMismatch, Message: "field not declared by schema"}}
			}
		}
		return out, nil
	default:
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaError, Message: "schema node has no Avro representation"}}
	}
}

func avroKindMismatch(want string, v adapt.Value) error {
	return adapt.Issues{adapt.Issue{
		Path:    "/",
		Code:    adapt.CodeSchemaMismatch,
		Message: "expected " + want + ", got " + v.Kind().String(),
	}}
}

// valueFromAvro lifts goavro native data back into a Value along the schema.
func valueFromAvro(x any, s *adapt.Schema) (adapt.Value, error) {
	if s.Nullable {
		if x == nil {
			return adapt.Null(), nil
		}
		if union, ok := x.(map[string]any); ok && len(union) == 1 {
			for _, inner := range union {
				return valueFromAvroBase(inner, s)
			}
		}
	}
	return valueFromAvroBase(x, s)
}

func valueFromAvroBase(x any, s *adapt.Schema) (adapt.Value, error) {
	switch s.Kind {
	case adapt.TypeBool:
		if b, ok := x.(bool); ok {
			return adapt.Bool(b), nil
		}
	case adapt.TypeInt:
		switch t := x.(type) {
		case int64:
			return adapt.Int(t), nil
		case int32:
			return adapt.Int(int64(t)), nil
		}
	case adapt.TypeFloat:
		switch t := x.(type) {
		case float64:
			return adapt.Float(t), nil
		case float32:
			return adapt.Float(float64(t)), nil
		}
	case adapt.TypeString:
		if str, ok := x.(string); ok {
			return adapt.String(str), nil
		}
	case adapt.TypeBytes:
		if raw, ok := x.([]byte); ok {
			return adapt.Bytes(raw), nil
		}
	case adapt.TypeList:
		if items, ok := x.([]any); ok {
			out := make([]adapt.Value, len(items))
			for i, e := range items {
				ev, err := valueFromAvro(e, s.Elem)
				if err != nil {
					return adapt.Null(), err
				}
				out[i] = ev
			}
			return adapt.List(out...), nil
		}
	case adapt.TypeMap:
		if m, ok := x.(map[string]any); ok {
			entries := make([]adapt.Entry, 0, len(m))
			for _, k := range sortedKeys(m) {
				ev, err := valueFromAvro(m[k], s.Elem)
				if err != nil {
					return adapt.Null(), err
				}
				entries = append(entries, adapt.Entry{Key: k, Value: ev})
			}
			return adapt.Map(entries...), nil
		}
	case adapt.TypeRecord:
		if m, ok := x.(map[string]any); ok {
			entries := make([]adapt.Entry, 0, len(s.Fields))
			for _, f := range s.Fields {
				raw, ok := m[sanitizeAvroName(f.Name)]
				if !ok {
					continue
				}
				ev, err := valueFromAvro(raw, f.Schema)
				if err != nil {
					return adapt.Null(), err
				}
				entries = append(entries, adapt.Entry{Key: f.Name, Value: ev})
			}
			return adapt.Map(entries...), nil
		}
	}
	return adapt.Null(), adapt.Issues{adapt.Issue{
		Path:    "/",
		Code:    adapt.CodeDecodeError,
		Message: "Avro payload does not match schema node " + s.Kind.String(),
	}}
}
