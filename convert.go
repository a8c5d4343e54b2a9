package adapt

import (
	"context"
	"encoding"
	"reflect"
	"sort"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Built-in converters. They register through the same tiers as third-party
// converters (kind tier for scalars and containers, fallback tier for "any
// record"), so a user registration at structural or exact specificity
// always wins without the dispatch core special-casing anything.
func registerBuiltins(a *Adapter) {
	kinds := []TypeKind{TypeBool, TypeInt, TypeFloat, TypeString, TypeBytes}
	for _, k := range kinds {
		_ = a.registry.Register(&Descriptor{Kind: k}, primitiveConverter{}, SpecKind, false)
	}
	_ = a.registry.Register(&Descriptor{Kind: TypeTime}, timeConverter{mode: a.opts.TimeMode}, SpecKind, false)
	_ = a.registry.Register(&Descriptor{Kind: TypeUUID}, uuidConverter{}, SpecKind, false)
	_ = a.registry.Register(&Descriptor{Kind: TypeEnum}, enumConverter{}, SpecKind, false)
	_ = a.registry.Register(&Descriptor{Kind: TypeList}, listConverter{a: a}, SpecKind, false)
	_ = a.registry.Register(&Descriptor{Kind: TypeMap}, mapConverter{a: a}, SpecKind, false)
	_ = a.registry.Register(&Descriptor{Kind: TypeRecord}, recordConverter{a: a}, SpecFallback, false)
}

// baseType strips the optional pointer wrapper from a descriptor's Go type.
func baseType(d *Descriptor) reflect.Type {
	t := d.GoType
	if d.Optional && t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// prefixIssues re-roots issue paths under a field or index segment.
func prefixIssues(err error, prefix string) error {
	iss, ok := AsIssues(err)
	if !ok {
		return err
	}
	out := make(Issues, len(iss))
	for i, it := range iss {
		switch it.Path {
		case "", "/":
			it.Path = prefix
		default:
			it.Path = prefix + it.Path
		}
		out[i] = it
	}
	return out
}

func mismatch(want string, got Kind) Issues {
	return singleIssue(CodeSchemaMismatch, "expected "+want+", got "+got.String())
}

// ---- primitives ----

type primitiveConverter struct{}

func (primitiveConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	rv := reflect.ValueOf(obj)
	switch d.Kind {
	case TypeBool:
		if rv.Kind() != reflect.Bool {
			return Null(), singleIssue(CodeInvalidType, "expected bool value for "+d.String())
		}
		return Bool(rv.Bool()), nil
	case TypeInt:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return Int(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := rv.Uint()
			if u > uint64(1<<63-1) {
				return Null(), singleIssue(CodeRange, "unsigned integer exceeds 64-bit signed range")
			}
			return Int(int64(u)), nil
		default:
			return Null(), singleIssue(CodeInvalidType, "expected integer value for "+d.String())
		}
	case TypeFloat:
		if rv.Kind() != reflect.Float32 && rv.Kind() != reflect.Float64 {
			return Null(), singleIssue(CodeInvalidType, "expected float value for "+d.String())
		}
		return Float(rv.Float()), nil
	case TypeString:
		if rv.Kind() != reflect.String {
			return Null(), singleIssue(CodeInvalidType, "expected string value for "+d.String())
		}
		return String(rv.String()), nil
	case TypeBytes:
		switch rv.Kind() {
		case reflect.Slice:
			return Bytes(rv.Bytes()), nil
		case reflect.Array:
			out := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(out), rv)
			return Bytes(out), nil
		default:
			return Null(), singleIssue(CodeInvalidType, "expected byte sequence for "+d.String())
		}
	default:
		return Null(), singleIssue(CodeInvalidType, "primitive converter cannot handle "+d.String())
	}
}

func (primitiveConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	bt := baseType(d)
	out := reflect.New(bt).Elem()
	switch d.Kind {
	case TypeBool:
		if v.Kind() != KindBool {
			return nil, mismatch("bool", v.Kind())
		}
		out.SetBool(v.Bool())
	case TypeInt:
		if v.Kind() != KindInt {
			return nil, mismatch("int", v.Kind())
		}
		i := v.Int()
		switch bt.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if i < 0 || out.OverflowUint(uint64(i)) {
				return nil, singleIssue(CodeRange, "integer value exceeds range of "+bt.String())
			}
			out.SetUint(uint64(i))
		default:
			if out.OverflowInt(i) {
				return nil, singleIssue(CodeRange, "integer value exceeds range of "+bt.String())
			}
			out.SetInt(i)
		}
	case TypeFloat:
		var f float64
		switch v.Kind() {
		case KindFloat:
			f = v.Float()
		case KindInt:
			f = float64(v.Int())
		default:
			return nil, mismatch("float", v.Kind())
		}
		if out.OverflowFloat(f) {
			return nil, singleIssue(CodeRange, "float value exceeds range of "+bt.String())
		}
		out.SetFloat(f)
	case TypeString:
		if v.Kind() != KindString {
			return nil, mismatch("string", v.Kind())
		}
		out.SetString(v.Str())
	case TypeBytes:
		if v.Kind() != KindBytes {
			return nil, mismatch("bytes", v.Kind())
		}
		switch bt.Kind() {
		case reflect.Slice:
			out.SetBytes(append([]byte(nil), v.Bytes()...))
		case reflect.Array:
			if bt.Len() != len(v.Bytes()) {
				return nil, singleIssue(CodeSchemaMismatch, "byte array length mismatch")
			}
			reflect.Copy(out, reflect.ValueOf(v.Bytes()))
		}
	default:
		return nil, singleIssue(CodeInvalidType, "primitive converter cannot handle "+d.String())
	}
	return out.Interface(), nil
}

// ---- time ----

type timeConverter struct {
	mode TimeMode
}

func (c timeConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	t, ok := obj.(time.Time)
	if !ok {
		return Null(), singleIssue(CodeInvalidType, "expected time.Time")
	}
	if c.mode == TimeUnixMilli {
		return Int(t.UnixMilli()), nil
	}
	return String(formatRFC3339Canonical(t)), nil
}

// FromValue accepts both wire spellings regardless of the configured mode,
// so bytes written under one mode load under the other.
func (c timeConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	switch v.Kind() {
	case KindString:
		t, err := parseRFC3339(v.Str())
		if err != nil {
			return nil, Issues{Issue{Path: "/", Code: CodeSchemaMismatch, Message: "invalid RFC3339 time", Cause: err}}
		}
		return t, nil
	case KindInt:
		return time.UnixMilli(v.Int()).UTC(), nil
	default:
		return nil, mismatch("time as string or int", v.Kind())
	}
}

func parseRFC3339(s string) (time.Time, error) {
	// Accept RFC3339Nano (trailing zeros optional)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func formatRFC3339Canonical(t time.Time) string {
	// Normalize to UTC and format using RFC3339Nano (Go trims trailing zeros)
	return t.UTC().Format(time.RFC3339Nano)
}

// ---- uuid ----

type uuidConverter struct{}

func (uuidConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	u, ok := obj.(uuid.UUID)
	if !ok {
		return Null(), singleIssue(CodeInvalidType, "expected uuid.UUID")
	}
	return String(u.String()), nil
}

func (uuidConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	if v.Kind() != KindString {
		return nil, mismatch("uuid as string", v.Kind())
	}
	u, err := uuid.Parse(v.Str())
	if err != nil {
		return nil, Issues{Issue{Path: "/", Code: CodeSchemaMismatch, Message: "invalid UUID text", Cause: err}}
	}
	return u, nil
}

// ---- enum (TextMarshaler-backed named scalars) ----

type enumConverter struct{}

func (enumConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	m, ok := obj.(encoding.TextMarshaler)
	if !ok {
		return Null(), singleIssue(CodeInvalidType, "expected encoding.TextMarshaler for "+d.String())
	}
	b, err := m.MarshalText()
	if err != nil {
		return Null(), Issues{Issue{Path: "/", Code: CodeInvalidType, Message: "MarshalText failed", Cause: err}}
	}
	return String(string(b)), nil
}

func (enumConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	if v.Kind() != KindString {
		return nil, mismatch("enum as string", v.Kind())
	}
	p := reflect.New(baseType(d))
	u, ok := p.Interface().(encoding.TextUnmarshaler)
	if !ok {
		return nil, singleIssue(CodeInvalidType, "target of "+d.String()+" does not implement encoding.TextUnmarshaler")
	}
	if err := u.UnmarshalText([]byte(v.Str())); err != nil {
		return nil, Issues{Issue{Path: "/", Code: CodeSchemaMismatch, Message: "invalid enum text", Cause: err}}
	}
	return p.Elem().Interface(), nil
}

// ---- list ----

type listConverter struct{ a *Adapter }

func (c listConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Null(), singleIssue(CodeInvalidType, "expected sequence for "+d.String())
	}
	items := make([]Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := c.a.toValue(ctx, d.Elem, rv.Index(i).Interface())
		if err != nil {
			return Null(), prefixIssues(err, "/"+strconv.Itoa(i))
		}
		items[i] = ev
	}
	return List(items...), nil
}

func (c listConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	if v.Kind() != KindList {
		return nil, mismatch("list", v.Kind())
	}
	bt := baseType(d)
	n := v.Len()
	var out reflect.Value
	switch bt.Kind() {
	case reflect.Slice:
		out = reflect.MakeSlice(bt, n, n)
	case reflect.Array:
		if bt.Len() != n {
			return nil, singleIssue(CodeSchemaMismatch, "array length mismatch")
		}
		out = reflect.New(bt).Elem()
	default:
		return nil, singleIssue(CodeInvalidType, "list converter cannot build "+bt.String())
	}
	for i := 0; i < n; i++ {
		ev, err := c.a.fromValue(ctx, d.Elem, v.Index(i))
		if err != nil {
			return nil, prefixIssues(err, "/"+strconv.Itoa(i))
		}
		if err := setReflect(out.Index(i), ev, d.Elem); err != nil {
			return nil, prefixIssues(err, "/"+strconv.Itoa(i))
		}
	}
	return out.Interface(), nil
}

// ---- map ----

type mapConverter struct{ a *Adapter }

// ToValue walks keys in sorted order so semantically equal maps produce
// structurally equal Values regardless of Go map iteration order.
func (c mapConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Map {
		return Null(), singleIssue(CodeInvalidType, "expected mapping for "+d.String())
	}
	keys := make([]string, 0, rv.Len())
	byKey := make(map[string]reflect.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		keys = append(keys, k)
		byKey[k] = iter.Value()
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		ev, err := c.a.toValue(ctx, d.Elem, byKey[k].Interface())
		if err != nil {
			return Null(), prefixIssues(err, "/"+k)
		}
		entries = append(entries, Entry{Key: k, Value: ev})
	}
	return Map(entries...), nil
}

func (c mapConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	if v.Kind() != KindMap {
		return nil, mismatch("map", v.Kind())
	}
	bt := baseType(d)
	out := reflect.MakeMapWithSize(bt, v.Len())
	for _, k := range v.Keys() {
		e, _ := v.Get(k)
		ev, err := c.a.fromValue(ctx, d.Elem, e)
		if err != nil {
			return nil, prefixIssues(err, "/"+k)
		}
		slot := reflect.New(bt.Elem()).Elem()
		if err := setReflect(slot, ev, d.Elem); err != nil {
			return nil, prefixIssues(err, "/"+k)
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(bt.Key()), slot)
	}
	return out.Interface(), nil
}

// ---- record (the "any record" fallback tier) ----

type recordConverter struct{ a *Adapter }

func (c recordConverter) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Struct {
		return Null(), singleIssue(CodeInvalidType, "expected record value for "+d.String())
	}
	entries := make([]Entry, 0, len(d.Fields))
	for _, f := range d.Fields {
		fv := rv.Field(f.Index)
		if f.JSONString {
			jv, err := jsonStringValue(f, fv)
			if err != nil {
				return Null(), prefixIssues(err, "/"+f.Name)
			}
			entries = append(entries, Entry{Key: f.Name, Value: jv})
			continue
		}
		ev, err := c.a.toValue(ctx, f.Desc, fv.Interface())
		if err != nil {
			return Null(), prefixIssues(err, "/"+f.Name)
		}
		entries = append(entries, Entry{Key: f.Name, Value: ev})
	}
	return Map(entries...), nil
}

func (c recordConverter) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	if v.Kind() != KindMap {
		return nil, mismatch("record", v.Kind())
	}
	known := make(map[string]bool, len(d.Fields))
	out := reflect.New(baseType(d)).Elem()
	for _, f := range d.Fields {
		known[f.Name] = true
		e, ok := v.Get(f.Name)
		if !ok {
			// Forward compatibility: a field missing from the bytes but
			// declared with a default decodes to that default.
			if f.HasDefault {
				e = f.Default
			} else if f.Optional {
				continue
			} else {
				return nil, issueAtPath("/"+f.Name, CodeSchemaMismatch, "required field missing and no default declared")
			}
		}
		fv := out.Field(f.Index)
		if f.JSONString {
			if err := setJSONStringField(f, fv, e); err != nil {
				return nil, prefixIssues(err, "/"+f.Name)
			}
			continue
		}
		ev, err := c.a.fromValue(ctx, f.Desc, e)
		if err != nil {
			return nil, prefixIssues(err, "/"+f.Name)
		}
		if err := setReflect(fv, ev, f.Desc); err != nil {
			return nil, prefixIssues(err, "/"+f.Name)
		}
	}
	for _, k := range v.Keys() {
		if !known[k] {
			return nil, issueAtPath("/"+k, CodeSchemaMismatch, "field not declared by "+d.String())
		}
	}
	return out.Interface(), nil
}

// jsonStringValue carries a field as a JSON-encoded string (tag option
// "json"), so arbitrarily shaped fields travel through formats that have
// no native representation for them.
func jsonStringValue(f Field, fv reflect.Value) (Value, error) {
	if f.Optional && fv.Kind() == reflect.Pointer && fv.IsNil() {
		return Null(), nil
	}
	b, err := gojson.Marshal(fv.Interface())
	if err != nil {
		return Null(), Issues{Issue{Path: "/", Code: CodeInvalidType, Message: "cannot JSON-encode field", Cause: err}}
	}
	return String(string(b)), nil
}

func setJSONStringField(f Field, fv reflect.Value, e Value) error {
	switch e.Kind() {
	case KindNull:
		if !f.Optional {
			return singleIssue(CodeSchemaMismatch, "null for non-optional json field")
		}
		return nil
	case KindString:
		target := fv.Addr().Interface()
		if err := gojson.Unmarshal([]byte(e.Str()), target); err != nil {
			return Issues{Issue{Path: "/", Code: CodeSchemaMismatch, Message: "invalid JSON text in field", Cause: err}}
		}
		return nil
	default:
		return mismatch("json-encoded string", e.Kind())
	}
}

// setReflect assigns a converted value into a struct field, slice element or
// map slot, rebuilding the pointer layers the optional normalization
// collapsed (a **T slot receives its value wrapped twice, innermost first).
func setReflect(dst reflect.Value, val any, d *Descriptor) error {
	if val == nil {
		// Null into an optional slot: leave the zero value (nil pointer).
		if d != nil && d.Optional {
			return nil
		}
		return singleIssue(CodeSchemaMismatch, "null for non-optional value")
	}
	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	inner := dst.Type()
	depth := 0
	for inner.Kind() == reflect.Pointer {
		inner = inner.Elem()
		depth++
	}
	if depth > 0 {
		if !rv.Type().AssignableTo(inner) {
			if !rv.Type().ConvertibleTo(inner) {
				return singleIssue(CodeSchemaMismatch, "cannot assign "+rv.Type().String()+" to "+dst.Type().String())
			}
			rv = rv.Convert(inner)
		}
		for i := 0; i < depth; i++ {
			p := reflect.New(rv.Type())
			p.Elem().Set(rv)
			rv = p
		}
		dst.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	return singleIssue(CodeSchemaMismatch, "cannot assign "+rv.Type().String()+" to "+dst.Type().String())
}
