package adapt

import (
	"encoding"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TypeKind classifies the canonical shape of a type declaration.
type TypeKind uint8

const (
	TypeBool TypeKind = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBytes
	TypeTime // time.Time, carried as RFC3339 text or unix milliseconds.
	TypeUUID // uuid.UUID, carried as text.
	TypeEnum // named scalar implementing encoding.TextMarshaler/TextUnmarshaler.
	TypeList
	TypeMap
	TypeRecord
	TypeOpaque // no structural shape; needs a converter and a schema hook.
)

func (k TypeKind) String() string {
	switch k {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeTime:
		return "time"
	case TypeUUID:
		return "uuid"
	case TypeEnum:
		return "enum"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	case TypeRecord:
		return "record"
	case TypeOpaque:
		return "opaque"
	default:
		return "invalid"
	}
}

// Field describes one record field: declaration order is the slice order.
type Field struct {
	Name       string
	Desc       *Descriptor
	Index      int  // struct field index.
	Optional   bool // pointer-typed or tagged omitempty.
	HasDefault bool
	Default    Value
	JSONString bool // carried as a JSON-encoded string (tag option "json").
}

// Descriptor is the immutable, equality-comparable dispatch key derived from
// a type declaration. Equal declarations always resolve to the same
// *Descriptor instance (memoized), and independently resolved equal
// declarations produce equal fingerprints, which is what registry caching
// relies on.
//
// Optionality is normalized: every spelling of "optional" (pointer, nested
// pointer, union-with-null) collapses into the single Optional flag, so
// converters and codecs never see the spelling.
type Descriptor struct {
	Kind     TypeKind
	Name     string // nominal identity ("pkg/path.Type"); empty for structural types.
	Optional bool
	Elem     *Descriptor // list element / map value type.
	Fields   []Field     // record fields in declaration order.
	GoType   reflect.Type

	fp         string
	structural string
}

// Fingerprint returns the stable key including nominal identity.
func (d *Descriptor) Fingerprint() string { return d.fp }

// Structural returns the fingerprint with nominal identity stripped, used by
// the structural fallback tier of converter lookup.
func (d *Descriptor) Structural() string { return d.structural }

// String renders the descriptor for error messages.
func (d *Descriptor) String() string { return d.fp }

// Seal computes the fingerprints of a hand-built descriptor tree (children
// first) and returns it. Descriptors produced by Resolve are already sealed;
// only hook authors constructing custom descriptors need to call this.
func Seal(d *Descriptor) *Descriptor {
	for i := range d.Fields {
		if d.Fields[i].Desc.fp == "" {
			Seal(d.Fields[i].Desc)
		}
	}
	if d.Elem != nil && d.Elem.fp == "" {
		Seal(d.Elem)
	}
	d.fp = fingerprint(d, true)
	d.structural = fingerprint(d, false)
	return d
}

// NewOpaque builds a sealed descriptor for a type with no derivable shape.
// Such types need an exact converter registration and, for schema-requiring
// formats, a derive-schema hook.
func NewOpaque(name string, rt reflect.Type) *Descriptor {
	return Seal(&Descriptor{Kind: TypeOpaque, Name: name, GoType: rt})
}

func fingerprint(d *Descriptor, named bool) string {
	b := &strings.Builder{}
	writeFingerprint(b, d, named)
	return b.String()
}

func writeFingerprint(b *strings.Builder, d *Descriptor, named bool) {
	if d.Optional {
		b.WriteByte('?')
	}
	switch d.Kind {
	case TypeList:
		b.WriteString("list<")
		writeFingerprint(b, d.Elem, named)
		b.WriteByte('>')
	case TypeMap:
		b.WriteString("map<string,")
		writeFingerprint(b, d.Elem, named)
		b.WriteByte('>')
	case TypeRecord:
		b.WriteString("record")
		if named && d.Name != "" {
			b.WriteByte('<')
			b.WriteString(d.Name)
			b.WriteByte('>')
		}
		b.WriteByte('{')
		for i, f := range d.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Name)
			b.WriteByte(':')
			if named {
				b.WriteString(f.Desc.fp)
			} else {
				b.WriteString(f.Desc.structural)
			}
			if f.HasDefault {
				b.WriteByte('=')
			}
		}
		b.WriteByte('}')
	case TypeEnum, TypeOpaque:
		b.WriteString(d.Kind.String())
		if named && d.Name != "" {
			b.WriteByte('<')
			b.WriteString(d.Name)
			b.WriteByte('>')
		}
	default:
		b.WriteString(d.Kind.String())
	}
}

// Resolver derives descriptors from Go type declarations. Resolution is
// memoized per reflect.Type; repeated resolution of the same declaration is
// O(1) after first use and returns the identical *Descriptor.
type Resolver struct {
	hooks *Hooks
	memo  sync.Map // reflect.Type -> *Descriptor
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	uuidType            = reflect.TypeOf(uuid.UUID{})
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Resolve produces the canonical descriptor for a type declaration. It fails
// with unsupported_type when the declaration uses a construct the engine
// cannot represent: functions, channels, complex numbers, unsafe pointers,
// non-string map keys, bare interfaces, and recursive types.
//
// resolve-type hooks run first (first-success), so plugins can claim types
// before the built-in reflection walk sees them.
func (r *Resolver) Resolve(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, singleIssue(CodeUnsupportedType, "nil type declaration")
	}
	if d, ok := r.memo.Load(t); ok {
		return d.(*Descriptor), nil
	}
	d, err := r.resolve(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	got, _ := r.memo.LoadOrStore(t, d)
	return got.(*Descriptor), nil
}

func (r *Resolver) resolve(t reflect.Type, seen map[reflect.Type]bool) (*Descriptor, error) {
	if d, ok := r.memo.Load(t); ok {
		return d.(*Descriptor), nil
	}
	if d, handled, err := r.hooks.resolveType(t); handled {
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	if seen[t] {
		return nil, singleIssue(CodeUnsupportedType, "recursive type "+t.String()+" has no registered converter")
	}
	seen[t] = true
	defer delete(seen, t)

	switch t {
	case timeType:
		return Seal(&Descriptor{Kind: TypeTime, Name: "time.Time", GoType: t}), nil
	case uuidType:
		return Seal(&Descriptor{Kind: TypeUUID, Name: "uuid.UUID", GoType: t}), nil
	}

	// Named scalar carrying its own text form. Checked before the kind
	// switch so string-backed and int-backed enums land in the same tier.
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Struct && t.PkgPath() != "" &&
		t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return Seal(&Descriptor{Kind: TypeEnum, Name: typeName(t), GoType: t}), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := r.resolve(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		if elem.Optional {
			// Nested optional spellings collapse to one canonical flag.
			return elem, nil
		}
		opt := *elem
		opt.Optional = true
		opt.GoType = t
		return Seal(&opt), nil
	case reflect.Bool:
		return Seal(&Descriptor{Kind: TypeBool, GoType: t}), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Seal(&Descriptor{Kind: TypeInt, GoType: t}), nil
	case reflect.Float32, reflect.Float64:
		return Seal(&Descriptor{Kind: TypeFloat, GoType: t}), nil
	case reflect.String:
		return Seal(&Descriptor{Kind: TypeString, GoType: t}), nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return Seal(&Descriptor{Kind: TypeBytes, GoType: t}), nil
		}
		elem, err := r.resolve(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return Seal(&Descriptor{Kind: TypeList, Elem: elem, GoType: t}), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, singleIssue(CodeUnsupportedType, "map key of "+t.String()+" is not a string kind")
		}
		elem, err := r.resolve(t.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return Seal(&Descriptor{Kind: TypeMap, Elem: elem, GoType: t}), nil
	case reflect.Struct:
		return r.resolveStruct(t, seen)
	case reflect.Interface:
		return nil, singleIssue(CodeUnsupportedType, "interface type "+t.String()+" carries no static shape; register a converter via a resolve-type hook")
	default:
		return nil, singleIssue(CodeUnsupportedType, "type "+t.String()+" has no intermediate representation")
	}
}

func (r *Resolver) resolveStruct(t reflect.Type, seen map[reflect.Type]bool) (*Descriptor, error) {
	d := &Descriptor{Kind: TypeRecord, Name: typeName(t), GoType: t}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, opts := parseTag(sf.Tag.Get("adapt"))
		if name == "-" {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		var fd *Descriptor
		if opts["json"] {
			// JSON-carried fields bypass structural resolution: the field
			// travels as encoded text, so its Go shape never needs an
			// intermediate representation of its own.
			fd = Seal(&Descriptor{Kind: TypeString, GoType: sf.Type, Optional: sf.Type.Kind() == reflect.Pointer})
		} else {
			var err error
			fd, err = r.resolve(sf.Type, seen)
			if err != nil {
				if iss, ok := AsIssues(err); ok && len(iss) > 0 {
					iss[0].Path = "/" + name
					return nil, iss
				}
				return nil, err
			}
		}
		f := Field{
			Name:       name,
			Desc:       fd,
			Index:      i,
			Optional:   fd.Optional || opts["omitempty"],
			JSONString: opts["json"],
		}
		if lit, ok := sf.Tag.Lookup("default"); ok {
			dv, err := parseDefault(fd, lit)
			if err != nil {
				return nil, issueAtPath("/"+name, CodeUnsupportedType, "default literal does not match field type: "+err.Error())
			}
			f.HasDefault = true
			f.Default = dv
		}
		d.Fields = append(d.Fields, f)
	}
	return Seal(d), nil
}

func typeName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return ""
	}
	return t.PkgPath() + "." + t.Name()
}

func parseTag(tag string) (name string, opts map[string]bool) {
	opts = map[string]bool{}
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, p := range parts[1:] {
		opts[p] = true
	}
	return name, opts
}

// parseDefault interprets a `default:"..."` struct tag literal against the
// field's descriptor. Scalars use plain literals; lists and maps use JSON.
func parseDefault(d *Descriptor, lit string) (Value, error) {
	switch d.Kind {
	case TypeBool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return Null(), err
		}
		return Bool(b), nil
	case TypeInt:
		i, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return Null(), err
		}
		return Int(i), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Null(), err
		}
		return Float(f), nil
	case TypeString, TypeEnum, TypeTime, TypeUUID:
		return String(lit), nil
	case TypeBytes:
		return Bytes([]byte(lit)), nil
	case TypeList, TypeMap, TypeRecord:
		var native any
		if err := gojson.Unmarshal([]byte(lit), &native); err != nil {
			return Null(), err
		}
		return FromNative(native)
	default:
		return Null(), singleIssue(CodeUnsupportedType, "no default form for "+d.Kind.String())
	}
}
