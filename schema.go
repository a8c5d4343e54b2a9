package adapt

// Schema is the structural projection of a descriptor consumed by
// schema-aware codecs. It mirrors the descriptor tree but carries only what
// codecs need: node kind, nesting, nullability, declared defaults and the
// logical annotation for values a plain byte format cannot represent
// natively (timestamps, UUIDs, JSON-carried strings).
//
// Derivation is a pure function of the descriptor: deriving twice yields
// structurally equal schemas, and field order follows declaration order.
type Schema struct {
	Kind     TypeKind
	Name     string
	Nullable bool
	Logical  string // "timestamp-millis", "rfc3339", "uuid", "json" or empty.
	Elem     *Schema
	Fields   []SchemaField
}

// SchemaField is one record field of a schema, in declaration order.
type SchemaField struct {
	Name       string
	Schema     *Schema
	HasDefault bool
	Default    Value
}

// Logical annotations understood by built-in codecs.
const (
	LogicalTimestampMillis = "timestamp-millis"
	LogicalRFC3339         = "rfc3339"
	LogicalUUID            = "uuid"
	LogicalJSON            = "json"
)

// Equal reports structural equality between schemas.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Kind != o.Kind || s.Name != o.Name || s.Nullable != o.Nullable || s.Logical != o.Logical {
		return false
	}
	if (s.Elem == nil) != (o.Elem == nil) || (s.Elem != nil && !s.Elem.Equal(o.Elem)) {
		return false
	}
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		sf, of := s.Fields[i], o.Fields[i]
		if sf.Name != of.Name || sf.HasDefault != of.HasDefault || !sf.Schema.Equal(of.Schema) {
			return false
		}
		if sf.HasDefault && !sf.Default.Equal(of.Default) {
			return false
		}
	}
	return true
}

// DeriveSchema computes the schema for a descriptor. derive-schema hooks run
// first (first-success) so plugins can describe opaque types; the generic
// walk covers everything with a structural shape and fails with schema_error
// for descriptors that have none.
//
// The wire form of logical kinds depends on the adapter's Options: with
// TimeText a timestamp is a string node annotated rfc3339, with
// TimeUnixMilli an int node annotated timestamp-millis.
func (a *Adapter) DeriveSchema(d *Descriptor) (*Schema, error) {
	if d == nil {
		return nil, singleIssue(CodeSchemaError, "nil descriptor")
	}
	if s, handled, err := a.hooks.deriveSchema(d); handled {
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s := &Schema{Nullable: d.Optional, Name: d.Name}
	switch d.Kind {
	case TypeBool:
		s.Kind = TypeBool
	case TypeInt:
		s.Kind = TypeInt
	case TypeFloat:
		s.Kind = TypeFloat
	case TypeString, TypeEnum:
		s.Kind = TypeString
	case TypeBytes:
		s.Kind = TypeBytes
	case TypeTime:
		if a.opts.TimeMode == TimeUnixMilli {
			s.Kind = TypeInt
			s.Logical = LogicalTimestampMillis
		} else {
			s.Kind = TypeString
			s.Logical = LogicalRFC3339
		}
	case TypeUUID:
		s.Kind = TypeString
		s.Logical = LogicalUUID
	case TypeList:
		elem, err := a.DeriveSchema(d.Elem)
		if err != nil {
			return nil, err
		}
		s.Kind = TypeList
		s.Elem = elem
	case TypeMap:
		elem, err := a.DeriveSchema(d.Elem)
		if err != nil {
			return nil, err
		}
		s.Kind = TypeMap
		s.Elem = elem
	case TypeRecord:
		s.Kind = TypeRecord
		for _, f := range d.Fields {
			fs, err := a.DeriveSchema(f.Desc)
			if err != nil {
				return nil, err
			}
			if f.JSONString {
				fs = &Schema{Kind: TypeString, Nullable: fs.Nullable, Logical: LogicalJSON}
			}
			if f.Optional {
				fs.Nullable = true
			}
			s.Fields = append(s.Fields, SchemaField{
				Name:       f.Name,
				Schema:     fs,
				HasDefault: f.HasDefault,
				Default:    f.Default,
			})
		}
	default:
		return nil, Issues{Issue{
			Path:    "/",
			Code:    CodeSchemaError,
			Message: "no derivable structural shape for " + d.String() + "; register a derive-schema hook",
			Params:  map[string]any{"descriptor": d.String()},
		}}
	}
	return s, nil
}
