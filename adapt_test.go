package adapt_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	adapt "github.com/reoring/adapt"
)

// memFormat stores encoded Values in memory and hands out one-byte tokens,
// which makes round-trip tests independent of any wire grammar.
type memFormat struct {
	name     string
	requires bool

	mu   sync.Mutex
	vals []adapt.Value
}

func (m *memFormat) Name() string         { return m.name }
func (m *memFormat) RequiresSchema() bool { return m.requires }

func (m *memFormat) Encode(ctx context.Context, v adapt.Value, s *adapt.Schema) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals = append(m.vals, v)
	return []byte{byte(len(m.vals) - 1)}, nil
}

func (m *memFormat) Decode(ctx context.Context, data []byte, s *adapt.Schema) (adapt.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(data) != 1 || int(data[0]) >= len(m.vals) {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "unknown token"}}
	}
	return m.vals[data[0]], nil
}

func newMemAdapter(t *testing.T) *adapt.Adapter {
	t.Helper()
	a := adapt.New()
	if err := a.RegisterFormat(&memFormat{name: "mem"}, false); err != nil {
		t.Fatalf("RegisterFormat: %v", err)
	}
	return a
}

func TestRegisterFormat_DuplicateNeedsReplace(t *testing.T) {
	a := newMemAdapter(t)
	err := a.RegisterFormat(&memFormat{name: "mem"}, false)
	if !adapt.HasCode(err, adapt.CodeAmbiguousConverter) {
		t.Fatalf("want ambiguous_converter, got %v", err)
	}
	if err := a.RegisterFormat(&memFormat{name: "mem"}, true); err != nil {
		t.Fatalf("replace should succeed: %v", err)
	}
}

func TestMarshal_UnknownFormat(t *testing.T) {
	_, err := adapt.New().Marshal(context.Background(), point{}, "tnetennba")
	if !adapt.HasCode(err, adapt.CodeNoConverter) {
		t.Fatalf("want no_converter, got %v", err)
	}
}

func TestRoundTrip_Struct(t *testing.T) {
	ctx := context.Background()
	a := newMemAdapter(t)
	in := point{X: 4, Y: -9}

	data, err := a.Marshal(ctx, in, "mem")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[point](ctx, a, data, "mem")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
}

func TestRoundTrip_PointerTarget(t *testing.T) {
	ctx := context.Background()
	a := newMemAdapter(t)
	data, err := a.Marshal(ctx, point{X: 1, Y: 2}, "mem")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[*point](ctx, a, data, "mem")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out == nil || *out != (point{X: 1, Y: 2}) {
		t.Fatalf("got %+v", out)
	}
}

func TestRoundTrip_MultiLevelPointers(t *testing.T) {
	ctx := context.Background()
	a := newMemAdapter(t)
	one := 1
	p := &one
	type holder struct {
		P **int
		Q **int
	}
	in := holder{P: &p}

	data, err := a.Marshal(ctx, in, "mem")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[holder](ctx, a, data, "mem")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.P == nil || *out.P == nil || **out.P != 1 {
		t.Fatalf("double pointer field not rebuilt: %+v", out)
	}
	if out.Q != nil {
		t.Fatalf("nil double pointer should stay nil, got %v", out.Q)
	}

	// Top-level multi-level pointer target.
	data, err = a.Marshal(ctx, &p, "mem")
	if err != nil {
		t.Fatalf("Marshal **int: %v", err)
	}
	got, err := adapt.Unmarshal[**int](ctx, a, data, "mem")
	if err != nil {
		t.Fatalf("Unmarshal **int: %v", err)
	}
	if got == nil || *got == nil || **got != 1 {
		t.Fatalf("top-level double pointer not rebuilt: %v", got)
	}
}

func TestRoundTrip_LogicalTypes(t *testing.T) {
	ctx := context.Background()
	a := newMemAdapter(t)
	type stamped struct {
		ID    uuid.UUID
		When  time.Time
		Color color
	}
	in := stamped{
		ID:    uuid.MustParse("0f87cf6b-35df-4532-89b4-f58de2e55012"),
		When:  time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC),
		Color: blue,
	}
	data, err := a.Marshal(ctx, in, "mem")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[stamped](ctx, a, data, "mem")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.ID != in.ID || !out.When.Equal(in.When) || out.Color != in.Color {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
}

func TestRoundTrip_Many(t *testing.T) {
	ctx := context.Background()
	a := newMemAdapter(t)
	in := []point{{X: 1}, {Y: 2}, {X: 3, Y: 4}}

	data, err := a.MarshalMany(ctx, in, "mem")
	if err != nil {
		t.Fatalf("MarshalMany: %v", err)
	}
	out, err := adapt.UnmarshalMany[point](ctx, a, data, "mem")
	if err != nil {
		t.Fatalf("UnmarshalMany: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
}

func TestMarshalMany_RejectsNonSlice(t *testing.T) {
	a := newMemAdapter(t)
	_, err := a.MarshalMany(context.Background(), point{}, "mem")
	if !adapt.HasCode(err, adapt.CodeInvalidType) {
		t.Fatalf("want invalid_type, got %v", err)
	}
}

func TestMarshal_SchemaRequiringFormatFailsForOpaque(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()
	if err := a.RegisterFormat(&memFormat{name: "loose"}, false); err != nil {
		t.Fatalf("RegisterFormat: %v", err)
	}
	if err := a.RegisterFormat(&memFormat{name: "strict", requires: true}, false); err != nil {
		t.Fatalf("RegisterFormat: %v", err)
	}

	opaqueType := reflect.TypeOf(opaque{})
	desc := adapt.NewOpaque("facade-opaque", opaqueType)
	err := a.RegisterHook(adapt.HookResolveType, adapt.ResolveTypeHook(func(t reflect.Type) (*adapt.Descriptor, error) {
		if t == opaqueType {
			return desc, nil
		}
		return nil, adapt.ErrNotApplicable
	}), 0)
	if err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	conv := adapt.ConverterFuncs{
		To: func(ctx context.Context, d *adapt.Descriptor, obj any) (adapt.Value, error) {
			return adapt.String(obj.(opaque).payload), nil
		},
		From: func(ctx context.Context, d *adapt.Descriptor, v adapt.Value) (any, error) {
			return opaque{payload: v.Str()}, nil
		},
	}
	if err := a.RegisterConverter(desc, conv, adapt.SpecExact, false); err != nil {
		t.Fatalf("RegisterConverter: %v", err)
	}

	// Schema-less format: derivation failure is not fatal.
	if _, err := a.Marshal(ctx, opaque{payload: "ok"}, "loose"); err != nil {
		t.Fatalf("schema-less format should tolerate underivable schema: %v", err)
	}
	// Schema-requiring format: the derivation error surfaces.
	if _, err := a.Marshal(ctx, opaque{payload: "ok"}, "strict"); !adapt.HasCode(err, adapt.CodeSchemaError) {
		t.Fatalf("want schema_error, got %v", err)
	}
}

func TestSelectCodecHook_OverridesTable(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()
	hooked := &memFormat{name: "hooked"}
	err := a.RegisterHook(adapt.HookSelectCodec, adapt.SelectCodecHook(func(name string) (adapt.Format, error) {
		if name == "hooked" {
			return hooked, nil
		}
		return nil, adapt.ErrNotApplicable
	}), 0)
	if err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	data, err := a.Marshal(ctx, point{X: 1}, "hooked")
	if err != nil {
		t.Fatalf("Marshal through hooked codec: %v", err)
	}
	out, err := adapt.Unmarshal[point](ctx, a, data, "hooked")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.X != 1 {
		t.Fatalf("got %+v", out)
	}
}

func TestUnmarshal_NullForNonOptionalTarget(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()
	_, err := a.FromValue(ctx, adapt.Null(), reflect.TypeOf(point{}))
	if !adapt.HasCode(err, adapt.CodeSchemaMismatch) {
		t.Fatalf("want schema_mismatch, got %v", err)
	}
	out, err := a.FromValue(ctx, adapt.Null(), reflect.TypeOf((*point)(nil)))
	if err != nil {
		t.Fatalf("null into optional target: %v", err)
	}
	if out.(*point) != nil {
		t.Fatalf("want nil pointer, got %v", out)
	}
}
