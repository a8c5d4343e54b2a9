package adapt_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	adapt "github.com/reoring/adapt"
)

func TestRegisterHook_RejectsWrongSignature(t *testing.T) {
	a := adapt.New()
	err := a.RegisterHook(adapt.HookToValue, adapt.ResolveTypeHook(func(t reflect.Type) (*adapt.Descriptor, error) {
		return nil, adapt.ErrNotApplicable
	}), 0)
	if !adapt.HasCode(err, adapt.CodeInvalidType) {
		t.Fatalf("want invalid_type for mismatched hook, got %v", err)
	}
}

func TestToValueHooks_ChainInOrder(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()

	appendMark := func(mark string) adapt.ToValueHook {
		return func(ctx context.Context, d *adapt.Descriptor, v adapt.Value) (adapt.Value, error) {
			if v.Kind() != adapt.KindString {
				return v, adapt.ErrNotApplicable
			}
			return adapt.String(v.Str() + mark), nil
		}
	}
	// Registered out of order; explicit order must win over registration order.
	if err := a.RegisterHook(adapt.HookToValue, appendMark("+second"), 2); err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	if err := a.RegisterHook(adapt.HookToValue, appendMark("+first"), 1); err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}

	v, _, err := a.ToValue(ctx, "base")
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if !v.Equal(adapt.String("base+first+second")) {
		t.Fatalf("chain order wrong: %v", v.Native())
	}
}

func TestToValueHooks_NotApplicableSkips(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()
	if err := a.RegisterHook(adapt.HookToValue, adapt.ToValueHook(
		func(ctx context.Context, d *adapt.Descriptor, v adapt.Value) (adapt.Value, error) {
			return adapt.Null(), adapt.ErrNotApplicable
		}), 0); err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	v, _, err := a.ToValue(ctx, int64(7))
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if !v.Equal(adapt.Int(7)) {
		t.Fatalf("not-applicable hook must not rewrite the value: %v", v.Native())
	}
}

func TestToValueHooks_ErrorAborts(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()
	boom := errors.New("boom")
	if err := a.RegisterHook(adapt.HookToValue, adapt.ToValueHook(
		func(ctx context.Context, d *adapt.Descriptor, v adapt.Value) (adapt.Value, error) {
			return adapt.Null(), boom
		}), 0); err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	_, _, err := a.ToValue(ctx, int64(7))
	if !errors.Is(err, boom) {
		t.Fatalf("hook error should surface unchanged, got %v", err)
	}
}

type opaque struct {
	payload string
}

func TestResolveTypeHook_ClaimsTypeFirst(t *testing.T) {
	ctx := context.Background()
	a := adapt.New()
	opaqueType := reflect.TypeOf(opaque{})
	desc := adapt.NewOpaque("opaque-test", opaqueType)

	err := a.RegisterHook(adapt.HookResolveType, adapt.ResolveTypeHook(func(t reflect.Type) (*adapt.Descriptor, error) {
		if t == opaqueType {
			return desc, nil
		}
		return nil, adapt.ErrNotApplicable
	}), 0)
	if err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}

	// Without a converter the claimed type dispatches to nothing.
	_, _, err = a.ToValue(ctx, opaque{payload: "x"})
	if !adapt.HasCode(err, adapt.CodeNoConverter) {
		t.Fatalf("want no_converter, got %v", err)
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
	v, d, err := a.ToValue(ctx, opaque{payload: "x"})
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	if d != desc || !v.Equal(adapt.String("x")) {
		t.Fatalf("hook-claimed type not dispatched to registered converter")
	}

	back, err := a.FromValue(ctx, v, opaqueType)
	if err != nil {
		t.Fatalf("FromValue: %v", err)
	}
	if back.(opaque).payload != "x" {
		t.Fatalf("got %+v", back)
	}
}

func TestDeriveSchemaHook_CoversOpaqueTypes(t *testing.T) {
	a := adapt.New()
	desc := adapt.NewOpaque("blob", reflect.TypeOf(opaque{}))

	if _, err := a.DeriveSchema(desc); !adapt.HasCode(err, adapt.CodeSchemaError) {
		t.Fatalf("opaque without hook should be schema_error, got %v", err)
	}

	err := a.RegisterHook(adapt.HookDeriveSchema, adapt.DeriveSchemaHook(func(d *adapt.Descriptor) (*adapt.Schema, error) {
		if d.Kind != adapt.TypeOpaque {
			return nil, adapt.ErrNotApplicable
		}
		return &adapt.Schema{Kind: adapt.TypeString}, nil
	}), 0)
	if err != nil {
		t.Fatalf("RegisterHook: %v", err)
	}
	s, err := a.DeriveSchema(desc)
	if err != nil {
		t.Fatalf("DeriveSchema: %v", err)
	}
	if s.Kind != adapt.TypeString {
		t.Fatalf("hook schema not used: %+v", s)
	}
}
