package adapt

import (
	"context"
	"reflect"
	"sync"
)

// TimeMode dictates the wire spelling of timestamps.
type TimeMode uint8

const (
	TimeText      TimeMode = iota // RFC3339 text, canonicalized to UTC.
	TimeUnixMilli                 // Unix milliseconds as a 64-bit integer.
)

// Options bundles adapter-wide conversion options.
type Options struct {
	TimeMode TimeMode
}

// Adapter is the orchestration entry point: it owns the registration tables
// (converters, hooks, formats) and the resolution caches. All mutation goes
// through explicit registration calls, expected during process startup;
// steady-state Marshal/Unmarshal traffic is read-only and safe for
// concurrent use from many goroutines.
type Adapter struct {
	opts     Options
	resolver *Resolver
	registry *Registry
	hooks    *Hooks

	formatMu sync.RWMutex
	formats  map[string]Format
}

// New builds an adapter with the built-in converters registered. Wire
// formats are not preloaded: the hosting application registers codecs
// explicitly at startup (see codec.RegisterAll).
func New(opts ...Options) *Adapter {
	var opt Options
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	a := &Adapter{
		opts:    opt,
		hooks:   NewHooks(),
		formats: make(map[string]Format),
	}
	a.resolver = &Resolver{hooks: a.hooks}
	a.registry = NewRegistry()
	registerBuiltins(a)
	return a
}

var defaultAdapter = New()

// Default returns the process-wide adapter instance.
func Default() *Adapter { return defaultAdapter }

// Resolve derives the canonical descriptor for a type declaration.
func (a *Adapter) Resolve(t reflect.Type) (*Descriptor, error) {
	return a.resolver.Resolve(t)
}

// RegisterConverter registers a converter pair for a type declaration. decl
// is either a *Descriptor or a reflect.Type; anything else is the sample
// value whose type is registered (reflect.TypeOf semantics).
func (a *Adapter) RegisterConverter(decl any, c Converter, spec Specificity, replace bool) error {
	d, err := a.descriptorOf(decl)
	if err != nil {
		return err
	}
	return a.registry.Register(d, c, spec, replace)
}

// RegisterHook adds a hook implementation at the given order. Lower orders
// run earlier; ties run in registration order.
func (a *Adapter) RegisterHook(point HookPoint, impl any, order int) error {
	return a.hooks.Register(point, impl, order)
}

func (a *Adapter) descriptorOf(decl any) (*Descriptor, error) {
	switch t := decl.(type) {
	case *Descriptor:
		return t, nil
	case reflect.Type:
		return a.resolver.Resolve(t)
	default:
		return a.resolver.Resolve(reflect.TypeOf(decl))
	}
}

// ToValue converts an object into the intermediate representation: resolver,
// registry dispatch, then chained to-value hooks. This is the
// pre-serialization half of Marshal, exposed for callers that bring their
// own codec.
func (a *Adapter) ToValue(ctx context.Context, obj any) (Value, *Descriptor, error) {
	d, err := a.resolver.Resolve(reflect.TypeOf(obj))
	if err != nil {
		return Null(), nil, err
	}
	v, err := a.toValue(ctx, d, obj)
	if err != nil {
		return Null(), nil, err
	}
	return v, d, nil
}

// FromValue converts an intermediate value back into an object of the given
// declaration: chained from-value hooks, then registry dispatch.
func (a *Adapter) FromValue(ctx context.Context, v Value, t reflect.Type) (any, error) {
	d, err := a.resolver.Resolve(t)
	if err != nil {
		return nil, err
	}
	obj, err := a.fromValue(ctx, d, v)
	if err != nil {
		return nil, err
	}
	return rewrap(obj, t)
}

func (a *Adapter) toValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	if d.Optional {
		rv := reflect.ValueOf(obj)
		if obj == nil || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
			return a.hooks.transform(ctx, HookToValue, d, Null())
		}
		for rv.Kind() == reflect.Pointer {
			rv = rv.Elem()
		}
		obj = rv.Interface()
	}
	conv, err := a.registry.Lookup(d)
	if err != nil {
		return Null(), err
	}
	v, err := conv.ToValue(ctx, d, obj)
	if err != nil {
		return Null(), err
	}
	return a.hooks.transform(ctx, HookToValue, d, v)
}

func (a *Adapter) fromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	v, err := a.hooks.transform(ctx, HookFromValue, d, v)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		if d.Optional {
			return nil, nil
		}
		return nil, singleIssue(CodeSchemaMismatch, "null for non-optional "+d.String())
	}
	conv, err := a.registry.Lookup(d)
	if err != nil {
		return nil, err
	}
	return conv.FromValue(ctx, d, v)
}

// Marshal converts an object to bytes in the named wire format: resolver ->
// registry -> (schema deriver) -> codec. Errors from inner components pass
// through with their original codes, never wrapped into a generic failure.
func (a *Adapter) Marshal(ctx context.Context, obj any, format string) ([]byte, error) {
	f, err := a.selectFormat(format)
	if err != nil {
		return nil, err
	}
	v, d, err := a.ToValue(ctx, obj)
	if err != nil {
		return nil, err
	}
	s, err := a.schemaFor(d, f)
	if err != nil {
		return nil, err
	}
	return f.Encode(ctx, v, s)
}

// Unmarshal converts bytes in the named wire format into an object of the
// target declaration. Malformed bytes surface as decode_error from the
// codec; structure that cannot be coerced into the target surfaces as
// schema_mismatch.
func (a *Adapter) Unmarshal(ctx context.Context, data []byte, t reflect.Type, format string) (any, error) {
	f, err := a.selectFormat(format)
	if err != nil {
		return nil, err
	}
	d, err := a.resolver.Resolve(t)
	if err != nil {
		return nil, err
	}
	s, err := a.schemaFor(d, f)
	if err != nil {
		return nil, err
	}
	v, err := f.Decode(ctx, data, s)
	if err != nil {
		return nil, err
	}
	obj, err := a.fromValue(ctx, d, v)
	if err != nil {
		return nil, err
	}
	return rewrap(obj, t)
}

// MarshalMany encodes a homogeneous sequence of objects as one list payload.
// objs must be a slice; the element type drives conversion, matching the
// single-object path.
func (a *Adapter) MarshalMany(ctx context.Context, objs any, format string) ([]byte, error) {
	rv := reflect.ValueOf(objs)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, singleIssue(CodeInvalidType, "MarshalMany expects a slice of objects")
	}
	f, err := a.selectFormat(format)
	if err != nil {
		return nil, err
	}
	elemDesc, err := a.resolver.Resolve(rv.Type().Elem())
	if err != nil {
		return nil, err
	}
	items := make([]Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := a.toValue(ctx, elemDesc, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		items[i] = ev
	}
	s, err := a.schemaFor(elemDesc, f)
	if err != nil {
		return nil, err
	}
	var listSchema *Schema
	if s != nil {
		listSchema = &Schema{Kind: TypeList, Elem: s}
	}
	return f.Encode(ctx, List(items...), listSchema)
}

// UnmarshalManyInto decodes a list payload into a slice of the target
// element declaration.
func (a *Adapter) UnmarshalManyInto(ctx context.Context, data []byte, elem reflect.Type, format string) (any, error) {
	return a.Unmarshal(ctx, data, reflect.SliceOf(elem), format)
}

// schemaFor derives the schema when possible. Derivation failure is fatal
// only for schema-requiring codecs; schema-less codecs receive nil and use
// their own typing rules.
func (a *Adapter) schemaFor(d *Descriptor, f Format) (*Schema, error) {
	s, err := a.DeriveSchema(d)
	if err != nil {
		if f.RequiresSchema() {
			return nil, err
		}
		return nil, nil
	}
	return s, nil
}

// rewrap converts the facade result to the exact requested type, rebuilding
// every pointer layer the optional normalization collapsed, innermost first.
func rewrap(obj any, t reflect.Type) (any, error) {
	if obj == nil {
		return reflect.Zero(t).Interface(), nil
	}
	rv := reflect.ValueOf(obj)
	// layers[0] is the requested type, layers[len-1] its innermost element.
	layers := []reflect.Type{t}
	for inner := t; inner.Kind() == reflect.Pointer; {
		inner = inner.Elem()
		layers = append(layers, inner)
	}
	idx := -1
	for i, lt := range layers {
		if rv.Type() == lt {
			idx = i
			break
		}
	}
	if idx == -1 {
		innermost := layers[len(layers)-1]
		if !rv.Type().ConvertibleTo(innermost) {
			return nil, singleIssue(CodeSchemaMismatch, "cannot shape result as "+t.String())
		}
		rv = rv.Convert(innermost)
		idx = len(layers) - 1
	}
	for ; idx > 0; idx-- {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		rv = p
	}
	return rv.Interface(), nil
}

// ---- Generic entry points (typed sugar over the Adapter) ----

// Marshal encodes obj with the process-wide default adapter.
func Marshal(ctx context.Context, obj any, format string) ([]byte, error) {
	return defaultAdapter.Marshal(ctx, obj, format)
}

// Unmarshal decodes data into T using the given adapter.
func Unmarshal[T any](ctx context.Context, a *Adapter, data []byte, format string) (T, error) {
	var zero T
	out, err := a.Unmarshal(ctx, data, reflect.TypeOf((*T)(nil)).Elem(), format)
	if err != nil {
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, singleIssue(CodeSchemaMismatch, "decoded value does not fit target type")
	}
	return v, nil
}

// UnmarshalMany decodes a list payload into []T using the given adapter.
func UnmarshalMany[T any](ctx context.Context, a *Adapter, data []byte, format string) ([]T, error) {
	out, err := a.UnmarshalManyInto(ctx, data, reflect.TypeOf((*T)(nil)).Elem(), format)
	if err != nil {
		return nil, err
	}
	v, ok := out.([]T)
	if !ok {
		return nil, singleIssue(CodeSchemaMismatch, "decoded value does not fit target slice type")
	}
	return v, nil
}
