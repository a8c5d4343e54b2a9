package adapt

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
)

// HookPoint names an extension point of the engine.
type HookPoint string

const (
	// HookResolveType claims type declarations before the built-in
	// reflection walk. Policy: first-success.
	HookResolveType HookPoint = "resolve-type"
	// HookToValue transforms the intermediate value produced by a converter.
	// Policy: chained.
	HookToValue HookPoint = "to-value"
	// HookFromValue transforms the intermediate value before it is handed to
	// a converter on load. Policy: chained.
	HookFromValue HookPoint = "from-value"
	// HookSelectCodec resolves a format name to a codec ahead of the format
	// table. Policy: first-success.
	HookSelectCodec HookPoint = "select-codec"
	// HookDeriveSchema supplies schema fragments for descriptors the generic
	// deriver cannot introspect. Policy: first-success.
	HookDeriveSchema HookPoint = "derive-schema"
)

// ErrNotApplicable is the sentinel a hook implementation returns to signal
// "not my type, try the next candidate". It is not a failure: the chain
// continues. Any other error aborts the whole chain and surfaces unchanged.
var ErrNotApplicable = errors.New("adapt: hook not applicable")

// Hook implementation signatures per hook point. Register rejects
// implementations whose type does not match the point.
type (
	ResolveTypeHook  func(t reflect.Type) (*Descriptor, error)
	ToValueHook      func(ctx context.Context, d *Descriptor, v Value) (Value, error)
	FromValueHook    func(ctx context.Context, d *Descriptor, v Value) (Value, error)
	SelectCodecHook  func(name string) (Format, error)
	DeriveSchemaHook func(d *Descriptor) (*Schema, error)
)

type hookEntry struct {
	impl  any
	order int
	seq   int
}

// Hooks is the registration table for all hook points. Invocation order per
// point is explicit order ascending, then registration order for ties, so
// chains are deterministic given a fixed registration sequence.
type Hooks struct {
	mu    sync.RWMutex
	table map[HookPoint][]hookEntry
	seq   int
}

// NewHooks returns an empty hook table.
func NewHooks() *Hooks {
	return &Hooks{table: make(map[HookPoint][]hookEntry)}
}

// Register adds an implementation for a hook point. Registration is expected
// during process startup; concurrent lookups observe either the old or the
// new table, never a partial one.
func (h *Hooks) Register(point HookPoint, impl any, order int) error {
	if !implMatches(point, impl) {
		return singleIssue(CodeInvalidType, "hook implementation does not match point "+string(point))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	entries := append([]hookEntry{}, h.table[point]...)
	entries = append(entries, hookEntry{impl: impl, order: order, seq: h.seq})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].seq < entries[j].seq
	})
	h.table[point] = entries
	return nil
}

func implMatches(point HookPoint, impl any) bool {
	switch point {
	case HookResolveType:
		_, ok := impl.(ResolveTypeHook)
		return ok
	case HookToValue:
		_, ok := impl.(ToValueHook)
		return ok
	case HookFromValue:
		_, ok := impl.(FromValueHook)
		return ok
	case HookSelectCodec:
		_, ok := impl.(SelectCodecHook)
		return ok
	case HookDeriveSchema:
		_, ok := impl.(DeriveSchemaHook)
		return ok
	default:
		return false
	}
}

func (h *Hooks) snapshot(point HookPoint) []hookEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.table[point]
}

// resolveType runs the resolve-type chain. handled is false when every
// candidate passed with ErrNotApplicable.
func (h *Hooks) resolveType(t reflect.Type) (d *Descriptor, handled bool, err error) {
	for _, e := range h.snapshot(HookResolveType) {
		d, err := e.impl.(ResolveTypeHook)(t)
		if err == nil {
			return d, true, nil
		}
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		return nil, true, err
	}
	return nil, false, nil
}

// transform runs a chained hook point: each applicable implementation
// rewrites the value before the next sees it.
func (h *Hooks) transform(ctx context.Context, point HookPoint, d *Descriptor, v Value) (Value, error) {
	for _, e := range h.snapshot(point) {
		var next Value
		var err error
		switch fn := e.impl.(type) {
		case ToValueHook:
			next, err = fn(ctx, d, v)
		case FromValueHook:
			next, err = fn(ctx, d, v)
		default:
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotApplicable) {
				continue
			}
			return Null(), err
		}
		v = next
	}
	return v, nil
}

// selectCodec runs the select-codec chain.
func (h *Hooks) selectCodec(name string) (f Format, handled bool, err error) {
	for _, e := range h.snapshot(HookSelectCodec) {
		f, err := e.impl.(SelectCodecHook)(name)
		if err == nil {
			return f, true, nil
		}
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		return nil, true, err
	}
	return nil, false, nil
}

// deriveSchema runs the derive-schema chain.
func (h *Hooks) deriveSchema(d *Descriptor) (s *Schema, handled bool, err error) {
	for _, e := range h.snapshot(HookDeriveSchema) {
		s, err := e.impl.(DeriveSchemaHook)(d)
		if err == nil {
			return s, true, nil
		}
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		return nil, true, err
	}
	return nil, false, nil
}
