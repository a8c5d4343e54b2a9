package adapt

import (
	"context"
	"sync"
)

// Specificity ranks how narrowly a converter's applicability is declared.
// Higher ranks win; ties at the same rank for the same key are an
// ambiguous_converter error, never a silent pick.
type Specificity uint8

const (
	// SpecFallback matches any descriptor of a kind ("any record").
	SpecFallback Specificity = iota
	// SpecKind matches a generic container or scalar kind ("any list").
	SpecKind
	// SpecStructural matches the structural shape, ignoring nominal identity.
	SpecStructural
	// SpecExact matches the concrete named descriptor.
	SpecExact
)

func (s Specificity) String() string {
	switch s {
	case SpecExact:
		return "exact"
	case SpecStructural:
		return "structural"
	case SpecKind:
		return "kind"
	case SpecFallback:
		return "fallback"
	default:
		return "invalid"
	}
}

// Converter is the pair of transformations between objects and the
// intermediate Value. Generic converters (registered below SpecExact)
// receive the resolved descriptor of the actual value so one implementation
// can serve a whole tier.
type Converter interface {
	ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error)
	FromValue(ctx context.Context, d *Descriptor, v Value) (any, error)
}

// ConverterFuncs adapts two functions into a Converter.
type ConverterFuncs struct {
	To   func(ctx context.Context, d *Descriptor, obj any) (Value, error)
	From func(ctx context.Context, d *Descriptor, v Value) (any, error)
}

func (c ConverterFuncs) ToValue(ctx context.Context, d *Descriptor, obj any) (Value, error) {
	return c.To(ctx, d, obj)
}

func (c ConverterFuncs) FromValue(ctx context.Context, d *Descriptor, v Value) (any, error) {
	return c.From(ctx, d, v)
}

// Registry maps descriptors to converters across four specificity tiers.
// Lookup walks exact -> structural -> kind -> fallback and caches the
// winner per fingerprint; the cache is invalidated eagerly at registration
// time, never lazily. Reads are safe under concurrent use; registration is
// expected during startup and atomically publishes old-or-new state.
type Registry struct {
	mu         sync.RWMutex
	exact      map[string][]Converter
	structural map[string][]Converter
	kind       map[TypeKind][]Converter
	fallback   map[TypeKind][]Converter
	cache      sync.Map // fingerprint -> Converter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact:      make(map[string][]Converter),
		structural: make(map[string][]Converter),
		kind:       make(map[TypeKind][]Converter),
		fallback:   make(map[TypeKind][]Converter),
	}
}

// Register adds a converter for the descriptor at the given specificity.
// Registering a second converter for the same key without replace leaves
// both in place and makes lookups for that key fail with
// ambiguous_converter until one side re-registers with replace; nothing is
// silently overwritten.
func (r *Registry) Register(d *Descriptor, c Converter, spec Specificity, replace bool) error {
	if d == nil || c == nil {
		return singleIssue(CodeInvalidType, "nil descriptor or converter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch spec {
	case SpecExact:
		r.exact[d.Fingerprint()] = appendOrReplace(r.exact[d.Fingerprint()], c, replace)
		// Only this fingerprint can be affected.
		r.cache.Delete(d.Fingerprint())
		return nil
	case SpecStructural:
		r.structural[d.Structural()] = appendOrReplace(r.structural[d.Structural()], c, replace)
	case SpecKind:
		r.kind[d.Kind] = appendOrReplace(r.kind[d.Kind], c, replace)
	case SpecFallback:
		r.fallback[d.Kind] = appendOrReplace(r.fallback[d.Kind], c, replace)
	default:
		return singleIssue(CodeInvalidType, "invalid specificity rank")
	}
	// Broader tiers can affect any cached descriptor; drop everything.
	r.cache.Range(func(k, _ any) bool {
		r.cache.Delete(k)
		return true
	})
	return nil
}

func appendOrReplace(entries []Converter, c Converter, replace bool) []Converter {
	if replace {
		return []Converter{c}
	}
	return append(entries, c)
}

// Lookup returns the converter for the descriptor. The first tier holding at
// least one entry decides: a single entry wins, two or more at that tier are
// ambiguous_converter. A descriptor no tier covers is no_converter, naming
// the descriptor so extension authors can register one.
func (r *Registry) Lookup(d *Descriptor) (Converter, error) {
	if d == nil {
		return nil, singleIssue(CodeInvalidType, "nil descriptor")
	}
	if c, ok := r.cache.Load(d.Fingerprint()); ok {
		return c.(Converter), nil
	}
	// The winner is cached while the read lock is still held: Register
	// clears the cache under the write lock, so a converter picked before an
	// invalidation can never be re-inserted after it.
	r.mu.RLock()
	defer r.mu.RUnlock()
	tiers := []struct {
		entries []Converter
		spec    Specificity
	}{
		{r.exact[d.Fingerprint()], SpecExact},
		{r.structural[d.Structural()], SpecStructural},
		{r.kind[d.Kind], SpecKind},
		{r.fallback[d.Kind], SpecFallback},
	}
	for _, tier := range tiers {
		switch len(tier.entries) {
		case 0:
			continue
		case 1:
			c := tier.entries[0]
			r.cache.Store(d.Fingerprint(), c)
			return c, nil
		default:
			return nil, Issues{Issue{
				Path:    "/",
				Code:    CodeAmbiguousConverter,
				Message: "multiple converters at " + tier.spec.String() + " specificity for " + d.String(),
				Params:  map[string]any{"descriptor": d.String(), "specificity": tier.spec.String(), "count": len(tier.entries)},
			}}
		}
	}
	return nil, Issues{Issue{
		Path:    "/",
		Code:    CodeNoConverter,
		Message: "no converter registered for " + d.String(),
		Params:  map[string]any{"descriptor": d.String()},
	}}
}
