package adapt

import "context"

// Format is the contract a wire-format plugin implements. The engine never
// hand-codes a byte grammar: it produces/consumes intermediate Values and
// the codec owns the framing.
//
// A codec that declares RequiresSchema receives a non-nil schema or is never
// called; schema-less codecs may ignore the schema entirely, though built-in
// text formats use it to disambiguate numeric kinds.
//
// Round-trip contract: for every Value producible by a registered converter,
// Decode(Encode(v, s), s) must equal v under Value.Equal. Integer values
// exceeding the format's native width fail with range_error rather than
// truncating, and floats round-trip without precision loss.
type Format interface {
	Name() string
	RequiresSchema() bool
	Encode(ctx context.Context, v Value, s *Schema) ([]byte, error)
	Decode(ctx context.Context, data []byte, s *Schema) (Value, error)
}

// RegisterFormat adds a codec under its name. Re-registering a name without
// replace fails with ambiguous_converter; nothing is silently overwritten.
func (a *Adapter) RegisterFormat(f Format, replace bool) error {
	if f == nil || f.Name() == "" {
		return singleIssue(CodeInvalidType, "nil or unnamed format codec")
	}
	a.formatMu.Lock()
	defer a.formatMu.Unlock()
	if _, exists := a.formats[f.Name()]; exists && !replace {
		return Issues{Issue{
			Path:    "/",
			Code:    CodeAmbiguousConverter,
			Message: "format " + f.Name() + " already registered; pass replace to override",
			Params:  map[string]any{"format": f.Name()},
		}}
	}
	a.formats[f.Name()] = f
	return nil
}

// selectFormat resolves a format name: select-codec hooks first
// (first-success), then the registration table.
func (a *Adapter) selectFormat(name string) (Format, error) {
	if f, handled, err := a.hooks.selectCodec(name); handled {
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	a.formatMu.RLock()
	f, ok := a.formats[name]
	a.formatMu.RUnlock()
	if !ok {
		return nil, Issues{Issue{
			Path:    "/",
			Code:    CodeNoConverter,
			Message: "no codec registered for format " + name,
			Params:  map[string]any{"format": name},
		}}
	}
	return f, nil
}
