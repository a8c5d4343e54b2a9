package codec

import (
	"context"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"
	adapt "github.com/reoring/adapt"
)

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec (RFC 8949) using the canonical
// core profile. CBOR is binary and self-describing — integers, floats and
// byte strings keep their kind on the wire — so it needs no schema.
// Positive integers above the 64-bit signed range surface as range_error
// through the coercion layer rather than wrapping.
func CBOR() (adapt.Format, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborFormat{enc: em, dec: dm}, nil
}

func (cborFormat) Name() string         { return "cbor" }
func (cborFormat) RequiresSchema() bool { return false }

func (c cborFormat) Encode(ctx context.Context, v adapt.Value, s *adapt.Schema) ([]byte, error) {
	data, err := c.enc.Marshal(v.Native())
	if err != nil {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "CBOR encoding failed", Cause: err}}
	}
	return data, nil
}

func (c cborFormat) Decode(ctx context.Context, data []byte, s *adapt.Schema) (adapt.Value, error) {
	var native any
	if err := c.dec.Unmarshal(data, &native); err != nil {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "malformed CBOR", Cause: err}}
	}
	return coerceNative(native, s)
}
