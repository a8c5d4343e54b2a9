package codec_test

import (
	"bytes"
	"context"
	"testing"

	adapt "github.com/reoring/adapt"
	"github.com/reoring/adapt/codec"
)

func TestCBOR_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	in := sample{Name: "c", Count: 1 << 40, Ratio: -0.125, Data: []byte{0xde, 0xad}}

	data, err := a.Marshal(ctx, in, "cbor")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[sample](ctx, a, data, "cbor")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || out.Ratio != in.Ratio || !bytes.Equal(out.Data, in.Data) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
}

func TestCBOR_DeterministicEncoding(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	in := map[string]int64{"zz": 1, "a": 2, "mm": 3}

	d1, err := a.Marshal(ctx, in, "cbor")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	d2, err := a.Marshal(ctx, in, "cbor")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(d1, d2) {
		t.Fatalf("encoding is not deterministic: %x vs %x", d1, d2)
	}
}

func TestCBOR_Uint64Overflow(t *testing.T) {
	ctx := context.Background()
	f, err := codec.CBOR()
	if err != nil {
		t.Fatalf("CBOR: %v", err)
	}
	// Major type 0 with 8-byte argument: the maximum unsigned integer.
	raw := []byte{0x1b, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	_, err = f.Decode(ctx, raw, &adapt.Schema{Kind: adapt.TypeInt})
	if !adapt.HasCode(err, adapt.CodeRange) {
		t.Fatalf("want range_error, got %v", err)
	}
}

func TestCBOR_MalformedBytes(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	_, err := adapt.Unmarshal[sample](ctx, a, []byte{0x1b, 0x01}, "cbor")
	if !adapt.HasCode(err, adapt.CodeDecodeError) {
		t.Fatalf("want decode_error, got %v", err)
	}
}
