package codec_test

import (
	"context"
	"reflect"
	"testing"

	adapt "github.com/reoring/adapt"
)

func TestYAML_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	in := sample{Name: "y", Count: -7, Ratio: 2.25, Data: []byte("raw")}

	data, err := a.Marshal(ctx, in, "yaml")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[sample](ctx, a, data, "yaml")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || out.Ratio != in.Ratio || string(out.Data) != "raw" {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
	if out.Note != nil {
		t.Fatalf("nil optional should stay nil, got %v", out.Note)
	}
}

func TestYAML_MapKeysDeterministic(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	data, err := a.Marshal(ctx, map[string]int64{"b": 2, "a": 1}, "yaml")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "a: 1\nb: 2\n" {
		t.Fatalf("got %q", data)
	}
	out, err := adapt.Unmarshal[map[string]int64](ctx, a, data, "yaml")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, map[string]int64{"a": 1, "b": 2}) {
		t.Fatalf("got %v", out)
	}
}

func TestYAML_IntegralFloatKeepsTag(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	data, err := a.Marshal(ctx, float64(3), "yaml")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[float64](ctx, a, data, "yaml")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != 3 {
		t.Fatalf("got %v", out)
	}
}

func TestYAML_BinaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	cases := [][]byte{
		{0x00, 0x10, 0xfe, 0xff},    // not valid text
		[]byte("AQI="),              // raw content that happens to look like base64
		[]byte("cmF3IGJ5dGVz\ncg"), // raw content with base64 alphabet plus newline
	}
	for _, in := range cases {
		data, err := a.Marshal(ctx, in, "yaml")
		if err != nil {
			t.Fatalf("%q: Marshal: %v", in, err)
		}
		out, err := adapt.Unmarshal[[]byte](ctx, a, data, "yaml")
		if err != nil {
			t.Fatalf("%q: Unmarshal: %v", in, err)
		}
		if string(out) != string(in) {
			t.Fatalf("binary payload corrupted: %q -> %q", in, out)
		}
	}
}

func TestYAML_MalformedBytes(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	_, err := adapt.Unmarshal[sample](ctx, a, []byte("Name: [unclosed"), "yaml")
	if !adapt.HasCode(err, adapt.CodeDecodeError) {
		t.Fatalf("want decode_error, got %v", err)
	}
}
