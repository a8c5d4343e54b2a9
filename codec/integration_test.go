package codec_test

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	adapt "github.com/reoring/adapt"
)

// Nested optional collections must survive every schema-capable format with
// explicit nulls and empty containers intact.
func TestRoundTrip_NestedOptionalCollection(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	one := 1
	in := []map[string]*int{
		{"a": &one, "b": nil},
		{},
	}
	for _, format := range []string{"json", "yaml", "cbor"} {
		data, err := a.Marshal(ctx, in, format)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", format, err)
		}
		out, err := adapt.Unmarshal[[]map[string]*int](ctx, a, data, format)
		if err != nil {
			t.Fatalf("%s: Unmarshal: %v", format, err)
		}
		if !reflect.DeepEqual(out, in) {
			t.Fatalf("%s: round-trip mismatch: %+v vs %+v", format, out, in)
		}
	}
}

// A reader with a wider declaration fills missing fields from declared
// defaults instead of failing, across text and binary formats alike.
func TestForwardCompat_DefaultInfill(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	type writerRec struct {
		A string
		B int64
	}
	type readerRec struct {
		A string
		B int64
		C string `default:"fallback"`
	}
	for _, format := range []string{"json", "yaml", "cbor"} {
		data, err := a.Marshal(ctx, writerRec{A: "x", B: 2}, format)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", format, err)
		}
		out, err := adapt.Unmarshal[readerRec](ctx, a, data, format)
		if err != nil {
			t.Fatalf("%s: Unmarshal: %v", format, err)
		}
		if out.C != "fallback" {
			t.Fatalf("%s: default not applied: %+v", format, out)
		}
		if out.A != "x" || out.B != 2 {
			t.Fatalf("%s: carried fields wrong: %+v", format, out)
		}
	}
}

// A reader with a narrower declaration and no default for the gap fails
// loudly instead of inventing a zero value.
func TestForwardCompat_MissingWithoutDefaultFails(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	type narrow struct {
		A string
	}
	type wide struct {
		A string
		B int64
	}
	data, err := a.Marshal(ctx, narrow{A: "x"}, "json")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = adapt.Unmarshal[wide](ctx, a, data, "json")
	if !adapt.HasCode(err, adapt.CodeSchemaMismatch) {
		t.Fatalf("want schema_mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "/B") {
		t.Fatalf("error should name the missing field: %v", err)
	}
}

func TestRoundTrip_LogicalTypesAcrossFormats(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	type entry struct {
		ID   uuid.UUID
		When time.Time
	}
	in := entry{
		ID:   uuid.MustParse("8c5da510-46fd-4976-a392-e167b5233a8a"),
		When: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	for _, format := range []string{"json", "yaml", "cbor", "avro"} {
		data, err := a.Marshal(ctx, in, format)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", format, err)
		}
		out, err := adapt.Unmarshal[entry](ctx, a, data, format)
		if err != nil {
			t.Fatalf("%s: Unmarshal: %v", format, err)
		}
		if out.ID != in.ID || !out.When.Equal(in.When) {
			t.Fatalf("%s: round-trip mismatch: %+v vs %+v", format, out, in)
		}
	}
}

func TestTimeUnixMilliMode(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t, adapt.Options{TimeMode: adapt.TimeUnixMilli})
	in := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	data, err := a.Marshal(ctx, in, "json")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "1787832000000" {
		t.Fatalf("unix-milli wire form = %q", data)
	}
	out, err := adapt.Unmarshal[time.Time](ctx, a, data, "json")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !out.Equal(in) {
		t.Fatalf("got %v, want %v", out, in)
	}
}

func TestMarshal_UnrepresentableTypeNamesIt(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	_, err := a.Marshal(ctx, make(chan int), "json")
	if !adapt.HasCode(err, adapt.CodeUnsupportedType) {
		t.Fatalf("want unsupported_type, got %v", err)
	}
	if !strings.Contains(err.Error(), "chan int") {
		t.Fatalf("error should name the offending type: %v", err)
	}
}

// Fields tagged as JSON-carried travel as encoded text and restore shapes
// the intermediate model cannot hold directly.
func TestJSONStringField(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	type doc struct {
		Name string
		Meta map[string]any `adapt:"meta,json"`
	}
	in := doc{Name: "d", Meta: map[string]any{"k": "v", "n": float64(2)}}

	data, err := a.Marshal(ctx, in, "json")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := adapt.Unmarshal[doc](ctx, a, data, "json")
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round-trip mismatch: %+v vs %+v", out, in)
	}
}
