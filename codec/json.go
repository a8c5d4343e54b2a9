package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"math"
	"strconv"

	gojson "github.com/goccy/go-json"
	adapt "github.com/reoring/adapt"
)

// JSON returns the plain-text JSON codec. It is schema-less: bytes become
// base64 text and numbers carry no int/float tag, so it consumes the schema
// opportunistically (when the facade can derive one) to restore both
// distinctions on decode.
func JSON() adapt.Format { return jsonFormat{} }

type jsonFormat struct{}

func (jsonFormat) Name() string         { return "json" }
func (jsonFormat) RequiresSchema() bool { return false }

func (jsonFormat) Encode(ctx context.Context, v adapt.Value, s *adapt.Schema) ([]byte, error) {
	data, err := gojson.Marshal(jsonNative(v))
	if err != nil {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "JSON encoding failed", Cause: err}}
	}
	return data, nil
}

func (jsonFormat) Decode(ctx context.Context, data []byte, s *adapt.Schema) (adapt.Value, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var native any
	if err := dec.Decode(&native); err != nil {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "malformed JSON", Cause: err}}
	}
	return coerceNative(native, s)
}

// jsonNative lowers a Value for the JSON marshaller: bytes as base64 text,
// floats as json.Number rendered with the shortest exact form so they
// round-trip without precision loss (the default float64 rendering of "1"
// would otherwise collapse Float(1) into an integer literal).
func jsonNative(v adapt.Value) any {
	switch v.Kind() {
	case adapt.KindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	case adapt.KindFloat:
		f := v.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			// JSON has no literal for these; fall through to the marshaller
			// which reports the error.
			return f
		}
		text := strconv.FormatFloat(f, 'g', -1, 64)
		if !hasFloatMark(text) {
			text += ".0"
		}
		return gojson.Number(text)
	case adapt.KindList:
		out := make([]any, v.Len())
		for i, e := range v.Items() {
			out[i] = jsonNative(e)
		}
		return out
	case adapt.KindMap:
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out[k] = jsonNative(e)
		}
		return out
	default:
		return v.Native()
	}
}

func hasFloatMark(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', 'e', 'E':
			return true
		}
	}
	return false
}
