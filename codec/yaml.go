package codec

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	adapt "github.com/reoring/adapt"
	"gopkg.in/yaml.v3"
)

// YAML returns the YAML text codec. Both directions go through an explicit
// yaml.Node tree: encoding so map insertion order survives on the wire and
// floats keep their !!float tag even when their rendering looks integral,
// decoding so !!binary scalars reach the coercion layer as raw bytes exactly
// once instead of whatever the driver's any-mapping would make of them.
func YAML() adapt.Format { return yamlFormat{} }

type yamlFormat struct{}

func (yamlFormat) Name() string         { return "yaml" }
func (yamlFormat) RequiresSchema() bool { return false }

func (yamlFormat) Encode(ctx context.Context, v adapt.Value, s *adapt.Schema) ([]byte, error) {
	data, err := yaml.Marshal(yamlNode(v))
	if err != nil {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "YAML encoding failed", Cause: err}}
	}
	return data, nil
}

func (yamlFormat) Decode(ctx context.Context, data []byte, s *adapt.Schema) (adapt.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "malformed YAML", Cause: err}}
	}
	native, err := yamlNative(&doc)
	if err != nil {
		return adapt.Null(), err
	}
	return coerceNative(native, s)
}

func yamlNode(v adapt.Value) *yaml.Node {
	switch v.Kind() {
	case adapt.KindNull:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case adapt.KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.Bool())}
	case adapt.KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v.Int(), 10)}
	case adapt.KindFloat:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v.Float(), 'g', -1, 64)}
	case adapt.KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Str()}
	case adapt.KindBytes:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(v.Bytes())}
	case adapt.KindList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range v.Items() {
			n.Content = append(n.Content, yamlNode(e))
		}
		return n
	case adapt.KindMap:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				yamlNode(e))
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// yamlNative lowers a parsed node tree into driver-native data. Scalar tags
// decide the Go type; unknown tags stay text and let the coercion layer sort
// them out.
func yamlNative(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		// Empty document.
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlNative(n.Content[0])
	case yaml.AliasNode:
		return yamlNative(n.Alias)
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return nil, nil
		case "!!bool":
			b, err := strconv.ParseBool(n.Value)
			if err != nil {
				return nil, yamlScalarError("boolean", err)
			}
			return b, nil
		case "!!int":
			i, err := strconv.ParseInt(n.Value, 0, 64)
			if err != nil {
				return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeRange, Message: "integer literal exceeds 64-bit signed range", Cause: err}}
			}
			return i, nil
		case "!!float":
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return nil, yamlScalarError("float", err)
			}
			return f, nil
		case "!!binary":
			raw, err := base64.StdEncoding.DecodeString(stripYAMLSpace(n.Value))
			if err != nil {
				return nil, yamlScalarError("base64 binary", err)
			}
			return raw, nil
		default:
			return n.Value, nil
		}
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			ev, err := yamlNative(c)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			ev, err := yamlNative(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = ev
		}
		return m, nil
	default:
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "unsupported YAML node"}}
	}
}

// stripYAMLSpace drops the folding whitespace block scalars may carry inside
// a base64 body.
func stripYAMLSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

func yamlScalarError(want string, cause error) error {
	return adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "invalid " + want + " scalar", Cause: cause}}
}
