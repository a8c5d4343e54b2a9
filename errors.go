package adapt

import (
	"errors"
	"fmt"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	// CodeUnsupportedType marks a type declaration the engine cannot represent
	// at all (function, channel, recursive type without a converter, ...).
	CodeUnsupportedType = "unsupported_type"
	// CodeNoConverter marks a representable type with nothing registered for
	// it at any specificity tier. The message names the descriptor.
	CodeNoConverter = "no_converter"
	// CodeAmbiguousConverter marks more than one registration at equal
	// specificity for the same descriptor, or a duplicate registration made
	// without the replace flag.
	CodeAmbiguousConverter = "ambiguous_converter"
	// CodeSchemaError marks a descriptor with no derivable structural shape.
	CodeSchemaError = "schema_error"
	// CodeDecodeError marks bytes that are malformed for the chosen format.
	CodeDecodeError = "decode_error"
	// CodeRange marks a numeric value exceeding a representable width.
	// Narrowing never saturates or wraps.
	CodeRange = "range_error"
	// CodeSchemaMismatch marks decoded structure that cannot be coerced into
	// the requested target type.
	CodeSchemaMismatch = "schema_mismatch"
	// CodeInvalidType marks a converter or hook fed a value of the wrong
	// dynamic type.
	CodeInvalidType = "invalid_type"
)

// Issue represents a single conversion failure entry.
type Issue struct {
	Path    string // JSON Pointer (for example: /items/2/price).
	Code    string // One of the codes listed above.
	Message string
	Hint    string // Optional: remediation hints, descriptor names, etc.
	Cause   error  // Optional: underlying error.
	// Params carries structured parameters (e.g., {"descriptor":"record<Point>"})
	// for observability.
	Params map[string]any
}

// Issues is a collection of conversion errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. no_converter at /path: no converter registered for record<Point>
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
		if it.Message != "" {
			fmt.Fprintf(b, ": %s", it.Message)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// HasCode reports whether err carries at least one Issue with the given code.
func HasCode(err error, code string) bool {
	iss, ok := AsIssues(err)
	if !ok {
		return false
	}
	for _, it := range iss {
		if it.Code == code {
			return true
		}
	}
	return false
}

// IssueAt creates an Issue at the given path with provided code, message and
// params map. This is a convenience helper to improve readability at call
// sites with many parameters.
func IssueAt(path, code, msg string, params map[string]any) Issue {
	return Issue{Path: path, Code: code, Message: msg, Params: params}
}

func singleIssue(code, msg string) Issues {
	return AppendIssues(nil, Issue{Path: "/", Code: code, Message: msg})
}

func issueAtPath(path, code, msg string) Issues {
	return AppendIssues(nil, Issue{Path: path, Code: code, Message: msg})
}
