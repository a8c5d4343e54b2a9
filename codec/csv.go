package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"strconv"

	adapt "github.com/reoring/adapt"
)

// CSV returns the tabular text codec. It handles flat records only: the
// schema must be a record of scalar fields or a list of such records.
// The header row follows the schema field order, one data row per record;
// a nullable field serializes null as an empty cell.
func CSV() adapt.Format { return csvFormat{} }

type csvFormat struct{}

func (csvFormat) Name() string         { return "csv" }
func (csvFormat) RequiresSchema() bool { return true }

func (csvFormat) Encode(ctx context.Context, v adapt.Value, s *adapt.Schema) ([]byte, error) {
	rec, many, err := csvRowSchema(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		header[i] = f.Name
	}
	if err := w.Write(header); err != nil {
		return nil, csvWriteError(err)
	}
	rows := []adapt.Value{v}
	if many {
		if v.Kind() != adapt.KindList {
			return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaMismatch, Message: "expected a list of records, got " + v.Kind().String()}}
		}
		rows = v.Items()
	}
	for i, row := range rows {
		cells, err := csvCells(row, rec)
		if err != nil {
			if many {
				return nil, prefixRow(err, i)
			}
			return nil, err
		}
		if err := w.Write(cells); err != nil {
			return nil, csvWriteError(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, csvWriteError(err)
	}
	return buf.Bytes(), nil
}

func (csvFormat) Decode(ctx context.Context, data []byte, s *adapt.Schema) (adapt.Value, error) {
	rec, many, err := csvRowSchema(s)
	if err != nil {
		return adapt.Null(), err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(rec.Fields)
	lines, err := r.ReadAll()
	if err != nil {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "malformed CSV", Cause: err}}
	}
	if len(lines) == 0 {
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "missing CSV header row"}}
	}
	for i, f := range rec.Fields {
		if lines[0][i] != f.Name {
			return adapt.Null(), adapt.Issues{adapt.Issue{
				Path:    "/" + f.Name,
				Code:    adapt.CodeDecodeError,
				Message: "header column " + strconv.Itoa(i) + " is " + strconv.Quote(lines[0][i]) + ", want " + strconv.Quote(f.Name),
			}}
		}
	}
	rows := make([]adapt.Value, 0, len(lines)-1)
	for i, line := range lines[1:] {
		row, err := csvRecord(line, rec)
		if err != nil {
			return adapt.Null(), prefixRow(err, i)
		}
		rows = append(rows, row)
	}
	if many {
		return adapt.List(rows...), nil
	}
	switch len(rows) {
	case 0:
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "no data row for single-record schema"}}
	case 1:
		return rows[0], nil
	default:
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "multiple data rows for single-record schema"}}
	}
}

// csvRowSchema validates the shape CSV can carry and returns the row record
// schema plus whether the payload is a list of rows.
func csvRowSchema(s *adapt.Schema) (*adapt.Schema, bool, error) {
	if s == nil {
		return nil, false, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaError, Message: "csv requires a schema"}}
	}
	rec, many := s, false
	if s.Kind == adapt.TypeList {
		rec, many = s.Elem, true
	}
	if rec.Kind != adapt.TypeRecord {
		return nil, false, adapt.Issues{adapt.Issue{
			Path:    "/",
			Code:    adapt.CodeUnsupportedType,
			Message: "csv carries flat records only, got " + rec.Kind.String(),
		}}
	}
	for _, f := range rec.Fields {
		switch f.Schema.Kind {
		case adapt.TypeBool, adapt.TypeInt, adapt.TypeFloat, adapt.TypeString, adapt.TypeBytes:
		default:
			return nil, false, adapt.Issues{adapt.Issue{
				Path:    "/" + f.Name,
				Code:    adapt.CodeUnsupportedType,
				Message: "csv cell cannot carry " + f.Schema.Kind.String(),
			}}
		}
	}
	return rec, many, nil
}

func csvCells(row adapt.Value, rec *adapt.Schema) ([]string, error) {
	if row.Kind() != adapt.KindMap {
		return nil, adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeSchemaMismatch, Message: "expected a record, got " + row.Kind().String()}}
	}
	cells := make([]string, len(rec.Fields))
	for i, f := range rec.Fields {
		e, ok := row.Get(f.Name)
		switch {
		case ok:
		case f.HasDefault:
			e = f.Default
		case f.Schema.Nullable:
			e = adapt.Null()
		default:
			return nil, adapt.Issues{adapt.Issue{Path: "/" + f.Name, Code: adapt.CodeSchemaMismatch, Message: "required field missing"}}
		}
		cell, err := csvCell(e, f)
		if err != nil {
			return nil, err
		}
		cells[i] = cell
	}
	return cells, nil
}

func csvCell(e adapt.Value, f adapt.SchemaField) (string, error) {
	if e.IsNull() {
		if !f.Schema.Nullable {
			return "", adapt.Issues{adapt.Issue{Path: "/" + f.Name, Code: adapt.CodeSchemaMismatch, Message: "null for non-nullable field"}}
		}
		return "", nil
	}
	switch e.Kind() {
	case adapt.KindBool:
		return strconv.FormatBool(e.Bool()), nil
	case adapt.KindInt:
		return strconv.FormatInt(e.Int(), 10), nil
	case adapt.KindFloat:
		return strconv.FormatFloat(e.Float(), 'g', -1, 64), nil
	case adapt.KindString:
		return e.Str(), nil
	case adapt.KindBytes:
		return base64.StdEncoding.EncodeToString(e.Bytes()), nil
	default:
		return "", adapt.Issues{adapt.Issue{Path: "/" + f.Name, Code: adapt.CodeSchemaMismatch, Message: "csv cell cannot carry " + e.Kind().String()}}
	}
}

func csvRecord(line []string, rec *adapt.Schema) (adapt.Value, error) {
	entries := make([]adapt.Entry, 0, len(rec.Fields))
	for i, f := range rec.Fields {
		cell := line[i]
		if cell == "" && f.Schema.Nullable && f.Schema.Kind != adapt.TypeString {
			entries = append(entries, adapt.Entry{Key: f.Name, Value: adapt.Null()})
			continue
		}
		v, err := csvScalar(cell, f)
		if err != nil {
			return adapt.Null(), err
		}
		entries = append(entries, adapt.Entry{Key: f.Name, Value: v})
	}
	return adapt.Map(entries...), nil
}

func csvScalar(cell string, f adapt.SchemaField) (adapt.Value, error) {
	switch f.Schema.Kind {
	case adapt.TypeBool:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return adapt.Null(), csvCellError(f.Name, "boolean", err)
		}
		return adapt.Bool(b), nil
	case adapt.TypeInt:
		i, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return adapt.Null(), csvCellError(f.Name, "integer", err)
		}
		return adapt.Int(i), nil
	case adapt.TypeFloat:
		x, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return adapt.Null(), csvCellError(f.Name, "float", err)
		}
		return adapt.Float(x), nil
	case adapt.TypeString:
		return adapt.String(cell), nil
	case adapt.TypeBytes:
		raw, err := base64.StdEncoding.DecodeString(cell)
		if err != nil {
			return adapt.Null(), csvCellError(f.Name, "base64", err)
		}
		return adapt.Bytes(raw), nil
	default:
		return adapt.Null(), adapt.Issues{adapt.Issue{Path: "/" + f.Name, Code: adapt.CodeUnsupportedType, Message: "csv cell cannot carry " + f.Schema.Kind.String()}}
	}
}

func csvCellError(field, want string, cause error) error {
	return adapt.Issues{adapt.Issue{
		Path:    "/" + field,
		Code:    adapt.CodeDecodeError,
		Message: "cell is not a valid " + want,
		Cause:   cause,
	}}
}

func csvWriteError(err error) error {
	return adapt.Issues{adapt.Issue{Path: "/", Code: adapt.CodeDecodeError, Message: "CSV encoding failed", Cause: err}}
}

// prefixRow re-roots issue paths under the row index for list payloads.
func prefixRow(err error, row int) error {
	issues, ok := adapt.AsIssues(err)
	if !ok {
		return err
	}
	out := make(adapt.Issues, len(issues))
	for i, it := range issues {
		p := it.Path
		if p == "/" {
			p = ""
		}
		it.Path = "/" + strconv.Itoa(row) + p
		out[i] = it
	}
	return out
}
