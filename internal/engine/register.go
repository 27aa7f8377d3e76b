package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-rollup/internal/failure"
)

// RowSeq is the ordinal column added to every registered relation. It holds
// each element's zero-based position in the source array.
const RowSeq = "row_seq"

// ColumnType is the decoded type of a registered column.
type ColumnType string

const (
	// Text holds a JSON string.
	Text ColumnType = "TEXT"
	// Integer holds a JSON integer.
	Integer ColumnType = "INTEGER"
	// JSON holds any JSON value as compact JSON text.
	JSON ColumnType = "JSON"
)

func (t ColumnType) storage() string {
	if t == JSON {
		return "TEXT"
	}
	return string(t)
}

// ColumnDef names one field of the source objects and its type.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// Schema is the ordered column list of a registered relation.
type Schema []ColumnDef

func (s Schema) createSQL(name string) (string, error) {
	if len(s) == 0 {
		return "", eris.New("engine: empty schema")
	}
	cols := []string{quoteIdent(RowSeq) + " INTEGER NOT NULL"}
	for _, c := range s {
		if err := validIdent(c.Name); err != nil {
			return "", err
		}
		if c.Name == RowSeq {
			return "", eris.Errorf("engine: column name %s is reserved", RowSeq)
		}
		switch c.Type {
		case Text, Integer, JSON:
		default:
			return "", eris.Errorf("engine: column %s has unknown type %q", c.Name, c.Type)
		}
		cols = append(cols, quoteIdent(c.Name)+" "+c.Type.storage())
	}
	return "CREATE TABLE " + quoteIdent(name) + " (" + strings.Join(cols, ", ") + ")", nil
}

func (s Schema) insertSQL(name string) string {
	cols := []string{quoteIdent(RowSeq)}
	marks := []string{"?"}
	for _, c := range s {
		cols = append(cols, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	return "INSERT INTO " + quoteIdent(name) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// RegisterJSON loads a JSON array of objects from path into a new relation.
// Elements keep their array order in RowSeq. A field whose JSON type does not
// match its column, or a document that is not an array of objects, is a
// serialization failure. Absent and null fields become NULL. Returns the
// number of rows registered.
func (s *Session) RegisterJSON(ctx context.Context, name, path string, schema Schema) (int, error) {
	if err := validIdent(name); err != nil {
		return 0, failure.New(failure.Transform, err, "register")
	}
	create, err := schema.createSQL(name)
	if err != nil {
		return 0, failure.New(failure.Transform, err, "register "+name)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, failure.New(failure.Serialization, err, "open dataset")
	}
	defer f.Close() //nolint:errcheck

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "engine: begin register")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, failure.New(failure.Transform, err, "create "+name)
	}
	stmt, err := tx.PrepareContext(ctx, schema.insertSQL(name))
	if err != nil {
		return 0, failure.New(failure.Transform, err, "prepare insert "+name)
	}
	defer stmt.Close() //nolint:errcheck

	n := 0
	err = EachJSONElement(ctx, f, func(seq int, item map[string]json.RawMessage) error {
		if item == nil {
			return failure.New(failure.Serialization, nil, fmt.Sprintf("element %d is not an object", seq))
		}
		args := make([]any, 0, len(schema)+1)
		args = append(args, seq)
		for _, c := range schema {
			v, err := decodeValue(item[c.Name], c.Type)
			if err != nil {
				return failure.New(failure.Serialization, err, fmt.Sprintf("element %d field %s", seq, c.Name))
			}
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return failure.New(failure.Transform, err, "insert into "+name)
		}
		n++
		return nil
	})
	if err != nil {
		if failure.KindOf(err) != "" {
			return 0, err
		}
		return 0, failure.New(failure.Serialization, err, "decode dataset")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "engine: commit register")
	}
	return n, nil
}

func decodeValue(raw json.RawMessage, typ ColumnType) (any, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch typ {
	case Text:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, eris.Wrap(err, "expected string")
		}
		return s, nil
	case Integer:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, eris.Wrap(err, "expected integer")
		}
		return n, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, eris.Wrap(err, "compact json")
		}
		return buf.String(), nil
	}
}
